package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/external/naver"
	"github.com/wonny/stockscanner/internal/signals"
	"github.com/wonny/stockscanner/internal/store"
	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/logger"
)

const (
	rangeStart = "20240101"
	rangeEnd   = "20240331"
)

type fakeMarket struct {
	mu         sync.Mutex
	closes     map[string][2]int64 // code -> first/last close
	candles    map[string][]signals.Candle
	financials map[string]kis.Financials
	authErr    error
	dailyCalls map[string]int
	minuteHits map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		closes:     make(map[string][2]int64),
		candles:    make(map[string][]signals.Candle),
		financials: make(map[string]kis.Financials),
		dailyCalls: make(map[string]int),
		minuteHits: make(map[string]int),
	}
}

func (f *fakeMarket) Authenticate(ctx context.Context) error {
	return f.authErr
}

func (f *fakeMarket) DailyBars(ctx context.Context, inst contracts.Instrument, start, end string) ([]contracts.DailyPriceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls[inst.Code]++

	c, ok := f.closes[inst.Code]
	if !ok {
		return nil, kis.ErrNoData
	}
	row := func(date string, close int64) contracts.DailyPriceRow {
		return contracts.DailyPriceRow{Date: date, Code: inst.Code, Name: inst.Name, Market: inst.Market,
			Open: close, High: close, Low: close, Close: close, Volume: 1000}
	}
	return []contracts.DailyPriceRow{row("20240102", c[0]), row("20240329", c[1])}, nil
}

func (f *fakeMarket) RecentCandles(ctx context.Context, code, interval string, n int) ([]signals.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minuteHits[code]++
	c, ok := f.candles[code]
	if !ok {
		return nil, kis.ErrUpstream
	}
	return c, nil
}

func (f *fakeMarket) Financials(ctx context.Context, code string) (kis.Financials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fin, ok := f.financials[code]
	if !ok {
		return kis.Financials{}, kis.ErrUpstream
	}
	return fin, nil
}

func (f *fakeMarket) calls(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dailyCalls[code]
}

type fakeInstruments struct {
	byMarket map[contracts.Market][]contracts.Instrument
}

func (f *fakeInstruments) Instruments(ctx context.Context, market contracts.Market) ([]contracts.Instrument, error) {
	return f.byMarket[market], nil
}

func (f *fakeInstruments) All(ctx context.Context) ([]contracts.Instrument, error) {
	var all []contracts.Instrument
	for _, m := range contracts.Markets {
		all = append(all, f.byMarket[m]...)
	}
	return all, nil
}

type fakeNews struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeNews) SearchNews(ctx context.Context, query string, display int) []naver.NewsItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return []naver.NewsItem{{Title: query + " 급등", Link: "https://news.example/1"}}
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

type fakePublisher struct {
	mu    sync.Mutex
	items []ScanItem
}

func (f *fakePublisher) Publish(item ScanItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
}

func f64(v float64) *float64 { return &v }

var (
	samsung  = contracts.Instrument{Code: "005930", Name: "삼성전자", Market: contracts.MarketKOSPI}
	hynix    = contracts.Instrument{Code: "000660", Name: "SK하이닉스", Market: contracts.MarketKOSPI}
	broken   = contracts.Instrument{Code: "999999", Name: "상장폐지", Market: contracts.MarketKOSPI}
	ecopro   = contracts.Instrument{Code: "086520", Name: "에코프로", Market: contracts.MarketKOSDAQ}
	alteogen = contracts.Instrument{Code: "196170", Name: "알테오젠", Market: contracts.MarketKOSDAQ}
)

type fixture struct {
	svc      *Service
	store    store.Store
	market   *fakeMarket
	news     *fakeNews
	notifier *fakeNotifier
	dataDir  string
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DataDir: dataDir},
		Scanner: config.ScannerConfig{
			TopN:               3,
			ReentryLower:       2,
			ReentryUpper:       3,
			CacheToleranceDays: 7,
			FetchWorkers:       2,
			MinuteInterval:     "30",
			MinuteCandles:      30,
			ScanTimezone:       "Asia/Seoul",
			DefaultPlatform:    "telegram",
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	log := logger.Nop()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(dir, "scanner.db"), 7, log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	market := newFakeMarket()
	// +20, +10, +50, -5; 999999 has no bars
	market.closes[samsung.Code] = [2]int64{70000, 84000}
	market.closes[hynix.Code] = [2]int64{150000, 165000}
	market.closes[ecopro.Code] = [2]int64{100000, 150000}
	market.closes[alteogen.Code] = [2]int64{200000, 190000}
	market.financials[samsung.Code] = kis.Financials{ROE: f64(9.5), OperatingMargin: f64(12.1)}
	market.financials[ecopro.Code] = kis.Financials{ROE: f64(3.2)}

	instruments := &fakeInstruments{byMarket: map[contracts.Market][]contracts.Instrument{
		contracts.MarketKOSPI:  {samsung, hynix, broken},
		contracts.MarketKOSDAQ: {ecopro, alteogen},
	}}

	fx := &fixture{
		store:    st,
		market:   market,
		news:     &fakeNews{},
		notifier: &fakeNotifier{},
		dataDir:  filepath.Join(dir, "data"),
	}
	fx.svc = NewService(testConfig(fx.dataDir), Deps{
		Store:       st,
		Instruments: instruments,
		Market:      market,
		News:        fx.news,
		Notifier:    fx.notifier,
	}, log)
	fx.svc.now = func() time.Time { return time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC) }
	return fx
}

func candles(closes ...int64) []signals.Candle {
	out := make([]signals.Candle, len(closes))
	for i, c := range closes {
		out[i] = signals.Candle{Time: time.Date(2024, 4, 1, 9, 30*i, 0, 0, time.UTC).Format("150405"), Close: c}
	}
	return out
}
