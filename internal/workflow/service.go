// Package workflow wires the pipeline: collection, analysis, watchlist
// scans and the watchlist itself, behind a single-run gate.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/external/naver"
	"github.com/wonny/stockscanner/internal/fetch"
	"github.com/wonny/stockscanner/internal/reentry"
	"github.com/wonny/stockscanner/internal/signals"
	"github.com/wonny/stockscanner/internal/store"
	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/logger"
)

// MarketData is the upstream quotation source
type MarketData interface {
	Authenticate(ctx context.Context) error
	DailyBars(ctx context.Context, inst contracts.Instrument, start, end string) ([]contracts.DailyPriceRow, error)
	RecentCandles(ctx context.Context, code, interval string, n int) ([]signals.Candle, error)
	Financials(ctx context.Context, code string) (kis.Financials, error)
}

// InstrumentSource lists the exchange master
type InstrumentSource interface {
	Instruments(ctx context.Context, market contracts.Market) ([]contracts.Instrument, error)
	All(ctx context.Context) ([]contracts.Instrument, error)
}

// NewsSearcher looks up recent articles; it never fails
type NewsSearcher interface {
	SearchNews(ctx context.Context, query string, display int) []naver.NewsItem
}

// Notifier delivers chat messages, best-effort
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Publisher receives every signal found by a scan (e.g. websocket clients)
type Publisher interface {
	Publish(item ScanItem)
}

// Deps are the collaborators of a Service
type Deps struct {
	Store       store.Store
	Instruments InstrumentSource
	Market      MarketData
	News        NewsSearcher
	Notifier    Notifier
}

// Service runs the pipeline
// ⭐ SSOT: 수집 → 분석 → 스캔 흐름 조율은 여기서만
type Service struct {
	store       store.Store
	instruments InstrumentSource
	market      MarketData
	news        NewsSearcher
	notifier    Notifier

	coordinator *fetch.Coordinator
	gate        *Gate
	band        reentry.Band
	cfg         config.ScannerConfig
	dataDir     string
	loc         *time.Location

	pubMu     sync.RWMutex
	publisher Publisher

	dirMu     sync.Mutex
	directory *kis.Directory

	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a pipeline service
func NewService(cfg *config.Config, deps Deps, log *logger.Logger) *Service {
	return &Service{
		store:       deps.Store,
		instruments: deps.Instruments,
		market:      deps.Market,
		news:        deps.News,
		notifier:    deps.Notifier,
		coordinator: fetch.New(cfg.Scanner.FetchWorkers, cfg.Scanner.FetchDelay, log),
		gate:        &Gate{},
		band:        reentry.Band{Lower: cfg.Scanner.ReentryLower, Upper: cfg.Scanner.ReentryUpper},
		cfg:         cfg.Scanner,
		dataDir:     cfg.Store.DataDir,
		loc:         cfg.Scanner.Location(),
		logger:      log.Module("workflow"),
		now:         time.Now,
	}
}

// Gate exposes the run gate so callers can report busy state
func (s *Service) Gate() *Gate {
	return s.gate
}

// SetPublisher attaches a signal sink; nil detaches
func (s *Service) SetPublisher(p Publisher) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publisher = p
}

func (s *Service) publish(item ScanItem) {
	s.pubMu.RLock()
	p := s.publisher
	s.pubMu.RUnlock()
	if p != nil {
		p.Publish(item)
	}
}

// ValidateDate checks an 8-digit calendar date
func ValidateDate(v string) error {
	if _, err := contracts.ParseDate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func validateRange(start, end string) error {
	if err := contracts.ValidateRange(start, end); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Directory returns the instrument directory, loading it on first use
func (s *Service) Directory(ctx context.Context) (*kis.Directory, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	if s.directory != nil {
		return s.directory, nil
	}
	all, err := s.instruments.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}
	s.directory = kis.NewDirectory(all)
	return s.directory, nil
}

// Resolve finds an instrument by code or name
func (s *Service) Resolve(ctx context.Context, query string) (contracts.Instrument, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return contracts.Instrument{}, err
	}
	inst, ok := dir.Find(query)
	if !ok {
		return contracts.Instrument{}, fmt.Errorf("%w: instrument %q not found", ErrInvalidInput, query)
	}
	return inst, nil
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(contracts.DateLayout)
}

func outcomeOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
