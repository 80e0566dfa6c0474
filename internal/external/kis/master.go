package kis

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/encoding/korean"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/redis"
)

// masterFile describes one market's fixed-width master listing
type masterFile struct {
	name     string
	part2Len int // 행 끝 고정폭 영역 길이
}

var masterFiles = map[contracts.Market]masterFile{
	contracts.MarketKOSPI:  {name: "kospi_code.mst.zip", part2Len: 228},
	contracts.MarketKOSDAQ: {name: "kosdaq_code.mst.zip", part2Len: 222},
}

// Master downloads and caches the instrument master listings.
// Redis holds the parsed listing when enabled; the process keeps its own copy either way.
type Master struct {
	http    *httputil.Client
	baseURL string
	cache   *redis.Cache
	logger  *logger.Logger

	mu    sync.Mutex
	local map[contracts.Market][]contracts.Instrument
}

// NewMaster creates a master loader. cache may wrap a disabled client.
func NewMaster(baseURL string, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *Master {
	return &Master{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cache:   cache,
		logger:  log.Module("kis-master"),
		local:   make(map[contracts.Market][]contracts.Instrument),
	}
}

// Instruments returns every listed instrument of market
func (m *Master) Instruments(ctx context.Context, market contracts.Market) ([]contracts.Instrument, error) {
	file, ok := masterFiles[market]
	if !ok {
		return nil, fmt.Errorf("unsupported market %q", market)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if list, ok := m.local[market]; ok {
		return list, nil
	}

	var cached []contracts.Instrument
	if hit, err := m.cache.Get(ctx, redis.InstrumentsKey(string(market)), &cached); err != nil {
		m.logger.WithError(err).Warn("Master cache read failed")
	} else if hit && len(cached) > 0 {
		m.local[market] = cached
		return cached, nil
	}

	list, err := m.download(ctx, market, file)
	if err != nil {
		return nil, err
	}

	if err := m.cache.Set(ctx, redis.InstrumentsKey(string(market)), list, redis.TTLMaster); err != nil {
		m.logger.WithError(err).Warn("Master cache write failed")
	}
	m.local[market] = list

	m.logger.WithFields(map[string]interface{}{
		"market": market,
		"count":  len(list),
	}).Info("Instrument master loaded")
	return list, nil
}

// All returns both markets, KOSPI first
func (m *Master) All(ctx context.Context) ([]contracts.Instrument, error) {
	all := make([]contracts.Instrument, 0)
	for _, market := range contracts.Markets {
		list, err := m.Instruments(ctx, market)
		if err != nil {
			return nil, err
		}
		all = append(all, list...)
	}
	return all, nil
}

func (m *Master) download(ctx context.Context, market contracts.Market, file masterFile) ([]contracts.Instrument, error) {
	resp, err := m.http.Get(ctx, m.baseURL+"/"+file.name)
	if err != nil {
		return nil, fmt.Errorf("%w: master download: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("%w: master download status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: master read: %v", ErrUpstream, err)
	}

	raw, err := unzipFirst(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return ParseMaster(raw, file.part2Len, market)
}

func unzipFirst(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open master zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("master zip is empty")
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", zr.File[0].Name, err)
	}
	defer f.Close()

	return io.ReadAll(f)
}

// ParseMaster decodes a cp949 master listing. Per line, the trailing
// part2Len characters are fixed-width data; of the rest, [0:9] is the
// short code and [21:] the Korean name. Only 6-digit numeric codes are kept.
func ParseMaster(raw []byte, part2Len int, market contracts.Market) ([]contracts.Instrument, error) {
	decoded, err := korean.EUCKR.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode master: %w", err)
	}

	out := make([]contracts.Instrument, 0)
	for _, line := range strings.Split(string(decoded), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		runes := []rune(line)
		if len(runes) <= part2Len {
			continue
		}
		part1 := runes[:len(runes)-part2Len]
		if len(part1) < 9 {
			continue
		}

		code := strings.TrimRight(string(part1[:9]), " ")
		name := ""
		if len(part1) > 21 {
			name = strings.TrimSpace(string(part1[21:]))
		}

		if !isStockCode(code) {
			continue
		}
		out = append(out, contracts.Instrument{Code: code, Name: name, Market: market})
	}
	return out, nil
}

func isStockCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
