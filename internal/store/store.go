// Package store persists daily price rows, financial ratios and watchlists,
// and answers the cache-coverage and period-ranking queries over them.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/database"
	"github.com/wonny/stockscanner/pkg/logger"
)

// Store is the price history store
// ⭐ SSOT: 가격/재무/관심종목 영속화는 이 인터페이스를 통해서만
type Store interface {
	// UpsertDailyPrices writes rows in one transaction; last write wins per (date, code)
	UpsertDailyPrices(ctx context.Context, rows []contracts.DailyPriceRow) error
	// CachedCodes returns instruments whose stored history covers [start, end]
	CachedCodes(ctx context.Context, start, end string) (map[string]struct{}, error)
	// RankedReturns ranks every instrument in range. market "" means all; topN <= 0 keeps all.
	RankedReturns(ctx context.Context, start, end string, market contracts.Market, topN int) ([]contracts.ReturnRecord, error)
	// RankedReturnsFor ranks only the given instruments
	RankedReturnsFor(ctx context.Context, start, end string, codes []string) ([]contracts.ReturnRecord, error)
	HasAnyData(ctx context.Context, start, end string) (bool, error)

	SaveFinancials(ctx context.Context, rows []contracts.FinancialRow) error
	Financials(ctx context.Context, codes []string) (map[string]contracts.FinancialRow, error)

	// AddWatch reports false when the entry already existed
	AddWatch(ctx context.Context, entry contracts.WatchlistEntry) (bool, error)
	// RemoveWatch reports false when there was nothing to delete
	RemoveWatch(ctx context.Context, userID int64, platform, code string) (bool, error)
	Watchlist(ctx context.Context, userID int64, platform string) ([]contracts.WatchlistEntry, error)
	WatchlistGrouped(ctx context.Context) (GroupedWatchlist, error)

	Close() error
}

// GroupedWatchlist is platform -> user -> entries
type GroupedWatchlist map[string]map[int64][]contracts.WatchlistEntry

const (
	// DefaultToleranceDays absorbs weekends and holidays at range edges
	DefaultToleranceDays = 7

	addedDateLayout = "2006-01-02 15:04:05"
)

// Open builds the backend selected by cfg.Store.Driver
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	tolerance := cfg.Scanner.CacheToleranceDays

	switch cfg.Store.Driver {
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Store.SQLitePath, tolerance, log)
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s, err := NewPostgresStore(ctx, db, tolerance, log)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// CoverageThresholds returns the MIN(date)/MAX(date) bounds an instrument
// must satisfy to count as cached: MIN <= start+tolerance and
// MAX >= end-tolerance. When the shifted window collapses
// (endThr <= startThr) the exact bounds are used instead.
func CoverageThresholds(start, end string, toleranceDays int) (startThr, endThr string, err error) {
	s, err := contracts.ParseDate(start)
	if err != nil {
		return "", "", err
	}
	e, err := contracts.ParseDate(end)
	if err != nil {
		return "", "", err
	}

	startThr = s.AddDate(0, 0, toleranceDays).Format(contracts.DateLayout)
	endThr = e.AddDate(0, 0, -toleranceDays).Format(contracts.DateLayout)

	// 기간이 짧으면 (tolerance*2+1일 미만) 정확히 비교
	if endThr <= startThr {
		return start, end, nil
	}
	return startThr, endThr, nil
}

func today() string {
	return time.Now().Format(contracts.DateLayout)
}

func now() string {
	return time.Now().Format(addedDateLayout)
}

func platformOrDefault(p string) string {
	if p == "" {
		return "telegram"
	}
	return p
}

// groupWatchlist folds entries ordered by platform and user into a GroupedWatchlist
func groupWatchlist(entries []contracts.WatchlistEntry) GroupedWatchlist {
	grouped := make(GroupedWatchlist)
	for _, e := range entries {
		users, ok := grouped[e.Platform]
		if !ok {
			users = make(map[int64][]contracts.WatchlistEntry)
			grouped[e.Platform] = users
		}
		users[e.UserID] = append(users[e.UserID], e)
	}
	return grouped
}
