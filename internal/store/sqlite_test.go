package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/pkg/logger"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "data", "scanner.db"), DefaultToleranceDays, logger.Nop())
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newTestSQLite(t))
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scanner.db")

	s, err := NewSQLiteStore(ctx, path, DefaultToleranceDays, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.UpsertDailyPrices(ctx, []contracts.DailyPriceRow{
		row("20240102", "005930", contracts.MarketKOSPI, 70000),
	}))

	// schema creation is idempotent and data survives
	s2, err := NewSQLiteStore(ctx, path, DefaultToleranceDays, logger.Nop())
	require.NoError(t, err)
	ok, err := s2.HasAnyData(ctx, "20240101", "20240131")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := []string{"000001", "000002", "000003", "000004"}[i]
			errs <- s.UpsertDailyPrices(ctx, []contracts.DailyPriceRow{
				row("20240102", code, contracts.MarketKOSPI, 100),
				row("20241230", code, contracts.MarketKOSPI, 110),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ranked, err := s.RankedReturns(ctx, "20240101", "20241231", "", 0)
	require.NoError(t, err)
	assert.Len(t, ranked, 4)
}

func TestSQLiteStoreCancelledWriteLeavesNoRows(t *testing.T) {
	s := newTestSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.UpsertDailyPrices(ctx, []contracts.DailyPriceRow{
		row("20240102", "005930", contracts.MarketKOSPI, 70000),
		row("20241230", "005930", contracts.MarketKOSPI, 80000),
	})
	assert.Error(t, err)

	ok, err := s.HasAnyData(context.Background(), "20240101", "20241231")
	require.NoError(t, err)
	assert.False(t, ok)
}
