package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/ranking"
	"github.com/wonny/stockscanner/pkg/database"
	"github.com/wonny/stockscanner/pkg/logger"
)

var postgresSchema = []string{
	`CREATE SCHEMA IF NOT EXISTS scanner`,
	`CREATE TABLE IF NOT EXISTS scanner.daily_prices (
		trade_date  TEXT NOT NULL,
		stock_code  TEXT NOT NULL,
		stock_name  TEXT NOT NULL,
		market      TEXT NOT NULL,
		open_price  BIGINT,
		high_price  BIGINT,
		low_price   BIGINT,
		close_price BIGINT NOT NULL,
		volume      BIGINT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (trade_date, stock_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_prices_code ON scanner.daily_prices(stock_code, trade_date)`,
	`CREATE TABLE IF NOT EXISTS scanner.financials (
		stock_code       TEXT PRIMARY KEY,
		roe              DOUBLE PRECISION,
		operating_margin DOUBLE PRECISION,
		updated_date     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scanner.watchlist (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		platform   TEXT NOT NULL DEFAULT 'telegram',
		stock_code TEXT NOT NULL,
		stock_name TEXT NOT NULL,
		added_date TEXT NOT NULL,
		UNIQUE (user_id, platform, stock_code)
	)`,
}

// PostgresStore is the shared-deployment backend on pgxpool
type PostgresStore struct {
	db        *database.DB
	tolerance int
	logger    *logger.Logger
}

// NewPostgresStore applies the schema and takes ownership of db
func NewPostgresStore(ctx context.Context, db *database.DB, toleranceDays int, log *logger.Logger) (*PostgresStore, error) {
	for _, stmt := range postgresSchema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &PostgresStore{
		db:        db,
		tolerance: toleranceDays,
		logger:    log.Module("store"),
	}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// UpsertDailyPrices writes all rows in one transaction
func (s *PostgresStore) UpsertDailyPrices(ctx context.Context, rows []contracts.DailyPriceRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO scanner.daily_prices (
			trade_date, stock_code, stock_name, market,
			open_price, high_price, low_price, close_price, volume, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (trade_date, stock_code) DO UPDATE SET
			stock_name = EXCLUDED.stock_name,
			market = EXCLUDED.market,
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			updated_at = NOW()
	`

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query,
			r.Date, r.Code, r.Name, string(r.Market),
			r.Open, r.High, r.Low, r.Close, r.Volume,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert price %s/%s: %w", r.Code, r.Date, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithField("rows", len(rows)).Debug("Saved daily prices")
	return nil
}

// CachedCodes uses each instrument's global MIN/MAX date
func (s *PostgresStore) CachedCodes(ctx context.Context, start, end string) (map[string]struct{}, error) {
	startThr, endThr, err := CoverageThresholds(start, end, s.tolerance)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT stock_code FROM scanner.daily_prices
		GROUP BY stock_code
		HAVING MIN(trade_date) <= $1 AND MAX(trade_date) >= $2`, startThr, endThr)
	if err != nil {
		return nil, fmt.Errorf("query cached codes: %w", err)
	}
	defer rows.Close()

	cached := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		cached[code] = struct{}{}
	}
	return cached, rows.Err()
}

// RankedReturns loads every row in range and ranks it
func (s *PostgresStore) RankedReturns(ctx context.Context, start, end string, market contracts.Market, topN int) ([]contracts.ReturnRecord, error) {
	query := `
		SELECT stock_code, stock_name, market, trade_date, close_price
		FROM scanner.daily_prices
		WHERE trade_date BETWEEN $1 AND $2`
	args := []interface{}{start, end}
	if market != "" {
		query += ` AND market = $3`
		args = append(args, string(market))
	}
	query += ` ORDER BY stock_code, trade_date`

	rows, err := s.loadRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(rows, topN), nil
}

// RankedReturnsFor ranks only the given codes
func (s *PostgresStore) RankedReturnsFor(ctx context.Context, start, end string, codes []string) ([]contracts.ReturnRecord, error) {
	if len(codes) == 0 {
		return []contracts.ReturnRecord{}, nil
	}

	rows, err := s.loadRows(ctx, `
		SELECT stock_code, stock_name, market, trade_date, close_price
		FROM scanner.daily_prices
		WHERE trade_date BETWEEN $1 AND $2 AND stock_code = ANY($3)
		ORDER BY stock_code, trade_date`, start, end, codes)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(rows, 0), nil
}

func (s *PostgresStore) loadRows(ctx context.Context, query string, args ...interface{}) ([]contracts.DailyPriceRow, error) {
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.DailyPriceRow, 0)
	for rows.Next() {
		var r contracts.DailyPriceRow
		var market string
		if err := rows.Scan(&r.Code, &r.Name, &market, &r.Date, &r.Close); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		r.Market = contracts.Market(market)
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasAnyData reports whether any instrument has a row in range
func (s *PostgresStore) HasAnyData(ctx context.Context, start, end string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scanner.daily_prices WHERE trade_date BETWEEN $1 AND $2)`,
		start, end,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check daily prices: %w", err)
	}
	return exists, nil
}

// SaveFinancials replaces each instrument's row wholesale
func (s *PostgresStore) SaveFinancials(ctx context.Context, rows []contracts.FinancialRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rows {
		updated := r.UpdatedDate
		if updated == "" {
			updated = today()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO scanner.financials (stock_code, roe, operating_margin, updated_date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (stock_code) DO UPDATE SET
				roe = EXCLUDED.roe,
				operating_margin = EXCLUDED.operating_margin,
				updated_date = EXCLUDED.updated_date`,
			r.Code, r.ROE, r.OperatingMargin, updated,
		)
		if err != nil {
			return fmt.Errorf("save financials %s: %w", r.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Financials returns stored ratios keyed by code; unknown codes are absent
func (s *PostgresStore) Financials(ctx context.Context, codes []string) (map[string]contracts.FinancialRow, error) {
	out := make(map[string]contracts.FinancialRow)
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT stock_code, roe, operating_margin, updated_date
		FROM scanner.financials
		WHERE stock_code = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("query financials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r contracts.FinancialRow
		if err := rows.Scan(&r.Code, &r.ROE, &r.OperatingMargin, &r.UpdatedDate); err != nil {
			return nil, fmt.Errorf("scan financials: %w", err)
		}
		out[r.Code] = r
	}
	return out, rows.Err()
}

// AddWatch inserts unless the (user, platform, code) entry exists
func (s *PostgresStore) AddWatch(ctx context.Context, e contracts.WatchlistEntry) (bool, error) {
	added := e.AddedDate
	if added == "" {
		added = now()
	}
	tag, err := s.db.Pool.Exec(ctx, `
		INSERT INTO scanner.watchlist (user_id, platform, stock_code, stock_name, added_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, platform, stock_code) DO NOTHING`,
		e.UserID, platformOrDefault(e.Platform), e.Code, e.Name, added,
	)
	if err != nil {
		return false, fmt.Errorf("add watch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveWatch deletes one entry
func (s *PostgresStore) RemoveWatch(ctx context.Context, userID int64, platform, code string) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM scanner.watchlist WHERE user_id = $1 AND platform = $2 AND stock_code = $3`,
		userID, platformOrDefault(platform), code,
	)
	if err != nil {
		return false, fmt.Errorf("remove watch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Watchlist lists one user's entries, oldest first
func (s *PostgresStore) Watchlist(ctx context.Context, userID int64, platform string) ([]contracts.WatchlistEntry, error) {
	return s.queryWatchlist(ctx, `
		SELECT user_id, platform, stock_code, stock_name, added_date
		FROM scanner.watchlist
		WHERE user_id = $1 AND platform = $2
		ORDER BY added_date, id`, userID, platformOrDefault(platform))
}

// WatchlistGrouped lists every entry grouped by platform then user
func (s *PostgresStore) WatchlistGrouped(ctx context.Context) (GroupedWatchlist, error) {
	entries, err := s.queryWatchlist(ctx, `
		SELECT user_id, platform, stock_code, stock_name, added_date
		FROM scanner.watchlist
		ORDER BY platform, user_id, added_date, id`)
	if err != nil {
		return nil, err
	}
	return groupWatchlist(entries), nil
}

func (s *PostgresStore) queryWatchlist(ctx context.Context, query string, args ...interface{}) ([]contracts.WatchlistEntry, error) {
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.WatchlistEntry, 0)
	for rows.Next() {
		var e contracts.WatchlistEntry
		if err := rows.Scan(&e.UserID, &e.Platform, &e.Code, &e.Name, &e.AddedDate); err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
