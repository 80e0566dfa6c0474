package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/ranking"
	"github.com/wonny/stockscanner/pkg/logger"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS daily_prices (
		date   TEXT NOT NULL,
		code   TEXT NOT NULL,
		name   TEXT NOT NULL,
		market TEXT NOT NULL,
		open   INTEGER,
		high   INTEGER,
		low    INTEGER,
		close  INTEGER NOT NULL,
		volume INTEGER,
		UNIQUE(date, code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_prices_code ON daily_prices(code, date)`,

	`CREATE TABLE IF NOT EXISTS financials (
		code             TEXT NOT NULL,
		roe              REAL,
		operating_margin REAL,
		updated_date     TEXT NOT NULL,
		UNIQUE(code)
	)`,

	`CREATE TABLE IF NOT EXISTS watchlist (
		user_id    INTEGER NOT NULL,
		platform   TEXT NOT NULL DEFAULT 'telegram',
		code       TEXT NOT NULL,
		name       TEXT NOT NULL,
		added_date TEXT NOT NULL,
		UNIQUE(user_id, platform, code)
	)`,
}

// SQLiteStore keeps everything in one SQLite file. A fresh *sql.DB is
// opened for every operation so no handle is shared between goroutines.
type SQLiteStore struct {
	path      string
	tolerance int
	logger    *logger.Logger
}

// NewSQLiteStore creates the database file and schema if missing
func NewSQLiteStore(ctx context.Context, path string, toleranceDays int, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	s := &SQLiteStore{
		path:      path,
		tolerance: toleranceDays,
		logger:    log.Module("store"),
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	s.logger.WithField("path", path).Info("SQLite store opened")
	return s, nil
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	dsn := "file:" + s.path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL: 수집 중에도 조회가 막히지 않도록
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return db, nil
}

// Close is a no-op; handles never outlive an operation
func (s *SQLiteStore) Close() error {
	return nil
}

// UpsertDailyPrices writes all rows in one transaction
func (s *SQLiteStore) UpsertDailyPrices(ctx context.Context, rows []contracts.DailyPriceRow) error {
	if len(rows) == 0 {
		return nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_prices (date, code, name, market, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, code) DO UPDATE SET
			name = excluded.name,
			market = excluded.market,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Date, r.Code, r.Name, string(r.Market),
			r.Open, r.High, r.Low, r.Close, r.Volume,
		); err != nil {
			return fmt.Errorf("upsert price %s/%s: %w", r.Code, r.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithField("rows", len(rows)).Debug("Saved daily prices")
	return nil
}

// CachedCodes uses each instrument's global MIN/MAX date
func (s *SQLiteStore) CachedCodes(ctx context.Context, start, end string) (map[string]struct{}, error) {
	startThr, endThr, err := CoverageThresholds(start, end, s.tolerance)
	if err != nil {
		return nil, err
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT code FROM daily_prices
		GROUP BY code
		HAVING MIN(date) <= ? AND MAX(date) >= ?`, startThr, endThr)
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
func (s *SQLiteStore) RankedReturns(ctx context.Context, start, end string, market contracts.Market, topN int) ([]contracts.ReturnRecord, error) {
	query := `SELECT code, name, market, date, close FROM daily_prices WHERE date BETWEEN ? AND ?`
	args := []interface{}{start, end}
	if market != "" {
		query += ` AND market = ?`
		args = append(args, string(market))
	}
	query += ` ORDER BY code, date`

	rows, err := s.loadRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(rows, topN), nil
}

// RankedReturnsFor ranks only the given codes
func (s *SQLiteStore) RankedReturnsFor(ctx context.Context, start, end string, codes []string) ([]contracts.ReturnRecord, error) {
	if len(codes) == 0 {
		return []contracts.ReturnRecord{}, nil
	}

	query := `SELECT code, name, market, date, close FROM daily_prices
		WHERE date BETWEEN ? AND ? AND code IN (` + placeholders(len(codes)) + `)
		ORDER BY code, date`
	args := make([]interface{}, 0, len(codes)+2)
	args = append(args, start, end)
	for _, c := range codes {
		args = append(args, c)
	}

	rows, err := s.loadRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(rows, 0), nil
}

func (s *SQLiteStore) loadRows(ctx context.Context, query string, args ...interface{}) ([]contracts.DailyPriceRow, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStore) HasAnyData(ctx context.Context, start, end string) (bool, error) {
	db, err := s.open(ctx)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT code) FROM daily_prices WHERE date BETWEEN ? AND ?`,
		start, end,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count daily prices: %w", err)
	}
	return n > 0, nil
}

// SaveFinancials replaces each instrument's row wholesale
func (s *SQLiteStore) SaveFinancials(ctx context.Context, rows []contracts.FinancialRow) error {
	if len(rows) == 0 {
		return nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		updated := r.UpdatedDate
		if updated == "" {
			updated = today()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO financials (code, roe, operating_margin, updated_date) VALUES (?, ?, ?, ?)`,
			r.Code, r.ROE, r.OperatingMargin, updated,
		); err != nil {
			return fmt.Errorf("save financials %s: %w", r.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Financials returns stored ratios keyed by code; unknown codes are absent
func (s *SQLiteStore) Financials(ctx context.Context, codes []string) (map[string]contracts.FinancialRow, error) {
	out := make(map[string]contracts.FinancialRow)
	if len(codes) == 0 {
		return out, nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	args := make([]interface{}, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	rows, err := db.QueryContext(ctx,
		`SELECT code, roe, operating_margin, updated_date FROM financials WHERE code IN (`+placeholders(len(codes))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query financials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r contracts.FinancialRow
		var roe, margin sql.NullFloat64
		if err := rows.Scan(&r.Code, &roe, &margin, &r.UpdatedDate); err != nil {
			return nil, fmt.Errorf("scan financials: %w", err)
		}
		r.ROE = nullFloat(roe)
		r.OperatingMargin = nullFloat(margin)
		out[r.Code] = r
	}
	return out, rows.Err()
}

// AddWatch inserts unless the (user, platform, code) entry exists
func (s *SQLiteStore) AddWatch(ctx context.Context, e contracts.WatchlistEntry) (bool, error) {
	db, err := s.open(ctx)
	if err != nil {
		return false, err
	}
	defer db.Close()

	added := e.AddedDate
	if added == "" {
		added = now()
	}
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watchlist (user_id, platform, code, name, added_date) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, platformOrDefault(e.Platform), e.Code, e.Name, added,
	)
	if err != nil {
		return false, fmt.Errorf("add watch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveWatch deletes one entry
func (s *SQLiteStore) RemoveWatch(ctx context.Context, userID int64, platform, code string) (bool, error) {
	db, err := s.open(ctx)
	if err != nil {
		return false, err
	}
	defer db.Close()

	res, err := db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = ? AND platform = ? AND code = ?`,
		userID, platformOrDefault(platform), code,
	)
	if err != nil {
		return false, fmt.Errorf("remove watch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Watchlist lists one user's entries, oldest first
func (s *SQLiteStore) Watchlist(ctx context.Context, userID int64, platform string) ([]contracts.WatchlistEntry, error) {
	return s.queryWatchlist(ctx,
		`SELECT user_id, platform, code, name, added_date FROM watchlist
		WHERE user_id = ? AND platform = ? ORDER BY added_date, rowid`,
		userID, platformOrDefault(platform),
	)
}

// WatchlistGrouped lists every entry grouped by platform then user
func (s *SQLiteStore) WatchlistGrouped(ctx context.Context) (GroupedWatchlist, error) {
	entries, err := s.queryWatchlist(ctx,
		`SELECT user_id, platform, code, name, added_date FROM watchlist
		ORDER BY platform, user_id, added_date, rowid`,
	)
	if err != nil {
		return nil, err
	}
	return groupWatchlist(entries), nil
}

func (s *SQLiteStore) queryWatchlist(ctx context.Context, query string, args ...interface{}) ([]contracts.WatchlistEntry, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
