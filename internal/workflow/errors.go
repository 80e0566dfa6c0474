package workflow

import "errors"

var (
	// ErrRunInProgress rejects a collection or scan while another one runs
	ErrRunInProgress = errors.New("another collection or scan is in progress")
	// ErrNoResults means collection produced nothing for either market, or
	// analysis ranked nothing
	ErrNoResults = errors.New("no results")
	// ErrNotCollected means the store holds no rows for the requested range
	ErrNotCollected = errors.New("no stored data for range, run collection first")
	// ErrInvalidInput wraps malformed dates and unknown instruments
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyWatchlist means there is nothing to scan
	ErrEmptyWatchlist = errors.New("watchlist is empty")
)
