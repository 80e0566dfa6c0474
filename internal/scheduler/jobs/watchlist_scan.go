package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/stockscanner/internal/scheduler"
	"github.com/wonny/stockscanner/internal/workflow"
	"github.com/wonny/stockscanner/pkg/logger"
)

// Scanner runs one golden-cross scan over every user's watchlist
type Scanner interface {
	ScanAll(ctx context.Context) ([]workflow.UserScan, error)
}

// WatchlistScanJob runs the daily watchlist scan
type WatchlistScanJob struct {
	scanner  Scanner
	schedule string
	logger   *logger.Logger
}

// NewWatchlistScanJob creates a new watchlist scan job
func NewWatchlistScanJob(scanner Scanner, schedule string, log *logger.Logger) *WatchlistScanJob {
	return &WatchlistScanJob{
		scanner:  scanner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *WatchlistScanJob) Name() string {
	return "watchlist_scan"
}

// Schedule returns the cron schedule (기본: 평일 15:20 KST)
func (j *WatchlistScanJob) Schedule() string {
	return j.schedule
}

// MaxRetries disables retries; a repeated scan would send duplicate alerts
func (j *WatchlistScanJob) MaxRetries() int {
	return 0
}

// Run executes the scan for all users
func (j *WatchlistScanJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled watchlist scan")

	scans, err := j.scanner.ScanAll(ctx)
	if errors.Is(err, workflow.ErrRunInProgress) {
		return fmt.Errorf("%w: %v", scheduler.ErrSkipped, err)
	}
	if err != nil {
		return fmt.Errorf("watchlist scan: %w", err)
	}

	var signals, failedUsers int
	for _, us := range scans {
		if us.Error != "" {
			failedUsers++
			j.logger.WithFields(map[string]interface{}{
				"user_id": us.UserID,
				"error":   us.Error,
			}).Warn("User scan failed")
			continue
		}
		if us.Result != nil {
			signals += us.Result.Signals
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"users":        len(scans),
		"failed_users": failedUsers,
		"signals":      signals,
	}).Info("Watchlist scan completed")

	return nil
}
