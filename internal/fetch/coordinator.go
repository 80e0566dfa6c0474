// Package fetch runs per-instrument upstream calls through a bounded
// worker pool with pacing and progress reporting.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/metrics"
)

// progressEvery is how often (in completed units) progress is logged
const progressEvery = 10

// Coordinator bounds concurrency and paces each worker before every unit.
// ⭐ SSOT: 종목 단위 병렬 수집은 이 패키지에서만
type Coordinator struct {
	Workers int
	Delay   time.Duration

	logger *logger.Logger
}

// New creates a Coordinator
func New(workers int, delay time.Duration, log *logger.Logger) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		Workers: workers,
		Delay:   delay,
		logger:  log.Module("fetch"),
	}
}

// Stats summarises one batch. Completed counts successes and failures.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Succeeded is the number of units that produced a result
func (s Stats) Succeeded() int {
	return s.Completed - s.Failed
}

// Keyed items log their key instead of their %v form
type Keyed interface {
	Key() string
}

type outcome[R any] struct {
	key    string
	result R
	err    error
}

// Run applies fn to every item using c.Workers goroutines. A failed unit is
// logged with its key, counted and dropped; it never aborts the batch.
// A panicking unit is recovered and counted as failed.
// Results are returned in completion order, not input order.
// Cancelling ctx stops dispatch of units that have not started yet.
func Run[T, R any](ctx context.Context, c *Coordinator, label string, items []T, fn func(context.Context, T) (R, error)) ([]R, Stats) {
	stats := Stats{Total: len(items)}
	results := make([]R, 0, len(items))
	if len(items) == 0 {
		return results, stats
	}

	workers := c.Workers
	if workers > len(items) {
		workers = len(items)
	}

	c.logger.WithFields(map[string]interface{}{
		"batch":   label,
		"total":   len(items),
		"workers": workers,
	}).Info("Starting batch")
	start := time.Now()

	itemCh := make(chan T)
	resultCh := make(chan outcome[R], workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				if c.Delay > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(c.Delay):
					}
				}
				r, err := safeCall(ctx, fn, item)
				resultCh <- outcome[R]{key: keyOf(item), result: r, err: err}
			}
		}()
	}

	go func() {
		defer close(itemCh)
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case itemCh <- item:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for out := range resultCh {
		stats.Completed++
		if out.err != nil {
			stats.Failed++
			c.logger.WithError(out.err).WithFields(map[string]interface{}{
				"batch": label,
				"key":   out.key,
			}).Warn("Fetch failed")
		} else {
			results = append(results, out.result)
		}
		metrics.RecordFetch(label, out.err == nil)

		if stats.Completed%progressEvery == 0 || stats.Completed == stats.Total {
			c.logger.WithFields(map[string]interface{}{
				"batch":     label,
				"completed": stats.Completed,
				"total":     stats.Total,
				"failed":    stats.Failed,
			}).Info("Batch progress")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"batch":     label,
		"succeeded": stats.Succeeded(),
		"failed":    stats.Failed,
		"skipped":   stats.Total - stats.Completed,
		"duration":  time.Since(start),
	}).Info("Batch completed")

	return results, stats
}

// safeCall turns a panic inside fn into an error for that unit only
func safeCall[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, item)
}

func keyOf(item interface{}) string {
	if k, ok := item.(Keyed); ok {
		return k.Key()
	}
	return fmt.Sprint(item)
}
