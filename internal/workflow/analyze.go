package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/reentry"
	"github.com/wonny/stockscanner/internal/report"
	"github.com/wonny/stockscanner/pkg/metrics"
)

// Analysis is the result of RunAnalysis
type Analysis struct {
	RunID            string                                        `json:"run_id"`
	Start            string                                        `json:"start"`
	End              string                                        `json:"end"`
	ByMarket         map[contracts.Market][]contracts.ReturnRecord `json:"by_market"`
	Combined         []contracts.ReturnRecord                      `json:"combined"`
	Watchlist        []contracts.ReturnRecord                      `json:"watchlist,omitempty"`
	Reentry          []reentry.Result                              `json:"reentry"`
	PreviousSnapshot string                                        `json:"previous_snapshot,omitempty"`
	SnapshotPath     string                                        `json:"snapshot_path"`
	ReportPath       string                                        `json:"report_path"`
	Summary          string                                        `json:"summary"`
}

// RunAnalysis ranks stored data for [start, end], writes the combined
// snapshot and compares it with the latest previous one. userID adds a
// watchlist section for that user on the default platform.
func (s *Service) RunAnalysis(ctx context.Context, start, end string, userID *int64) (*Analysis, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	began := time.Now()
	a, err := s.analyze(ctx, start, end, userID)
	metrics.RecordRun("analyze", outcomeOf(err), time.Since(began).Seconds())
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":   a.RunID,
		"combined": len(a.Combined),
		"reentry":  len(a.Reentry),
		"report":   a.ReportPath,
	}).Info("Analysis completed")
	return a, nil
}

func (s *Service) analyze(ctx context.Context, start, end string, userID *int64) (*Analysis, error) {
	ok, err := s.store.HasAnyData(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("check data: %w", err)
	}
	if !ok {
		return nil, ErrNotCollected
	}

	a := &Analysis{
		RunID:    uuid.NewString(),
		Start:    start,
		End:      end,
		ByMarket: make(map[contracts.Market][]contracts.ReturnRecord),
	}

	for _, m := range contracts.Markets {
		ranked, err := s.store.RankedReturns(ctx, start, end, m, s.cfg.TopN)
		if err != nil {
			return nil, fmt.Errorf("rank %s: %w", m, err)
		}
		a.ByMarket[m] = ranked
	}
	if a.Combined, err = s.store.RankedReturns(ctx, start, end, "", s.cfg.TopN); err != nil {
		return nil, fmt.Errorf("rank combined: %w", err)
	}
	if len(a.Combined) == 0 {
		return nil, fmt.Errorf("%w: nothing ranked for %s~%s", ErrNoResults, start, end)
	}

	if userID != nil {
		if a.Watchlist, err = s.watchlistReturns(ctx, *userID, start, end); err != nil {
			return nil, err
		}
	}

	if err := s.mergeFinancials(ctx, a); err != nil {
		return nil, err
	}

	a.SnapshotPath = reentry.SnapshotPath(s.dataDir, start, end)
	if err := reentry.WriteSnapshot(a.SnapshotPath, a.Combined); err != nil {
		return nil, err
	}

	prev, err := reentry.LatestSnapshotExcept(s.dataDir, a.SnapshotPath)
	if err != nil {
		return nil, err
	}
	a.Reentry = []reentry.Result{}
	if prev != "" {
		prevRecords, err := reentry.ReadSnapshot(prev)
		if err != nil {
			return nil, err
		}
		a.PreviousSnapshot = prev
		a.Reentry = reentry.Diff(prevRecords, a.Combined, s.band)
	} else {
		s.logger.Debug("No previous snapshot, reentry skipped")
	}

	in := report.Input{
		Start:            start,
		End:              end,
		Combined:         a.Combined,
		ByMarket:         a.ByMarket,
		Reentry:          a.Reentry,
		PreviousSnapshot: a.PreviousSnapshot,
		Watchlist:        a.Watchlist,
	}
	if a.ReportPath, err = report.Write(s.dataDir, in, s.now()); err != nil {
		return nil, err
	}
	a.Summary = report.Summary(in, a.ReportPath)
	return a, nil
}

// watchlistReturns is never nil so the report still gets its section
func (s *Service) watchlistReturns(ctx context.Context, userID int64, start, end string) ([]contracts.ReturnRecord, error) {
	entries, err := s.store.Watchlist(ctx, userID, s.cfg.DefaultPlatform)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	if len(entries) == 0 {
		return []contracts.ReturnRecord{}, nil
	}

	codes := make([]string, len(entries))
	for i, e := range entries {
		codes[i] = e.Code
	}
	ranked, err := s.store.RankedReturnsFor(ctx, start, end, codes)
	if err != nil {
		return nil, fmt.Errorf("rank watchlist: %w", err)
	}
	if ranked == nil {
		ranked = []contracts.ReturnRecord{}
	}
	return ranked, nil
}

func (s *Service) mergeFinancials(ctx context.Context, a *Analysis) error {
	seen := make(map[string]struct{})
	var codes []string
	collect := func(records []contracts.ReturnRecord) {
		for _, r := range records {
			if _, dup := seen[r.Code]; !dup {
				seen[r.Code] = struct{}{}
				codes = append(codes, r.Code)
			}
		}
	}
	for _, m := range contracts.Markets {
		collect(a.ByMarket[m])
	}
	collect(a.Combined)
	collect(a.Watchlist)

	fin, err := s.store.Financials(ctx, codes)
	if err != nil {
		return fmt.Errorf("load financials: %w", err)
	}

	apply := func(records []contracts.ReturnRecord) {
		for i := range records {
			if f, ok := fin[records[i].Code]; ok {
				records[i].ROE = f.ROE
				records[i].OperatingMargin = f.OperatingMargin
			}
		}
	}
	for _, m := range contracts.Markets {
		apply(a.ByMarket[m])
	}
	apply(a.Combined)
	apply(a.Watchlist)
	return nil
}
