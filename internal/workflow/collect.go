package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/fetch"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/metrics"
)

// MarketCollection is the outcome of one market's daily-bar pass
type MarketCollection struct {
	Market      contracts.Market `json:"market"`
	Instruments int              `json:"instruments"`
	Cached      int              `json:"cached"`
	Fetched     int              `json:"fetched"`
	Failed      int              `json:"failed"`
	Rows        int              `json:"rows"`
}

// CollectionResult summarises RunCollection
type CollectionResult struct {
	RunID         string             `json:"run_id"`
	Start         string             `json:"start"`
	End           string             `json:"end"`
	PriceRows     int                `json:"price_rows"`
	FinancialRows int                `json:"financial_rows"`
	Markets       []MarketCollection `json:"markets"`
	Duration      time.Duration      `json:"duration"`
}

// RunCollection fills the store for [start, end]: daily bars for every
// instrument not already covered, then financial ratios for the union of
// the per-market and combined top-N.
func (s *Service) RunCollection(ctx context.Context, start, end string) (*CollectionResult, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if !s.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer s.gate.Release()

	result := &CollectionResult{RunID: uuid.NewString(), Start: start, End: end}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"start":  start,
		"end":    end,
	})
	log.Info("Collection started")
	began := time.Now()

	err := s.collect(ctx, log, result)
	result.Duration = time.Since(began)
	metrics.RecordRun("collect", outcomeOf(err), result.Duration.Seconds())
	if err != nil {
		log.WithError(err).Error("Collection failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"price_rows":     result.PriceRows,
		"financial_rows": result.FinancialRows,
		"duration":       result.Duration,
	}).Info("Collection completed")
	return result, nil
}

func (s *Service) collect(ctx context.Context, log *logger.Logger, result *CollectionResult) error {
	start, end := result.Start, result.End

	cached, err := s.store.CachedCodes(ctx, start, end)
	if err != nil {
		return fmt.Errorf("check cache: %w", err)
	}

	authenticated := false
	for _, m := range contracts.Markets {
		instruments, err := s.instruments.Instruments(ctx, m)
		if err != nil {
			log.WithError(err).WithField("market", m).Warn("Instrument list unavailable")
			result.Markets = append(result.Markets, MarketCollection{Market: m})
			continue
		}

		mc := MarketCollection{Market: m, Instruments: len(instruments)}
		missing := make([]contracts.Instrument, 0, len(instruments))
		for _, inst := range instruments {
			if _, ok := cached[inst.Code]; ok {
				mc.Cached++
				continue
			}
			missing = append(missing, inst)
		}

		log.WithFields(map[string]interface{}{
			"market":  m,
			"total":   mc.Instruments,
			"cached":  mc.Cached,
			"missing": len(missing),
		}).Info("Cache check")

		if len(missing) > 0 {
			if !authenticated {
				if err := s.market.Authenticate(ctx); err != nil {
					return fmt.Errorf("authenticate: %w", err)
				}
				authenticated = true
			}

			batches, stats := fetch.Run(ctx, s.coordinator, "daily-"+strings.ToLower(string(m)), missing,
				func(ctx context.Context, inst contracts.Instrument) ([]contracts.DailyPriceRow, error) {
					return s.market.DailyBars(ctx, inst, start, end)
				})
			if err := ctx.Err(); err != nil {
				return err
			}

			var rows []contracts.DailyPriceRow
			for _, b := range batches {
				rows = append(rows, b...)
			}
			if err := s.store.UpsertDailyPrices(ctx, rows); err != nil {
				return fmt.Errorf("store %s prices: %w", m, err)
			}

			mc.Fetched = stats.Succeeded()
			mc.Failed = stats.Failed
			mc.Rows = len(rows)
			result.PriceRows += len(rows)
		}
		result.Markets = append(result.Markets, mc)
	}

	targets, err := s.financialTargets(ctx, start, end)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: nothing collected for %s~%s", ErrNoResults, start, end)
	}

	if !authenticated {
		if err := s.market.Authenticate(ctx); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}

	updated := s.today()
	financials, _ := fetch.Run(ctx, s.coordinator, "financials", targets,
		func(ctx context.Context, inst contracts.Instrument) (contracts.FinancialRow, error) {
			f, err := s.market.Financials(ctx, inst.Code)
			if err != nil {
				return contracts.FinancialRow{}, err
			}
			return contracts.FinancialRow{
				Code:            inst.Code,
				ROE:             f.ROE,
				OperatingMargin: f.OperatingMargin,
				UpdatedDate:     updated,
			}, nil
		})
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.store.SaveFinancials(ctx, financials); err != nil {
		return fmt.Errorf("store financials: %w", err)
	}
	result.FinancialRows = len(financials)
	return nil
}

// financialTargets is the union of the per-market top-N and the combined
// top-N, first occurrence wins.
func (s *Service) financialTargets(ctx context.Context, start, end string) ([]contracts.Instrument, error) {
	var lists [][]contracts.ReturnRecord
	for _, m := range contracts.Markets {
		ranked, err := s.store.RankedReturns(ctx, start, end, m, s.cfg.TopN)
		if err != nil {
			return nil, fmt.Errorf("rank %s: %w", m, err)
		}
		lists = append(lists, ranked)
	}
	combined, err := s.store.RankedReturns(ctx, start, end, "", s.cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("rank combined: %w", err)
	}
	lists = append(lists, combined)

	seen := make(map[string]struct{})
	var targets []contracts.Instrument
	for _, list := range lists {
		for _, r := range list {
			if _, dup := seen[r.Code]; dup {
				continue
			}
			seen[r.Code] = struct{}{}
			targets = append(targets, contracts.Instrument{Code: r.Code, Name: r.Name, Market: r.Market})
		}
	}
	return targets, nil
}
