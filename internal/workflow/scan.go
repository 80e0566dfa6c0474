package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/external/naver"
	"github.com/wonny/stockscanner/internal/fetch"
	"github.com/wonny/stockscanner/internal/signals"
	"github.com/wonny/stockscanner/pkg/metrics"
)

// ScanItem is the verdict for one watched instrument
type ScanItem struct {
	Code    string           `json:"code"`
	Name    string           `json:"name"`
	UserID  int64            `json:"user_id,omitempty"`
	Verdict signals.Verdict  `json:"verdict"`
	Message string           `json:"message"`
	News    []naver.NewsItem `json:"news,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ScanResult summarises one watchlist scan
type ScanResult struct {
	RunID    string        `json:"run_id"`
	Items    []ScanItem    `json:"items"`
	Scanned  int           `json:"scanned"`
	Signals  int           `json:"signals"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// UserScan is one user's share of ScanAll
type UserScan struct {
	UserID int64       `json:"user_id"`
	Result *ScanResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ScanWatchlist runs the crossover check over instruments. A failure for
// one instrument is recorded on its item and never aborts the scan; only an
// auth failure does.
func (s *Service) ScanWatchlist(ctx context.Context, instruments []contracts.Instrument) (*ScanResult, error) {
	if !s.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer s.gate.Release()

	began := time.Now()
	res, err := s.scan(ctx, instruments, 0)
	metrics.RecordRun("scan", outcomeOf(err), time.Since(began).Seconds())
	return res, err
}

// ScanUser scans the default-platform watchlist of one user
func (s *Service) ScanUser(ctx context.Context, userID int64) (*ScanResult, error) {
	instruments, err := s.watchedInstruments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		return nil, ErrEmptyWatchlist
	}

	if !s.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer s.gate.Release()

	began := time.Now()
	res, err := s.scan(ctx, instruments, userID)
	metrics.RecordRun("scan", outcomeOf(err), time.Since(began).Seconds())
	if err != nil {
		return nil, err
	}
	s.notify(ctx, userID, res)
	return res, nil
}

// ScanAll scans every user on the default platform and delivers the
// results. One user's failure does not stop the others.
func (s *Service) ScanAll(ctx context.Context) ([]UserScan, error) {
	if !s.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer s.gate.Release()

	began := time.Now()
	out, err := s.scanAll(ctx)
	metrics.RecordRun("scan_all", outcomeOf(err), time.Since(began).Seconds())
	return out, err
}

func (s *Service) scanAll(ctx context.Context) ([]UserScan, error) {
	grouped, err := s.store.WatchlistGrouped(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchlists: %w", err)
	}

	users := grouped[s.cfg.DefaultPlatform]
	if len(users) == 0 {
		s.logger.Info("No watchlists registered, scan skipped")
		return []UserScan{}, nil
	}

	ids := make([]int64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s.logger.WithField("users", len(ids)).Info("Scheduled scan started")

	out := make([]UserScan, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		entries := users[id]
		instruments := make([]contracts.Instrument, len(entries))
		for i, e := range entries {
			instruments[i] = contracts.Instrument{Code: e.Code, Name: e.Name}
		}

		res, err := s.scan(ctx, instruments, id)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", id).Warn("User scan failed")
			out = append(out, UserScan{UserID: id, Error: err.Error()})
			if errors.Is(err, kis.ErrAuthFailure) {
				return out, err
			}
			continue
		}
		s.notify(ctx, id, res)
		out = append(out, UserScan{UserID: id, Result: res})
	}

	s.logger.Info("Scheduled scan completed")
	return out, nil
}

func (s *Service) scan(ctx context.Context, instruments []contracts.Instrument, userID int64) (*ScanResult, error) {
	res := &ScanResult{RunID: uuid.NewString(), Items: []ScanItem{}}
	began := time.Now()
	instruments = uniqueByCode(instruments)
	if len(instruments) == 0 {
		return res, nil
	}

	if err := s.market.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	found, _ := fetch.Run(ctx, s.coordinator, "scan", instruments,
		func(ctx context.Context, inst contracts.Instrument) (ScanItem, error) {
			candles, err := s.market.RecentCandles(ctx, inst.Code, s.cfg.MinuteInterval, s.cfg.MinuteCandles)
			if err != nil {
				return ScanItem{}, err
			}
			v := signals.DetectGoldenCross(candles)
			return ScanItem{
				Code:    inst.Code,
				Name:    inst.Name,
				UserID:  userID,
				Verdict: v,
				Message: v.Reason.Message(),
			}, nil
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byCode := make(map[string]ScanItem, len(found))
	for _, item := range found {
		byCode[item.Code] = item
	}

	// 입력 순서 유지, 실패 종목은 오류 항목으로 남김
	for _, inst := range instruments {
		item, ok := byCode[inst.Code]
		if !ok {
			res.Failed++
			res.Items = append(res.Items, ScanItem{
				Code:    inst.Code,
				Name:    inst.Name,
				UserID:  userID,
				Message: "분봉 데이터 조회 실패",
				Error:   "minute bars unavailable",
			})
			continue
		}

		if item.Verdict.Signal {
			res.Signals++
			item.News = s.news.SearchNews(ctx, item.Name, naver.DefaultDisplay)
			metrics.RecordSignal()
			s.publish(item)
		}
		res.Items = append(res.Items, item)
	}

	res.Scanned = len(instruments)
	res.Duration = time.Since(began)
	s.logger.WithFields(map[string]interface{}{
		"run_id":  res.RunID,
		"user_id": userID,
		"scanned": res.Scanned,
		"signals": res.Signals,
		"failed":  res.Failed,
	}).Info("Scan completed")
	return res, nil
}

func (s *Service) notify(ctx context.Context, userID int64, res *ScanResult) {
	if s.notifier == nil {
		return
	}
	for _, item := range res.Items {
		if item.Verdict.Signal {
			_ = s.notifier.Send(ctx, FormatSignal(userID, item))
		}
	}
	_ = s.notifier.Send(ctx, FormatScanDone(userID, res))
}

// uniqueByCode drops repeated codes, keeping the first occurrence
func uniqueByCode(instruments []contracts.Instrument) []contracts.Instrument {
	seen := make(map[string]struct{}, len(instruments))
	out := make([]contracts.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if _, dup := seen[inst.Code]; dup {
			continue
		}
		seen[inst.Code] = struct{}{}
		out = append(out, inst)
	}
	return out
}
