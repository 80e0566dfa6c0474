package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/ranking"
)

// WatchChange is the outcome of an add or remove
type WatchChange struct {
	Instrument contracts.Instrument `json:"instrument"`
	// Changed is false when the entry already existed (add) or was absent (remove)
	Changed bool `json:"changed"`
}

// AddWatch resolves query and subscribes userID to it on platform
// ("" = default platform).
func (s *Service) AddWatch(ctx context.Context, userID int64, platform, query string) (*WatchChange, error) {
	inst, err := s.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	added, err := s.store.AddWatch(ctx, contracts.WatchlistEntry{
		UserID:   userID,
		Platform: s.platform(platform),
		Code:     inst.Code,
		Name:     inst.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("add watch: %w", err)
	}
	return &WatchChange{Instrument: inst, Changed: added}, nil
}

// RemoveWatch resolves query and unsubscribes userID from it
func (s *Service) RemoveWatch(ctx context.Context, userID int64, platform, query string) (*WatchChange, error) {
	inst, err := s.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	removed, err := s.store.RemoveWatch(ctx, userID, s.platform(platform), inst.Code)
	if err != nil {
		return nil, fmt.Errorf("remove watch: %w", err)
	}
	return &WatchChange{Instrument: inst, Changed: removed}, nil
}

// Watchlist lists the entries of userID, oldest first
func (s *Service) Watchlist(ctx context.Context, userID int64, platform string) ([]contracts.WatchlistEntry, error) {
	entries, err := s.store.Watchlist(ctx, userID, s.platform(platform))
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	return entries, nil
}

func (s *Service) watchedInstruments(ctx context.Context, userID int64) ([]contracts.Instrument, error) {
	entries, err := s.Watchlist(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	out := make([]contracts.Instrument, len(entries))
	for i, e := range entries {
		out[i] = contracts.Instrument{Code: e.Code, Name: e.Name}
	}
	return out, nil
}

func (s *Service) platform(p string) string {
	if p == "" {
		return s.cfg.DefaultPlatform
	}
	return p
}

// InstrumentInfo is a quick single-instrument report
type InstrumentInfo struct {
	contracts.ReturnRecord
	Start string `json:"start"`
	End   string `json:"end"`
}

// Info fetches live daily bars for one instrument and reports its period
// return with the latest financial ratios. It bypasses the store.
func (s *Service) Info(ctx context.Context, query, start, end string) (*InstrumentInfo, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	inst, err := s.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.market.DailyBars(ctx, inst, start, end)
	if err != nil {
		if errors.Is(err, kis.ErrNoData) {
			return nil, fmt.Errorf("%w: %s has no prices in %s~%s", ErrNoResults, inst.Name, start, end)
		}
		return nil, err
	}

	ranked := ranking.Rank(rows, 0)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: not enough data for %s", ErrNoResults, inst.Name)
	}
	info := &InstrumentInfo{ReturnRecord: ranked[0], Start: start, End: end}

	// 재무는 없어도 리포트는 반환
	if f, err := s.market.Financials(ctx, inst.Code); err == nil {
		info.ROE = f.ROE
		info.OperatingMargin = f.OperatingMargin
	} else {
		s.logger.WithError(err).WithField("code", inst.Code).Debug("Financials unavailable")
	}
	return info, nil
}
