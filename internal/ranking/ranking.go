// Package ranking turns per-day price rows into period-return rankings.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/stockscanner/internal/contracts"
)

var hundred = decimal.NewFromInt(100)

// ReturnPct returns (end-start)/start*100 rounded half away from zero to
// two places. start must be non-zero.
func ReturnPct(start, end int64) float64 {
	pct := decimal.NewFromInt(end - start).
		Mul(hundred).
		Div(decimal.NewFromInt(start)).
		Round(2)
	f, _ := pct.Float64()
	return f
}

type series struct {
	code   string
	name   string
	market contracts.Market
	closes map[string]int64 // date -> close
}

// Rank groups rows by instrument and ranks them by period return.
//
// The earliest and latest trading dates of each instrument give the start
// and end price. Instruments with fewer than two distinct dates or a zero
// start price are left out. Output is descending by return; ties keep the
// order in which instruments first appear in rows. topN <= 0 keeps all.
func Rank(rows []contracts.DailyPriceRow, topN int) []contracts.ReturnRecord {
	order := make([]*series, 0)
	byCode := make(map[string]*series)

	for _, r := range rows {
		s, ok := byCode[r.Code]
		if !ok {
			s = &series{
				code:   r.Code,
				name:   r.Name,
				market: r.Market,
				closes: make(map[string]int64),
			}
			byCode[r.Code] = s
			order = append(order, s)
		}
		s.closes[r.Date] = r.Close
	}

	results := make([]contracts.ReturnRecord, 0, len(order))
	for _, s := range order {
		rec, ok := s.record()
		if !ok {
			continue
		}
		results = append(results, rec)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ReturnPct > results[j].ReturnPct
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

func (s *series) record() (contracts.ReturnRecord, bool) {
	if len(s.closes) < 2 {
		return contracts.ReturnRecord{}, false
	}

	dates := make([]string, 0, len(s.closes))
	for d := range s.closes {
		dates = append(dates, d)
	}
	// YYYYMMDD sorts chronologically as text
	sort.Strings(dates)

	start := s.closes[dates[0]]
	end := s.closes[dates[len(dates)-1]]
	if start == 0 {
		return contracts.ReturnRecord{}, false
	}

	return contracts.ReturnRecord{
		Code:       s.code,
		Name:       s.name,
		Market:     s.market,
		StartPrice: start,
		EndPrice:   end,
		ReturnPct:  ReturnPct(start, end),
	}, true
}
