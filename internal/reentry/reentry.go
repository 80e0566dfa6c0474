// Package reentry compares successive ranking snapshots and reports
// instruments that come back into the top ranking from a lower band.
package reentry

import (
	"sort"

	"github.com/wonny/stockscanner/internal/contracts"
)

// Band is an inclusive 1-based rank range of the previous snapshot
type Band struct {
	Lower int
	Upper int
}

// DefaultBand is ranks 51 to 100
var DefaultBand = Band{Lower: 51, Upper: 100}

// Result is one instrument that was in the previous band and is ranked again
type Result struct {
	Code              string   `json:"code" yaml:"code"`
	Name              string   `json:"name" yaml:"name"`
	PreviousRank      int      `json:"previous_rank" yaml:"previous_rank"`
	PreviousReturnPct float64  `json:"previous_return_pct" yaml:"previous_return_pct"`
	CurrentRank       int      `json:"current_rank" yaml:"current_rank"`
	CurrentReturnPct  float64  `json:"current_return_pct" yaml:"current_return_pct"`
	ROE               *float64 `json:"roe,omitempty" yaml:"roe,omitempty"`
	OperatingMargin   *float64 `json:"operating_margin,omitempty" yaml:"operating_margin,omitempty"`
}

// Diff finds instruments ranked inside band in prev that appear anywhere
// in curr. Both snapshots are ordered best first; rank is position+1.
// A prev shorter than band.Lower yields no results. Results are sorted by
// current rank ascending.
func Diff(prev, curr []contracts.ReturnRecord, band Band) []Result {
	if band.Lower < 1 || len(prev) < band.Lower {
		return []Result{}
	}

	upper := band.Upper
	if upper > len(prev) {
		upper = len(prev)
	}

	type prevEntry struct {
		rank int
		rec  contracts.ReturnRecord
	}
	lowerBand := make(map[string]prevEntry)
	for i := band.Lower - 1; i < upper; i++ {
		rec := prev[i]
		if _, seen := lowerBand[rec.Code]; !seen {
			lowerBand[rec.Code] = prevEntry{rank: i + 1, rec: rec}
		}
	}

	results := make([]Result, 0)
	seen := make(map[string]bool)
	for i, rec := range curr {
		p, ok := lowerBand[rec.Code]
		if !ok || seen[rec.Code] {
			continue
		}
		seen[rec.Code] = true

		results = append(results, Result{
			Code:              rec.Code,
			Name:              rec.Name,
			PreviousRank:      p.rank,
			PreviousReturnPct: p.rec.ReturnPct,
			CurrentRank:       i + 1,
			CurrentReturnPct:  rec.ReturnPct,
			ROE:               rec.ROE,
			OperatingMargin:   rec.OperatingMargin,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CurrentRank < results[j].CurrentRank
	})
	return results
}
