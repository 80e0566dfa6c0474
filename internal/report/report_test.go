package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/reentry"
)

func f(v float64) *float64 { return &v }

func sampleInput() Input {
	kospi := []contracts.ReturnRecord{
		{Code: "005930", Name: "삼성전자", Market: contracts.MarketKOSPI, StartPrice: 70000, EndPrice: 84000, ReturnPct: 20, ROE: f(9.5)},
		{Code: "000660", Name: "SK하이닉스", Market: contracts.MarketKOSPI, StartPrice: 150000, EndPrice: 165000, ReturnPct: 10},
	}
	return Input{
		Start:    "20240101",
		End:      "20240331",
		Combined: kospi,
		ByMarket: map[contracts.Market][]contracts.ReturnRecord{contracts.MarketKOSPI: kospi},
		Reentry: []reentry.Result{
			{Code: "000660", Name: "SK하이닉스", PreviousRank: 60, PreviousReturnPct: 3, CurrentRank: 2, CurrentReturnPct: 10},
		},
		PreviousSnapshot: "data/growth_combined_20231001_20231231.csv",
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleInput(), time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))

	assert.Equal(t, "통합 TOP2", r.Combined.Title)
	require.Len(t, r.Combined.Rows, 2)
	assert.Equal(t, 1, r.Combined.Rows[0].Rank)
	assert.Equal(t, 9.5, *r.Combined.Rows[0].ROE)
	assert.Nil(t, r.Combined.Rows[1].ROE)

	require.Len(t, r.Markets, 2)
	assert.Equal(t, "코스피 TOP2", r.Markets[0].Title)
	assert.Equal(t, NoEntriesMessage, r.Markets[1].Message)
	assert.Empty(t, r.Markets[1].Rows)

	assert.Empty(t, r.Reentry.Message)
	assert.Nil(t, r.Watchlist, "no user, no watchlist section")
}

func TestBuildEmptySections(t *testing.T) {
	in := sampleInput()
	in.Reentry = nil
	in.Watchlist = []contracts.ReturnRecord{}

	r := Build(in, time.Now())
	assert.Equal(t, NoEntriesMessage, r.Reentry.Message)
	require.NotNil(t, r.Watchlist)
	assert.Equal(t, NoWatchlistMessage, r.Watchlist.Message)
}

func TestWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	path, err := Write(dir, sampleInput(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20240101_20240331.yaml"), path)

	r, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "20240101", r.Start)
	require.Len(t, r.Combined.Rows, 2)
	assert.Equal(t, "005930", r.Combined.Rows[0].Code, "leading zeros survive")
	require.Len(t, r.Reentry.Entries, 1)
	assert.Equal(t, 60, r.Reentry.Entries[0].PreviousRank)
}

func TestSummary(t *testing.T) {
	msg := Summary(sampleInput(), "data/report.yaml")

	assert.Contains(t, msg, "20240101 ~ 20240331")
	assert.Contains(t, msg, "1. 삼성전자 (+20.00%)")
	assert.Contains(t, msg, "코스닥 TOP 3:")
	assert.Contains(t, msg, "재진입 종목: 1개")
	assert.Contains(t, msg, "data/report.yaml")
}
