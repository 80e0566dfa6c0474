package kis

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/internal/contracts"
)

type dailyRow map[string]string

// tradingDays lists weekdays from start, n of them
func tradingDays(start time.Time, n int) []string {
	days := make([]string, 0, n)
	for d := start; len(days) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d.Format(contracts.DateLayout))
	}
	return days
}

// dailyHandler pages newest first, at most 100 rows, like the real endpoint
func dailyHandler(t *testing.T, days []string, pages *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathDailyChart, r.URL.Path)
		assert.Equal(t, trDailyChart, r.Header.Get("tr_id"))
		q := r.URL.Query()
		assert.Equal(t, "D", q.Get("FID_PERIOD_DIV_CODE"))
		assert.Equal(t, "0", q.Get("FID_ORG_ADJ_PRC"))

		from, to := q.Get("FID_INPUT_DATE_1"), q.Get("FID_INPUT_DATE_2")
		*pages++

		rows := make([]dailyRow, 0)
		for i := len(days) - 1; i >= 0 && len(rows) < dailyPageSize; i-- {
			d := days[i]
			if d < from || d > to {
				continue
			}
			rows = append(rows, dailyRow{
				"stck_bsop_date": d,
				"stck_oprc":      strconv.Itoa(1000 + i),
				"stck_hgpr":      strconv.Itoa(1010 + i),
				"stck_lwpr":      strconv.Itoa(990 + i),
				"stck_clpr":      strconv.Itoa(1000 + i),
				"acml_vol":       "500",
			})
		}
		writeJSON(w, map[string]interface{}{"rt_cd": "0", "output2": rows})
	}
}

func TestDailyBarsPagesBackwards(t *testing.T) {
	days := tradingDays(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 230)
	pages := 0
	c := newTestClient(t, newFake(dailyHandler(t, days, &pages)))

	inst := contracts.Instrument{Code: "005930", Name: "삼성전자", Market: contracts.MarketKOSPI}
	rows, err := c.DailyBars(context.Background(), inst, days[0], days[len(days)-1])
	require.NoError(t, err)

	assert.Equal(t, 3, pages)
	require.Len(t, rows, 230)
	assert.True(t, sort.SliceIsSorted(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date }))
	assert.Equal(t, days[0], rows[0].Date)
	assert.Equal(t, int64(1000), rows[0].Close)
	assert.Equal(t, "삼성전자", rows[0].Name)
	assert.Equal(t, contracts.MarketKOSPI, rows[0].Market)
	assert.Equal(t, int64(500), rows[0].Volume)
}

func TestDailyBarsSinglePage(t *testing.T) {
	days := tradingDays(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 40)
	pages := 0
	c := newTestClient(t, newFake(dailyHandler(t, days, &pages)))

	rows, err := c.DailyBars(context.Background(), contracts.Instrument{Code: "000660"}, days[0], days[39])
	require.NoError(t, err)
	assert.Len(t, rows, 40)
	assert.Equal(t, 1, pages)
}

func TestDailyBarsSkipsInvalidRows(t *testing.T) {
	c := newTestClient(t, newFake(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"rt_cd": "0",
			"output2": []dailyRow{
				{"stck_bsop_date": "20240105", "stck_clpr": "1200"},
				{"stck_bsop_date": "", "stck_clpr": "1100"},
				{"stck_bsop_date": "20240103", "stck_clpr": "0"},
				{"stck_bsop_date": "20240102", "stck_clpr": "1000"},
			},
		})
	}))

	rows, err := c.DailyBars(context.Background(), contracts.Instrument{Code: "035720"}, "20240101", "20240131")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "20240102", rows[0].Date)
	assert.Equal(t, "20240105", rows[1].Date)
}

func TestDailyBarsNoData(t *testing.T) {
	c := newTestClient(t, newFake(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"rt_cd": "0", "output2": []dailyRow{}})
	}))

	_, err := c.DailyBars(context.Background(), contracts.Instrument{Code: "035720"}, "20240101", "20240131")
	assert.ErrorIs(t, err, ErrNoData)
}
