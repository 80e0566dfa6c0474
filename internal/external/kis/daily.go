package kis

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/wonny/stockscanner/internal/contracts"
)

const (
	// dailyPageSize is the most rows FHKST03010100 returns per call
	dailyPageSize = 100
	maxDailyPages = 40
)

// DailyBars returns the instrument's daily rows in [start, end], oldest
// first. The endpoint caps a page at 100 rows, so longer ranges are paged
// backwards from end. Rows with no date or a zero close are skipped.
func (c *Client) DailyBars(ctx context.Context, inst contracts.Instrument, start, end string) ([]contracts.DailyPriceRow, error) {
	byDate := make(map[string]contracts.DailyPriceRow)
	cursor := end

	for page := 0; page < maxDailyPages; page++ {
		params := url.Values{}
		params.Set("FID_COND_MRKT_DIV_CODE", "J")
		params.Set("FID_INPUT_ISCD", inst.Code)
		params.Set("FID_INPUT_DATE_1", start)
		params.Set("FID_INPUT_DATE_2", cursor)
		params.Set("FID_PERIOD_DIV_CODE", "D")
		params.Set("FID_ORG_ADJ_PRC", "0")

		var out dailyChartResponse
		if err := c.get(ctx, pathDailyChart, trDailyChart, params, &out); err != nil {
			return nil, err
		}

		oldest := ""
		for _, r := range out.Output2 {
			if r.Date == "" {
				continue
			}
			if oldest == "" || r.Date < oldest {
				oldest = r.Date
			}
			closePrice := parseInt(r.Close)
			if closePrice == 0 || r.Date < start || r.Date > end {
				continue
			}
			byDate[r.Date] = contracts.DailyPriceRow{
				Date:   r.Date,
				Code:   inst.Code,
				Name:   inst.Name,
				Market: inst.Market,
				Open:   parseInt(r.Open),
				High:   parseInt(r.High),
				Low:    parseInt(r.Low),
				Close:  closePrice,
				Volume: parseInt(r.Volume),
			}
		}

		if len(out.Output2) < dailyPageSize || oldest == "" || oldest <= start {
			break
		}

		prev, err := contracts.ParseDate(oldest)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", ErrUpstream, oldest)
		}
		next := prev.AddDate(0, 0, -1).Format(contracts.DateLayout)
		if next >= cursor {
			break
		}
		cursor = next
	}

	if len(byDate) == 0 {
		return nil, fmt.Errorf("%w: daily bars %s %s-%s", ErrNoData, inst.Code, start, end)
	}

	rows := make([]contracts.DailyPriceRow, 0, len(byDate))
	for _, r := range byDate {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}
