package kis

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/wonny/stockscanner/internal/signals"
)

// DefaultMinuteEnd is the market close used as the minute query anchor
const DefaultMinuteEnd = "153000"

// MinuteBars returns today's candles up to endTime (HHMMSS) at the given
// minute interval, in upstream order (newest first).
func (c *Client) MinuteBars(ctx context.Context, code, endTime, interval string) ([]signals.Candle, error) {
	if endTime == "" {
		endTime = DefaultMinuteEnd
	}

	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", code)
	params.Set("FID_INPUT_HOUR_1", endTime)
	params.Set("FID_PW_DATA_INCU_YN", "Y")
	params.Set("FID_ETC_CLS_CODE", interval)

	var out minuteChartResponse
	if err := c.get(ctx, pathMinuteChart, trMinuteChart, params, &out); err != nil {
		return nil, err
	}

	candles := make([]signals.Candle, 0, len(out.Output2))
	for _, r := range out.Output2 {
		closePrice := parseInt(r.Close)
		if r.Time == "" || closePrice == 0 {
			continue
		}
		candles = append(candles, signals.Candle{
			Time:   r.Time,
			Open:   parseInt(r.Open),
			High:   parseInt(r.High),
			Low:    parseInt(r.Low),
			Close:  closePrice,
			Volume: parseInt(r.Volume),
		})
	}
	return candles, nil
}

// RecentCandles returns at most n candles, oldest first, one per time
func (c *Client) RecentCandles(ctx context.Context, code, interval string, n int) ([]signals.Candle, error) {
	raw, err := c.MinuteBars(ctx, code, DefaultMinuteEnd, interval)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: minute bars %s", ErrNoData, code)
	}
	return NormalizeCandles(raw, n), nil
}

// NormalizeCandles drops repeated times (first wins), sorts oldest first
// and keeps the last n. n <= 0 keeps all.
func NormalizeCandles(raw []signals.Candle, n int) []signals.Candle {
	seen := make(map[string]bool, len(raw))
	out := make([]signals.Candle, 0, len(raw))
	for _, c := range raw {
		if seen[c.Time] {
			continue
		}
		seen[c.Time] = true
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
