package kis

import (
	"context"
	"net/url"
	"time"
)

// Financials fetches ROE and operating margin. The two halves come from
// separate endpoints and fail independently; a failed half stays nil and
// only a failure of both is returned as an error.
func (c *Client) Financials(ctx context.Context, code string) (Financials, error) {
	var fin Financials

	params := url.Values{}
	params.Set("FID_DIV_CLS_CODE", "0")
	params.Set("fid_cond_mrkt_div_code", "J")
	params.Set("fid_input_iscd", code)

	var ratio financialRatioResponse
	ratioErr := c.get(ctx, pathFinRatio, trFinRatio, params, &ratio)
	if ratioErr == nil && len(ratio.Output) > 0 {
		fin.ROE = parseOptionalFloat(ratio.Output[0].ROE)
	} else if ratioErr != nil {
		c.logger.WithError(ratioErr).WithField("code", code).Debug("Financial ratio unavailable")
	}

	select {
	case <-ctx.Done():
		return fin, ctx.Err()
	case <-time.After(c.financeGap):
	}

	var profit profitRatioResponse
	profitErr := c.get(ctx, pathProfitRatio, trProfitRatio, params, &profit)
	if profitErr == nil && len(profit.Output) > 0 {
		// sale_oper_rate 우선, 없으면 sale_totl_rate
		fin.OperatingMargin = parseOptionalFloat(profit.Output[0].OperatingRate)
		if fin.OperatingMargin == nil {
			fin.OperatingMargin = parseOptionalFloat(profit.Output[0].TotalRate)
		}
	} else if profitErr != nil {
		c.logger.WithError(profitErr).WithField("code", code).Debug("Profit ratio unavailable")
	}

	if ratioErr != nil && profitErr != nil {
		return fin, ratioErr
	}
	return fin, nil
}
