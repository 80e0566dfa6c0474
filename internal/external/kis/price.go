package kis

import (
	"context"
	"net/url"
)

// ProbeCode is the instrument used for connectivity checks (삼성전자)
const ProbeCode = "005930"

// CurrentPrice returns the live quote of one instrument
func (c *Client) CurrentPrice(ctx context.Context, code string) (*Quote, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", code)

	var out priceResponse
	if err := c.get(ctx, pathPrice, trPrice, params, &out); err != nil {
		return nil, err
	}

	return &Quote{
		Code:   code,
		Price:  parseInt(out.Output.Price),
		Open:   parseInt(out.Output.Open),
		High:   parseInt(out.Output.High),
		Low:    parseInt(out.Output.Low),
		Volume: parseInt(out.Output.Volume),
	}, nil
}

// CheckConnection verifies credentials and reachability with a price query
func (c *Client) CheckConnection(ctx context.Context) (*Quote, error) {
	q, err := c.CurrentPrice(ctx, ProbeCode)
	if err != nil {
		c.logger.WithError(err).Warn("KIS connection check failed")
		return nil, err
	}
	c.logger.WithFields(map[string]interface{}{
		"code":  q.Code,
		"price": q.Price,
	}).Info("KIS connection OK")
	return q, nil
}
