// Package kis talks to the 한국투자증권 Open API: token exchange, daily and
// minute bars, financial ratios and the instrument master files.
package kis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
)

const (
	pathDailyChart  = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	pathMinuteChart = "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice"
	pathPrice       = "/uapi/domestic-stock/v1/quotations/inquire-price"
	pathFinRatio    = "/uapi/domestic-stock/v1/finance/financial-ratio"
	pathProfitRatio = "/uapi/domestic-stock/v1/finance/profit-ratio"

	trDailyChart  = "FHKST03010100" // 국내주식 기간별 시세
	trMinuteChart = "FHKST03010200" // 국내주식 당일 분봉
	trPrice       = "FHKST01010100" // 국내주식 현재가
	trFinRatio    = "FHKST66430300" // 재무비율
	trProfitRatio = "FHKST66430400" // 수익성비율
)

// Client handles communication with KIS (한국투자증권) API
// ⭐ SSOT: KIS API 호출은 이 클라이언트에서만
type Client struct {
	http    *httputil.Client
	tokens  *TokenManager
	cfg     config.KISConfig
	limiter *rate.Limiter
	logger  *logger.Logger

	// 재무비율 → 수익성비율 호출 사이 간격
	financeGap time.Duration
}

// NewClient creates a new KIS API client. cfg.RatePerSec > 0 adds a
// process-local limiter in front of every quotation call.
func NewClient(cfg config.KISConfig, httpClient *httputil.Client, tokens *TokenManager, log *logger.Logger) *Client {
	c := &Client{
		http:       httpClient,
		tokens:     tokens,
		cfg:        cfg,
		logger:     log.Module("kis"),
		financeGap: 300 * time.Millisecond,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return c
}

// Tokens exposes the token manager so callers can warm it up front
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Authenticate makes sure a valid credential is held. A batch calls it
// once up front so an auth failure aborts the run instead of every unit.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// get performs an authenticated GET and decodes the envelope into out
func (c *Client) get(ctx context.Context, path, trID string, params url.Values, out response) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, trID, err)
	}

	if err := httputil.DecodeJSON(resp, out); err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) {
			return fmt.Errorf("%w: %s: status %d", ErrUpstream, trID, statusErr.StatusCode)
		}
		return fmt.Errorf("%w: %s: %v", ErrUpstream, trID, err)
	}

	if err := out.check(trID); err != nil {
		// 만료 토큰은 버리고 다음 호출에서 재발급
		if errors.Is(err, errTokenExpired) {
			c.tokens.Invalidate()
		}
		return err
	}
	return nil
}
