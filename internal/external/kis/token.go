package kis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/metrics"
)

const (
	tokenExpiryLayout = "2006-01-02 15:04:05"
	// 만료 1분 전부터 무효로 취급
	tokenSafetyMargin = time.Minute
)

var kst = time.FixedZone("KST", 9*60*60)

type credential struct {
	token     string
	expiresAt time.Time
}

func (c *credential) valid(now time.Time) bool {
	return c != nil && now.Before(c.expiresAt.Add(-tokenSafetyMargin))
}

// TokenManager caches the upstream bearer token and refreshes it lazily.
// Concurrent callers share a single exchange per refresh window.
// ⭐ SSOT: KIS 접근 토큰은 여기서만 발급
type TokenManager struct {
	http      *httputil.Client
	baseURL   string
	appKey    string
	appSecret string
	logger    *logger.Logger

	mu   sync.RWMutex
	cred *credential

	exchanges atomic.Int64
	now       func() time.Time
}

// NewTokenManager creates a token manager with its own non-retrying client
func NewTokenManager(baseURL, appKey, appSecret string, log *logger.Logger) *TokenManager {
	return &TokenManager{
		http:      httputil.NewWithTimeout(log, 10*time.Second).DisableRetry(),
		baseURL:   baseURL,
		appKey:    appKey,
		appSecret: appSecret,
		logger:    log.Module("kis-token"),
		now:       time.Now,
	}
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiredAt   string `json:"access_token_token_expired"` // KST, 2006-01-02 15:04:05
}

// Token returns a valid bearer token, exchanging credentials when needed
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.cred.valid(m.now()) {
		token := m.cred.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if m.cred.valid(m.now()) {
		return m.cred.token, nil
	}

	cred, err := m.exchange(ctx)
	metrics.RecordTokenExchange(err == nil)
	if err != nil {
		return "", err
	}
	m.cred = cred

	m.logger.WithField("expires_at", cred.expiresAt.Format(tokenExpiryLayout)).Info("KIS access token refreshed")
	return cred.token, nil
}

// Exchanges reports how many credential exchanges were attempted
func (m *TokenManager) Exchanges() int64 {
	return m.exchanges.Load()
}

// Invalidate drops the cached token so the next call exchanges again
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
}

func (m *TokenManager) exchange(ctx context.Context) (*credential, error) {
	m.exchanges.Add(1)

	resp, err := m.http.PostJSON(ctx, m.baseURL+"/oauth2/tokenP", tokenRequest{
		GrantType: "client_credentials",
		AppKey:    m.appKey,
		AppSecret: m.appSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}

	var out tokenResponse
	if err := httputil.DecodeJSON(resp, &out); err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: status %d: %s", ErrAuthFailure, statusErr.StatusCode, statusErr.Body)
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token", ErrAuthFailure)
	}

	expiresAt, err := time.ParseInLocation(tokenExpiryLayout, out.ExpiredAt, kst)
	if err != nil {
		if out.ExpiresIn <= 0 {
			return nil, fmt.Errorf("%w: bad expiry %q", ErrAuthFailure, out.ExpiredAt)
		}
		expiresAt = m.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}

	return &credential{token: out.AccessToken, expiresAt: expiresAt}, nil
}
