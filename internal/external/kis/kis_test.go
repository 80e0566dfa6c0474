package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
)

// fakeKIS serves the token endpoint and delegates the rest to api
type fakeKIS struct {
	tokenCalls atomic.Int32
	tokenCode  int
	expiresAt  time.Time
	api        http.HandlerFunc
}

func (f *fakeKIS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth2/tokenP" {
		f.tokenCalls.Add(1)
		if f.tokenCode != 0 && f.tokenCode != http.StatusOK {
			w.WriteHeader(f.tokenCode)
			w.Write([]byte(`{"error_description":"denied"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":               "tok-" + time.Now().Format("150405.000000"),
			"token_type":                 "Bearer",
			"expires_in":                 86400,
			"access_token_token_expired": f.expiresAt.In(kst).Format(tokenExpiryLayout),
		})
		return
	}
	if f.api == nil {
		http.NotFound(w, r)
		return
	}
	f.api(w, r)
}

func newFake(api http.HandlerFunc) *fakeKIS {
	return &fakeKIS{expiresAt: time.Now().Add(24 * time.Hour), api: api}
}

func newTestClient(t *testing.T, fake *fakeKIS) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	log := logger.Nop()
	tokens := NewTokenManager(server.URL, "key", "secret", log)
	c := NewClient(config.KISConfig{
		AppKey:    "key",
		AppSecret: "secret",
		BaseURL:   server.URL,
	}, httputil.New(log).WithRetry(1, time.Millisecond), tokens, log)
	c.financeGap = 0
	return c
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestTokenConcurrentCallersShareOneExchange(t *testing.T) {
	fake := newFake(nil)
	c := newTestClient(t, fake)

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.Tokens().Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fake.tokenCalls.Load())
	assert.Equal(t, int64(1), c.Tokens().Exchanges())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestTokenRefreshesInsideSafetyMargin(t *testing.T) {
	fixed := time.Date(2024, 6, 3, 9, 0, 0, 0, kst)
	fake := newFake(nil)
	fake.expiresAt = fixed.Add(59 * time.Second)

	c := newTestClient(t, fake)
	c.Tokens().now = func() time.Time { return fixed }

	_, err := c.Tokens().Token(context.Background())
	require.NoError(t, err)
	_, err = c.Tokens().Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load(), "expiry within one minute is never reused")

	fake.expiresAt = fixed.Add(61 * time.Second)
	c.Tokens().Invalidate()
	_, err = c.Tokens().Token(context.Background())
	require.NoError(t, err)
	_, err = c.Tokens().Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.tokenCalls.Load())
}

func TestTokenAuthFailureIsNotRetried(t *testing.T) {
	fake := newFake(nil)
	fake.tokenCode = http.StatusForbidden
	c := newTestClient(t, fake)

	_, err := c.Tokens().Token(context.Background())
	require.ErrorIs(t, err, ErrAuthFailure)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// the quotation call surfaces the same failure
	_, err = c.CurrentPrice(context.Background(), "005930")
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestRequestHeaders(t *testing.T) {
	fake := newFake(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathPrice, r.URL.Path)
		assert.Equal(t, trPrice, r.Header.Get("tr_id"))
		assert.Equal(t, "key", r.Header.Get("appkey"))
		assert.Equal(t, "secret", r.Header.Get("appsecret"))
		assert.Contains(t, r.Header.Get("authorization"), "Bearer tok-")
		assert.Equal(t, "005930", r.URL.Query().Get("FID_INPUT_ISCD"))

		writeJSON(w, map[string]interface{}{
			"rt_cd": "0",
			"output": map[string]string{
				"stck_shrn_iscd": "005930",
				"stck_prpr":      "71500",
				"acml_vol":       "1234567",
			},
		})
	})
	c := newTestClient(t, fake)

	q, err := c.CheckConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(71500), q.Price)
	assert.Equal(t, int64(1234567), q.Volume)
}

func TestUpstreamErrorOnBadResultCode(t *testing.T) {
	fake := newFake(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"rt_cd": "1", "msg_cd": "EGW00201", "msg1": "초당 거래건수를 초과하였습니다."})
	})
	c := newTestClient(t, fake)

	_, err := c.CurrentPrice(context.Background(), "005930")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestUpstreamErrorOnStatus(t *testing.T) {
	var calls atomic.Int32
	fake := newFake(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, fake)

	_, err := c.CurrentPrice(context.Background(), "005930")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(2), calls.Load(), "quotation calls keep the transport retry")
}

func TestExpiredTokenIsDiscarded(t *testing.T) {
	var calls atomic.Int32
	fake := newFake(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, map[string]string{"rt_cd": "1", "msg_cd": "EGW00123", "msg1": "기간이 만료된 token 입니다."})
			return
		}
		writeJSON(w, map[string]interface{}{
			"rt_cd":  "0",
			"output": map[string]string{"stck_shrn_iscd": "005930", "stck_prpr": "71500", "acml_vol": "10"},
		})
	})
	c := newTestClient(t, fake)

	_, err := c.CurrentPrice(context.Background(), "005930")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, errTokenExpired)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	_, err = c.CurrentPrice(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load(), "expired token is exchanged again")
}
