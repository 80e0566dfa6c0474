package naver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/redis"
)

func newTestClient(url, id, secret string) *Client {
	log := logger.Nop()
	return NewClient(config.NaverConfig{SearchURL: url, ClientID: id, ClientSecret: secret},
		httputil.New(log).DisableRetry(), redis.NewCache(redis.Disabled(), "test"), log)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<b>삼성전자</b>, 실적 발표", "삼성전자, 실적 발표"},
		{"&quot;HBM&quot; 수요 &amp; 공급", `"HBM" 수요 & 공급`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestSearchNews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.Header.Get("X-Naver-Client-Id"))
		assert.Equal(t, "secret", r.Header.Get("X-Naver-Client-Secret"))
		assert.Equal(t, "삼성전자", r.URL.Query().Get("query"))
		assert.Equal(t, "3", r.URL.Query().Get("display"))
		assert.Equal(t, "date", r.URL.Query().Get("sort"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"total": 1,
			"items": []map[string]string{{
				"title":       "<b>삼성전자</b> 신고가",
				"description": "반도체 &amp; 파운드리",
				"link":        "https://n.news.naver.com/1",
				"pubDate":     "Mon, 03 Jun 2024 15:20:00 +0900",
			}},
		})
	}))
	defer server.Close()

	items := newTestClient(server.URL, "id", "secret").SearchNews(context.Background(), "삼성전자", 0)
	require.Len(t, items, 1)
	assert.Equal(t, "삼성전자 신고가", items[0].Title)
	assert.Equal(t, "반도체 & 파운드리", items[0].Description)
	assert.Equal(t, "https://n.news.naver.com/1", items[0].Link)
}

func TestSearchNewsFailuresAreEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	items := newTestClient(server.URL, "id", "secret").SearchNews(context.Background(), "삼성전자", 3)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	disabled := newTestClient(server.URL, "", "")
	assert.False(t, disabled.Enabled())
	assert.Empty(t, disabled.SearchNews(context.Background(), "삼성전자", 3))
}
