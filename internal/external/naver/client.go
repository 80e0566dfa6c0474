// Package naver searches recent news through the Naver Search API.
package naver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/redis"
)

// DefaultDisplay is the number of articles attached to a signal
const DefaultDisplay = 3

// Client handles communication with the Naver Search API
// ⭐ SSOT: Naver 뉴스 검색은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	cfg        config.NaverConfig
	cache      *redis.Cache
	logger     *logger.Logger
}

// NewClient creates a new Naver news client
func NewClient(cfg config.NaverConfig, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		cache:      cache,
		logger:     log.Module("naver"),
	}
}

// NewsItem is one article with HTML already stripped
type NewsItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PubDate     string `json:"pub_date"`
}

type searchResponse struct {
	Total int `json:"total"`
	Items []struct {
		Title        string `json:"title"`
		OriginalLink string `json:"originallink"`
		Link         string `json:"link"`
		Description  string `json:"description"`
		PubDate      string `json:"pubDate"`
	} `json:"items"`
}

// Enabled reports whether API credentials are configured
func (c *Client) Enabled() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// SearchNews returns the newest articles for query. Missing credentials
// or any failure yield an empty slice; news never fails a scan.
func (c *Client) SearchNews(ctx context.Context, query string, display int) []NewsItem {
	if !c.Enabled() || strings.TrimSpace(query) == "" {
		return []NewsItem{}
	}
	if display <= 0 {
		display = DefaultDisplay
	}

	var cached []NewsItem
	if hit, _ := c.cache.Get(ctx, redis.NewsKey(query, display), &cached); hit {
		return cached
	}

	items, err := c.search(ctx, query, display)
	if err != nil {
		c.logger.WithError(err).WithField("query", query).Warn("News search failed")
		return []NewsItem{}
	}

	if err := c.cache.Set(ctx, redis.NewsKey(query, display), items, redis.TTLNews); err != nil {
		c.logger.WithError(err).Debug("News cache write failed")
	}
	return items
}

func (c *Client) search(ctx context.Context, query string, display int) ([]NewsItem, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(display))
	params.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", c.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	var out searchResponse
	if err := httputil.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}

	items := make([]NewsItem, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, NewsItem{
			Title:       StripHTML(it.Title),
			Description: StripHTML(it.Description),
			Link:        it.Link,
			PubDate:     it.PubDate,
		})
	}
	return items, nil
}

// StripHTML drops tags and decodes entities ("<b>삼성</b>&amp;" -> "삼성&")
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
