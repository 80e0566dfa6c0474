package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/workflow"
	"github.com/wonny/stockscanner/pkg/logger"
)

type fakePipeline struct {
	err        error
	lastUser   *int64
	lastCodes  []string
	scannedFor int64
	changed    bool
}

func (f *fakePipeline) RunCollection(ctx context.Context, start, end string) (*workflow.CollectionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.CollectionResult{RunID: "run-1", Start: start, End: end, PriceRows: 10, FinancialRows: 2}, nil
}

func (f *fakePipeline) RunAnalysis(ctx context.Context, start, end string, userID *int64) (*workflow.Analysis, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.Analysis{RunID: "run-2", Start: start, End: end, ReportPath: "data/report.yaml"}, nil
}

func (f *fakePipeline) ScanWatchlist(ctx context.Context, instruments []contracts.Instrument) (*workflow.ScanResult, error) {
	for _, inst := range instruments {
		f.lastCodes = append(f.lastCodes, inst.Code)
	}
	return &workflow.ScanResult{Scanned: len(instruments)}, f.err
}

func (f *fakePipeline) ScanUser(ctx context.Context, userID int64) (*workflow.ScanResult, error) {
	f.scannedFor = userID
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.ScanResult{Scanned: 1}, nil
}

func (f *fakePipeline) AddWatch(ctx context.Context, userID int64, platform, query string) (*workflow.WatchChange, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.WatchChange{Instrument: contracts.Instrument{Code: "005930", Name: query}, Changed: f.changed}, nil
}

func (f *fakePipeline) RemoveWatch(ctx context.Context, userID int64, platform, query string) (*workflow.WatchChange, error) {
	return f.AddWatch(ctx, userID, platform, query)
}

func (f *fakePipeline) Watchlist(ctx context.Context, userID int64, platform string) ([]contracts.WatchlistEntry, error) {
	return []contracts.WatchlistEntry{{UserID: userID, Platform: "telegram", Code: "005930", Name: "삼성전자"}}, f.err
}

func (f *fakePipeline) Info(ctx context.Context, query, start, end string) (*workflow.InstrumentInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.InstrumentInfo{ReturnRecord: contracts.ReturnRecord{Code: "005930", Name: query, ReturnPct: 20}, Start: start, End: end}, nil
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{workflow.ErrRunInProgress, http.StatusConflict},
		{fmt.Errorf("%w: bad date", workflow.ErrInvalidInput), http.StatusBadRequest},
		{workflow.ErrNotCollected, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", workflow.ErrNoResults), http.StatusNotFound},
		{workflow.ErrEmptyWatchlist, http.StatusNotFound},
		{fmt.Errorf("authenticate: %w", kis.ErrAuthFailure), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestCollect(t *testing.T) {
	p := &fakePipeline{}
	h := NewPipelineHandler(p, logger.Nop())

	rec := do(h.Collect, "POST", "/api/collect", `{"start":"20240101","end":"20240331"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflow.CollectionResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 10, res.PriceRows)
	assert.Equal(t, "20240101", res.Start)

	rec = do(h.Collect, "POST", "/api/collect", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectBusy(t *testing.T) {
	h := NewPipelineHandler(&fakePipeline{err: workflow.ErrRunInProgress}, logger.Nop())

	rec := do(h.Collect, "POST", "/api/collect", `{"start":"20240101","end":"20240331"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "in progress")
}

func TestAnalyzePassesUser(t *testing.T) {
	p := &fakePipeline{}
	h := NewPipelineHandler(p, logger.Nop())

	rec := do(h.Analyze, "POST", "/api/analyze", `{"start":"20240101","end":"20240331","user_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, p.lastUser)
	assert.Equal(t, int64(42), *p.lastUser)

	rec = do(h.Analyze, "POST", "/api/analyze", `{"start":"20240101","end":"20240331"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, p.lastUser)
}

func TestScan(t *testing.T) {
	p := &fakePipeline{}
	h := NewPipelineHandler(p, logger.Nop())

	rec := do(h.Scan, "POST", "/api/scan", `{"user_id":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), p.scannedFor)

	rec = do(h.Scan, "POST", "/api/scan", `{"instruments":[{"code":"005930","name":"삼성전자"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"005930"}, p.lastCodes)

	rec = do(h.Scan, "POST", "/api/scan", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchlistEndpoints(t *testing.T) {
	p := &fakePipeline{changed: true}
	h := NewPipelineHandler(p, logger.Nop())

	rec := do(h.AddWatch, "POST", "/api/watchlist", `{"user_id":1,"query":"삼성전자"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h.AddWatch, "POST", "/api/watchlist", `{"query":"삼성전자"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.ListWatchlist, "GET", "/api/watchlist?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(h.ListWatchlist, "GET", "/api/watchlist", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.changed = false
	rec = do(h.AddWatch, "POST", "/api/watchlist", `{"user_id":1,"query":"삼성전자"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate add is not a create")

	rec = do(h.RemoveWatch, "DELETE", "/api/watchlist", `{"user_id":1,"query":"삼성전자"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInfo(t *testing.T) {
	h := NewPipelineHandler(&fakePipeline{}, logger.Nop())

	rec := do(h.Info, "GET", "/api/info?query=%EC%82%BC%EC%84%B1&start=20240101&end=20240331", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"return_pct":20`)

	rec = do(h.Info, "GET", "/api/info", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
