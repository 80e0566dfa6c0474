package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/external/kis"
	"github.com/wonny/stockscanner/internal/workflow"
	"github.com/wonny/stockscanner/pkg/logger"
)

// Pipeline is the part of workflow.Service the HTTP surface calls
type Pipeline interface {
	RunCollection(ctx context.Context, start, end string) (*workflow.CollectionResult, error)
	RunAnalysis(ctx context.Context, start, end string, userID *int64) (*workflow.Analysis, error)
	ScanWatchlist(ctx context.Context, instruments []contracts.Instrument) (*workflow.ScanResult, error)
	ScanUser(ctx context.Context, userID int64) (*workflow.ScanResult, error)
	AddWatch(ctx context.Context, userID int64, platform, query string) (*workflow.WatchChange, error)
	RemoveWatch(ctx context.Context, userID int64, platform, query string) (*workflow.WatchChange, error)
	Watchlist(ctx context.Context, userID int64, platform string) ([]contracts.WatchlistEntry, error)
	Info(ctx context.Context, query, start, end string) (*workflow.InstrumentInfo, error)
}

// PipelineHandler handles collection, analysis and scan endpoints
// ⭐ SSOT: 파이프라인 API 핸들러는 여기서만
type PipelineHandler struct {
	pipeline Pipeline
	logger   *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(p Pipeline, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: p,
		logger:   log.Module("api"),
	}
}

// RangeRequest is the body of collect and analyze
type RangeRequest struct {
	Start  string `json:"start"` // YYYYMMDD
	End    string `json:"end"`
	UserID *int64 `json:"user_id,omitempty"` // analyze only
}

// ScanRequest scans a user's watchlist or an explicit instrument list
type ScanRequest struct {
	UserID      int64                  `json:"user_id"`
	Instruments []contracts.Instrument `json:"instruments"`
}

// Collect runs a collection
// POST /api/collect
func (h *PipelineHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req RangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"start": req.Start,
		"end":   req.End,
	}).Info("Collection triggered")

	res, err := h.pipeline.RunCollection(r.Context(), req.Start, req.End)
	if err != nil {
		h.fail(w, "collect", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Analyze ranks stored data and writes the report
// POST /api/analyze
func (h *PipelineHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req RangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.pipeline.RunAnalysis(r.Context(), req.Start, req.End, req.UserID)
	if err != nil {
		h.fail(w, "analyze", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Scan runs a crossover scan
// POST /api/scan
func (h *PipelineHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		res *workflow.ScanResult
		err error
	)
	switch {
	case len(req.Instruments) > 0:
		res, err = h.pipeline.ScanWatchlist(r.Context(), req.Instruments)
	case req.UserID != 0:
		res, err = h.pipeline.ScanUser(r.Context(), req.UserID)
	default:
		respondError(w, http.StatusBadRequest, "user_id or instruments is required")
		return
	}
	if err != nil {
		h.fail(w, "scan", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Info returns a quick single-instrument report
// GET /api/info?query=&start=&end=
func (h *PipelineHandler) Info(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("query") == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := h.pipeline.Info(r.Context(), q.Get("query"), q.Get("start"), q.Get("end"))
	if err != nil {
		h.fail(w, "info", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// fail maps workflow and upstream errors onto HTTP statuses
func (h *PipelineHandler) fail(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("op", op).Error("Request failed")
	}
	respondError(w, status, err.Error())
}

// StatusFor is the HTTP status of a pipeline error
func StatusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotCollected),
		errors.Is(err, workflow.ErrNoResults),
		errors.Is(err, workflow.ErrEmptyWatchlist):
		return http.StatusNotFound
	case errors.Is(err, kis.ErrAuthFailure), errors.Is(err, kis.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
