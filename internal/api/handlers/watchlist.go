package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WatchRequest adds or removes one instrument
type WatchRequest struct {
	UserID   int64  `json:"user_id"`
	Platform string `json:"platform"` // 비우면 기본 플랫폼
	Query    string `json:"query"`    // 종목명 또는 종목코드
}

// ListWatchlist returns a user's entries
// GET /api/watchlist?user_id=&platform=
func (h *PipelineHandler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	entries, err := h.pipeline.Watchlist(r.Context(), userID, r.URL.Query().Get("platform"))
	if err != nil {
		h.fail(w, "watchlist", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"entries": entries,
		"count":   len(entries),
	})
}

// AddWatch subscribes a user to an instrument
// POST /api/watchlist
func (h *PipelineHandler) AddWatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWatch(w, r)
	if !ok {
		return
	}

	change, err := h.pipeline.AddWatch(r.Context(), req.UserID, req.Platform, req.Query)
	if err != nil {
		h.fail(w, "watch_add", err)
		return
	}
	status := http.StatusCreated
	if !change.Changed {
		status = http.StatusOK
	}
	respondJSON(w, status, change)
}

// RemoveWatch unsubscribes a user
// DELETE /api/watchlist
func (h *PipelineHandler) RemoveWatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWatch(w, r)
	if !ok {
		return
	}

	change, err := h.pipeline.RemoveWatch(r.Context(), req.UserID, req.Platform, req.Query)
	if err != nil {
		h.fail(w, "watch_remove", err)
		return
	}
	if !change.Changed {
		respondJSON(w, http.StatusNotFound, change)
		return
	}
	respondJSON(w, http.StatusOK, change)
}

func decodeWatch(w http.ResponseWriter, r *http.Request) (WatchRequest, bool) {
	var req WatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.UserID == 0 || req.Query == "" {
		respondError(w, http.StatusBadRequest, "user_id and query are required")
		return req, false
	}
	return req, true
}
