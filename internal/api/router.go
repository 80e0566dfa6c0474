package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/stockscanner/internal/api/handlers"
	"github.com/wonny/stockscanner/internal/workflow"
	"github.com/wonny/stockscanner/pkg/logger"
	"github.com/wonny/stockscanner/pkg/metrics"
)

// RouterOptions toggles optional endpoints
type RouterOptions struct {
	Metrics bool
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h *handlers.PipelineHandler, gate *workflow.Gate, hub *Hub, opts RouterOptions, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(gate, hub)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Pipeline
	api.HandleFunc("/collect", h.Collect).Methods("POST")
	api.HandleFunc("/analyze", h.Analyze).Methods("POST")
	api.HandleFunc("/scan", h.Scan).Methods("POST")
	api.HandleFunc("/info", h.Info).Methods("GET")

	// Watchlist
	api.HandleFunc("/watchlist", h.ListWatchlist).Methods("GET")
	api.HandleFunc("/watchlist", h.AddWatch).Methods("POST")
	api.HandleFunc("/watchlist", h.RemoveWatch).Methods("DELETE")

	if opts.Metrics {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	if hub != nil {
		r.HandleFunc("/ws/signals", hub.ServeWS).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(gate *workflow.Gate, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "stockscanner-api",
			"busy":    gate.Busy(),
		}
		if hub != nil {
			body["ws_clients"] = hub.Clients()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
