package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"live-transcription-service/internal/observability/logging"
)

// Status is the body of GET /v1/status.
type Status struct {
	SessionID     string `json:"sessionId,omitempty"`
	Active        bool   `json:"active"`
	LanguageCode  string `json:"languageCode,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	Connections   int64  `json:"connections"`
	Renewals      int64  `json:"renewals"`
	DroppedChunks int64  `json:"droppedChunks"`
	Subscribers   int    `json:"subscribers"`
}

// StatusFunc reports the current service status.
type StatusFunc func() Status

// NewRouter constructs the HTTP router for the subscriber listener. The
// websocket endpoint is served at both / and /ws.
func NewRouter(gateway http.Handler, status StatusFunc) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logging.WithComponent("http")))
	r.Use(middleware.Recoverer)

	r.Get("/", gateway.ServeHTTP)
	r.Get("/ws", gateway.ServeHTTP)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if status != nil && !status().Active {
			http.Error(w, "no active session", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			var st Status
			if status != nil {
				st = status()
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(st)
		})
	})

	return r
}

// requestLogger logs each request when it completes. Websocket requests
// complete when the subscriber disconnects.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remoteAddr", r.RemoteAddr).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
