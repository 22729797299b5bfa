package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"assessment-attempt-service/internal/app"
	"assessment-attempt-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// HealthCheck probes one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the HTTP surface: health, attempt snapshots and the attempt stream.
func NewRouter(service *app.AttemptService, log zerolog.Logger, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	ws := NewWSHandler(service, log)

	r.Get("/healthz", handleHealth(log, checks))
	r.Get("/attempts/{attemptID}", handleAttemptSnapshot(service))
	r.Get("/ws", ws.ServeWS)
	return r
}

func handleAttemptSnapshot(service *app.AttemptService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := service.Get(r.Context(), chi.URLParam(r, "attemptID"))
		if errors.Is(err, domain.ErrAttemptNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.Snapshot())
	}
}

func handleHealth(log zerolog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	type result struct {
		Status string `json:"status"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		out := map[string]result{"service": {Status: "ok"}}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Error().Err(err).Str("name", name).Msg("health check failed")
				out[name] = result{Status: "error"}
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = result{Status: "ok"}
		}
		writeJSON(w, status, out)
	}
}

func requestLogger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Int64("duration_ms", time.Since(start).Milliseconds()).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("http request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
