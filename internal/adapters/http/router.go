// Package httpapi exposes the chat endpoint and operational routes over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Fikei1151/nia/internal/app/dto"
	"github.com/Fikei1151/nia/internal/infrastructure/metrics"
	"github.com/Fikei1151/nia/web"
)

// ChatProcessor answers a chat message on a thread
type ChatProcessor interface {
	Process(ctx context.Context, threadID string, req dto.ChatRequest) string
}

// StoreHealth reports the checkpoint backend on the health route
type StoreHealth interface {
	Health() map[string]any
}

// Options configures the router
type Options struct {
	Chat           ChatProcessor
	Store          StoreHealth
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with all routes and middleware mounted.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", health(opts.Store))
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/debug/vars", expvar.Handler())

	page := web.Handler()
	r.Handle("/", page)
	r.Handle("/static/*", page)

	h := &chatHandler{chat: opts.Chat, logger: logger}
	r.Route("/api/v1", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
		}
		r.Post("/chat/{thread_id}", h.chat)
	})
	return r
}

func health(store StoreHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if store != nil {
			body["store"] = store.Health()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chiMiddleware.GetReqID(r.Context())))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
