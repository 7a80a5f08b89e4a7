// Package api serves incidents and operator feedback over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/breakwatch/internal/model"
	"github.com/sells-group/breakwatch/internal/store"
)

// Store is the persistence the handlers read and write.
type Store interface {
	Ping(ctx context.Context) error
	ListIncidents(ctx context.Context, filter store.IncidentFilter) ([]model.Incident, error)
	GetIncidentDetail(ctx context.Context, id string) (*model.IncidentDetail, error)
	CreateFeedback(ctx context.Context, incidentID string, status model.FeedbackStatus, notes string) (*model.Feedback, error)
	ListFeedback(ctx context.Context, incidentID string) ([]model.Feedback, error)
}

// Options configures the router.
type Options struct {
	// CORSOrigins lists allowed origins. Empty allows all.
	CORSOrigins []string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// RequestTimeout bounds each request. Default: 30s.
	RequestTimeout time.Duration
}

// server holds the handler dependencies.
type server struct {
	store Store
}

// NewRouter builds the HTTP handler.
func NewRouter(st Store, opts Options) http.Handler {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &server{store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/incidents", s.handleListIncidents)
	r.Get("/incidents/{id}", s.handleGetIncident)
	r.Get("/incidents/{id}/feedback", s.handleListFeedback)
	r.Post("/feedback", s.handleCreateFeedback)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
