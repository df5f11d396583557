package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/config"
	"github.com/tvermeulen/disporelay/internal/metrics"
	"github.com/tvermeulen/disporelay/internal/queue"
	"github.com/tvermeulen/disporelay/internal/submission"
)

type Server struct {
	cfg    config.ServerConfig
	svc    *submission.Service
	queue  *queue.Queue
	agg    *metrics.Aggregator
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, svc *submission.Service, q *queue.Queue, agg *metrics.Aggregator, log zerolog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		queue: q,
		agg:   agg,
		log:   log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	subHandler := NewSubmissionHandler(s.svc)
	queueHandler := NewQueueHandler(s.svc, s.queue)
	draftHandler := NewDraftHandler(s.svc)
	metricsHandler := NewMetricsHandler(s.agg, s.queue)

	r.Get("/health", metricsHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/submissions", subHandler.Submit)
		r.Post("/export", subHandler.Export)

		r.Get("/queue", queueHandler.List)
		r.Post("/queue/process", queueHandler.Process)
		r.Delete("/queue/{id}", queueHandler.Discard)

		r.Get("/draft", draftHandler.Get)
		r.Put("/draft", draftHandler.Put)
		r.Delete("/draft", draftHandler.Delete)

		r.Get("/metrics", metricsHandler.Summary)
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
