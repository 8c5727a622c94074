package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	checkTimeout      = 60 * time.Second
)

// ReadyFunc reports whether a dependency can serve traffic.
type ReadyFunc func(ctx context.Context) error

// CheckFunc runs one manual feed poll and returns how many posts were submitted.
type CheckFunc func(ctx context.Context) (int, error)

type Server struct {
	port   int
	ready  ReadyFunc
	check  CheckFunc
	logger *zerolog.Logger
}

// NewServer creates the health server. check may be nil, in which case /check
// answers 404.
func NewServer(port int, ready ReadyFunc, check CheckFunc, logger *zerolog.Logger) *Server {
	return &Server{
		port:   port,
		ready:  ready,
		check:  check,
		logger: logger,
	}
}

// Handler returns the router serving /healthz, /readyz, /metrics and /check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil {
			if err := s.ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "not ready: %v", err)

				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	r.Handle("/metrics", promhttp.Handler())

	if s.check != nil {
		r.Post("/check", s.handleCheck)
		r.Get("/check", s.handleCheck)
	}

	return r
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	n, err := s.check(ctx)

	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		s.logger.Warn().Err(err).Msg("manual check failed")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})

		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "posts": n})
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("Health check server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
