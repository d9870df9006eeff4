package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checks names the readiness checks of the service. /readyz answers 200 only
// when every check passes.
type Checks map[string]sharedobs.ReadinessChecker

// CheckReadiness runs the checks in name order and joins the failures. Nil
// checks are skipped.
func (c Checks) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(c)) {
		check := c[name]
		if check == nil {
			continue
		}
		if err := check.CheckReadiness(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Handler routes /healthz, /readyz and /metrics.
func Handler(checks Checks) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(checks))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Server serves Handler on addr.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(addr string, checks Checks, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Handler(checks),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then drains open connections for at most
// grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.httpServer.Addr)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
