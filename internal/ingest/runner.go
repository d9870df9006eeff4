package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

// CycleRunner runs one source cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, src source.Source) CycleReport
}

// Catalogue provides the current source list.
type Catalogue interface {
	Sources(ctx context.Context) ([]source.Source, error)
}

// RunnerConfig controls scheduling of source cycles.
type RunnerConfig struct {
	Workers      int
	CycleTimeout time.Duration
	Interval     time.Duration
}

// Runner fans source cycles out over a bounded worker pool and repeats them
// on a fixed interval.
type Runner struct {
	cycles    CycleRunner
	catalogue Catalogue
	cfg       RunnerConfig
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(cycles CycleRunner, catalogue Catalogue, cfg RunnerConfig, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		cycles:    cycles,
		catalogue: catalogue,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a full round over all sources completed,
// or an error describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no ingestion round has completed yet")
	}
	return nil
}

// RunOnce runs one cycle per source with at most Workers in flight. Each
// cycle gets its own CycleTimeout. Reports are returned in source order for
// every source that was started before ctx was cancelled.
func (r *Runner) RunOnce(ctx context.Context, sources []source.Source) []CycleReport {
	reports := make([]CycleReport, len(sources))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)

	started := 0
	for i, src := range sources {
		if ctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			cctx, cancel := r.cycleContext(ctx)
			defer cancel()
			reports[i] = r.cycles.RunCycle(cctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return reports[:started]
}

func (r *Runner) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CycleTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.CycleTimeout)
}

// Run executes a round every Interval until the context is cancelled. The
// catalogue is reloaded before each round; if a reload fails the previous
// list is used.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started", "workers", r.cfg.Workers, "interval", r.cfg.Interval)
	r.metrics.RunnerRunning.Set(1)
	defer r.metrics.RunnerRunning.Set(0)

	sources, ok := r.loadCatalogue(ctx)
	if !ok {
		r.logger.Info("runner stopping", "reason", ctx.Err())
		return nil
	}

	ticker := clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.round(ctx, sources)

		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}

		fresh, err := r.catalogue.Sources(ctx)
		if err != nil {
			r.logger.Warn("reload catalogue failed, keeping previous sources", "error", err)
			continue
		}
		sources = fresh
	}
}

// loadCatalogue retries the initial catalogue load with exponential
// backoff. Returns false if the context was cancelled first.
func (r *Runner) loadCatalogue(ctx context.Context) ([]source.Source, bool) {
	// Start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		sources, err := r.catalogue.Sources(ctx)
		if err == nil {
			return sources, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		r.logger.Error("load catalogue failed", "error", err, "retry_in", backoff)
		if !sleepWithContext(ctx, backoff) {
			return nil, false
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (r *Runner) round(ctx context.Context, sources []source.Source) {
	active := source.Filter(sources)
	start := clock.Now()
	reports := r.RunOnce(ctx, active)

	failed := 0
	for _, rep := range reports {
		if !rep.OK {
			failed++
		}
	}
	r.logger.Info("ingestion round finished",
		"sources", len(reports),
		"failed", failed,
		"duration", clock.Since(start),
	)
	if ctx.Err() == nil {
		r.ready.Store(true)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
