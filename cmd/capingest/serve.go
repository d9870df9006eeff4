package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/cap-alert-ingest/internal/adapter/httpadapter"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion cycles on an interval and serve health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := a.buildService(ctx)
	if err != nil {
		return err
	}

	checks := httpadapter.Checks{"runner": svc.runner, "postgres": svc.store}
	if svc.docs != nil {
		checks["redis"] = svc.docs
	}
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, checks, a.logger)

	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		if err := srv.Run(ctx, a.cfg.ShutdownTimeout); err != nil {
			a.logger.Error("http server error", "error", err)
		}
	}()

	// Start the cycle runner.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svc.runner.Run(ctx); err != nil {
			a.logger.Error("runner error", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	<-httpDone
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("runner did not stop before the shutdown timeout")
	}
	if err := svc.close(); err != nil {
		a.logger.Error("close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
