package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

func newRunCommand(out io.Writer, a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [source-id...]",
		Short: "Run one ingestion round over all active sources, or the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := a.buildService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.close() }()

			sources, err := a.catalogue().Sources(ctx)
			if err != nil {
				return err
			}
			selected := source.Filter(sources, args...)
			if len(args) > 0 && len(selected) != len(args) {
				return fmt.Errorf("%d of %d requested sources are unknown or inactive", len(args)-len(selected), len(args))
			}

			failed := 0
			for _, rep := range svc.runner.RunOnce(ctx, selected) {
				if !rep.OK {
					failed++
				}
				fmt.Fprintf(out, "%-28s %-12s %s %s\n", rep.SourceID, rep.Outcome(), formatCounts(rep), rep.Duration.Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(selected))
			}
			return nil
		},
	}
}
