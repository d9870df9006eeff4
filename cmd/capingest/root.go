package main

import (
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/cap-alert-ingest/internal/config"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

// app carries what every subcommand needs after configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	fs      afero.Fs
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{fs: afero.NewOsFs()}
	cmd := &cobra.Command{
		Use:           "capingest",
		Short:         "CAP alert ingestion service",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			a.metrics = observability.NewMetrics()
			return nil
		},
	}
	cmd.SetOut(out)

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newRunCommand(out, a))
	cmd.AddCommand(newSourcesCommand(out, a))
	cmd.AddCommand(newInspectCommand(out, a))
	return cmd
}
