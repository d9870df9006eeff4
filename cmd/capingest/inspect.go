package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
	"github.com/couchcryptid/cap-alert-ingest/internal/geocode"
	"github.com/couchcryptid/cap-alert-ingest/internal/geometry"
)

func newInspectCommand(out io.Writer, a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.xml>",
		Short: "Parse a CAP file, expand geocodes and print its resolved geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := afero.ReadFile(a.fs, args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return a.inspect(out, data)
		},
	}
}

func (a *app) inspect(out io.Writer, data []byte) error {
	msg, err := cap.Parse(data)
	if err != nil {
		return err
	}
	sent, err := msg.Sent()
	if err != nil {
		return err
	}

	tr := geocode.NewTracker("inspect")
	a.expander().Expand(msg, tr)
	area, err := geometry.NewResolver(a.cfg.MaxVertices).Resolve(msg.Polygons(), msg.Circles())

	fmt.Fprintf(out, "identifier: %s\n", msg.Identifier())
	fmt.Fprintf(out, "sent:       %s\n", sent.UTC().Format(time.RFC3339))
	if exp, ok := msg.ExpireTime(); ok {
		fmt.Fprintf(out, "expires:    %s (expired: %t)\n", exp.UTC().Format(time.RFC3339), msg.IsExpired())
	}
	fmt.Fprintf(out, "modified:   %t\n", msg.Modified)
	for _, w := range tr.Warnings() {
		fmt.Fprintf(out, "warning:    %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(out, "area:       %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "area:       %s\n", geometry.WKT(area))
	return nil
}
