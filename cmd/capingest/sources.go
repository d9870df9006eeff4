package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

func newSourcesCommand(out io.Writer, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect the source catalogue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the catalogue and print counts per format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := a.catalogue().Sources(cmd.Context())
			if err != nil {
				return err
			}

			perFormat := make(map[string]int)
			active := 0
			for _, s := range sources {
				perFormat[s.Format]++
				if s.Active() {
					active++
				}
			}
			formats := make([]string, 0, len(perFormat))
			for f := range perFormat {
				formats = append(formats, f)
			}
			sort.Strings(formats)

			fmt.Fprintf(out, "%d sources, %d active\n", len(sources), active)
			for _, f := range formats {
				fmt.Fprintf(out, "  %-12s %d\n", f, perFormat[f])
			}
			return nil
		},
	})
	return cmd
}
