package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
)

// Loader builds the source list from the local YAML catalogue and, when
// HubURL is set, the alert-hub catalogue.
type Loader struct {
	FS     afero.Fs
	Path   string
	HubURL string
	Client *feed.Client
	Logger *slog.Logger
}

// Sources loads, merges and validates the catalogue.
func (l *Loader) Sources(ctx context.Context) ([]Source, error) {
	local, err := LoadCatalogue(l.FS, l.Path)
	if err != nil {
		return nil, err
	}
	if l.HubURL == "" {
		return local, nil
	}

	hub, err := FetchAlertHub(ctx, l.Client, l.HubURL)
	if err != nil {
		return nil, err
	}
	merged := MergeAlertHub(local, hub)
	if err := Validate(merged); err != nil {
		return nil, fmt.Errorf("merged catalogue: %w", err)
	}
	if l.Logger != nil {
		l.Logger.Debug("catalogue loaded", "local", len(local), "alert_hub", len(hub), "total", len(merged))
	}
	return merged, nil
}
