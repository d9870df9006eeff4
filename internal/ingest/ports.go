package ingest

import (
	"context"
	"time"

	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

// AlertStore persists alert records. Implementations must be safe for
// concurrent use by different sources.
type AlertStore interface {
	// KnownAlerts returns the sent time of every stored alert of the source.
	KnownAlerts(ctx context.Context, sourceID string) (map[string]time.Time, error)
	// PersistAndNotify creates or updates the record and triggers the
	// subscription notification. Errors wrap ErrStorage.
	PersistAndNotify(ctx context.Context, rec AlertRecord) (Outcome, error)
	// Prune deletes every alert of the source whose id is not in live.
	Prune(ctx context.Context, sourceID string, live []string) (int, error)
}

// StateStore loads and saves the per-source state.
type StateStore interface {
	LoadState(ctx context.Context, sourceID string) (source.State, error)
	SaveState(ctx context.Context, st source.State) error
}

// Archiver keeps a copy of each accepted CAP document and returns its key.
type Archiver interface {
	Archive(ctx context.Context, sourceID, alertID string, doc []byte) (string, error)
}

// Notifier publishes a created or updated alert to subscribers.
type Notifier interface {
	Notify(ctx context.Context, rec AlertRecord, outcome Outcome) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, AlertRecord, Outcome) error { return nil }

// AdapterProvider resolves a source format to its feed adapter.
type AdapterProvider interface {
	Adapter(f feed.Format, opts feed.Options) (feed.Adapter, error)
}
