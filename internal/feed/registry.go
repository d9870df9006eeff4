package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"

	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

// Options carries the per-source settings some dialects need.
type Options struct {
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string
	// APIBase overrides the base URL derived from the feed URL (de-nina).
	APIBase string
	// DatasetURL overrides the dataset metadata URL (lu-alert).
	DatasetURL string
}

// deps are the shared collaborators handed to every adapter.
type deps struct {
	client *Client
	docs   DocumentCache
	logger *slog.Logger
	opts   Options
}

type constructor func(d deps) Adapter

// constructors maps every Format to its adapter.
var constructors = map[Format]constructor{
	FormatAtom:       newAtomAdapter,
	FormatMoWaS:      newMoWaSAdapter,
	FormatNINA:       newNINAAdapter,
	FormatEDXL:       newEDXLAdapter,
	FormatDWDZip:     newDWDZipAdapter,
	FormatAlertSwiss: newAlertSwissAdapter,
	FormatLUAlert:    newLUAlertAdapter,
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Client ClientOptions
	// Rate limits secondary requests per source, in requests per second.
	Rate    float64
	Docs    DocumentCache
	FS      afero.Fs
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Registry builds adapters bound to the shared HTTP client, document cache,
// logger and metrics.
type Registry struct {
	cfg    RegistryConfig
	client *Client

	mu     sync.Mutex
	pinned map[string]*Client
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Docs == nil {
		cfg.Docs = NopCache{}
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	return &Registry{
		cfg:    cfg,
		client: NewClient(cfg.Client),
		pinned: make(map[string]*Client),
	}
}

// Adapter returns the adapter for f configured with opts.
func (r *Registry) Adapter(f Format, opts Options) (Adapter, error) {
	ctor, ok := constructors[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
	client, err := r.clientFor(opts.CAFile)
	if err != nil {
		return nil, err
	}
	a := ctor(deps{
		client: client.WithRateLimit(r.cfg.Rate),
		docs:   r.cfg.Docs,
		logger: r.cfg.Logger,
		opts:   opts,
	})
	return instrumented{next: a, format: f, metrics: r.cfg.Metrics}, nil
}

// clientFor returns the shared client, or one trusting caFile in addition to
// the system roots.
func (r *Registry) clientFor(caFile string) (*Client, error) {
	if caFile == "" {
		return r.client, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.pinned[caFile]; ok {
		return c, nil
	}
	pem, err := afero.ReadFile(r.cfg.FS, caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca_file: %w", err)
	}
	pool, err := LoadCertPool(pem)
	if err != nil {
		return nil, fmt.Errorf("load ca_file %s: %w", caFile, err)
	}
	opts := r.cfg.Client
	opts.RootCAs = pool
	c := NewClient(opts)
	r.pinned[caFile] = c
	return c, nil
}

type instrumented struct {
	next    Adapter
	format  Format
	metrics *observability.Metrics
}

func (a instrumented) Fetch(ctx context.Context, req Request) Result {
	res := a.next.Fetch(ctx, req)
	if a.metrics != nil {
		a.metrics.FetchRequests.WithLabelValues(a.format.String(), res.Status.String()).Inc()
	}
	return res
}
