// Package geocode expands CAP areas that are described only by geocodes into
// inline polygons, using a local GeoJSON dataset laid out as
// {scheme}/{code}.geojson.
package geocode

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	geojson "github.com/paulmach/go.geojson"
	"github.com/spf13/afero"

	"github.com/couchcryptid/cap-alert-ingest/internal/cache"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

// ErrUnknownCode is returned when the dataset has no feature for a code.
var ErrUnknownCode = errors.New("unknown geocode")

// Dataset resolves a geocode to a GeoJSON feature.
type Dataset interface {
	Lookup(scheme, code string) (*geojson.Feature, error)
}

// FSDataset reads features from {root}/{scheme}/{code}.geojson.
type FSDataset struct {
	fs   afero.Fs
	root string
}

// NewFSDataset creates a dataset rooted at root on fs.
func NewFSDataset(afs afero.Fs, root string) *FSDataset {
	return &FSDataset{fs: afs, root: root}
}

// Lookup loads the feature for scheme/code. Names that would escape the
// dataset root are reported as unknown.
func (d *FSDataset) Lookup(scheme, code string) (*geojson.Feature, error) {
	if !safeName(scheme) || !safeName(code) {
		return nil, ErrUnknownCode
	}
	name := path.Join(d.root, scheme, code+".geojson")

	data, err := afero.ReadFile(d.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrUnknownCode
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	f, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if f.Geometry == nil {
		return nil, fmt.Errorf("decode %s: feature has no geometry", name)
	}
	return f, nil
}

func safeName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}

// CachedDataset wraps a Dataset with an in-memory LRU cache. The dataset is
// static for the life of the process, so misses are cached as well.
type CachedDataset struct {
	inner   Dataset
	entries *cache.LRU[*geojson.Feature]
	metrics *observability.Metrics
}

// NewCachedDataset creates a cached dataset with the given capacity.
func NewCachedDataset(inner Dataset, maxEntries int, metrics *observability.Metrics) *CachedDataset {
	return &CachedDataset{
		inner:   inner,
		entries: cache.NewLRU[*geojson.Feature](maxEntries),
		metrics: metrics,
	}
}

// Lookup returns the cached feature or delegates to the inner dataset.
// Read errors other than ErrUnknownCode are not cached.
func (c *CachedDataset) Lookup(scheme, code string) (*geojson.Feature, error) {
	key := scheme + "\x00" + code
	if f, ok := c.entries.Get(key); ok {
		c.observe("hit")
		if f == nil {
			return nil, ErrUnknownCode
		}
		return f, nil
	}
	c.observe("miss")

	f, err := c.inner.Lookup(scheme, code)
	switch {
	case errors.Is(err, ErrUnknownCode):
		c.entries.Put(key, nil)
	case err == nil:
		c.entries.Put(key, f)
	}
	return f, err
}

func (c *CachedDataset) observe(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(result).Inc()
	}
}
