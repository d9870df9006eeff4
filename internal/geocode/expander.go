package geocode

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

// CPEASScheme is the hierarchical Canadian geocode scheme that supports
// parent code fallback.
const CPEASScheme = "CPEAS Geographic Code"

// UnknownCodeWarning is the warning prefix recorded for unresolved geocodes.
const UnknownCodeWarning = "Unknown geometry code"

// Expander injects dataset polygons into geocode-only areas.
type Expander struct {
	dataset Dataset
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExpander creates an Expander backed by dataset.
func NewExpander(dataset Dataset, logger *slog.Logger, metrics *observability.Metrics) *Expander {
	return &Expander{dataset: dataset, logger: logger, metrics: metrics}
}

// Tracker collects geocode failures for one source cycle. Only the first
// failure is logged at error level.
type Tracker struct {
	sourceID string
	failures int
	warnings []string
}

// NewTracker creates a tracker for sourceID.
func NewTracker(sourceID string) *Tracker {
	return &Tracker{sourceID: sourceID}
}

// Warnings returns the warnings recorded so far.
func (t *Tracker) Warnings() []string { return t.warnings }

// Failures returns the number of codes that could not be resolved.
func (t *Tracker) Failures() int { return t.failures }

// Expand adds polygons to every area of msg that has neither a polygon nor a
// circle, and reports whether the document changed.
func (e *Expander) Expand(msg *cap.Message, tr *Tracker) bool {
	expanded := false
	for _, area := range msg.Areas() {
		if area.HasInlineGeometry() {
			continue
		}
		for _, gc := range area.Geocodes() {
			if gc.Name == "" || gc.Value == "" {
				continue
			}
			f, err := e.lookup(gc.Name, gc.Value)
			if err != nil {
				e.fail(tr, gc, err)
				continue
			}
			polygons, ok := FeaturePolygons(f)
			if !ok {
				e.logger.Warn("unhandled geocode geometry type",
					"source_id", tr.sourceID, "scheme", gc.Name, "code", gc.Value, "type", f.Geometry.Type)
				continue
			}
			if len(polygons) == 0 {
				e.logger.Warn("discarding too small geocode polygon",
					"source_id", tr.sourceID, "scheme", gc.Name, "code", gc.Value)
			}
			for _, p := range polygons {
				area.AddPolygon(p)
				expanded = true
			}
		}
	}
	if expanded {
		msg.Modified = true
	}
	return expanded
}

func (e *Expander) lookup(scheme, code string) (*geojson.Feature, error) {
	f, err := e.dataset.Lookup(scheme, code)
	if err == nil {
		e.observe("hit")
		return f, nil
	}
	if !errors.Is(err, ErrUnknownCode) || scheme != CPEASScheme {
		e.observe(outcome(err))
		return nil, err
	}
	for _, parent := range ParentCodes(code) {
		f, perr := e.dataset.Lookup(scheme, parent)
		if perr == nil {
			e.observe("fallback")
			return f, nil
		}
		if !errors.Is(perr, ErrUnknownCode) {
			e.observe("miss")
			return nil, perr
		}
	}
	e.observe("unknown")
	return nil, err
}

func (e *Expander) fail(tr *Tracker, gc cap.Geocode, err error) {
	tr.failures++
	if tr.failures == 1 {
		tr.warnings = append(tr.warnings, fmt.Sprintf("%s: %s: %s", UnknownCodeWarning, gc.Name, gc.Value))
		e.logger.Error("cannot expand geocode (further failures at debug level)",
			"source_id", tr.sourceID, "scheme", gc.Name, "code", gc.Value, "error", err)
		return
	}
	e.logger.Debug("cannot expand geocode",
		"source_id", tr.sourceID, "scheme", gc.Name, "code", gc.Value, "error", err)
}

func (e *Expander) observe(result string) {
	if e.metrics != nil {
		e.metrics.GeocodeLookups.WithLabelValues(result).Inc()
	}
}

func outcome(err error) string {
	if errors.Is(err, ErrUnknownCode) {
		return "unknown"
	}
	return "miss"
}

// ParentCodes returns the CPEAS ancestors of code, nearest first. Each parent
// keeps the leading 6, 4, then 2 digits and is zero-padded to 12 digits.
func ParentCodes(code string) []string {
	var parents []string
	for i := range 3 {
		keep := 6 - 2*i
		if len(code) < keep {
			continue
		}
		parent := code[:keep] + strings.Repeat("0", 12-keep)
		if parent == code || slices.Contains(parents, parent) {
			continue
		}
		parents = append(parents, parent)
	}
	return parents
}
