package ingest

import (
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alert-ingest/internal/geocode"
	"github.com/couchcryptid/cap-alert-ingest/internal/geometry"
)

// Cycle accumulates the results of one source cycle. A new Cycle is created
// for every RunCycle call.
type Cycle struct {
	SourceID string

	live      map[string]struct{}
	knownSent map[string]time.Time
	warnings  []string
	watermark time.Time
	counts    Counts

	missingGeo    bool
	noGeoLogged   bool
	storageFailed bool
}

// Counts tallies alert outcomes in one cycle.
type Counts struct {
	Created   int
	Updated   int
	Unchanged int
	Rejected  int
}

func newCycle(sourceID string, watermark time.Time) *Cycle {
	return &Cycle{
		SourceID:  sourceID,
		live:      make(map[string]struct{}),
		watermark: watermark,
	}
}

func (c *Cycle) markLive(alertID string) {
	c.live[alertID] = struct{}{}
}

// remember records a stored alert so a repeat of the same (id, sent) later in
// the cycle is treated as unchanged.
func (c *Cycle) remember(alertID string, sent time.Time) {
	if c.knownSent == nil {
		c.knownSent = make(map[string]time.Time)
	}
	c.knownSent[alertID] = sent
}

// Live returns the ids seen this cycle in sorted order.
func (c *Cycle) Live() []string {
	ids := make([]string, 0, len(c.live))
	for id := range c.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Cycle) warn(msg ...string) {
	c.warnings = append(c.warnings, msg...)
}

// Warnings returns the collected warnings in order.
func (c *Cycle) Warnings() []string { return c.warnings }

// advance moves the watermark if sent is strictly newer.
func (c *Cycle) advance(sent time.Time) bool {
	if sent.After(c.watermark) {
		c.watermark = sent
		return true
	}
	return false
}

// Watermark returns the newest sent time accepted so far.
func (c *Cycle) Watermark() time.Time { return c.watermark }

// MissingGeo reports whether any alert lacked usable geometry or any geocode
// could not be expanded.
func (c *Cycle) MissingGeo() bool {
	if c.missingGeo {
		return true
	}
	for _, w := range c.warnings {
		if strings.Contains(w, geometry.ErrNoGeometry.Error()) || strings.Contains(w, geocode.UnknownCodeWarning) {
			return true
		}
	}
	return false
}
