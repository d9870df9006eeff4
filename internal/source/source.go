// Package source holds the feed source catalogue and the per-source state
// the orchestrator persists between cycles.
package source

import (
	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
)

// StatusOperating is the only catalogue status that is scheduled.
const StatusOperating = "operating"

// Feed source origins.
const (
	FeedSourceLocal    = "local"
	FeedSourceAlertHub = "alert-hub"
)

// Source is one upstream alert feed.
type Source struct {
	ID               string `yaml:"id"`
	Code             string `yaml:"code"`
	Name             string `yaml:"name"`
	URL              string `yaml:"url"`
	Format           string `yaml:"format"`
	Status           string `yaml:"status"`
	AuthorityCountry string `yaml:"authority_country"`
	AuthorityAbbrev  string `yaml:"authority_abbrev"`
	FeedSource       string `yaml:"feed_source"`
	Ignore           bool   `yaml:"ignore"`
	// Override ignores every alert-hub source of the same authority country.
	Override bool `yaml:"override"`

	CAFile     string `yaml:"ca_file"`
	APIBase    string `yaml:"api_base"`
	DatasetURL string `yaml:"dataset_url"`
}

// Active reports whether the source should be fetched.
func (s Source) Active() bool {
	return !s.Ignore && s.Status == StatusOperating
}

// FeedFormat resolves the catalogue format name.
func (s Source) FeedFormat() (feed.Format, error) {
	return feed.ParseFormat(s.Format)
}

// FeedOptions returns the dialect options carried by the source.
func (s Source) FeedOptions() feed.Options {
	return feed.Options{CAFile: s.CAFile, APIBase: s.APIBase, DatasetURL: s.DatasetURL}
}

// Filter returns the active sources, optionally restricted to ids.
func Filter(sources []Source, ids ...string) []Source {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Source
	for _, s := range sources {
		if !s.Active() {
			continue
		}
		if len(want) > 0 && !want[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out
}
