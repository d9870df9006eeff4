package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
)

type hubCatalogue struct {
	Sources []struct {
		Source hubSource `json:"source"`
	} `json:"sources"`
}

type hubSource struct {
	SourceID   string `json:"sourceId"`
	ByLanguage []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"byLanguage"`
	CapAlertFeed       string `json:"capAlertFeed"`
	CapAlertFeedStatus string `json:"capAlertFeedStatus"`
	AuthorityCountry   string `json:"authorityCountry"`
	AuthorityAbbrev    string `json:"authorityAbbrev"`
}

// ParseAlertHub decodes the alert-hub source list. Every entry is an
// Atom/RSS feed.
func ParseAlertHub(data []byte) ([]Source, error) {
	var hc hubCatalogue
	if err := json.Unmarshal(data, &hc); err != nil {
		return nil, fmt.Errorf("decode alert-hub catalogue: %w", err)
	}
	out := make([]Source, 0, len(hc.Sources))
	for _, e := range hc.Sources {
		h := e.Source
		if h.SourceID == "" || h.CapAlertFeed == "" {
			continue
		}
		s := Source{
			ID:               h.SourceID,
			URL:              h.CapAlertFeed,
			Format:           feed.FormatAtom.String(),
			Status:           h.CapAlertFeedStatus,
			AuthorityCountry: h.AuthorityCountry,
			AuthorityAbbrev:  h.AuthorityAbbrev,
			FeedSource:       FeedSourceAlertHub,
		}
		if len(h.ByLanguage) > 0 {
			s.Code = h.ByLanguage[0].Code
			s.Name = h.ByLanguage[0].Name
		}
		out = append(out, s)
	}
	return out, nil
}

// FetchAlertHub downloads and decodes the alert-hub catalogue.
func FetchAlertHub(ctx context.Context, client *feed.Client, url string) ([]Source, error) {
	body, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch alert-hub catalogue: %w", err)
	}
	return ParseAlertHub(body)
}

// MergeAlertHub combines alert-hub and local sources. A local source with
// Override set marks every alert-hub source of its authority country as
// ignored, and a local source replaces an alert-hub source with the same id.
func MergeAlertHub(local, hub []Source) []Source {
	overridden := make(map[string]bool)
	localIDs := make(map[string]bool, len(local))
	for _, s := range local {
		localIDs[s.ID] = true
		if s.Override && s.AuthorityCountry != "" {
			overridden[s.AuthorityCountry] = true
		}
	}

	out := make([]Source, 0, len(hub)+len(local))
	for _, s := range hub {
		if localIDs[s.ID] {
			continue
		}
		if overridden[s.AuthorityCountry] {
			s.Ignore = true
		}
		out = append(out, s)
	}
	return append(out, local...)
}
