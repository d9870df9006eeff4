package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
)

// atomAdapter reads Atom or RSS feeds whose entries link to CAP documents.
type atomAdapter struct {
	deps
}

func newAtomAdapter(d deps) Adapter { return &atomAdapter{deps: d} }

// entry is the part of an Atom or RSS item the adapter needs.
type entry struct {
	id      string
	link    string
	expires string
}

func (a *atomAdapter) Fetch(ctx context.Context, req Request) Result {
	resp, err := a.client.GetConditional(ctx, req.URL, req.Validator)
	if err != nil {
		return failed(err)
	}
	if resp.NotModified {
		return notModified()
	}

	entries, err := parseFeed(resp.Body)
	if err != nil {
		return failed(err)
	}

	res := Result{Status: Fetched, Validator: resp.ETag}
	now := cap.Now()
	for _, e := range entries {
		if e.link == "" {
			a.logger.Debug("feed entry without CAP link", "source_id", req.SourceID, "entry", e.id)
			continue
		}
		if e.expires != "" {
			if t, ok := cap.ParseTime(e.expires); ok && !t.After(now) {
				a.logger.Debug("skipping expired feed entry", "source_id", req.SourceID, "url", e.link)
				continue
			} else if !ok {
				a.logger.Info("unparseable feed entry expiry", "source_id", req.SourceID, "expires", e.expires)
			}
		}
		if ctx.Err() != nil {
			res.warn(fmt.Sprintf("fetch aborted: %v", ctx.Err()))
			break
		}

		data, err := fetchDocument(ctx, a.client, a.docs, e.link)
		if err != nil {
			a.logger.Warn("fetch CAP document failed", "source_id", req.SourceID, "url", e.link, "error", err)
			res.warn(fmt.Sprintf("Fetch error: %s", e.link))
			continue
		}
		res.Payloads = append(res.Payloads, Payload{Data: data, SourceURL: e.link})
	}
	return res
}

// parseFeed detects the feed type and extracts the CAP link and expiry hint
// of every entry.
func parseFeed(body []byte) ([]entry, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeAtom:
		f, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse atom feed: %w", err)
		}
		entries := make([]entry, 0, len(f.Entries))
		for _, it := range f.Entries {
			entries = append(entries, entry{
				id:      it.ID,
				link:    atomCAPLink(it.Links),
				expires: extensionValue(it.Extensions, "expires"),
			})
		}
		return entries, nil
	case gofeed.FeedTypeRSS:
		f, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse rss feed: %w", err)
		}
		entries := make([]entry, 0, len(f.Items))
		for _, it := range f.Items {
			id := it.Link
			if it.GUID != nil {
				id = it.GUID.Value
			}
			entries = append(entries, entry{
				id:      id,
				link:    rssCAPLink(it),
				expires: extensionValue(it.Extensions, "expires"),
			})
		}
		return entries, nil
	default:
		return nil, errors.New("parse feed: neither Atom nor RSS")
	}
}

// isCAPType reports whether a link media type denotes a CAP document.
func isCAPType(t string) bool {
	t = strings.ToLower(t)
	return strings.Contains(t, "cap+xml") || strings.Contains(t, "common-alerting-protocol")
}

// isPlainType reports whether a lone link is typed loosely enough to be used
// as the CAP document fallback.
func isPlainType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "application/xml", "text/xml":
		return true
	}
	return false
}

func atomCAPLink(links []*atom.Link) string {
	for _, l := range links {
		if l != nil && isCAPType(l.Type) {
			return l.Href
		}
	}
	if len(links) == 1 && links[0] != nil && isPlainType(links[0].Type) {
		return links[0].Href
	}
	return ""
}

func rssCAPLink(it *rss.Item) string {
	if it.Enclosure != nil && isCAPType(it.Enclosure.Type) {
		return it.Enclosure.URL
	}
	return strings.TrimSpace(it.Link)
}

// extensionValue returns the first extension element with the given name in
// any namespace, e.g. cap:expires.
func extensionValue(exts ext.Extensions, name string) string {
	for _, byName := range exts {
		for _, e := range byName[name] {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
		}
	}
	return ""
}
