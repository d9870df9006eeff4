package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
)

const atomFeedTmpl = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:cap="urn:oasis:names:tc:emergency:cap:1.2">
  <id>urn:feed</id>
  <title>Alerts</title>
  <updated>2026-10-19T00:00:00Z</updated>
  <entry>
    <id>a1</id>
    <title>Flood warning</title>
    <updated>2026-10-19T00:00:00Z</updated>
    <link rel="alternate" type="text/html" href="%[1]s/html/a1"/>
    <link rel="related" type="application/cap+xml" href="%[1]s/cap/a1.xml"/>
    <cap:expires>2026-10-20T00:00:00Z</cap:expires>
  </entry>
  <entry>
    <id>a2</id>
    <title>Old warning</title>
    <updated>2026-10-17T00:00:00Z</updated>
    <link type="application/cap+xml" href="%[1]s/cap/a2.xml"/>
    <cap:expires>2026-10-18T00:00:00Z</cap:expires>
  </entry>
  <entry>
    <id>a3</id>
    <title>Untyped link</title>
    <updated>2026-10-19T00:00:00Z</updated>
    <link href="%[1]s/cap/a3.xml"/>
  </entry>
  <entry>
    <id>a4</id>
    <title>Missing document</title>
    <updated>2026-10-19T00:00:00Z</updated>
    <link type="application/cap+xml" href="%[1]s/cap/missing.xml"/>
  </entry>
  <entry>
    <id>a5</id>
    <title>HTML only</title>
    <updated>2026-10-19T00:00:00Z</updated>
    <link type="text/html" href="%[1]s/html/a5"/>
    <link type="text/html" href="%[1]s/html/a5b"/>
  </entry>
</feed>`

const rssFeedTmpl = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Alerts</title>
    <link>%[1]s</link>
    <description>alerts</description>
    <item>
      <guid>r1</guid>
      <title>Enclosure</title>
      <link>%[1]s/html/r1</link>
      <enclosure url="%[1]s/cap/r1.xml" type="application/cap+xml" length="0"/>
    </item>
    <item>
      <guid>r2</guid>
      <title>Plain link</title>
      <link>%[1]s/cap/r2.xml</link>
    </item>
  </channel>
</rss>`

func capDoc(id string) string {
	return fmt.Sprintf(`<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2"><identifier>%s</identifier></alert>`, id)
}

func newFeedServer(t *testing.T, tmpl string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"feed-v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"feed-v1"`)
		_, _ = fmt.Fprintf(w, tmpl, srv.URL)
	})
	for _, id := range []string{"a1", "a2", "a3", "r1", "r2"} {
		mux.HandleFunc("/cap/"+id+".xml", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(capDoc(id)))
		})
	}
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAtomAdapter_Fetch(t *testing.T) {
	cap.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
	defer cap.SetClock(nil)

	srv := newFeedServer(t, atomFeedTmpl)
	a := newAtomAdapter(testDeps())

	res := a.Fetch(context.Background(), Request{SourceID: "atom", URL: srv.URL + "/feed"})
	require.Equal(t, Fetched, res.Status)
	assert.Equal(t, `"feed-v1"`, res.Validator)

	var urls []string
	for _, p := range res.Payloads {
		urls = append(urls, p.SourceURL)
	}
	assert.Equal(t, []string{srv.URL + "/cap/a1.xml", srv.URL + "/cap/a3.xml"}, urls)
	assert.Equal(t, []byte(capDoc("a1")), res.Payloads[0].Data)
	assert.Equal(t, []string{"Fetch error: " + srv.URL + "/cap/missing.xml"}, res.Warnings)
}

func TestAtomAdapter_NotModified(t *testing.T) {
	srv := newFeedServer(t, atomFeedTmpl)
	a := newAtomAdapter(testDeps())

	res := a.Fetch(context.Background(), Request{URL: srv.URL + "/feed", Validator: `"feed-v1"`})
	assert.Equal(t, NotModified, res.Status)
	assert.Empty(t, res.Payloads)
}

func TestAtomAdapter_RSS(t *testing.T) {
	srv := newFeedServer(t, rssFeedTmpl)
	a := newAtomAdapter(testDeps())

	res := a.Fetch(context.Background(), Request{URL: srv.URL + "/feed"})
	require.Equal(t, Fetched, res.Status)
	require.Len(t, res.Payloads, 2)
	assert.Equal(t, srv.URL+"/cap/r1.xml", res.Payloads[0].SourceURL)
	assert.Equal(t, srv.URL+"/cap/r2.xml", res.Payloads[1].SourceURL)
	assert.Empty(t, res.Warnings)
}

func TestAtomAdapter_NotAFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not": "xml"}`))
	}))
	defer srv.Close()

	res := newAtomAdapter(testDeps()).Fetch(context.Background(), Request{URL: srv.URL})
	assert.Equal(t, Failed, res.Status)
	require.Error(t, res.Err)
}

func TestIsCAPType(t *testing.T) {
	assert.True(t, isCAPType("application/cap+xml"))
	assert.True(t, isCAPType("Application/Common-Alerting-Protocol+xml"))
	assert.False(t, isCAPType("text/html"))
	assert.False(t, isCAPType(""))
}
