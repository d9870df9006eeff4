package ingest_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
	"github.com/couchcryptid/cap-alert-ingest/internal/ingest"
	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

// --- mocks ---

type mockAdapters struct {
	result    feed.Result
	err       error
	panicWith any
	requests  []feed.Request
}

func (m *mockAdapters) Adapter(_ feed.Format, _ feed.Options) (feed.Adapter, error) {
	if m.err != nil {
		return nil, m.err
	}
	return feed.AdapterFunc(func(_ context.Context, req feed.Request) feed.Result {
		m.requests = append(m.requests, req)
		if m.panicWith != nil {
			panic(m.panicWith)
		}
		return m.result
	}), nil
}

type mockStore struct {
	mu         sync.Mutex
	records    map[string]ingest.AlertRecord
	known      map[string]time.Time
	knownErr   error
	persistErr map[string]error
	panicOn    string
	pruned     [][]string
	persisted  []string
}

func newMockStore() *mockStore {
	return &mockStore{
		records:    make(map[string]ingest.AlertRecord),
		known:      make(map[string]time.Time),
		persistErr: make(map[string]error),
	}
}

func (m *mockStore) KnownAlerts(_ context.Context, _ string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.knownErr != nil {
		return nil, m.knownErr
	}
	return maps.Clone(m.known), nil
}

func (m *mockStore) PersistAndNotify(_ context.Context, rec ingest.AlertRecord) (ingest.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.AlertID == m.panicOn {
		panic("boom")
	}
	m.persisted = append(m.persisted, rec.AlertID)
	if err := m.persistErr[rec.AlertID]; err != nil {
		return 0, fmt.Errorf("insert alert: %w: %w", ingest.ErrStorage, err)
	}
	_, exists := m.known[rec.AlertID]
	m.records[rec.AlertID] = rec
	m.known[rec.AlertID] = rec.IssueTime
	if exists {
		return ingest.Updated, nil
	}
	return ingest.Created, nil
}

func (m *mockStore) Prune(_ context.Context, _ string, live []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, live)
	n := 0
	for id := range m.known {
		if !slices.Contains(live, id) {
			delete(m.known, id)
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

type mockStates struct {
	mu      sync.Mutex
	states  map[string]source.State
	loadErr error
	saved   []source.State
}

func newMockStates() *mockStates {
	return &mockStates{states: make(map[string]source.State)}
}

func (m *mockStates) LoadState(_ context.Context, id string) (source.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return source.State{}, m.loadErr
	}
	return m.states[id], nil
}

func (m *mockStates) SaveState(_ context.Context, st source.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.SourceID] = st
	m.saved = append(m.saved, st)
	return nil
}

type mockArchiver struct {
	err  error
	keys []string
}

func (m *mockArchiver) Archive(_ context.Context, sourceID, alertID string, _ []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	key := "alerts/" + sourceID + "/" + alertID + ".xml"
	m.keys = append(m.keys, key)
	return key, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- CAP fixtures ---

type alertOpts struct {
	scope    string
	expires  string
	polygon  string
	circle   string
	geocode  [2]string
	event    string
	language string
}

func alertXML(id, sent string, o alertOpts) []byte {
	if o.scope == "" {
		o.scope = "Public"
	}
	if o.event == "" {
		o.event = "Flood"
	}
	if o.language == "" {
		o.language = "en-US"
	}
	area := "<areaDesc>Somewhere</areaDesc>"
	if o.polygon != "" {
		area += "<polygon>" + o.polygon + "</polygon>"
	}
	if o.circle != "" {
		area += "<circle>" + o.circle + "</circle>"
	}
	if o.geocode[0] != "" {
		area += "<geocode><valueName>" + o.geocode[0] + "</valueName><value>" + o.geocode[1] + "</value></geocode>"
	}
	expires := ""
	if o.expires != "" {
		expires = "<expires>" + o.expires + "</expires>"
	}
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier>` + id + `</identifier>
  <sender>test@example.org</sender>
  <sent>` + sent + `</sent>
  <status>Actual</status>
  <msgType>Alert</msgType>
  <scope>` + o.scope + `</scope>
  <info>
    <language>` + o.language + `</language>
    <category>Met</category>
    <event>` + o.event + `</event>
    <urgency>Immediate</urgency>
    <severity>Severe</severity>
    <certainty>Observed</certainty>
    ` + expires + `
    <headline>Test</headline>
    <area>` + area + `</area>
  </info>
</alert>`)
}

const bonnPolygon = "50.70,7.10 50.70,7.20 50.80,7.20 50.80,7.10 50.70,7.10"
