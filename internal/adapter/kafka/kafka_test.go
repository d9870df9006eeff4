package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cap-alert-ingest/internal/ingest"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

type mockMessageWriter struct {
	msgs []kafkago.Message
	err  error
}

func (m *mockMessageWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockMessageWriter) Close() error { return nil }

var published = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testRecord() ingest.AlertRecord {
	expires := time.Date(2026, 10, 20, 0, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	area := orb.MultiPolygon{{{
		{7.0, 50.6}, {7.2, 50.6}, {7.2, 50.8}, {7.0, 50.8}, {7.0, 50.6},
	}}}
	return ingest.AlertRecord{
		SourceID:   "de-dwd",
		AlertID:    "2.49.0.0.276.0.DWD.1",
		IssueTime:  time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC),
		ExpireTime: &expires,
		Event:      "STURMBÖEN",
		Severity:   "Moderate",
		Urgency:    "Immediate",
		Area:       area,
	}
}

func testWriter(mw *mockMessageWriter) (*Writer, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return &Writer{
		writer:  mw,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: m,
		now:     func() time.Time { return published },
	}, m
}

func TestSerializeToMessage(t *testing.T) {
	n := newNotification(testRecord(), ingest.Created)

	msg, err := serializeToMessage(n, published)
	require.NoError(t, err)

	assert.Equal(t, []byte("de-dwd/2.49.0.0.276.0.DWD.1"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(EventCreated), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-10-19T12:00:00Z"), msg.Headers[1].Value)

	var got AlertNotification
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Update)
	assert.Equal(t, "STURMBÖEN", got.Event)
	assert.Equal(t, [4]float64{7.0, 50.6, 7.2, 50.8}, got.Bounds)
	require.NotNil(t, got.ExpireTime)
	assert.Equal(t, time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC), *got.ExpireTime)
}

func TestNewNotification_NoExpiryNoArea(t *testing.T) {
	rec := testRecord()
	rec.ExpireTime = nil
	rec.Area = nil

	n := newNotification(rec, ingest.Updated)
	assert.True(t, n.Update)
	assert.Nil(t, n.ExpireTime)
	assert.Equal(t, [4]float64{}, n.Bounds)

	msg, err := serializeToMessage(n, published)
	require.NoError(t, err)
	assert.Equal(t, []byte(EventUpdated), msg.Headers[0].Value)
	assert.NotContains(t, string(msg.Value), "expire_time")
}

func TestWriter_Notify(t *testing.T) {
	mw := &mockMessageWriter{}
	w, m := testWriter(mw)

	require.NoError(t, w.Notify(context.Background(), testRecord(), ingest.Updated))

	require.Len(t, mw.msgs, 1)
	assert.Equal(t, []byte(EventUpdated), mw.msgs[0].Headers[0].Value)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NotificationsPublished), 0)
}

func TestWriter_NotifyError(t *testing.T) {
	mw := &mockMessageWriter{err: errors.New("broker down")}
	w, m := testWriter(mw)

	err := w.Notify(context.Background(), testRecord(), ingest.Created)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "de-dwd/2.49.0.0.276.0.DWD.1")
	assert.InDelta(t, 0, testutil.ToFloat64(m.NotificationsPublished), 0)
}
