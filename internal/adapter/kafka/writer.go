package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/cap-alert-ingest/internal/config"
	"github.com/couchcryptid/cap-alert-ingest/internal/ingest"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

// Event types carried in the event_type header.
const (
	EventCreated = "alert.created"
	EventUpdated = "alert.updated"
)

// AlertNotification is the JSON payload published for every created or
// updated alert.
type AlertNotification struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	AlertID    string     `json:"alert_id"`
	Update     bool       `json:"update"`
	IssueTime  time.Time  `json:"issue_time"`
	ExpireTime *time.Time `json:"expire_time,omitempty"`
	Event      string     `json:"event"`
	Severity   string     `json:"severity,omitempty"`
	Urgency    string     `json:"urgency,omitempty"`
	// Bounds is [minLon, minLat, maxLon, maxLat].
	Bounds     [4]float64 `json:"bounds"`
	ArchiveKey string     `json:"archive_key,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes alert notifications to a Kafka topic.
// It implements ingest.Notifier.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewWriter creates a Kafka producer for the configured notification topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaNotifyTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics, now: time.Now}
}

// Notify publishes one notification. Messages of the same alert share a key
// and therefore a partition.
func (w *Writer) Notify(ctx context.Context, rec ingest.AlertRecord, outcome ingest.Outcome) error {
	msg, err := serializeToMessage(newNotification(rec, outcome), w.now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", msg.Key, err)
	}
	w.metrics.NotificationsPublished.Inc()
	w.logger.Debug("notification published", "source_id", rec.SourceID, "alert_id", rec.AlertID, "outcome", outcome)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func newNotification(rec ingest.AlertRecord, outcome ingest.Outcome) AlertNotification {
	n := AlertNotification{
		ID:         uuid.NewString(),
		SourceID:   rec.SourceID,
		AlertID:    rec.AlertID,
		Update:     outcome == ingest.Updated,
		IssueTime:  rec.IssueTime.UTC(),
		Event:      rec.Event,
		Severity:   rec.Severity,
		Urgency:    rec.Urgency,
		ArchiveKey: rec.ArchiveKey,
	}
	if rec.ExpireTime != nil {
		t := rec.ExpireTime.UTC()
		n.ExpireTime = &t
	}
	if len(rec.Area) > 0 {
		b := rec.Area.Bound()
		n.Bounds = [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	return n
}

// serializeToMessage marshals a notification into a Kafka message.
func serializeToMessage(n AlertNotification, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	eventType := EventCreated
	if n.Update {
		eventType = EventUpdated
	}
	return kafkago.Message{
		Key:   []byte(n.SourceID + "/" + n.AlertID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
