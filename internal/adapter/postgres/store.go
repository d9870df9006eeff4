// Package postgres stores alerts and source state in PostgreSQL with PostGIS.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/couchcryptid/cap-alert-ingest/internal/geometry"
	"github.com/couchcryptid/cap-alert-ingest/internal/ingest"
)

const upsertAlertQuery = `
INSERT INTO cap_alerts (
	id, source_id, alert_id, area, cap_data, cap_data_modified, issue_time,
	expire_time, source_url, msg_type, status, event, severity, urgency, archive_key
) VALUES (
	$1, $2, $3, ST_Multi(ST_GeomFromText($4, 4326)), $5, $6, $7,
	$8, $9, $10, $11, $12, $13, $14, $15
)
ON CONFLICT (source_id, alert_id) DO UPDATE SET
	area              = EXCLUDED.area,
	cap_data          = EXCLUDED.cap_data,
	cap_data_modified = EXCLUDED.cap_data_modified,
	issue_time        = EXCLUDED.issue_time,
	expire_time       = EXCLUDED.expire_time,
	source_url        = EXCLUDED.source_url,
	msg_type          = EXCLUDED.msg_type,
	status            = EXCLUDED.status,
	event             = EXCLUDED.event,
	severity          = EXCLUDED.severity,
	urgency           = EXCLUDED.urgency,
	archive_key       = EXCLUDED.archive_key,
	updated_at        = now()
RETURNING (xmax = 0)`

const knownAlertsQuery = `
SELECT alert_id, issue_time
FROM cap_alerts
WHERE source_id = $1`

const pruneQuery = `
DELETE FROM cap_alerts
WHERE source_id = $1 AND NOT (alert_id = ANY($2))`

// Store implements ingest.AlertStore and ingest.StateStore. It is safe for
// concurrent use.
type Store struct {
	db       *sqlx.DB
	notifier ingest.Notifier
	logger   *slog.Logger
}

// Open connects to the database at dsn using the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// New creates a Store. A nil notifier disables notifications.
func New(db *sqlx.DB, notifier ingest.Notifier, logger *slog.Logger) *Store {
	if notifier == nil {
		notifier = ingest.NopNotifier{}
	}
	return &Store{db: db, notifier: notifier, logger: logger}
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

type knownRow struct {
	AlertID   string    `db:"alert_id"`
	IssueTime time.Time `db:"issue_time"`
}

// KnownAlerts returns the stored sent time of every alert of the source.
func (s *Store) KnownAlerts(ctx context.Context, sourceID string) (map[string]time.Time, error) {
	var rows []knownRow
	if err := s.db.SelectContext(ctx, &rows, knownAlertsQuery, sourceID); err != nil {
		return nil, storageErr("load known alerts", err)
	}
	known := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		known[r.AlertID] = r.IssueTime
	}
	return known, nil
}

// PersistAndNotify upserts the record and, once committed, notifies
// subscribers. A notification failure is logged and does not undo the write.
func (s *Store) PersistAndNotify(ctx context.Context, rec ingest.AlertRecord) (ingest.Outcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ingest.Created, storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted bool
	if err := tx.QueryRowxContext(ctx, upsertAlertQuery, alertArgs(rec)...).Scan(&inserted); err != nil {
		return ingest.Created, storageErr("upsert alert "+rec.AlertID, err)
	}
	if err := tx.Commit(); err != nil {
		return ingest.Created, storageErr("commit alert "+rec.AlertID, err)
	}

	outcome := ingest.Updated
	if inserted {
		outcome = ingest.Created
	}
	if err := s.notifier.Notify(ctx, rec, outcome); err != nil {
		s.logger.Warn("notification failed",
			"source_id", rec.SourceID, "alert_id", rec.AlertID, "error", err)
	}
	return outcome, nil
}

// Prune deletes every alert of the source whose id is not in live.
func (s *Store) Prune(ctx context.Context, sourceID string, live []string) (int, error) {
	if live == nil {
		live = []string{}
	}
	res, err := s.db.ExecContext(ctx, pruneQuery, sourceID, pq.Array(live))
	if err != nil {
		return 0, storageErr("prune alerts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("prune alerts", err)
	}
	return int(n), nil
}

func alertArgs(rec ingest.AlertRecord) []any {
	return []any{
		uuid.NewString(),
		rec.SourceID,
		rec.AlertID,
		geometry.WKT(rec.Area),
		string(rec.CAPData),
		rec.CAPDataModified,
		rec.IssueTime.UTC(),
		nullTime(rec.ExpireTime),
		rec.SourceURL,
		rec.MsgType,
		rec.Status,
		rec.Event,
		rec.Severity,
		rec.Urgency,
		rec.ArchiveKey,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// storageErr wraps err with ingest.ErrStorage so the orchestrator can redact it.
func storageErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w: %s: %s (%s): %w", ingest.ErrStorage, op, pqErr.Code.Name(), pqErr.Code, err)
	}
	return fmt.Errorf("%w: %s: %w", ingest.ErrStorage, op, err)
}
