package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

const loadStateQuery = `
SELECT source_id, last_e_tag, last_fetch_status, last_fetch_duration_ms,
       missing_geo_information, feed_warnings, latest_published_alert_datetime, updated_at
FROM cap_feed_sources
WHERE source_id = $1`

const saveStateQuery = `
INSERT INTO cap_feed_sources (
	source_id, last_e_tag, last_fetch_status, last_fetch_duration_ms,
	missing_geo_information, feed_warnings, latest_published_alert_datetime, updated_at
) VALUES (
	:source_id, :last_e_tag, :last_fetch_status, :last_fetch_duration_ms,
	:missing_geo_information, :feed_warnings, :latest_published_alert_datetime, :updated_at
)
ON CONFLICT (source_id) DO UPDATE SET
	last_e_tag                      = EXCLUDED.last_e_tag,
	last_fetch_status               = EXCLUDED.last_fetch_status,
	last_fetch_duration_ms          = EXCLUDED.last_fetch_duration_ms,
	missing_geo_information         = EXCLUDED.missing_geo_information,
	feed_warnings                   = EXCLUDED.feed_warnings,
	latest_published_alert_datetime = EXCLUDED.latest_published_alert_datetime,
	updated_at                      = EXCLUDED.updated_at`

type stateRow struct {
	SourceID        string       `db:"source_id"`
	LastETag        string       `db:"last_e_tag"`
	FetchStatus     bool         `db:"last_fetch_status"`
	FetchDurationMS int64        `db:"last_fetch_duration_ms"`
	MissingGeo      bool         `db:"missing_geo_information"`
	Warnings        string       `db:"feed_warnings"`
	LatestPublished sql.NullTime `db:"latest_published_alert_datetime"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func toRow(st source.State) stateRow {
	row := stateRow{
		SourceID:        st.SourceID,
		LastETag:        st.LastETag,
		FetchStatus:     st.FetchStatus,
		FetchDurationMS: st.FetchDuration.Milliseconds(),
		MissingGeo:      st.MissingGeo,
		Warnings:        st.Warnings,
		UpdatedAt:       st.UpdatedAt.UTC(),
	}
	if !st.LatestPublished.IsZero() {
		row.LatestPublished = sql.NullTime{Time: st.LatestPublished.UTC(), Valid: true}
	}
	return row
}

func (r stateRow) toState() source.State {
	st := source.State{
		SourceID:      r.SourceID,
		LastETag:      r.LastETag,
		FetchStatus:   r.FetchStatus,
		FetchDuration: time.Duration(r.FetchDurationMS) * time.Millisecond,
		MissingGeo:    r.MissingGeo,
		Warnings:      r.Warnings,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LatestPublished.Valid {
		st.LatestPublished = r.LatestPublished.Time
	}
	return st
}

// LoadState returns the stored state of the source, or an empty state for a
// source that has never run.
func (s *Store) LoadState(ctx context.Context, sourceID string) (source.State, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, loadStateQuery, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return source.State{SourceID: sourceID}, nil
	}
	if err != nil {
		return source.State{}, storageErr("load source state", err)
	}
	return row.toState(), nil
}

// SaveState upserts the source state.
func (s *Store) SaveState(ctx context.Context, st source.State) error {
	if _, err := s.db.NamedExecContext(ctx, saveStateQuery, toRow(st)); err != nil {
		return storageErr("save source state", err)
	}
	return nil
}
