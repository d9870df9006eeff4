package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
	"github.com/couchcryptid/cap-alert-ingest/internal/geocode"
	"github.com/couchcryptid/cap-alert-ingest/internal/geometry"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

// Warnings stored on the source state. Raw error text is never stored.
const (
	warnDatabase      = "Database writing error"
	warnFetchFailed   = "Fetch failed"
	warnConfiguration = "Configuration error"
	warnInternal      = "Internal error while processing alert"
)

// Deps are the collaborators of an Orchestrator. Archiver and Expander are
// optional.
type Deps struct {
	Adapters AdapterProvider
	Alerts   AlertStore
	States   StateStore
	Archiver Archiver
	Expander *geocode.Expander
	Resolver *geometry.Resolver
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Orchestrator runs source cycles. It holds no per-cycle state and is safe
// for concurrent use across sources.
type Orchestrator struct {
	adapters AdapterProvider
	alerts   AlertStore
	states   StateStore
	archiver Archiver
	expander *geocode.Expander
	resolver *geometry.Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	resolver := d.Resolver
	if resolver == nil {
		resolver = geometry.NewResolver(geometry.DefaultMaxVertices)
	}
	return &Orchestrator{
		adapters: d.Adapters,
		alerts:   d.Alerts,
		states:   d.States,
		archiver: d.Archiver,
		expander: d.Expander,
		resolver: resolver,
		logger:   d.Logger,
		metrics:  d.Metrics,
	}
}

// CycleReport summarizes one source cycle.
type CycleReport struct {
	SourceID string
	Fetch    feed.Status
	// OK is false when the cycle hit a source-level failure.
	OK bool
	Counts
	Pruned   int
	Warnings []string
	Duration time.Duration
}

// Outcome returns the metrics label of the cycle.
func (r CycleReport) Outcome() string {
	switch {
	case !r.OK:
		return "failed"
	case r.Fetch == feed.NotModified:
		return "not_modified"
	default:
		return "ok"
	}
}

// RunCycle fetches one source, processes every payload and finalizes the
// source state. It never returns an error; failures are reported through
// the returned report and the stored state.
func (o *Orchestrator) RunCycle(ctx context.Context, src source.Source) (report CycleReport) {
	start := clock.Now()
	logger := o.logger.With("source_id", src.ID)
	report = CycleReport{SourceID: src.ID, Fetch: feed.Failed}
	defer func() {
		report.Duration = clock.Since(start)
		o.metrics.Cycles.WithLabelValues(report.Outcome()).Inc()
		o.metrics.CycleDuration.Observe(report.Duration.Seconds())
	}()

	var (
		state  source.State
		cy     *Cycle
		loaded bool
	)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("source cycle panicked", "panic", r)
		if cy == nil {
			cy = newCycle(src.ID, state.LatestPublished)
		}
		cy.warn(warnInternal)
		report.OK = false
		report.Counts = cy.counts
		report.Warnings = cy.Warnings()
		if loaded {
			o.saveFailed(ctx, state, cy, clock.Since(start), logger)
		}
	}()

	state, err := o.states.LoadState(ctx, src.ID)
	if err != nil {
		logger.Error("load source state failed")
		logger.Debug("load source state error detail", "error", err)
		return report
	}
	state.SourceID = src.ID
	loaded = true

	cy = newCycle(src.ID, state.LatestPublished)
	res := o.fetch(ctx, src, state, cy, logger)
	report.Fetch = res.Status
	ok := res.Status != feed.Failed

	switch res.Status {
	case feed.NotModified:
		for id := range cy.knownSent {
			cy.markLive(id)
		}
		logger.Debug("source not modified")
	case feed.Fetched:
		ok = o.processAll(ctx, src, res, cy, logger) && ok
		if !cy.storageFailed {
			pruned, err := o.alerts.Prune(ctx, src.ID, cy.Live())
			if err != nil {
				logger.Error("prune failed", "error", err)
				cy.warn(warnDatabase)
				ok = false
			}
			report.Pruned = pruned
		}
		if cy.storageFailed {
			ok = false
		}
	case feed.Failed:
		logger.Warn("fetch failed", "url", src.URL, "error", res.Err)
	}

	o.finalize(ctx, &state, res, cy, ok, clock.Since(start), logger)

	report.OK = ok
	report.Counts = cy.counts
	report.Warnings = cy.Warnings()
	logger.Info("source cycle finished",
		"fetch", res.Status.String(),
		"created", cy.counts.Created,
		"updated", cy.counts.Updated,
		"unchanged", cy.counts.Unchanged,
		"rejected", cy.counts.Rejected,
		"pruned", report.Pruned,
		"warnings", len(cy.warnings),
	)
	return report
}

// fetch resolves the source adapter and runs it. Configuration and
// known-alert lookup problems become a Failed result.
func (o *Orchestrator) fetch(ctx context.Context, src source.Source, state source.State, cy *Cycle, logger *slog.Logger) feed.Result {
	format, err := src.FeedFormat()
	if err != nil {
		cy.warn(warnConfiguration)
		return feed.Result{Status: feed.Failed, Err: err}
	}
	adapter, err := o.adapters.Adapter(format, src.FeedOptions())
	if err != nil {
		cy.warn(warnConfiguration)
		return feed.Result{Status: feed.Failed, Err: err}
	}
	known, err := o.alerts.KnownAlerts(ctx, src.ID)
	if err != nil {
		logger.Debug("known alerts lookup failed", "error", err)
		cy.warn(warnDatabase)
		return feed.Result{Status: feed.Failed, Err: fmt.Errorf("known alerts: %w", ErrStorage)}
	}

	res := adapter.Fetch(ctx, feed.Request{
		SourceID:  src.ID,
		URL:       src.URL,
		Validator: state.LastETag,
		Known:     known,
	})
	cy.knownSent = known
	if res.Status == feed.Failed {
		cy.warn(warnFetchFailed)
	}
	cy.warn(res.Warnings...)
	return res
}

// processAll handles every payload of a fetched result. It returns false if
// a storage failure occurred.
func (o *Orchestrator) processAll(ctx context.Context, src source.Source, res feed.Result, cy *Cycle, logger *slog.Logger) bool {
	for _, id := range res.Unchanged {
		cy.markLive(id)
		cy.counts.Unchanged++
		o.metrics.Alerts.WithLabelValues("unchanged").Inc()
	}

	tracker := geocode.NewTracker(src.ID)
	for _, p := range res.Payloads {
		if ctx.Err() != nil {
			cy.warn(fmt.Sprintf("Cycle aborted: %v", ctx.Err()))
			break
		}
		o.processSafely(ctx, src, p, cy, tracker, logger)
	}
	cy.warn(tracker.Warnings()...)
	if tracker.Failures() > 0 {
		cy.missingGeo = true
	}
	return !cy.storageFailed
}

func (o *Orchestrator) processSafely(ctx context.Context, src source.Source, p feed.Payload, cy *Cycle, tr *geocode.Tracker, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("alert processing panicked", "panic", r, "source_url", p.SourceURL)
			cy.warn(warnInternal)
			cy.counts.Rejected++
			o.metrics.Alerts.WithLabelValues("rejected").Inc()
		}
	}()

	err := o.processAlert(ctx, src, p, cy, tr, logger)
	if err == nil {
		return
	}
	var rej *RejectError
	if !errors.As(err, &rej) {
		rej = reject(Malformed, "", err)
	}
	o.rejected(rej, cy, logger)
}

// processAlert runs the per-alert steps. A nil error means the alert was
// stored, deduplicated or was an empty payload.
func (o *Orchestrator) processAlert(ctx context.Context, src source.Source, p feed.Payload, cy *Cycle, tr *geocode.Tracker, logger *slog.Logger) error {
	if len(bytes.TrimSpace(p.Data)) == 0 {
		logger.Info("empty CAP payload, skipping", "source_url", p.SourceURL)
		return nil
	}

	msg, err := cap.Parse(p.Data)
	if err != nil {
		return reject(Malformed, "", err)
	}
	alertID := msg.Identifier()
	if alertID == "" {
		return reject(MissingRequiredField, "", fmt.Errorf("identifier: %w", cap.ErrMissingField))
	}
	sent, err := msg.Sent()
	if err != nil {
		return reject(MissingRequiredField, alertID, err)
	}

	if msg.Scope() == "Private" {
		return reject(PrivateScope, alertID, nil)
	}
	if msg.ExpiredAt(clock.Now()) {
		return reject(Expired, alertID, nil)
	}

	if knownSent, ok := cy.knownSent[alertID]; ok && knownSent.Equal(sent) {
		cy.markLive(alertID)
		cy.counts.Unchanged++
		o.metrics.Alerts.WithLabelValues("unchanged").Inc()
		return nil
	}

	if o.expander != nil {
		o.expander.Expand(msg, tr)
	}
	doc := msg.Bytes()

	area, err := o.resolver.Resolve(msg.Polygons(), msg.Circles())
	if err != nil {
		return reject(NoGeographicData, alertID, err)
	}

	rec := AlertRecord{
		SourceID:        src.ID,
		AlertID:         alertID,
		Area:            area,
		CAPData:         doc,
		CAPDataModified: msg.Modified,
		IssueTime:       sent,
		SourceURL:       p.SourceURL,
		MsgType:         msg.MsgType(),
		Status:          msg.Status(),
	}
	if exp, ok := msg.ExpireTime(); ok {
		rec.ExpireTime = &exp
	}
	if info, ok := msg.PreferredInfo(); ok {
		rec.Event = truncateRunes(info.Event(), maxEventLen)
		rec.Severity = info.Severity()
		rec.Urgency = info.Urgency()
	}

	cy.advance(sent)
	cy.markLive(alertID)

	if o.archiver != nil {
		key, err := o.archiver.Archive(ctx, src.ID, alertID, doc)
		if err != nil {
			logger.Warn("archive CAP document failed", "alert_id", alertID, "error", err)
			cy.warn(fmt.Sprintf("Archive error: %s", alertID))
		} else {
			rec.ArchiveKey = key
		}
	}

	outcome, err := o.alerts.PersistAndNotify(ctx, rec)
	if err != nil {
		return reject(StorageFailure, alertID, err)
	}
	cy.remember(alertID, sent)
	switch outcome {
	case Updated:
		cy.counts.Updated++
	default:
		cy.counts.Created++
	}
	o.metrics.Alerts.WithLabelValues(outcome.String()).Inc()
	logger.Debug("alert stored", "alert_id", alertID, "outcome", outcome.String())
	return nil
}

// rejected applies the logging and warning policy of each reject kind.
func (o *Orchestrator) rejected(rej *RejectError, cy *Cycle, logger *slog.Logger) {
	cy.counts.Rejected++
	o.metrics.Alerts.WithLabelValues("rejected").Inc()
	o.metrics.Rejections.WithLabelValues(rej.Kind.String()).Inc()

	log := logger.With("alert_id", rej.AlertID, "kind", rej.Kind.String())
	switch {
	case rej.Kind.silent():
		log.Debug("alert dropped")
	case rej.Kind == NoGeographicData:
		cy.missingGeo = true
		if !cy.noGeoLogged {
			cy.noGeoLogged = true
			log.Warn("alert has no usable geometry", "error", rej.Err)
			cy.warn(fmt.Sprintf("%s: %v", rej.AlertID, rej.Err))
		} else {
			log.Debug("alert has no usable geometry", "error", rej.Err)
		}
	case rej.Kind == StorageFailure:
		log.Error("database writing error")
		log.Debug("storage error detail", "error", rej.Err)
		if !cy.storageFailed {
			cy.storageFailed = true
			cy.warn(warnDatabase)
		}
	case rej.Kind == MissingRequiredField:
		log.Warn("alert missing required field", "error", rej.Err)
		cy.warn(fmt.Sprintf("Parameter error: %s", rej.Err))
	default:
		log.Warn("failed to parse CAP alert", "error", rej.Err)
		cy.warn("Failed to parse CAP alert message XML")
	}
}

// finalize writes the source state. A not-modified cycle keeps the stored
// warnings and missing-geo flag.
func (o *Orchestrator) finalize(ctx context.Context, state *source.State, res feed.Result, cy *Cycle, ok bool, elapsed time.Duration, logger *slog.Logger) {
	state.FetchStatus = ok
	state.FetchDuration = elapsed
	state.UpdatedAt = clock.Now()
	state.LatestPublished = cy.Watermark()

	if res.Status != feed.NotModified {
		state.Warnings = source.TruncateWarnings(cy.Warnings())
		state.MissingGeo = cy.MissingGeo()
	}
	// A failed write must be retried next cycle, so the validator only
	// advances when every record was stored.
	if res.Status == feed.Fetched && res.Validator != "" && !cy.storageFailed {
		state.LastETag = res.Validator
	}

	if err := o.states.SaveState(ctx, *state); err != nil {
		logger.Error("save source state failed")
		logger.Debug("save source state error detail", "error", err)
	}
}

// saveFailed stores a failed state after a panic. The validator and the
// watermark stay as loaded.
func (o *Orchestrator) saveFailed(ctx context.Context, state source.State, cy *Cycle, elapsed time.Duration, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("save source state panicked", "panic", r)
		}
	}()
	state.FetchStatus = false
	state.FetchDuration = elapsed
	state.UpdatedAt = clock.Now()
	state.Warnings = source.TruncateWarnings(cy.Warnings())
	state.MissingGeo = cy.MissingGeo()
	if err := o.states.SaveState(ctx, state); err != nil {
		logger.Error("save source state failed")
		logger.Debug("save source state error detail", "error", err)
	}
}
