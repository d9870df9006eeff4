package main

import (
	"context"
	"errors"
	"fmt"

	kafkaadapter "github.com/couchcryptid/cap-alert-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/cap-alert-ingest/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/cap-alert-ingest/internal/adapter/redis"
	s3adapter "github.com/couchcryptid/cap-alert-ingest/internal/adapter/s3"
	"github.com/couchcryptid/cap-alert-ingest/internal/feed"
	"github.com/couchcryptid/cap-alert-ingest/internal/geocode"
	"github.com/couchcryptid/cap-alert-ingest/internal/geometry"
	"github.com/couchcryptid/cap-alert-ingest/internal/ingest"
	"github.com/couchcryptid/cap-alert-ingest/internal/source"
)

const (
	userAgent       = "cap-alert-ingest/1.0"
	memoryCacheSize = 10000
)

// service is the fully wired ingestion stack. close releases every
// connection it opened.
type service struct {
	runner  *ingest.Runner
	store   *postgres.Store
	docs    *redisadapter.DocumentCache
	closers []func() error
}

func (s *service) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) clientOptions() feed.ClientOptions {
	return feed.ClientOptions{
		Timeout:   a.cfg.FetchTimeout,
		RetryMax:  a.cfg.FetchRetries,
		UserAgent: userAgent,
	}
}

func (a *app) catalogue() *source.Loader {
	return &source.Loader{
		FS:     a.fs,
		Path:   a.cfg.SourcesFile,
		HubURL: a.cfg.AlertHubURL,
		Client: feed.NewClient(a.clientOptions()),
		Logger: a.logger,
	}
}

func (a *app) expander() *geocode.Expander {
	dataset := geocode.NewCachedDataset(
		geocode.NewFSDataset(a.fs, a.cfg.GeocodeDir),
		a.cfg.GeocodeCacheSize,
		a.metrics,
	)
	return geocode.NewExpander(dataset, a.logger, a.metrics)
}

// buildService connects to storage and the optional collaborators and wires
// the orchestrator and runner.
func (a *app) buildService(ctx context.Context) (*service, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	svc := &service{}

	db, err := postgres.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, db.Close)
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = svc.close()
		return nil, err
	}

	var notifier ingest.Notifier = ingest.NopNotifier{}
	if a.cfg.NotifyEnabled {
		w := kafkaadapter.NewWriter(a.cfg, a.logger, a.metrics)
		svc.closers = append(svc.closers, w.Close)
		notifier = w
		a.logger.Info("kafka notifications enabled", "topic", a.cfg.KafkaNotifyTopic)
	} else {
		a.logger.Info("kafka notifications disabled")
	}
	svc.store = postgres.New(db, notifier, a.logger)

	var docs feed.DocumentCache = feed.NewMemoryCache(memoryCacheSize, nil)
	if a.cfg.RedisURL != "" {
		cache, client, err := redisadapter.New(a.cfg.RedisURL, a.logger)
		if err != nil {
			_ = svc.close()
			return nil, err
		}
		svc.closers = append(svc.closers, client.Close)
		svc.docs = cache
		docs = cache
		a.logger.Info("redis document cache enabled")
	}

	var archiver ingest.Archiver
	if a.cfg.ArchiveBucket != "" {
		arc, err := s3adapter.New(a.cfg.ArchiveBucket, a.cfg.AWSRegion)
		if err != nil {
			_ = svc.close()
			return nil, err
		}
		archiver = arc
		a.logger.Info("s3 archive enabled", "bucket", a.cfg.ArchiveBucket)
	}

	registry := feed.NewRegistry(feed.RegistryConfig{
		Client:  a.clientOptions(),
		Rate:    a.cfg.FetchRate,
		Docs:    docs,
		FS:      a.fs,
		Logger:  a.logger,
		Metrics: a.metrics,
	})

	orch := ingest.NewOrchestrator(ingest.Deps{
		Adapters: registry,
		Alerts:   svc.store,
		States:   svc.store,
		Archiver: archiver,
		Expander: a.expander(),
		Resolver: geometry.NewResolver(a.cfg.MaxVertices),
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
	svc.runner = ingest.NewRunner(orch, a.catalogue(), ingest.RunnerConfig{
		Workers:      a.cfg.Workers,
		CycleTimeout: a.cfg.CycleTimeout,
		Interval:     a.cfg.CycleInterval,
	}, a.logger, a.metrics)

	return svc, nil
}

func formatCounts(rep ingest.CycleReport) string {
	c := rep.Counts
	return fmt.Sprintf("created=%d updated=%d unchanged=%d rejected=%d pruned=%d",
		c.Created, c.Updated, c.Unchanged, c.Rejected, rep.Pruned)
}
