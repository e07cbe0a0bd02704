package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"transit-realtime/internal/clock"
	"transit-realtime/internal/config"
	"transit-realtime/internal/db"
	"transit-realtime/internal/decode"
	"transit-realtime/internal/fallback"
	"transit-realtime/internal/feed"
	"transit-realtime/internal/metrics"
	"transit-realtime/internal/pipeline"
	"transit-realtime/internal/publisher"
	"transit-realtime/internal/quirk"
	"transit-realtime/internal/realtime"
	"transit-realtime/internal/schema"
	"transit-realtime/internal/store"
)

// A nil *Collector must not end up inside a non-nil interface.
func fetchMetrics(m *metrics.Collector) feed.FetchMetrics {
	if m == nil {
		return nil
	}
	return m
}

func pipelineMetrics(m *metrics.Collector) pipeline.PipelineMetrics {
	if m == nil {
		return nil
	}
	return m
}

func storeMetrics(m *metrics.Collector) store.StoreMetrics {
	if m == nil {
		return nil
	}
	return m
}

func publisherMetrics(m *metrics.Collector) publisher.PublisherMetrics {
	if m == nil {
		return nil
	}
	return m
}

func buildPipeline(cfg *config.Config, notify realtime.Notifier, c clock.Clock, m *metrics.Collector) (*pipeline.Pipeline, error) {
	adapter, err := quirk.Lookup(cfg.Feed.QuirkProfile)
	if err != nil {
		return nil, err
	}
	fetcher := feed.NewFetcher(feed.Options{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: cfg.FetchTimeout,
		Headers: cfg.Feed.Headers,
		Notify:  notify,
		Metrics: fetchMetrics(m),
	})
	log.Info().
		Str("feed", cfg.Feed.Name).
		Str("base", cfg.Feed.BaseURL).
		Str("quirks", adapter.Name()).
		Str("schema", cfg.SchemaSource).
		Msg("feed pipeline configured")
	return pipeline.New(pipeline.Options{
		Schema:   schema.NewLoader(cfg.SchemaSource, cfg.SchemaMessage),
		Fetcher:  fetcher,
		Decoder:  decode.New(adapter),
		Fallback: fallback.New(),
		Paths: pipeline.Paths{
			TripUpdates:      cfg.Feed.TripUpdates,
			VehiclePositions: cfg.Feed.VehiclePositions,
			Alerts:           cfg.Feed.Alerts,
		},
		Notify:  notify,
		Clock:   c,
		Metrics: pipelineMetrics(m),
	}), nil
}

// openArchive connects to Postgres and prepares the archive tables. The
// returned *sql.DB must be closed by the caller.
func openArchive(ctx context.Context, cfg *config.Config) (*db.Archive, *sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.ArchiveDBName != "" {
		var err error
		dsn, err = db.WithDBName(dsn, cfg.ArchiveDBName)
		if err != nil {
			return nil, nil, fmt.Errorf("compose archive DSN: %w", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	archive := db.NewArchive(sqlDB)
	if err := archive.EnsureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return archive, sqlDB, nil
}

// forwardNotices relays every logged notice to NATS until ctx ends.
func forwardNotices(ctx context.Context, notices *store.NoticeLog, pub *publisher.NATSPublisher) {
	ch, cancel := notices.Listen(32)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				if err := pub.PublishNotice(n); err != nil {
					log.Warn().Err(err).Msg("forward notice")
				}
			}
		}
	}()
}

// logNotices mirrors notices into the log so headless runs still show them.
func logNotices(n realtime.Notice) {
	ev := log.Info()
	switch n.Level {
	case realtime.LevelWarning:
		ev = log.Warn()
	case realtime.LevelError:
		ev = log.Error()
	}
	ev.Str("component", "notice").Str("kind", string(n.Kind)).Msg(n.Message)
}

type notifiers []realtime.Notifier

func (ns notifiers) Notify(n realtime.Notice) {
	for _, x := range ns {
		x.Notify(n)
	}
}
