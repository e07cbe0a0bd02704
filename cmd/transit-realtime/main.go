package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"transit-realtime/internal/api"
	"transit-realtime/internal/clock"
	"transit-realtime/internal/config"
	"transit-realtime/internal/encode"
	"transit-realtime/internal/logging"
	"transit-realtime/internal/metrics"
	"transit-realtime/internal/publisher"
	"transit-realtime/internal/realtime"
	"transit-realtime/internal/sim"
	"transit-realtime/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "transit-realtime",
		Usage: "decode, simulate and serve GTFS-realtime feeds",
		Commands: []*cli.Command{
			serveCommand(),
			decodeCommand(),
			simulateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "poll the feeds, run the simulation loop and serve the HTTP API",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Root context with cancellation on SIGINT/SIGTERM
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		simInterval := cfg.SimInterval
		if !cfg.SimEnabled {
			simInterval = 0
		}
		mcol = metrics.NewCollector(cfg.PollInterval, simInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	notices := store.NewNoticeLog(cfg.NoticeBuffer)
	notify := notifiers{notices, realtime.NotifierFunc(logNotices)}
	clk := clock.RealClock{}

	pipe, err := buildPipeline(cfg, notify, clk, mcol)
	if err != nil {
		return err
	}

	var sinks []store.Sink
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSPrefix, cfg.LogNATSSubjects, publisherMetrics(mcol))
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		forwardNotices(ctx, notices, pub)
	}

	var tracks api.Tracks
	if cfg.DatabaseURL != "" {
		archive, sqlDB, err := openArchive(ctx, cfg)
		if err != nil {
			return err
		}
		defer func(d *sql.DB) { _ = d.Close() }(sqlDB)
		sinks = append(sinks, archive)
		tracks = archive
	}

	opts := store.Options{
		Source:       pipe,
		PollInterval: cfg.PollInterval,
		Sinks:        sinks,
		Metrics:      storeMetrics(mcol),
	}
	if cfg.SimEnabled {
		opts.Engine = sim.NewEngine(cfg.SimSeed, clk)
		opts.SimInterval = cfg.SimInterval
	}
	st := store.New(opts)
	st.Start(ctx)
	defer st.Stop()

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(api.Options{
			Store:     st,
			Notices:   notices,
			Tracks:    tracks,
			Location:  cfg.Location,
			Clock:     clk,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}
	shutdown(httpSrv)
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "fetch and decode the feeds once and print the snapshot as JSON",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "pretty", Usage: "indent the JSON output"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pipe, err := buildPipeline(cfg, realtime.NotifierFunc(logNotices), clock.RealClock{}, nil)
			if err != nil {
				return err
			}
			snap, err := pipe.Snapshot(c.Context)
			if err != nil {
				return err
			}
			return printJSON(snap, c.Bool("pretty"))
		},
	}
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "decode the feeds once, run N simulation ticks and print or write the result",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "ticks", Value: 10, Usage: "number of simulation steps"},
			&cli.DurationFlag{Name: "step", Value: 30 * time.Second, Usage: "simulated time between steps"},
			&cli.Uint64Flag{Name: "seed", Usage: "random seed, 0 picks one (overrides SIM_SEED)"},
			&cli.StringFlag{Name: "out-dir", Usage: "write the result as GTFS-realtime .bin files into this directory"},
			&cli.BoolFlag{Name: "pretty", Usage: "indent the JSON output"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			seed := cfg.SimSeed
			if c.IsSet("seed") {
				seed = c.Uint64("seed")
			}
			clk := clock.NewMockClock(time.Now())
			pipe, err := buildPipeline(cfg, realtime.NotifierFunc(logNotices), clk, nil)
			if err != nil {
				return err
			}
			snap, err := pipe.Snapshot(c.Context)
			if err != nil {
				return err
			}
			engine := sim.NewEngine(seed, clk)
			for i := 0; i < c.Int("ticks"); i++ {
				clk.Advance(c.Duration("step"))
				engine.Step(&snap)
				snap.Generation = uint64(i + 1)
			}
			if dir := c.String("out-dir"); dir != "" {
				return writeFeeds(dir, cfg, &snap)
			}
			return printJSON(snap, c.Bool("pretty"))
		},
	}
}

func writeFeeds(dir string, cfg *config.Config, snap *realtime.FeedSnapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[realtime.Kind]string{
		realtime.KindTripUpdate:      filepath.Base(cfg.Feed.TripUpdates),
		realtime.KindVehiclePosition: filepath.Base(cfg.Feed.VehiclePositions),
		realtime.KindAlert:           filepath.Base(cfg.Feed.Alerts),
	}
	for _, kind := range realtime.Kinds {
		b, err := encode.Marshal(snap, kind)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, files[kind])
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Info().Str("kind", kind.String()).Str("path", path).Int("bytes", len(b)).Msg("feed written")
	}
	return nil
}

func printJSON(v any, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
