// Package pipeline is the single decode entry point: it turns the three feed
// resources into one FeedSnapshot.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"transit-realtime/internal/clock"
	"transit-realtime/internal/decode"
	"transit-realtime/internal/fallback"
	"transit-realtime/internal/logging"
	"transit-realtime/internal/realtime"
)

// Paths locates each feed kind, relative to the fetcher's base URL or
// absolute.
type Paths struct {
	TripUpdates      string
	VehiclePositions string
	Alerts           string
}

func (p Paths) For(kind realtime.Kind) string {
	switch kind {
	case realtime.KindTripUpdate:
		return p.TripUpdates
	case realtime.KindVehiclePosition:
		return p.VehiclePositions
	case realtime.KindAlert:
		return p.Alerts
	}
	return ""
}

type SchemaSource interface {
	Ensure(ctx context.Context) (protoreflect.MessageType, error)
}

// Fetcher returns nil when the resource could not be fetched and a non-nil,
// possibly empty, payload otherwise.
type Fetcher interface {
	Fetch(ctx context.Context, kind realtime.Kind, path string) []byte
}

type PipelineMetrics interface {
	DecodeObserve(kind realtime.Kind, records int, err error)
	FallbackInc(kind realtime.Kind)
}

type Options struct {
	Schema   SchemaSource
	Fetcher  Fetcher
	Decoder  *decode.Decoder
	Fallback *fallback.Synthesizer
	Paths    Paths
	Notify   realtime.Notifier
	Clock    clock.Clock
	Metrics  PipelineMetrics
}

type Pipeline struct {
	schema   SchemaSource
	fetcher  Fetcher
	decoder  *decode.Decoder
	fallback *fallback.Synthesizer
	paths    Paths
	notify   realtime.Notifier
	clock    clock.Clock
	metrics  PipelineMetrics
	log      zerolog.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		schema:   opts.Schema,
		fetcher:  opts.Fetcher,
		decoder:  opts.Decoder,
		fallback: opts.Fallback,
		paths:    opts.Paths,
		notify:   opts.Notify,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		log:      logging.Component("pipeline"),
	}
	if p.decoder == nil {
		p.decoder = decode.New(nil)
	}
	if p.fallback == nil {
		p.fallback = fallback.New()
	}
	if p.notify == nil {
		p.notify = realtime.Discard
	}
	if p.clock == nil {
		p.clock = clock.RealClock{}
	}
	return p
}

// Snapshot fetches and decodes all three feeds. Only a schema failure is
// returned as an error; per-kind fetch and decode failures degrade to empty
// or placeholder data.
func (p *Pipeline) Snapshot(ctx context.Context) (realtime.FeedSnapshot, error) {
	mt, err := p.schema.Ensure(ctx)
	if err != nil {
		p.notify.Notify(realtime.Notice{Level: realtime.LevelError, Message: "Feed schema could not be loaded", At: p.clock.Now()})
		return realtime.FeedSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}

	var payloads [3][]byte
	var wg conc.WaitGroup
	for i, kind := range realtime.Kinds {
		wg.Go(func() {
			payloads[i] = p.fetcher.Fetch(ctx, kind, p.paths.For(kind))
		})
	}
	wg.Wait()

	now := p.clock.Now()
	snap := realtime.FeedSnapshot{
		Sources:   make(map[realtime.Kind]realtime.Source, len(realtime.Kinds)),
		FetchedAt: now,
		UpdatedAt: now,
	}

	trips, err := p.decoder.TripUpdates(payloads[0], mt)
	p.observe(realtime.KindTripUpdate, len(trips), err)
	snap.TripUpdates, snap.Sources[realtime.KindTripUpdate] = p.fillTrips(trips, now)

	vehicles, err := p.decoder.VehiclePositions(payloads[1], mt)
	p.observe(realtime.KindVehiclePosition, len(vehicles), err)
	if err != nil {
		p.notify.Notify(realtime.Notice{
			Level:   realtime.LevelError,
			Kind:    realtime.KindVehiclePosition,
			Message: "Vehicle positions could not be decoded",
			At:      now,
		})
		vehicles = []realtime.VehiclePosition{}
	} else if len(vehicles) == 0 && payloads[1] != nil {
		p.notify.Notify(realtime.Notice{
			Level:   realtime.LevelWarning,
			Kind:    realtime.KindVehiclePosition,
			Message: "No vehicle positions in the feed",
			At:      now,
		})
	}
	snap.VehiclePositions = vehicles
	snap.Sources[realtime.KindVehiclePosition] = sourceOf(len(vehicles))

	alerts, err := p.decoder.Alerts(payloads[2], mt)
	p.observe(realtime.KindAlert, len(alerts), err)
	snap.Alerts, snap.Sources[realtime.KindAlert] = p.fillAlerts(alerts, now)

	live := 0
	for _, src := range snap.Sources {
		if src == realtime.SourceLive {
			live++
		}
	}
	if live > 0 {
		p.notify.Notify(realtime.Notice{Level: realtime.LevelSuccess, Message: "Realtime data updated", At: now})
	} else {
		p.notify.Notify(realtime.Notice{Level: realtime.LevelInfo, Message: "No live realtime data available", At: now})
	}

	p.log.Debug().
		Int("trip_updates", len(snap.TripUpdates)).
		Int("vehicle_positions", len(snap.VehiclePositions)).
		Int("alerts", len(snap.Alerts)).
		Msg("snapshot decoded")
	return snap, nil
}

func (p *Pipeline) observe(kind realtime.Kind, n int, err error) {
	if p.metrics != nil {
		p.metrics.DecodeObserve(kind, n, err)
	}
	if err != nil && kind != realtime.KindVehiclePosition {
		p.log.Debug().Err(err).Str("kind", kind.String()).Msg("decode failed")
	} else if err != nil {
		p.log.Error().Err(err).Str("kind", kind.String()).Msg("decode failed")
	}
}

func (p *Pipeline) fillTrips(trips []realtime.TripUpdate, now time.Time) ([]realtime.TripUpdate, realtime.Source) {
	out, used := p.fallback.TripUpdates(trips, now)
	if !used {
		return out, realtime.SourceLive
	}
	p.fellBack(realtime.KindTripUpdate, now)
	return out, realtime.SourceFallback
}

func (p *Pipeline) fillAlerts(alerts []realtime.Alert, now time.Time) ([]realtime.Alert, realtime.Source) {
	out, used := p.fallback.Alerts(alerts, now)
	if !used {
		return out, realtime.SourceLive
	}
	p.fellBack(realtime.KindAlert, now)
	return out, realtime.SourceFallback
}

func (p *Pipeline) fellBack(kind realtime.Kind, now time.Time) {
	if p.metrics != nil {
		p.metrics.FallbackInc(kind)
	}
	p.notify.Notify(realtime.Notice{
		Level:   realtime.LevelInfo,
		Kind:    kind,
		Message: fmt.Sprintf("No %s data in the feed, showing sample data", humanKind(kind)),
		At:      now,
	})
}

func sourceOf(n int) realtime.Source {
	if n == 0 {
		return realtime.SourceEmpty
	}
	return realtime.SourceLive
}

func humanKind(kind realtime.Kind) string {
	switch kind {
	case realtime.KindTripUpdate:
		return "trip update"
	case realtime.KindVehiclePosition:
		return "vehicle position"
	}
	return "alert"
}
