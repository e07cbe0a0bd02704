package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"transit-realtime/internal/clock"
	"transit-realtime/internal/fallback"
	"transit-realtime/internal/format"
	"transit-realtime/internal/realtime"
	"transit-realtime/internal/schema"
)

type stubFetcher map[realtime.Kind][]byte

func (s stubFetcher) Fetch(_ context.Context, kind realtime.Kind, _ string) []byte {
	return s[kind]
}

type brokenSchema struct{}

func (brokenSchema) Ensure(context.Context) (protoreflect.MessageType, error) {
	return nil, &schema.LoadError{Source: "missing.desc", Err: errors.New("no such file")}
}

type notices struct {
	mu  sync.Mutex
	got []realtime.Notice
}

func (n *notices) Notify(x realtime.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *notices) levels() []realtime.Level {
	out := make([]realtime.Level, 0, len(n.got))
	for _, x := range n.got {
		out = append(out, x.Level)
	}
	return out
}

var now = time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC)

func feed(t *testing.T, entities ...*gtfs.FeedEntity) []byte {
	t.Helper()
	b, err := proto.Marshal(&gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: entities,
	})
	require.NoError(t, err)
	return b
}

func t1Entity() *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String("t1"),
		TripUpdate: &gtfs.TripUpdate{
			Trip: &gtfs.TripDescriptor{TripId: proto.String("111"), RouteId: proto.String("4")},
			StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{{
				StopSequence: proto.Uint32(1),
				StopId:       proto.String("S1"),
				Arrival:      &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(90)},
			}},
		},
	}
}

func newPipeline(f Fetcher, n realtime.Notifier) *Pipeline {
	return New(Options{
		Schema:  schema.NewLoader(schema.Builtin, ""),
		Fetcher: f,
		Notify:  n,
		Clock:   clock.NewMockClock(now),
	})
}

func TestSnapshotEndToEnd(t *testing.T) {
	rec := &notices{}
	vp := &gtfs.FeedEntity{Id: proto.String("v1"), Vehicle: &gtfs.VehiclePosition{
		Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String("bus-1")},
		Position: &gtfs.Position{Latitude: proto.Float32(45), Longitude: proto.Float32(7)},
	}}
	al := &gtfs.FeedEntity{Id: proto.String("a1"), Alert: &gtfs.Alert{}}

	p := newPipeline(stubFetcher{
		realtime.KindTripUpdate:      feed(t, t1Entity()),
		realtime.KindVehiclePosition: feed(t, vp),
		realtime.KindAlert:           feed(t, al),
	}, rec)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.TripUpdates, 1)
	tu := snap.TripUpdates[0]
	assert.Equal(t, "t1", tu.ID)
	assert.Equal(t, realtime.Some("111"), tu.Trip.TripID)
	assert.Equal(t, realtime.Some("4"), tu.Trip.RouteID)
	assert.Equal(t, "2 min late", format.Delay(tu.EffectiveDelay()))

	require.Len(t, snap.VehiclePositions, 1)
	require.Len(t, snap.Alerts, 1)
	for _, kind := range realtime.Kinds {
		assert.Equal(t, realtime.SourceLive, snap.Sources[kind], kind)
	}
	assert.Equal(t, now, snap.FetchedAt)
	assert.False(t, snap.Simulated)
	assert.Equal(t, []realtime.Level{realtime.LevelSuccess}, rec.levels())
}

func TestSnapshotFallsBackWhenEmpty(t *testing.T) {
	rec := &notices{}
	snap, err := newPipeline(stubFetcher{}, rec).Snapshot(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.TripUpdates, 2)
	assert.Len(t, snap.Alerts, 2)
	assert.Empty(t, snap.VehiclePositions)
	assert.NotNil(t, snap.VehiclePositions)
	assert.Equal(t, realtime.SourceFallback, snap.Sources[realtime.KindTripUpdate])
	assert.Equal(t, realtime.SourceFallback, snap.Sources[realtime.KindAlert])
	assert.Equal(t, realtime.SourceEmpty, snap.Sources[realtime.KindVehiclePosition])
	for _, a := range snap.Alerts {
		assert.Contains(t, a.ID, fallback.Prefix)
	}
	assert.Equal(t, []realtime.Level{realtime.LevelInfo, realtime.LevelInfo, realtime.LevelInfo}, rec.levels())
}

func TestSnapshotEmptyVehicleFeedWarns(t *testing.T) {
	for name, payload := range map[string][]byte{
		"empty body":  {},
		"no entities": feed(t),
	} {
		t.Run(name, func(t *testing.T) {
			rec := &notices{}
			p := newPipeline(stubFetcher{
				realtime.KindTripUpdate:      feed(t, t1Entity()),
				realtime.KindVehiclePosition: payload,
			}, rec)

			snap, err := p.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, realtime.SourceEmpty, snap.Sources[realtime.KindVehiclePosition])

			var warned []realtime.Notice
			for _, n := range rec.got {
				if n.Kind == realtime.KindVehiclePosition {
					warned = append(warned, n)
				}
			}
			require.Len(t, warned, 1)
			assert.Equal(t, realtime.LevelWarning, warned[0].Level)
			assert.Equal(t, "No vehicle positions in the feed", warned[0].Message)
		})
	}
}

func TestSnapshotDecodeFailures(t *testing.T) {
	rec := &notices{}
	garbage := []byte{0xff, 0xff, 0xff, 0xff}
	p := newPipeline(stubFetcher{
		realtime.KindTripUpdate:      garbage,
		realtime.KindVehiclePosition: garbage,
		realtime.KindAlert:           garbage,
	}, rec)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.VehiclePositions)
	assert.Len(t, snap.TripUpdates, 2)

	var errorsSeen []realtime.Kind
	for _, n := range rec.got {
		if n.Level == realtime.LevelError {
			errorsSeen = append(errorsSeen, n.Kind)
		}
	}
	assert.Equal(t, []realtime.Kind{realtime.KindVehiclePosition}, errorsSeen)
}

func TestSnapshotSchemaFailureIsFatal(t *testing.T) {
	p := New(Options{Schema: brokenSchema{}, Fetcher: stubFetcher{}})
	_, err := p.Snapshot(context.Background())

	var loadErr *schema.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "missing.desc", loadErr.Source)
}

func TestPathsFor(t *testing.T) {
	p := Paths{TripUpdates: "tu", VehiclePositions: "vp", Alerts: "al"}
	assert.Equal(t, "tu", p.For(realtime.KindTripUpdate))
	assert.Equal(t, "vp", p.For(realtime.KindVehiclePosition))
	assert.Equal(t, "al", p.For(realtime.KindAlert))
	assert.Empty(t, p.For("OTHER"))
}
