package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-realtime/internal/realtime"
)

type recordedMsg struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []recordedMsg
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, recordedMsg{subject, data})
	return nil
}

type countingMetrics struct {
	published, errs int
}

func (m *countingMetrics) NATSPublishedInc()            { m.published++ }
func (m *countingMetrics) NATSPublishErrInc()           { m.errs++ }
func (m *countingMetrics) PublishObserve(time.Duration) {}
func (m *countingMetrics) NATSSetConnected(bool)        {}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "_", subjectToken(""))
	assert.Equal(t, "_", subjectToken("   "))
	assert.Equal(t, "BUS_A", subjectToken("BUS.A"))
	assert.Equal(t, "line_4_night", subjectToken("line 4/night"))
	assert.Equal(t, "a__b", subjectToken("a*>b"))
}

func snapshot() realtime.FeedSnapshot {
	return realtime.FeedSnapshot{
		Generation: 7,
		UpdatedAt:  time.Unix(1_700_000_000, 0).UTC(),
		TripUpdates: []realtime.TripUpdate{
			{ID: "t1", Delay: realtime.Some[int32](120)},
			{ID: "t2", Delay: realtime.Some[int32](0)},
		},
		VehiclePositions: []realtime.VehiclePosition{
			{
				ID:            "e1",
				Trip:          &realtime.TripDescriptor{TripID: realtime.Some("trip-1"), RouteID: realtime.Some("R.1")},
				Vehicle:       &realtime.VehicleDescriptor{ID: realtime.Some("bus 9")},
				Position:      &realtime.Position{Latitude: realtime.Some(45.1), Longitude: realtime.Some(7.6), Speed: realtime.Some(25.0)},
				CurrentStatus: realtime.StopStatusInTransitTo,
				Timestamp:     realtime.Some[int64](1_700_000_010),
			},
			{ID: "no-position"},
		},
	}
}

func TestPublishSnapshot(t *testing.T) {
	conn := &fakeConn{}
	m := &countingMetrics{}
	p := New(conn, "rt.", false, m)

	require.NoError(t, p.Publish(context.Background(), snapshot()))
	require.Len(t, conn.msgs, 2)
	assert.Equal(t, 2, m.published)

	assert.Equal(t, "rt.snapshot", conn.msgs[0].subject)
	var summary SnapshotMessage
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &summary))
	assert.Equal(t, uint64(7), summary.Generation)
	assert.Equal(t, 2, summary.VehiclePositions)
	assert.Equal(t, 1, summary.DelayedTrips)

	assert.Equal(t, "rt.vehicles.R_1.bus_9", conn.msgs[1].subject)
	var pos PositionMessage
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &pos))
	assert.Equal(t, "trip-1", pos.TripID)
	assert.Equal(t, "bus 9", pos.VehicleID)
	assert.Equal(t, 45.1, pos.Lat)
	assert.Equal(t, 25.0, pos.SpeedKmh)
	assert.Equal(t, time.Unix(1_700_000_010, 0).UTC(), pos.Timestamp)
}

func TestPublishErrorsCounted(t *testing.T) {
	conn := &fakeConn{err: errors.New("no responders")}
	m := &countingMetrics{}
	p := New(conn, "", false, m)

	err := p.Publish(context.Background(), snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transit.snapshot")
	assert.Equal(t, 2, m.errs)
}

func TestPublishNotice(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "city", false, nil)
	require.NoError(t, p.PublishNotice(realtime.Notice{Level: realtime.LevelWarning, Message: "down"}))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "city.notices", conn.msgs[0].subject)
	assert.Equal(t, "nats", p.Name())
}
