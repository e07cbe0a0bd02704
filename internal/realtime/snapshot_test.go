package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() FeedSnapshot {
	return FeedSnapshot{
		TripUpdates: []TripUpdate{
			{ID: "t1", Delay: Some[int32](30)},
			{ID: "t2", Delay: Some[int32](-20)},
			{ID: "t3", StopTimeUpdate: []StopTimeUpdate{{Arrival: &StopTimeEvent{Delay: Some[int32](300)}}}},
			{ID: "t4"},
		},
		VehiclePositions: []VehiclePosition{
			{ID: "v1", Trip: &TripDescriptor{RouteID: Some("4")}, Position: &Position{Speed: Some(20.0)}},
			{ID: "v2", Trip: &TripDescriptor{RouteID: Some("68")}},
		},
		Alerts: []Alert{
			{ID: "a1", InformedEntity: []EntitySelector{{RouteID: Some("4")}}},
			{ID: "a2", InformedEntity: []EntitySelector{{StopID: Some("S9")}}},
		},
		Sources:   map[Kind]Source{KindTripUpdate: SourceLive},
		FetchedAt: time.Unix(1700000000, 0),
	}
}

func TestCloneIsIndependent(t *testing.T) {
	snap := sampleSnapshot()
	clone, err := snap.Clone()
	require.NoError(t, err)
	require.Len(t, clone.TripUpdates, 4)
	require.Len(t, clone.VehiclePositions, 2)
	assert.Equal(t, "t3", clone.TripUpdates[2].ID)
	assert.Equal(t, Some(20.0), clone.VehiclePositions[0].Position.Speed)
	assert.Equal(t, SourceLive, clone.Sources[KindTripUpdate])
	assert.True(t, snap.FetchedAt.Equal(clone.FetchedAt))

	clone.VehiclePositions[0].Position.Speed = Some(75.0)
	clone.TripUpdates[2].StopTimeUpdate[0].Arrival.Delay = Some[int32](0)
	clone.Sources[KindAlert] = SourceFallback
	clone.Alerts = clone.Alerts[:1]

	assert.Equal(t, Some(20.0), snap.VehiclePositions[0].Position.Speed)
	assert.Equal(t, Some[int32](300), snap.TripUpdates[2].StopTimeUpdate[0].Arrival.Delay)
	assert.NotContains(t, snap.Sources, KindAlert)
	assert.Len(t, snap.Alerts, 2)
}

func TestDelayedTrips(t *testing.T) {
	snap := sampleSnapshot()

	delayed := snap.DelayedTrips(0)
	require.Len(t, delayed, 2)
	assert.Equal(t, "t3", delayed[0].ID)
	assert.Equal(t, "t1", delayed[1].ID)

	assert.Len(t, snap.DelayedTrips(1), 1)
}

func TestFilters(t *testing.T) {
	snap := sampleSnapshot()

	assert.Len(t, snap.VehiclesOnRoute(""), 2)
	onRoute := snap.VehiclesOnRoute("68")
	require.Len(t, onRoute, 1)
	assert.Equal(t, "v2", onRoute[0].ID)

	assert.Len(t, snap.AlertsFor("", ""), 2)
	assert.Equal(t, "a1", snap.AlertsFor("4", "")[0].ID)
	assert.Equal(t, "a2", snap.AlertsFor("", "S9")[0].ID)
	assert.Empty(t, snap.AlertsFor("99", ""))

	v, ok := snap.Vehicle("v1")
	assert.True(t, ok)
	assert.Equal(t, "4", v.RouteID())
	_, ok = snap.Vehicle("nope")
	assert.False(t, ok)
}
