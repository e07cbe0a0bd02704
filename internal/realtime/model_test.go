package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertLiveness(t *testing.T) {
	a := Alert{ID: "a1", ActivePeriod: []TimeRange{{Start: Some[int64](100), End: Some[int64](200)}}}

	for _, now := range []int64{100, 150, 200} {
		assert.True(t, a.LiveAt(now), "now=%d", now)
	}
	assert.False(t, a.LiveAt(99))
	assert.False(t, a.LiveAt(201))
}

func TestAlertLivenessDefaults(t *testing.T) {
	noPeriods := Alert{ID: "a"}
	assert.True(t, noPeriods.LiveAt(0))
	assert.True(t, noPeriods.LiveAt(1<<40))

	openEnded := Alert{ActivePeriod: []TimeRange{{Start: Some[int64](10)}}}
	assert.False(t, openEnded.LiveAt(9))
	assert.True(t, openEnded.LiveAt(1<<40))

	noStart := Alert{ActivePeriod: []TimeRange{{End: Some[int64](10)}}}
	assert.True(t, noStart.LiveAt(0))
	assert.False(t, noStart.LiveAt(11))
}

func TestAlertLiveInAnyPeriod(t *testing.T) {
	a := Alert{ActivePeriod: []TimeRange{
		{Start: Some[int64](0), End: Some[int64](10)},
		{Start: Some[int64](100), End: Some[int64](200)},
	}}
	assert.True(t, a.LiveAt(150))
	assert.False(t, a.LiveAt(50))
}

func TestEffectiveDelay(t *testing.T) {
	tu := TripUpdate{}
	assert.False(t, tu.EffectiveDelay().Valid)

	tu.StopTimeUpdate = []StopTimeUpdate{{Arrival: &StopTimeEvent{Delay: Some[int32](45)}}}
	assert.Equal(t, Some[int32](45), tu.EffectiveDelay())

	tu.Delay = Some[int32](-10)
	assert.Equal(t, Some[int32](-10), tu.EffectiveDelay())
}

func TestSetDelayWritesNextStop(t *testing.T) {
	tu := TripUpdate{StopTimeUpdate: []StopTimeUpdate{{StopID: Some("S1")}, {StopID: Some("S2")}}}
	tu.SetDelay(75)

	assert.Equal(t, Some[int32](75), tu.Delay)
	require.NotNil(t, tu.StopTimeUpdate[0].Arrival)
	require.NotNil(t, tu.StopTimeUpdate[0].Departure)
	assert.Equal(t, Some[int32](75), tu.StopTimeUpdate[0].Arrival.Delay)
	assert.Equal(t, Some[int32](75), tu.StopTimeUpdate[0].Departure.Delay)
	assert.Nil(t, tu.StopTimeUpdate[1].Arrival)
}

func TestOptionalJSON(t *testing.T) {
	b, err := json.Marshal(TripDescriptor{TripID: Some("111")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"trip_id":"111","route_id":null,"direction_id":null,"start_time":null,"start_date":null}`, string(b))

	var td TripDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"trip_id":"X","direction_id":1,"route_id":null}`), &td))
	assert.Equal(t, Some("X"), td.TripID)
	assert.Equal(t, Some[uint32](1), td.DirectionID)
	assert.False(t, td.RouteID.Valid)
}

func TestParseEnums(t *testing.T) {
	assert.Equal(t, StopStatusUnknown, ParseStopStatus(""))
	assert.Equal(t, StopStatusAtPlatform, ParseStopStatus("AT_PLATFORM"))
	assert.Equal(t, StopStatusStoppedAtStation, ParseStopStatus("STOPPED_AT"))
	assert.Equal(t, StopStatusInTransitTo, ParseStopStatus("INCOMING_AT"))
	assert.Equal(t, CongestionUnknown, ParseCongestionLevel("GRIDLOCK"))

	_, ok := ParseOccupancyStatus("NO_DATA_AVAILABLE")
	assert.False(t, ok)
	o, ok := ParseOccupancyStatus("FULL")
	assert.True(t, ok)
	assert.Equal(t, OccupancyFull, o)
}
