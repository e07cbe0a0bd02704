package quirk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-realtime/internal/realtime"
)

func raw() RawTrip {
	return RawTrip{
		TripID:      realtime.Some("X"),
		StartDate:   realtime.Some("Y"),
		RouteID:     realtime.Some("Z"),
		DirectionID: realtime.Some("W"),
	}
}

func TestShuffledTripRemap(t *testing.T) {
	a, err := Lookup(ShuffledTripV1)
	require.NoError(t, err)

	assert.Equal(t, realtime.TripDescriptor{
		TripID:    realtime.Some("X"),
		RouteID:   realtime.Some("Y"),
		StartTime: realtime.Some("Z"),
		StartDate: realtime.Some("W"),
	}, a.VehicleTrip(raw()))
}

func TestStandardMapping(t *testing.T) {
	a, err := Lookup("")
	require.NoError(t, err)
	assert.Equal(t, Standard, a.Name())

	in := raw()
	in.DirectionID = realtime.Some("1")
	in.StartTime = realtime.Some("08:31:00")

	assert.Equal(t, realtime.TripDescriptor{
		TripID:      realtime.Some("X"),
		RouteID:     realtime.Some("Z"),
		DirectionID: realtime.Some[uint32](1),
		StartTime:   realtime.Some("08:31:00"),
		StartDate:   realtime.Some("Y"),
	}, a.VehicleTrip(in))
}

func TestStandardDropsNonNumericDirection(t *testing.T) {
	a, _ := Lookup(Standard)
	assert.False(t, a.VehicleTrip(raw()).DirectionID.Valid)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("swapped-everything")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	a, err := Lookup("  Shuffled-Trip-V1 ")
	require.NoError(t, err)
	assert.Equal(t, ShuffledTripV1, a.Name())
}
