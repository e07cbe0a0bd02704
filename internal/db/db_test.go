package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-realtime/internal/realtime"
)

func TestWithDBName(t *testing.T) {
	got, err := WithDBName("postgres://u:p@localhost:5432/postgres?sslmode=disable", "archive")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/archive?sslmode=disable", got)

	got, err = WithDBName("u:p@db:5432/x", "/rt")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/rt", got)

	_, err = WithDBName("", "x")
	assert.Error(t, err)

	_, err = WithDBName("mysql://u@h/x", "y")
	assert.ErrorContains(t, err, "unsupported DSN scheme")
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is about 111.2 km.
	assert.InDelta(t, 111195, haversine(45, 7, 46, 7), 50)
	assert.Zero(t, haversine(45, 7, 45, 7))
}

func TestBearing(t *testing.T) {
	north := bearingDeg(TrackPoint{Lat: 45, Lon: 7}, TrackPoint{Lat: 46, Lon: 7})
	east := bearingDeg(TrackPoint{Lat: 0, Lon: 7}, TrackPoint{Lat: 0, Lon: 8})
	west := bearingDeg(TrackPoint{Lat: 0, Lon: 8}, TrackPoint{Lat: 0, Lon: 7})
	assert.InDelta(t, 0, north, 1e-6)
	assert.InDelta(t, 90, east, 1e-6)
	assert.InDelta(t, 270, west, 1e-6)
}

func TestSummarize(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	pts := []TrackPoint{
		{Lat: 0, Lon: 7, RecordedAt: t0},
		{Lat: 0, Lon: 7.01, RecordedAt: t0.Add(60 * time.Second)},
		{Lat: 0, Lon: 7.02, RecordedAt: t0.Add(120 * time.Second)},
	}
	s := Summarize(pts)
	assert.Equal(t, 3, s.Points)
	assert.InDelta(t, 2224, s.DistanceMeters, 5)
	assert.InDelta(t, 2224/120.0*3.6, s.AvgSpeedKmh, 0.5)
	assert.InDelta(t, 90, s.Heading, 1e-3)

	assert.Equal(t, TrackSummary{Points: 1}, Summarize(pts[:1]))
	assert.Nil(t, CumDistances(nil))
}

func TestVehicleKey(t *testing.T) {
	v := realtime.VehiclePosition{ID: "entity-1"}
	assert.Equal(t, "entity-1", VehicleKey(&v))
	v.Vehicle = &realtime.VehicleDescriptor{ID: realtime.Some("bus-9")}
	assert.Equal(t, "bus-9", VehicleKey(&v))
}
