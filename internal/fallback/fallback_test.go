package fallback

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-realtime/internal/realtime"
)

var now = time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC)

func TestEmptyTripUpdatesSynthesized(t *testing.T) {
	got, used := New().TripUpdates(nil, now)
	require.True(t, used)
	require.Len(t, got, 2)

	var onTime, delayed int
	for _, tu := range got {
		assert.True(t, strings.HasPrefix(tu.ID, Prefix))
		d := tu.EffectiveDelay()
		require.True(t, d.Valid)
		switch {
		case d.V == 0:
			onTime++
		case d.V > 0:
			delayed++
		}
		assert.Equal(t, realtime.Some(now.Unix()), tu.Timestamp)
	}
	assert.Equal(t, 1, onTime)
	assert.Equal(t, 1, delayed)
}

func TestNonEmptyTripUpdatesUntouched(t *testing.T) {
	in := []realtime.TripUpdate{{ID: "live-1", Delay: realtime.Some[int32](42)}}
	got, used := New().TripUpdates(in, now)
	assert.False(t, used)
	assert.Equal(t, in, got)
	assert.Same(t, &in[0], &got[0])
}

func TestEmptyAlertsSynthesized(t *testing.T) {
	got, used := New().Alerts([]realtime.Alert{}, now)
	require.True(t, used)
	require.Len(t, got, 2)

	for _, a := range got {
		assert.True(t, strings.HasPrefix(a.ID, Prefix))
		assert.True(t, a.LiveAt(now.Unix()), a.ID)
		assert.NotEmpty(t, a.HeaderText.Text())
	}
	assert.Equal(t, realtime.Some("DETOUR"), got[0].Effect)
	assert.True(t, got[0].Affects("BUS-A", ""))
	assert.Equal(t, realtime.Some("MAINTENANCE"), got[1].Cause)
	assert.True(t, got[1].Affects("", "STOP-204"))
}

func TestNonEmptyAlertsUntouched(t *testing.T) {
	in := []realtime.Alert{{ID: "a"}}
	got, used := New().Alerts(in, now)
	assert.False(t, used)
	assert.Equal(t, in, got)
}

func TestDeterministic(t *testing.T) {
	a, _ := New().TripUpdates(nil, now)
	b, _ := New().TripUpdates(nil, now)
	assert.Equal(t, a, b)
}
