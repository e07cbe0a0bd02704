// Package sim runs the simulation mode: a bounded random walk over a decoded
// snapshot that keeps consumers moving when no live push updates arrive.
// Simulated snapshots are always flagged so they are never mistaken for live
// telemetry.
package sim

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"transit-realtime/internal/clock"
	"transit-realtime/internal/realtime"
)

const (
	DefaultSpeed = 30.0
	MaxSpeed     = 80.0

	coordJitter   = 0.0001
	speedJitter   = 10.0
	bearingJitter = 20.0
	delayJitter   = 30
	walkChance    = 0.3
)

// Engine perturbs snapshots. Each engine owns its random source, so separate
// engines never correlate.
type Engine struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock clock.Clock
}

// NewEngine seeds the engine; seed 0 picks a random seed.
func NewEngine(seed uint64, c clock.Clock) *Engine {
	if seed == 0 {
		seed = rand.Uint64()
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Engine{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), clock: c}
}

// Step advances every vehicle and trip by one tick and prunes alerts that are
// no longer live. snap is modified in place.
func (e *Engine) Step(snap *realtime.FeedSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	for i := range snap.VehiclePositions {
		e.vehicle(&snap.VehiclePositions[i], now)
	}
	for i := range snap.TripUpdates {
		e.trip(&snap.TripUpdates[i], now)
	}
	snap.Alerts = PruneAlerts(snap.Alerts, now)
	snap.Simulated = true
	snap.UpdatedAt = now
}

func (e *Engine) vehicle(v *realtime.VehiclePosition, now time.Time) {
	v.Timestamp = realtime.Some(now.Unix())

	// Coordinates are never invented; speed and bearing always tick.
	if v.Position == nil {
		v.Position = &realtime.Position{}
	}
	p := v.Position
	if lat, ok := p.Latitude.Get(); ok {
		p.Latitude = realtime.Some(lat + e.jitter(coordJitter))
	}
	if lon, ok := p.Longitude.Get(); ok {
		p.Longitude = realtime.Some(lon + e.jitter(coordJitter))
	}
	p.Speed = realtime.Some(ClampSpeed(p.Speed.Or(DefaultSpeed) + e.jitter(speedJitter)))
	p.Bearing = realtime.Some(WrapBearing(p.Bearing.Or(0) + e.jitter(bearingJitter)))

	occ := v.OccupancyStatus.Or(realtime.OccupancyEmpty)
	if occ != realtime.OccupancyNotApplicable {
		v.OccupancyStatus = realtime.Some(walk(realtime.OccupancyWalk, occ, e.step()))
	}

	cong := v.CongestionLevel.Or(realtime.CongestionRunningSmoothly)
	if cong == realtime.CongestionUnknown {
		cong = realtime.CongestionRunningSmoothly
	}
	v.CongestionLevel = realtime.Some(walk(realtime.CongestionWalk, cong, e.step()))
}

func (e *Engine) trip(t *realtime.TripUpdate, now time.Time) {
	delay := t.EffectiveDelay().Or(0) + int32(e.rng.IntN(2*delayJitter)) - delayJitter
	t.SetDelay(delay)
	t.Timestamp = realtime.Some(now.Unix())
}

// jitter returns a uniform value in [-width/2, width/2).
func (e *Engine) jitter(width float64) float64 {
	return (e.rng.Float64() - 0.5) * width
}

// step returns the walk move for one tick: 0 most of the time, else ±1.
func (e *Engine) step() int {
	if e.rng.Float64() >= walkChance {
		return 0
	}
	if e.rng.IntN(2) == 0 {
		return -1
	}
	return 1
}

// walk moves cur by delta positions along order, clamped to its ends. Values
// outside order are returned unchanged.
func walk[T comparable](order []T, cur T, delta int) T {
	idx := -1
	for i, v := range order {
		if v == cur {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cur
	}
	idx = max(0, min(len(order)-1, idx+delta))
	return order[idx]
}

func ClampSpeed(s float64) float64 {
	return math.Max(0, math.Min(MaxSpeed, s))
}

// WrapBearing maps any angle into [0, 360).
func WrapBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

// PruneAlerts drops alerts that are not live at now. The input slice is not
// modified.
func PruneAlerts(alerts []realtime.Alert, now time.Time) []realtime.Alert {
	out := make([]realtime.Alert, 0, len(alerts))
	for i := range alerts {
		if alerts[i].LiveAt(now.Unix()) {
			out = append(out, alerts[i])
		}
	}
	return out
}
