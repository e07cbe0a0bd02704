// Package fallback supplies placeholder trip updates and alerts when a feed
// comes back empty, so consumers always have something to render during
// demos and offline development. Placeholder ids carry the "fallback-" prefix.
package fallback

import (
	"time"

	"transit-realtime/internal/realtime"
)

const Prefix = "fallback-"

// Synthesizer builds deterministic placeholders relative to a reference time.
type Synthesizer struct{}

func New() *Synthesizer { return &Synthesizer{} }

// TripUpdates returns decoded unchanged when it holds any record, otherwise
// one on-time and one delayed placeholder trip. The bool reports whether
// placeholders were used.
func (s *Synthesizer) TripUpdates(decoded []realtime.TripUpdate, now time.Time) ([]realtime.TripUpdate, bool) {
	if len(decoded) > 0 {
		return decoded, false
	}
	ts := now.Unix()
	return []realtime.TripUpdate{
		placeholderTrip("trip-1", "BUS-A", "STOP-101", "V-101", "Bus A", 0, ts),
		placeholderTrip("trip-2", "TRAM-4", "STOP-204", "V-204", "Tram 4", 240, ts),
	}, true
}

func placeholderTrip(suffix, route, stop, vehicle, label string, delay int32, ts int64) realtime.TripUpdate {
	return realtime.TripUpdate{
		ID: Prefix + suffix,
		Trip: realtime.TripDescriptor{
			TripID:  realtime.Some(Prefix + suffix),
			RouteID: realtime.Some(route),
		},
		Vehicle: &realtime.VehicleDescriptor{
			ID:    realtime.Some(vehicle),
			Label: realtime.Some(label),
		},
		StopTimeUpdate: []realtime.StopTimeUpdate{{
			StopSequence: realtime.Some[uint32](1),
			StopID:       realtime.Some(stop),
			Arrival:      &realtime.StopTimeEvent{Delay: realtime.Some(delay), Time: realtime.Some(ts + 120 + int64(delay))},
			Departure:    &realtime.StopTimeEvent{Delay: realtime.Some(delay), Time: realtime.Some(ts + 150 + int64(delay))},
		}},
		Timestamp: realtime.Some(ts),
		Delay:     realtime.Some(delay),
	}
}

// Alerts returns decoded unchanged when it holds any record, otherwise a
// route-level detour and a maintenance stop move, both live at now.
func (s *Synthesizer) Alerts(decoded []realtime.Alert, now time.Time) ([]realtime.Alert, bool) {
	if len(decoded) > 0 {
		return decoded, false
	}
	ts := now.Unix()
	return []realtime.Alert{
		{
			ID:           Prefix + "alert-1",
			ActivePeriod: []realtime.TimeRange{{Start: realtime.Some(ts - 3600), End: realtime.Some(ts + 3600)}},
			InformedEntity: []realtime.EntitySelector{{
				RouteID:   realtime.Some("BUS-A"),
				RouteType: realtime.Some[int32](3),
			}},
			Cause:           realtime.Some("ACCIDENT"),
			Effect:          realtime.Some("DETOUR"),
			HeaderText:      english("Route BUS-A detoured"),
			DescriptionText: english("Buses on route BUS-A are detoured around an accident. Expect longer journey times."),
		},
		{
			ID:           Prefix + "alert-2",
			ActivePeriod: []realtime.TimeRange{{Start: realtime.Some(ts - 1800), End: realtime.Some(ts + 7200)}},
			InformedEntity: []realtime.EntitySelector{{
				RouteID:   realtime.Some("TRAM-4"),
				RouteType: realtime.Some[int32](0),
				StopID:    realtime.Some("STOP-204"),
			}},
			Cause:           realtime.Some("MAINTENANCE"),
			Effect:          realtime.Some("STOP_MOVED"),
			HeaderText:      english("Tram 4 stop moved"),
			DescriptionText: english("The STOP-204 platform is temporarily moved 50 metres south during track maintenance."),
		},
	}, true
}

func english(s string) *realtime.TranslatedString {
	return &realtime.TranslatedString{Translation: []realtime.Translation{{Text: s, Language: realtime.Some("en")}}}
}
