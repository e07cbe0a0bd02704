// Package quirk holds compatibility shims for upstream feeds that misplace
// fields. The general decode path stays standards-correct; a shim is picked
// per feed source by profile name and can be dropped once the upstream is
// fixed.
package quirk

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"transit-realtime/internal/realtime"
)

const (
	Standard = "standard"
	// ShuffledTripV1 matches a vehicle-position feed observed sending the
	// route id in start_date, the start time in route_id and the service date
	// in direction_id.
	ShuffledTripV1 = "shuffled-trip-v1"
)

var ErrUnknownProfile = errors.New("unknown quirk profile")

// RawTrip is a vehicle's trip descriptor as decoded, each scalar rendered as
// text so a shim can move values between fields of different types.
type RawTrip struct {
	TripID      realtime.Optional[string]
	RouteID     realtime.Optional[string]
	StartTime   realtime.Optional[string]
	StartDate   realtime.Optional[string]
	DirectionID realtime.Optional[string]
}

// Adapter maps a raw vehicle trip descriptor to the normalized one.
type Adapter interface {
	Name() string
	VehicleTrip(RawTrip) realtime.TripDescriptor
}

var profiles = map[string]Adapter{
	Standard:       standard{},
	ShuffledTripV1: shuffledTrip{},
}

// Lookup returns the adapter for a profile name; "" means Standard.
func Lookup(name string) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = Standard
	}
	a, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProfile, name, strings.Join(Names(), ", "))
	}
	return a, nil
}

// Names lists the registered profiles.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type standard struct{}

func (standard) Name() string { return Standard }

func (standard) VehicleTrip(raw RawTrip) realtime.TripDescriptor {
	td := realtime.TripDescriptor{
		TripID:    raw.TripID,
		RouteID:   raw.RouteID,
		StartTime: raw.StartTime,
		StartDate: raw.StartDate,
	}
	if s, ok := raw.DirectionID.Get(); ok {
		if d, err := strconv.ParseUint(s, 10, 32); err == nil {
			td.DirectionID = realtime.Some(uint32(d))
		}
	}
	return td
}

type shuffledTrip struct{}

func (shuffledTrip) Name() string { return ShuffledTripV1 }

// direction_id carries the service date here, so the real direction is lost.
func (shuffledTrip) VehicleTrip(raw RawTrip) realtime.TripDescriptor {
	return realtime.TripDescriptor{
		TripID:    raw.TripID,
		RouteID:   raw.StartDate,
		StartTime: raw.RouteID,
		StartDate: raw.DirectionID,
	}
}
