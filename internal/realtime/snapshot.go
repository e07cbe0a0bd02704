package realtime

import (
	"fmt"
	"sort"
	"time"

	"github.com/jinzhu/copier"
)

// Source tells consumers where a feed kind's records came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
	SourceEmpty    Source = "empty"
)

// FeedSnapshot is the decoded, and possibly simulated, state of all three
// feed kinds at one point in time.
type FeedSnapshot struct {
	TripUpdates      []TripUpdate      `json:"tripUpdates"`
	VehiclePositions []VehiclePosition `json:"vehiclePositions"`
	Alerts           []Alert           `json:"alerts"`

	Sources    map[Kind]Source `json:"sources"`
	FetchedAt  time.Time       `json:"fetchedAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Simulated  bool            `json:"simulated"`
	Generation uint64          `json:"generation"`
}

// Empty reports whether no feed kind holds any record.
func (s *FeedSnapshot) Empty() bool {
	return len(s.TripUpdates) == 0 && len(s.VehiclePositions) == 0 && len(s.Alerts) == 0
}

// Clone returns a deep copy that shares no slices, maps or pointers with s.
func (s *FeedSnapshot) Clone() (FeedSnapshot, error) {
	var out FeedSnapshot
	if err := copier.CopyWithOption(&out, s, copier.Option{DeepCopy: true}); err != nil {
		return FeedSnapshot{}, fmt.Errorf("clone snapshot: %w", err)
	}
	return out, nil
}

// Vehicle looks up a vehicle position by entity id.
func (s *FeedSnapshot) Vehicle(id string) (VehiclePosition, bool) {
	for _, v := range s.VehiclePositions {
		if v.ID == id {
			return v, true
		}
	}
	return VehiclePosition{}, false
}

// VehiclesOnRoute returns the vehicles serving routeID; an empty routeID
// returns every vehicle.
func (s *FeedSnapshot) VehiclesOnRoute(routeID string) []VehiclePosition {
	if routeID == "" {
		return s.VehiclePositions
	}
	out := make([]VehiclePosition, 0)
	for _, v := range s.VehiclePositions {
		if v.RouteID() == routeID {
			out = append(out, v)
		}
	}
	return out
}

// AlertsFor returns alerts touching the route or stop; with both empty it
// returns every alert.
func (s *FeedSnapshot) AlertsFor(routeID, stopID string) []Alert {
	if routeID == "" && stopID == "" {
		return s.Alerts
	}
	out := make([]Alert, 0)
	for i := range s.Alerts {
		if s.Alerts[i].Affects(routeID, stopID) {
			out = append(out, s.Alerts[i])
		}
	}
	return out
}

// DelayedTrips returns trips running late, most delayed first, capped at
// limit when limit > 0.
func (s *FeedSnapshot) DelayedTrips(limit int) []TripUpdate {
	out := make([]TripUpdate, 0)
	for i := range s.TripUpdates {
		if d := s.TripUpdates[i].EffectiveDelay(); d.Valid && d.V > 0 {
			out = append(out, s.TripUpdates[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveDelay().V > out[j].EffectiveDelay().V
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Level is the severity of a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient, non-blocking message for the people watching the
// dashboard.
type Notice struct {
	Level   Level     `json:"level"`
	Kind    Kind      `json:"kind,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})
