package realtime

import "math"

type TripDescriptor struct {
	TripID      Optional[string] `json:"trip_id"`
	RouteID     Optional[string] `json:"route_id"`
	DirectionID Optional[uint32] `json:"direction_id"`
	StartTime   Optional[string] `json:"start_time"`
	StartDate   Optional[string] `json:"start_date"`
}

type VehicleDescriptor struct {
	ID           Optional[string] `json:"id"`
	Label        Optional[string] `json:"label"`
	LicensePlate Optional[string] `json:"license_plate"`
}

type StopTimeEvent struct {
	Delay Optional[int32] `json:"delay"`
	Time  Optional[int64] `json:"time"`
}

// StopTimeUpdate keeps the feed's order; the first one is the next stop.
type StopTimeUpdate struct {
	StopSequence Optional[uint32] `json:"stop_sequence"`
	StopID       Optional[string] `json:"stop_id"`
	Arrival      *StopTimeEvent   `json:"arrival,omitempty"`
	Departure    *StopTimeEvent   `json:"departure,omitempty"`
}

type TripUpdate struct {
	ID             string             `json:"id"`
	Trip           TripDescriptor     `json:"trip"`
	Vehicle        *VehicleDescriptor `json:"vehicle,omitempty"`
	StopTimeUpdate []StopTimeUpdate   `json:"stop_time_update"`
	Timestamp      Optional[int64]    `json:"timestamp"`
	// Delay is deprecated in the schema but still sent by some producers.
	Delay Optional[int32] `json:"delay"`
}

// EffectiveDelay is the top-level delay, falling back to the next stop's
// arrival delay.
func (t *TripUpdate) EffectiveDelay() Optional[int32] {
	if t.Delay.Valid {
		return t.Delay
	}
	if len(t.StopTimeUpdate) > 0 && t.StopTimeUpdate[0].Arrival != nil {
		return t.StopTimeUpdate[0].Arrival.Delay
	}
	return None[int32]()
}

// SetDelay writes delay to the top-level field and to the next stop's
// arrival and departure events.
func (t *TripUpdate) SetDelay(delay int32) {
	t.Delay = Some(delay)
	if len(t.StopTimeUpdate) == 0 {
		return
	}
	next := &t.StopTimeUpdate[0]
	if next.Arrival == nil {
		next.Arrival = &StopTimeEvent{}
	}
	if next.Departure == nil {
		next.Departure = &StopTimeEvent{}
	}
	next.Arrival.Delay = Some(delay)
	next.Departure.Delay = Some(delay)
}

type Position struct {
	Latitude  Optional[float64] `json:"latitude"`
	Longitude Optional[float64] `json:"longitude"`
	// Bearing is in degrees, 0 = north, wrapping at 360.
	Bearing Optional[float64] `json:"bearing"`
	// Speed is reported in km/h.
	Speed Optional[float64] `json:"speed"`
}

type VehiclePosition struct {
	ID                  string                    `json:"id"`
	Trip                *TripDescriptor           `json:"trip,omitempty"`
	Vehicle             *VehicleDescriptor        `json:"vehicle,omitempty"`
	Position            *Position                 `json:"position,omitempty"`
	CurrentStopSequence Optional[uint32]          `json:"current_stop_sequence"`
	StopID              Optional[string]          `json:"stop_id"`
	CurrentStatus       StopStatus                `json:"current_status"`
	Timestamp           Optional[int64]           `json:"timestamp"`
	CongestionLevel     Optional[CongestionLevel] `json:"congestion_level"`
	OccupancyStatus     Optional[OccupancyStatus] `json:"occupancy_status"`
}

// RouteID returns the route the vehicle serves, if known.
func (v *VehiclePosition) RouteID() string {
	if v.Trip == nil {
		return ""
	}
	return v.Trip.RouteID.Or("")
}

type TimeRange struct {
	Start Optional[int64] `json:"start"`
	End   Optional[int64] `json:"end"`
}

// Contains reports whether now lies in [start, end]. A missing start means
// 0, a missing end means no end.
func (r TimeRange) Contains(now int64) bool {
	start := r.Start.Or(0)
	end := r.End.Or(math.MaxInt64)
	return now >= start && now <= end
}

type EntitySelector struct {
	AgencyID  Optional[string] `json:"agency_id"`
	RouteID   Optional[string] `json:"route_id"`
	RouteType Optional[int32]  `json:"route_type"`
	StopID    Optional[string] `json:"stop_id"`
	Trip      *TripDescriptor  `json:"trip,omitempty"`
}

type Translation struct {
	Text     string           `json:"text"`
	Language Optional[string] `json:"language"`
}

type TranslatedString struct {
	Translation []Translation `json:"translation"`
}

// Text returns the first translation, which is what consumers display.
func (s *TranslatedString) Text() string {
	if s == nil || len(s.Translation) == 0 {
		return ""
	}
	return s.Translation[0].Text
}

type Alert struct {
	ID              string            `json:"id"`
	ActivePeriod    []TimeRange       `json:"active_period"`
	InformedEntity  []EntitySelector  `json:"informed_entity"`
	Cause           Optional[string]  `json:"cause"`
	Effect          Optional[string]  `json:"effect"`
	HeaderText      *TranslatedString `json:"header_text,omitempty"`
	DescriptionText *TranslatedString `json:"description_text,omitempty"`
}

// LiveAt reports whether the alert is active at now (epoch seconds). An alert
// without active periods is always live.
func (a *Alert) LiveAt(now int64) bool {
	if len(a.ActivePeriod) == 0 {
		return true
	}
	for _, p := range a.ActivePeriod {
		if p.Contains(now) {
			return true
		}
	}
	return false
}

// Affects reports whether any informed entity names the route or stop.
// Empty arguments match nothing.
func (a *Alert) Affects(routeID, stopID string) bool {
	for _, e := range a.InformedEntity {
		if routeID != "" && e.RouteID.Valid && e.RouteID.V == routeID {
			return true
		}
		if routeID != "" && e.Trip != nil && e.Trip.RouteID.Valid && e.Trip.RouteID.V == routeID {
			return true
		}
		if stopID != "" && e.StopID.Valid && e.StopID.V == stopID {
			return true
		}
	}
	return false
}

// RouteType returns the first route_type named by the informed entities.
func (a *Alert) RouteType() Optional[int32] {
	for _, e := range a.InformedEntity {
		if e.RouteType.Valid {
			return e.RouteType
		}
	}
	return None[int32]()
}
