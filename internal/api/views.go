package api

import (
	"time"

	"transit-realtime/internal/format"
	"transit-realtime/internal/realtime"
)

// TripView is a trip update plus its display labels.
type TripView struct {
	realtime.TripUpdate
	EffectiveDelay realtime.Optional[int32] `json:"effective_delay"`
	DelayLabel     string                   `json:"delay_label"`
	DelayBadge     format.Badge             `json:"delay_badge"`
	NextStop       string                   `json:"next_stop"`
	Updated        string                   `json:"updated"`
	Placeholder    bool                     `json:"placeholder"`
}

type VehicleView struct {
	realtime.VehiclePosition
	Route           string       `json:"route_id"`
	StatusLabel     string       `json:"status_label"`
	CongestionLabel string       `json:"congestion_label"`
	CongestionBadge format.Badge `json:"congestion_badge"`
	Icon            format.Icon  `json:"icon"`
	Clock           string       `json:"clock"`
	Updated         string       `json:"updated"`
}

type AlertView struct {
	realtime.Alert
	Header      string      `json:"header"`
	Description string      `json:"description"`
	Active      bool        `json:"active"`
	Icon        format.Icon `json:"icon"`
	Placeholder bool        `json:"placeholder"`
}

type SnapshotView struct {
	Generation uint64                            `json:"generation"`
	Simulated  bool                              `json:"simulated"`
	FetchedAt  time.Time                         `json:"fetched_at"`
	UpdatedAt  time.Time                         `json:"updated_at"`
	Sources    map[realtime.Kind]realtime.Source `json:"sources"`
	Trips      []TripView                        `json:"trips"`
	Vehicles   []VehicleView                     `json:"vehicles"`
	Alerts     []AlertView                       `json:"alerts"`
}

// labeler renders views against one reference time and zone.
type labeler struct {
	now time.Time
	loc *time.Location
}

func (l labeler) trip(tu realtime.TripUpdate) TripView {
	d := tu.EffectiveDelay()
	v := TripView{
		TripUpdate:     tu,
		EffectiveDelay: d,
		DelayLabel:     format.Delay(d),
		DelayBadge:     format.DelayBadge(d),
		NextStop:       format.NotAvailable,
		Updated:        format.RelativeTime(tu.Timestamp, l.now),
		Placeholder:    isPlaceholder(tu.ID),
	}
	if len(tu.StopTimeUpdate) > 0 {
		v.NextStop = tu.StopTimeUpdate[0].StopID.Or(format.NotAvailable)
	}
	return v
}

func (l labeler) vehicle(vp realtime.VehiclePosition) VehicleView {
	return VehicleView{
		VehiclePosition: vp,
		Route:           vp.RouteID(),
		StatusLabel:     format.VehicleStatus(vp.CurrentStatus, vp.OccupancyStatus),
		CongestionLabel: format.CongestionLabel(vp.CongestionLevel),
		CongestionBadge: format.CongestionBadge(vp.CongestionLevel),
		Icon:            format.RouteTypeIcon(vp.RouteID(), realtime.None[int32]()),
		Clock:           format.Clock(vp.Timestamp, l.loc),
		Updated:         format.RelativeTime(vp.Timestamp, l.now),
	}
}

func (l labeler) alert(a realtime.Alert) AlertView {
	route := ""
	for _, e := range a.InformedEntity {
		if r, ok := e.RouteID.Get(); ok {
			route = r
			break
		}
	}
	return AlertView{
		Alert:       a,
		Header:      a.HeaderText.Text(),
		Description: a.DescriptionText.Text(),
		Active:      a.LiveAt(l.now.Unix()),
		Icon:        format.RouteTypeIcon(route, a.RouteType()),
		Placeholder: isPlaceholder(a.ID),
	}
}

func (l labeler) trips(in []realtime.TripUpdate) []TripView {
	out := make([]TripView, 0, len(in))
	for _, tu := range in {
		out = append(out, l.trip(tu))
	}
	return out
}

func (l labeler) vehicles(in []realtime.VehiclePosition) []VehicleView {
	out := make([]VehicleView, 0, len(in))
	for _, vp := range in {
		out = append(out, l.vehicle(vp))
	}
	return out
}

func (l labeler) alerts(in []realtime.Alert) []AlertView {
	out := make([]AlertView, 0, len(in))
	for _, a := range in {
		out = append(out, l.alert(a))
	}
	return out
}

func (l labeler) snapshot(s realtime.FeedSnapshot) SnapshotView {
	return SnapshotView{
		Generation: s.Generation,
		Simulated:  s.Simulated,
		FetchedAt:  s.FetchedAt,
		UpdatedAt:  s.UpdatedAt,
		Sources:    s.Sources,
		Trips:      l.trips(s.TripUpdates),
		Vehicles:   l.vehicles(s.VehiclePositions),
		Alerts:     l.alerts(s.Alerts),
	}
}
