package decode

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"transit-realtime/internal/quirk"
	"transit-realtime/internal/realtime"
)

// Normalizer maps generic entities to realtime records.
type Normalizer struct {
	quirks quirk.Adapter
}

func NewNormalizer(a quirk.Adapter) *Normalizer {
	if a == nil {
		a, _ = quirk.Lookup(quirk.Standard)
	}
	return &Normalizer{quirks: a}
}

func (n *Normalizer) TripUpdate(e GenericEntity) realtime.TripUpdate {
	p := e.Payload
	tu := realtime.TripUpdate{
		ID:             e.ID,
		StopTimeUpdate: []realtime.StopTimeUpdate{},
		Timestamp:      i64(p, "timestamp"),
		Delay:          i32(p, "delay"),
	}
	if trip, ok := message(p, "trip"); ok {
		tu.Trip = tripDescriptor(trip)
	}
	tu.Vehicle = vehicleDescriptor(p)

	if stus := list(p, "stop_time_update"); stus != nil {
		for i := 0; i < stus.Len(); i++ {
			stu := stus.Get(i).Message()
			tu.StopTimeUpdate = append(tu.StopTimeUpdate, realtime.StopTimeUpdate{
				StopSequence: u32(stu, "stop_sequence"),
				StopID:       str(stu, "stop_id"),
				Arrival:      stopTimeEvent(stu, "arrival"),
				Departure:    stopTimeEvent(stu, "departure"),
			})
		}
	}
	return tu
}

func (n *Normalizer) VehiclePosition(e GenericEntity) realtime.VehiclePosition {
	p := e.Payload
	vp := realtime.VehiclePosition{
		ID:                  e.ID,
		Vehicle:             vehicleDescriptor(p),
		CurrentStopSequence: u32(p, "current_stop_sequence"),
		StopID:              str(p, "stop_id"),
		CurrentStatus:       realtime.ParseStopStatus(enum(p, "current_status").Or("")),
		Timestamp:           i64(p, "timestamp"),
	}
	if trip, ok := message(p, "trip"); ok {
		td := n.quirks.VehicleTrip(quirk.RawTrip{
			TripID:      text(trip, "trip_id"),
			RouteID:     text(trip, "route_id"),
			StartTime:   text(trip, "start_time"),
			StartDate:   text(trip, "start_date"),
			DirectionID: text(trip, "direction_id"),
		})
		vp.Trip = &td
	}
	if pos, ok := message(p, "position"); ok {
		vp.Position = &realtime.Position{
			Latitude:  f64(pos, "latitude"),
			Longitude: f64(pos, "longitude"),
			Bearing:   f64(pos, "bearing"),
			Speed:     f64(pos, "speed"),
		}
	}
	if name, ok := enum(p, "congestion_level").Get(); ok {
		vp.CongestionLevel = realtime.Some(realtime.ParseCongestionLevel(name))
	}
	if name, ok := enum(p, "occupancy_status").Get(); ok {
		if o, ok := realtime.ParseOccupancyStatus(name); ok {
			vp.OccupancyStatus = realtime.Some(o)
		}
	}
	return vp
}

func (n *Normalizer) Alert(e GenericEntity) realtime.Alert {
	p := e.Payload
	a := realtime.Alert{
		ID:              e.ID,
		ActivePeriod:    []realtime.TimeRange{},
		InformedEntity:  []realtime.EntitySelector{},
		Cause:           enum(p, "cause"),
		Effect:          enum(p, "effect"),
		HeaderText:      translated(p, "header_text"),
		DescriptionText: translated(p, "description_text"),
	}
	if periods := list(p, "active_period"); periods != nil {
		for i := 0; i < periods.Len(); i++ {
			tr := periods.Get(i).Message()
			a.ActivePeriod = append(a.ActivePeriod, realtime.TimeRange{Start: i64(tr, "start"), End: i64(tr, "end")})
		}
	}
	if entities := list(p, "informed_entity"); entities != nil {
		for i := 0; i < entities.Len(); i++ {
			ie := entities.Get(i).Message()
			sel := realtime.EntitySelector{
				AgencyID:  str(ie, "agency_id"),
				RouteID:   str(ie, "route_id"),
				RouteType: i32(ie, "route_type"),
				StopID:    str(ie, "stop_id"),
			}
			if trip, ok := message(ie, "trip"); ok {
				td := tripDescriptor(trip)
				sel.Trip = &td
			}
			a.InformedEntity = append(a.InformedEntity, sel)
		}
	}
	return a
}

func tripDescriptor(m protoreflect.Message) realtime.TripDescriptor {
	return realtime.TripDescriptor{
		TripID:      str(m, "trip_id"),
		RouteID:     str(m, "route_id"),
		DirectionID: u32(m, "direction_id"),
		StartTime:   str(m, "start_time"),
		StartDate:   str(m, "start_date"),
	}
}

func vehicleDescriptor(parent protoreflect.Message) *realtime.VehicleDescriptor {
	v, ok := message(parent, "vehicle")
	if !ok {
		return nil
	}
	return &realtime.VehicleDescriptor{
		ID:           str(v, "id"),
		Label:        str(v, "label"),
		LicensePlate: str(v, "license_plate"),
	}
}

func stopTimeEvent(parent protoreflect.Message, name protoreflect.Name) *realtime.StopTimeEvent {
	ev, ok := message(parent, name)
	if !ok {
		return nil
	}
	return &realtime.StopTimeEvent{Delay: i32(ev, "delay"), Time: i64(ev, "time")}
}

func translated(parent protoreflect.Message, name protoreflect.Name) *realtime.TranslatedString {
	ts, ok := message(parent, name)
	if !ok {
		return nil
	}
	out := &realtime.TranslatedString{Translation: []realtime.Translation{}}
	if tr := list(ts, "translation"); tr != nil {
		for i := 0; i < tr.Len(); i++ {
			t := tr.Get(i).Message()
			out.Translation = append(out.Translation, realtime.Translation{
				Text:     str(t, "text").Or(""),
				Language: str(t, "language"),
			})
		}
	}
	return out
}
