// Package encode renders snapshots back into GTFS-realtime feed messages so
// downstream tools can consume the current, possibly simulated, state.
package encode

import (
	"fmt"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transit-realtime/internal/realtime"
)

const Version = "2.0"

// Feed builds a full-dataset feed message holding the given kind's records.
func Feed(snap *realtime.FeedSnapshot, kind realtime.Kind) (*gtfs.FeedMessage, error) {
	incr := gtfs.FeedHeader_FULL_DATASET
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(Version),
			Incrementality:      &incr,
		},
	}
	if !snap.UpdatedAt.IsZero() {
		msg.Header.Timestamp = proto.Uint64(uint64(snap.UpdatedAt.Unix()))
	}

	switch kind {
	case realtime.KindTripUpdate:
		for i := range snap.TripUpdates {
			tu := &snap.TripUpdates[i]
			msg.Entity = append(msg.Entity, &gtfs.FeedEntity{Id: proto.String(tu.ID), TripUpdate: tripUpdate(tu)})
		}
	case realtime.KindVehiclePosition:
		for i := range snap.VehiclePositions {
			vp := &snap.VehiclePositions[i]
			msg.Entity = append(msg.Entity, &gtfs.FeedEntity{Id: proto.String(vp.ID), Vehicle: vehiclePosition(vp)})
		}
	case realtime.KindAlert:
		for i := range snap.Alerts {
			a := &snap.Alerts[i]
			msg.Entity = append(msg.Entity, &gtfs.FeedEntity{Id: proto.String(a.ID), Alert: alert(a)})
		}
	default:
		return nil, fmt.Errorf("unknown feed kind %q", kind)
	}
	return msg, nil
}

// Marshal encodes the kind's records as protobuf bytes.
func Marshal(snap *realtime.FeedSnapshot, kind realtime.Kind) ([]byte, error) {
	msg, err := Feed(snap, kind)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s feed: %w", kind, err)
	}
	return b, nil
}

func str(o realtime.Optional[string]) *string {
	if !o.Valid {
		return nil
	}
	return proto.String(o.V)
}

func u32(o realtime.Optional[uint32]) *uint32 {
	if !o.Valid {
		return nil
	}
	return proto.Uint32(o.V)
}

func i32(o realtime.Optional[int32]) *int32 {
	if !o.Valid {
		return nil
	}
	return proto.Int32(o.V)
}

func i64(o realtime.Optional[int64]) *int64 {
	if !o.Valid {
		return nil
	}
	return proto.Int64(o.V)
}

// u64 drops negative values, which the unsigned schema fields cannot hold.
func u64(o realtime.Optional[int64]) *uint64 {
	if !o.Valid || o.V < 0 {
		return nil
	}
	return proto.Uint64(uint64(o.V))
}

func f32(o realtime.Optional[float64]) *float32 {
	if !o.Valid {
		return nil
	}
	return proto.Float32(float32(o.V))
}

func tripDescriptor(td *realtime.TripDescriptor) *gtfs.TripDescriptor {
	if td == nil {
		return nil
	}
	return &gtfs.TripDescriptor{
		TripId:      str(td.TripID),
		RouteId:     str(td.RouteID),
		DirectionId: u32(td.DirectionID),
		StartTime:   str(td.StartTime),
		StartDate:   str(td.StartDate),
	}
}

func vehicleDescriptor(v *realtime.VehicleDescriptor) *gtfs.VehicleDescriptor {
	if v == nil {
		return nil
	}
	return &gtfs.VehicleDescriptor{Id: str(v.ID), Label: str(v.Label), LicensePlate: str(v.LicensePlate)}
}

func stopTimeEvent(e *realtime.StopTimeEvent) *gtfs.TripUpdate_StopTimeEvent {
	if e == nil {
		return nil
	}
	return &gtfs.TripUpdate_StopTimeEvent{Delay: i32(e.Delay), Time: i64(e.Time)}
}

func tripUpdate(tu *realtime.TripUpdate) *gtfs.TripUpdate {
	out := &gtfs.TripUpdate{
		Trip:      tripDescriptor(&tu.Trip),
		Vehicle:   vehicleDescriptor(tu.Vehicle),
		Timestamp: u64(tu.Timestamp),
		Delay:     i32(tu.Delay),
	}
	for _, stu := range tu.StopTimeUpdate {
		out.StopTimeUpdate = append(out.StopTimeUpdate, &gtfs.TripUpdate_StopTimeUpdate{
			StopSequence: u32(stu.StopSequence),
			StopId:       str(stu.StopID),
			Arrival:      stopTimeEvent(stu.Arrival),
			Departure:    stopTimeEvent(stu.Departure),
		})
	}
	return out
}

var stopStatus = map[realtime.StopStatus]gtfs.VehiclePosition_VehicleStopStatus{
	realtime.StopStatusInTransitTo:      gtfs.VehiclePosition_IN_TRANSIT_TO,
	realtime.StopStatusStoppedAtStation: gtfs.VehiclePosition_STOPPED_AT,
}

var congestion = map[realtime.CongestionLevel]gtfs.VehiclePosition_CongestionLevel{
	realtime.CongestionUnknown:          gtfs.VehiclePosition_UNKNOWN_CONGESTION_LEVEL,
	realtime.CongestionRunningSmoothly:  gtfs.VehiclePosition_RUNNING_SMOOTHLY,
	realtime.CongestionStopAndGo:        gtfs.VehiclePosition_STOP_AND_GO,
	realtime.CongestionCongestion:       gtfs.VehiclePosition_CONGESTION,
	realtime.CongestionSevereCongestion: gtfs.VehiclePosition_SEVERE_CONGESTION,
}

func vehiclePosition(vp *realtime.VehiclePosition) *gtfs.VehiclePosition {
	out := &gtfs.VehiclePosition{
		Trip:                tripDescriptor(vp.Trip),
		Vehicle:             vehicleDescriptor(vp.Vehicle),
		CurrentStopSequence: u32(vp.CurrentStopSequence),
		StopId:              str(vp.StopID),
		Timestamp:           u64(vp.Timestamp),
	}
	// Latitude and longitude are required by the schema.
	if p := vp.Position; p != nil && p.Latitude.Valid && p.Longitude.Valid {
		out.Position = &gtfs.Position{
			Latitude:  proto.Float32(float32(p.Latitude.V)),
			Longitude: proto.Float32(float32(p.Longitude.V)),
			Bearing:   f32(p.Bearing),
			Speed:     f32(p.Speed),
		}
	}
	if s, ok := stopStatus[vp.CurrentStatus]; ok {
		out.CurrentStatus = &s
	}
	if c, ok := vp.CongestionLevel.Get(); ok {
		if v, ok := congestion[c]; ok {
			out.CongestionLevel = &v
		}
	}
	if o, ok := vp.OccupancyStatus.Get(); ok {
		if v, ok := gtfs.VehiclePosition_OccupancyStatus_value[string(o)]; ok {
			e := gtfs.VehiclePosition_OccupancyStatus(v)
			out.OccupancyStatus = &e
		}
	}
	return out
}

func alert(a *realtime.Alert) *gtfs.Alert {
	out := &gtfs.Alert{
		HeaderText:      translated(a.HeaderText),
		DescriptionText: translated(a.DescriptionText),
	}
	for _, p := range a.ActivePeriod {
		out.ActivePeriod = append(out.ActivePeriod, &gtfs.TimeRange{Start: u64(p.Start), End: u64(p.End)})
	}
	for _, e := range a.InformedEntity {
		out.InformedEntity = append(out.InformedEntity, &gtfs.EntitySelector{
			AgencyId:  str(e.AgencyID),
			RouteId:   str(e.RouteID),
			RouteType: i32(e.RouteType),
			StopId:    str(e.StopID),
			Trip:      tripDescriptor(e.Trip),
		})
	}
	if c, ok := a.Cause.Get(); ok {
		if v, ok := gtfs.Alert_Cause_value[c]; ok {
			e := gtfs.Alert_Cause(v)
			out.Cause = &e
		}
	}
	if c, ok := a.Effect.Get(); ok {
		if v, ok := gtfs.Alert_Effect_value[c]; ok {
			e := gtfs.Alert_Effect(v)
			out.Effect = &e
		}
	}
	return out
}

func translated(ts *realtime.TranslatedString) *gtfs.TranslatedString {
	if ts == nil {
		return nil
	}
	out := &gtfs.TranslatedString{}
	for _, t := range ts.Translation {
		out.Translation = append(out.Translation, &gtfs.TranslatedString_Translation{
			Text:     proto.String(t.Text),
			Language: str(t.Language),
		})
	}
	return out
}
