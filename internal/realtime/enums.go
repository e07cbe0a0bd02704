package realtime

// Kind identifies one of the three GTFS-realtime feed kinds.
type Kind string

const (
	KindTripUpdate      Kind = "TRIP_UPDATE"
	KindVehiclePosition Kind = "VEHICLE_POSITION"
	KindAlert           Kind = "ALERT"
)

// Kinds lists the feed kinds in fetch order.
var Kinds = []Kind{KindTripUpdate, KindVehiclePosition, KindAlert}

func (k Kind) String() string { return string(k) }

// StopStatus is the vehicle's relation to its current stop.
type StopStatus string

const (
	StopStatusInTransitTo      StopStatus = "IN_TRANSIT_TO"
	StopStatusStoppedAtStation StopStatus = "STOPPED_AT_STATION"
	StopStatusInVehicleBay     StopStatus = "IN_VEHICLE_BAY"
	StopStatusAtPlatform       StopStatus = "AT_PLATFORM"
	StopStatusUnknown          StopStatus = "UNKNOWN_STOP_STATUS"
)

// ParseStopStatus maps a schema enum name to a StopStatus. The published
// GTFS-realtime schema names STOPPED_AT and INCOMING_AT; they fold into
// STOPPED_AT_STATION and IN_TRANSIT_TO. Absent or unrecognised names map to
// StopStatusUnknown.
func ParseStopStatus(name string) StopStatus {
	switch s := StopStatus(name); s {
	case StopStatusInTransitTo, StopStatusStoppedAtStation, StopStatusInVehicleBay, StopStatusAtPlatform:
		return s
	case "STOPPED_AT":
		return StopStatusStoppedAtStation
	case "INCOMING_AT":
		return StopStatusInTransitTo
	}
	return StopStatusUnknown
}

// CongestionLevel describes traffic congestion on the vehicle's path.
type CongestionLevel string

const (
	CongestionRunningSmoothly  CongestionLevel = "RUNNING_SMOOTHLY"
	CongestionStopAndGo        CongestionLevel = "STOP_AND_GO"
	CongestionCongestion       CongestionLevel = "CONGESTION"
	CongestionSevereCongestion CongestionLevel = "SEVERE_CONGESTION"
	CongestionUnknown          CongestionLevel = "UNKNOWN_CONGESTION_LEVEL"
)

// CongestionWalk is the ordered enumeration the simulation walks over.
var CongestionWalk = []CongestionLevel{
	CongestionRunningSmoothly,
	CongestionStopAndGo,
	CongestionCongestion,
	CongestionSevereCongestion,
}

func ParseCongestionLevel(name string) CongestionLevel {
	switch c := CongestionLevel(name); c {
	case CongestionRunningSmoothly, CongestionStopAndGo, CongestionCongestion, CongestionSevereCongestion:
		return c
	}
	return CongestionUnknown
}

// OccupancyStatus describes how full a vehicle is.
type OccupancyStatus string

const (
	OccupancyEmpty                   OccupancyStatus = "EMPTY"
	OccupancyManySeatsAvailable      OccupancyStatus = "MANY_SEATS_AVAILABLE"
	OccupancyFewSeatsAvailable       OccupancyStatus = "FEW_SEATS_AVAILABLE"
	OccupancyStandingRoomOnly        OccupancyStatus = "STANDING_ROOM_ONLY"
	OccupancyCrushedStandingRoomOnly OccupancyStatus = "CRUSHED_STANDING_ROOM_ONLY"
	OccupancyFull                    OccupancyStatus = "FULL"
	OccupancyNotApplicable           OccupancyStatus = "NOT_APPLICABLE"
)

// OccupancyWalk is the ordered enumeration the simulation walks over.
// NOT_APPLICABLE is deliberately not part of it.
var OccupancyWalk = []OccupancyStatus{
	OccupancyEmpty,
	OccupancyManySeatsAvailable,
	OccupancyFewSeatsAvailable,
	OccupancyStandingRoomOnly,
	OccupancyCrushedStandingRoomOnly,
	OccupancyFull,
}

// ParseOccupancyStatus returns false for names outside the closed set, such
// as NO_DATA_AVAILABLE from newer schema revisions.
func ParseOccupancyStatus(name string) (OccupancyStatus, bool) {
	switch o := OccupancyStatus(name); o {
	case OccupancyEmpty, OccupancyManySeatsAvailable, OccupancyFewSeatsAvailable,
		OccupancyStandingRoomOnly, OccupancyCrushedStandingRoomOnly, OccupancyFull, OccupancyNotApplicable:
		return o, true
	}
	return "", false
}
