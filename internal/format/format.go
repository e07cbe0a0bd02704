// Package format turns realtime values into display labels and badge
// categories. Every function is pure; absent input yields NotAvailable or
// BadgeNeutral.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"

	"transit-realtime/internal/realtime"
)

const NotAvailable = "N/A"

// RelativeTime describes how long ago ts (epoch seconds) was, as seen at now.
func RelativeTime(ts realtime.Optional[int64], now time.Time) string {
	t, ok := ts.Get()
	if !ok {
		return NotAvailable
	}
	ago := now.Unix() - t
	switch {
	case ago < 0:
		return "in the future"
	case ago == 0:
		return "just now"
	case ago < 60:
		return plural(ago, "second") + " ago"
	case ago < 3600:
		return plural(ago/60, "minute") + " ago"
	case ago < 86400:
		return plural(ago/3600, "hour") + " ago"
	}
	return plural(ago/86400, "day") + " ago"
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Clock renders ts as HH:MM in loc; nil loc means UTC.
func Clock(ts realtime.Optional[int64], loc *time.Location) string {
	t, ok := ts.Get()
	if !ok {
		return NotAvailable
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(t, 0).In(loc).Format("15:04")
}

// DelayMinutes rounds |seconds|/60 half away from zero.
func DelayMinutes(seconds int32) int64 {
	return int64(math.Round(math.Abs(float64(seconds)) / 60))
}

// Delay renders a schedule deviation: "on time", "N min late" or
// "N min early". Deviations under 30 seconds round to on time.
func Delay(seconds realtime.Optional[int32]) string {
	s, ok := seconds.Get()
	if !ok {
		return NotAvailable
	}
	m := DelayMinutes(s)
	switch {
	case m == 0:
		return "on time"
	case s > 0:
		return fmt.Sprintf("%d min late", m)
	}
	return fmt.Sprintf("%d min early", m)
}

// Badge is a display category that presentation layers map to colours.
type Badge string

const (
	BadgeNeutral Badge = "neutral"
	BadgeSuccess Badge = "success"
	BadgeWarning Badge = "warning"
	BadgeAlert   Badge = "alert"
	BadgeDanger  Badge = "danger"
)

// DelayBadge classifies a delay: more than two minutes late is danger.
func DelayBadge(seconds realtime.Optional[int32]) Badge {
	s, ok := seconds.Get()
	switch {
	case !ok:
		return BadgeNeutral
	case s > 120:
		return BadgeDanger
	case s > 0:
		return BadgeWarning
	case s < 0:
		return BadgeSuccess
	}
	return BadgeNeutral
}

func CongestionBadge(c realtime.Optional[realtime.CongestionLevel]) Badge {
	switch c.Or(realtime.CongestionUnknown) {
	case realtime.CongestionRunningSmoothly:
		return BadgeSuccess
	case realtime.CongestionStopAndGo:
		return BadgeWarning
	case realtime.CongestionCongestion:
		return BadgeAlert
	case realtime.CongestionSevereCongestion:
		return BadgeDanger
	}
	return BadgeNeutral
}

func CongestionLabel(c realtime.Optional[realtime.CongestionLevel]) string {
	switch c.Or(realtime.CongestionUnknown) {
	case realtime.CongestionRunningSmoothly:
		return "Running smoothly"
	case realtime.CongestionStopAndGo:
		return "Stop and go"
	case realtime.CongestionCongestion:
		return "Congested"
	case realtime.CongestionSevereCongestion:
		return "Severe congestion"
	}
	return NotAvailable
}

var stopStatusLabels = map[realtime.StopStatus]string{
	realtime.StopStatusInTransitTo:      "In transit",
	realtime.StopStatusStoppedAtStation: "Stopped at station",
	realtime.StopStatusInVehicleBay:     "In vehicle bay",
	realtime.StopStatusAtPlatform:       "At platform",
}

var occupancyLabels = map[realtime.OccupancyStatus]string{
	realtime.OccupancyEmpty:                   "Empty",
	realtime.OccupancyManySeatsAvailable:      "Many seats available",
	realtime.OccupancyFewSeatsAvailable:       "Few seats available",
	realtime.OccupancyStandingRoomOnly:        "Standing room only",
	realtime.OccupancyCrushedStandingRoomOnly: "Crushed standing room only",
	realtime.OccupancyFull:                    "Full",
	realtime.OccupancyNotApplicable:           "Not applicable",
}

const StatusNotAvailable = "Status not available"

// VehicleStatus prefers the stop status and falls back to occupancy.
func VehicleStatus(status realtime.StopStatus, occupancy realtime.Optional[realtime.OccupancyStatus]) string {
	if status != "" && status != realtime.StopStatusUnknown {
		if l, ok := stopStatusLabels[status]; ok {
			return l
		}
		return strings.ReplaceAll(string(status), "_", " ")
	}
	if o, ok := occupancy.Get(); ok {
		if l, ok := occupancyLabels[o]; ok {
			return l
		}
		return strings.ReplaceAll(string(o), "_", " ")
	}
	return StatusNotAvailable
}

// Icon names the pictogram for a route.
type Icon string

const (
	IconBus   Icon = "bus"
	IconTram  Icon = "tram"
	IconMetro Icon = "metro"
	IconInfo  Icon = "info"
)

// RouteTypeIcon uses the GTFS route_type when given and otherwise guesses
// from the route id naming used by the local operator.
func RouteTypeIcon(routeID string, routeType realtime.Optional[int32]) Icon {
	if rt, ok := routeType.Get(); ok {
		switch rt {
		case 3:
			return IconBus
		case 0:
			return IconTram
		case 1:
			return IconMetro
		}
	}
	switch {
	case routeID == "":
		return IconInfo
	case strings.Contains(routeID, "B") || routeID == "101" || routeID == "68":
		return IconBus
	case strings.Contains(routeID, "T") || routeID == "4" || routeID == "15":
		return IconTram
	case strings.HasSuffix(routeID, "U"):
		return IconBus
	}
	return IconInfo
}
