package db

import "math"

// Haversine distance in meters
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// bearingDeg is the initial bearing from a to b, in [0, 360).
func bearingDeg(a, b TrackPoint) float64 {
	toRad := math.Pi / 180.0
	y := math.Sin((b.Lon-a.Lon)*toRad) * math.Cos(b.Lat*toRad)
	x := math.Cos(a.Lat*toRad)*math.Sin(b.Lat*toRad) - math.Sin(a.Lat*toRad)*math.Cos(b.Lat*toRad)*math.Cos((b.Lon-a.Lon)*toRad)
	brng := math.Atan2(y, x) / toRad
	if brng < 0 {
		brng += 360
	}
	return brng
}

// CumDistances returns the running distance in meters at each track point.
func CumDistances(pts []TrackPoint) []float64 {
	if len(pts) == 0 {
		return nil
	}
	cum := make([]float64, len(pts))
	sum := 0.0
	for i := 1; i < len(pts); i++ {
		sum += haversine(pts[i-1].Lat, pts[i-1].Lon, pts[i].Lat, pts[i].Lon)
		cum[i] = sum
	}
	return cum
}

// Summarize derives distance, average speed and heading over a track
// ordered oldest first.
func Summarize(pts []TrackPoint) TrackSummary {
	s := TrackSummary{Points: len(pts)}
	if len(pts) < 2 {
		return s
	}
	cum := CumDistances(pts)
	s.DistanceMeters = cum[len(cum)-1]
	first, last := pts[0], pts[len(pts)-1]
	if secs := last.RecordedAt.Sub(first.RecordedAt).Seconds(); secs > 0 {
		s.AvgSpeedKmh = s.DistanceMeters / secs * 3.6
	}
	if s.DistanceMeters > 0 {
		s.Heading = bearingDeg(pts[len(pts)-2], last)
	}
	return s
}
