package mission

import "math"

const earthRadiusMeters = 6371000

// DistanceMeters returns the great-circle distance between two lat/lon
// points using the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	rad := func(d float64) float64 { return d / 180 * math.Pi }
	p1, p2 := rad(lat1), rad(lat2)
	dlat, dlon := p2-p1, rad(lon2-lon1)

	x := math.Pow(math.Sin(dlat/2), 2) + math.Cos(p1)*math.Cos(p2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
	return earthRadiusMeters * c
}
