package geo

import "math"

const earthRadiusMeters = 6_371_000.0

const degToRad = math.Pi / 180

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * degToRad
	lat2r := lat2 * degToRad
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// boundSlack shaves a relative epsilon off lower bounds so that rounding in
// the bound formulas never lifts a bound above the exact Haversine distance.
const boundSlack = 1 - 1e-9

// BoxLowerBound returns a distance in meters that never exceeds the Haversine
// distance from (lat, lon) to any point inside the lat/lon box
// [minLat, maxLat] x [minLon, maxLon]. It returns 0 when the point is inside.
//
// Two bounds are combined:
//   - latitude: any path must cover at least the latitude gap along a meridian.
//   - longitude: the box lies beyond the great circle through its nearest edge
//     meridian, so the cross-track distance to that circle is a lower bound.
//     It only applies while the longitude gap is at most 90° and the box is no
//     wider than 180°.
func BoxLowerBound(lat, lon, minLat, minLon, maxLat, maxLon float64) float64 {
	var latGap float64
	switch {
	case lat < minLat:
		latGap = minLat - lat
	case lat > maxLat:
		latGap = lat - maxLat
	}

	var lonGap float64
	switch {
	case lon < minLon:
		lonGap = minLon - lon
	case lon > maxLon:
		lonGap = lon - maxLon
	}

	if latGap == 0 && lonGap == 0 {
		return 0
	}

	bound := latGap * degToRad * earthRadiusMeters

	if lonGap > 0 && lonGap <= 90 && maxLon-minLon <= 180 {
		s := math.Cos(lat*degToRad) * math.Sin(lonGap*degToRad)
		if s > 1 {
			s = 1
		}
		if cross := math.Asin(s) * earthRadiusMeters; cross > bound {
			bound = cross
		}
	}

	return bound * boundSlack
}
