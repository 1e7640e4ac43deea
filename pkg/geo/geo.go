package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// degreesPerKm approximates how many degrees of latitude span one kilometre.
const degreesPerKm = 1.0 / 111.0

// HaversineKm returns the great-circle distance between two coordinates in
// kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// RoutePassesNear reports whether any point of the encoded polyline lies
// within radiusKm of the target. A cheap bounding-box filter (with a 1.5x
// margin for longitude convergence) runs before the haversine check, and the
// scan short-circuits on the first in-radius point.
func RoutePassesNear(encoded string, targetLat, targetLng, radiusKm float64) bool {
	points := DecodePolyline(encoded)
	if len(points) == 0 {
		return false
	}

	margin := radiusKm * degreesPerKm * 1.5

	for _, p := range points {
		if math.Abs(p.Lat-targetLat) > margin || math.Abs(p.Lng-targetLng) > margin {
			continue
		}
		if HaversineKm(p.Lat, p.Lng, targetLat, targetLng) <= radiusKm {
			return true
		}
	}
	return false
}
