// Package geo provides great-circle distance helpers used by the map layer.
package geo

import (
	"math"

	"petpals/internal/models"
)

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6371008.8

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the haversine distance in meters between a and b on a
// spherical Earth.
func Distance(a, b models.GeoPoint) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLng := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// KmToMeters converts a radius in kilometers to meters.
func KmToMeters(km float64) float64 {
	return km * 1000
}

// Destination returns the point reached by travelling meters from origin
// along the initial bearing (degrees clockwise from north).
func Destination(origin models.GeoPoint, bearingDeg, meters float64) models.GeoPoint {
	delta := meters / EarthRadiusMeters
	theta := toRadians(bearingDeg)
	lat1 := toRadians(origin.Latitude)
	lng1 := toRadians(origin.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lng2 := lng1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)
	// normalise to [-180, 180)
	lng2 = math.Mod(lng2+3*math.Pi, 2*math.Pi) - math.Pi

	return models.GeoPoint{
		Latitude:  lat2 * 180 / math.Pi,
		Longitude: lng2 * 180 / math.Pi,
	}
}
