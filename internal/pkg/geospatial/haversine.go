package geospatial

import (
	"fmt"
	"math"

	"github.com/samirrijal/servezone/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
// Inputs are not validated; use DistanceKm for untrusted coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineKm(lat1, lon1, lat2, lon2) * 1000
}

// DistanceKm returns the great-circle distance in kilometres between a and b.
// Coordinates must be finite, with latitude in [-90,90] and longitude in
// [-180,180]; anything else yields an error wrapping domain.ErrInvalidCoordinate.
func DistanceKm(a, b domain.GeoPoint) (float64, error) {
	if err := ValidatePoint(a); err != nil {
		return 0, err
	}
	if err := ValidatePoint(b); err != nil {
		return 0, err
	}
	return haversineKm(a.Lat, a.Lon, b.Lat, b.Lon), nil
}

// ValidatePoint checks that p is a usable WGS 84 coordinate.
func ValidatePoint(p domain.GeoPoint) error {
	switch {
	case math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0):
		return fmt.Errorf("latitude %v is not finite: %w", p.Lat, domain.ErrInvalidCoordinate)
	case math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0):
		return fmt.Errorf("longitude %v is not finite: %w", p.Lon, domain.ErrInvalidCoordinate)
	case p.Lat < -90 || p.Lat > 90:
		return fmt.Errorf("latitude %v out of range: %w", p.Lat, domain.ErrInvalidCoordinate)
	case p.Lon < -180 || p.Lon > 180:
		return fmt.Errorf("longitude %v out of range: %w", p.Lon, domain.ErrInvalidCoordinate)
	}
	return nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	// Order the endpoints so that the floating point result is bit-identical
	// regardless of argument order.
	if lat1 > lat2 || (lat1 == lat2 && lon1 > lon2) {
		lat1, lon1, lat2, lon2 = lat2, lon2, lat1, lon1
	}

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
