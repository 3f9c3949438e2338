package domain

// GeoPoint represents a geographic coordinate (WGS 84).
// AccuracyMeters is nil when the source did not report an accuracy radius.
type GeoPoint struct {
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
}

// NewGeoPoint builds a point without accuracy information.
func NewGeoPoint(lat, lon float64) GeoPoint {
	return GeoPoint{Lat: lat, Lon: lon}
}

// WithAccuracy returns a copy of p carrying the given accuracy radius.
func (p GeoPoint) WithAccuracy(meters float64) GeoPoint {
	m := meters
	p.AccuracyMeters = &m
	return p
}
