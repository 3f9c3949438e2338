package geospatial_test

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/pkg/geospatial"
)

func TestDistanceKm_KnownPairs(t *testing.T) {
	tests := []struct {
		name    string
		a, b    domain.GeoPoint
		want    float64
		epsilon float64
	}{
		{
			name:    "coimbatore centre to nearby point",
			a:       domain.NewGeoPoint(11.0168, 76.9558),
			b:       domain.NewGeoPoint(11.0200, 76.9600),
			want:    0.58,
			epsilon: 0.05,
		},
		{
			name:    "coimbatore east zone to nearby point",
			a:       domain.NewGeoPoint(11.0500, 77.0000),
			b:       domain.NewGeoPoint(11.0200, 76.9600),
			want:    5.49,
			epsilon: 0.1,
		},
		{
			name:    "one degree of latitude",
			a:       domain.NewGeoPoint(0, 0),
			b:       domain.NewGeoPoint(1, 0),
			want:    111.19,
			epsilon: 0.01,
		},
		{
			name:    "antipodal points",
			a:       domain.NewGeoPoint(0, 0),
			b:       domain.NewGeoPoint(0, 180),
			want:    math.Pi * 6371,
			epsilon: 1e-6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := geospatial.DistanceKm(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > tt.epsilon {
				t.Errorf("expected %.4f km, got %.4f km", tt.want, got)
			}
		})
	}
}

func TestDistanceKm_InvalidCoordinate(t *testing.T) {
	valid := domain.NewGeoPoint(43.263, -2.935)
	bad := []domain.GeoPoint{
		domain.NewGeoPoint(91, 0),
		domain.NewGeoPoint(-90.0001, 0),
		domain.NewGeoPoint(0, 180.5),
		domain.NewGeoPoint(0, -181),
		domain.NewGeoPoint(math.NaN(), 0),
		domain.NewGeoPoint(0, math.Inf(1)),
	}

	for _, p := range bad {
		if _, err := geospatial.DistanceKm(valid, p); !errors.Is(err, domain.ErrInvalidCoordinate) {
			t.Errorf("DistanceKm(valid, %+v): expected ErrInvalidCoordinate, got %v", p, err)
		}
		if _, err := geospatial.DistanceKm(p, valid); !errors.Is(err, domain.ErrInvalidCoordinate) {
			t.Errorf("DistanceKm(%+v, valid): expected ErrInvalidCoordinate, got %v", p, err)
		}
	}
}

func TestHaversine_Meters(t *testing.T) {
	got := geospatial.Haversine(0, 0, 1, 0)
	if math.Abs(got-111195) > 10 {
		t.Errorf("expected ~111195 m, got %.1f", got)
	}
}

func genPoint() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-90, 90),
		gen.Float64Range(-180, 180),
	).Map(func(v []interface{}) domain.GeoPoint {
		return domain.NewGeoPoint(v[0].(float64), v[1].(float64))
	})
}

func TestDistanceKm_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("distance is symmetric", prop.ForAll(
		func(a, b domain.GeoPoint) bool {
			ab, err1 := geospatial.DistanceKm(a, b)
			ba, err2 := geospatial.DistanceKm(b, a)
			if err1 != nil || err2 != nil {
				return false
			}
			return math.Abs(ab-ba) <= 1e-9
		},
		genPoint(), genPoint(),
	))

	properties.Property("distance to self is zero", prop.ForAll(
		func(p domain.GeoPoint) bool {
			d, err := geospatial.DistanceKm(p, p)
			return err == nil && d == 0
		},
		genPoint(),
	))

	properties.Property("distance never exceeds half the circumference", prop.ForAll(
		func(a, b domain.GeoPoint) bool {
			d, err := geospatial.DistanceKm(a, b)
			return err == nil && d >= 0 && d <= math.Pi*6371+1e-9
		},
		genPoint(), genPoint(),
	))

	properties.TestingRun(t)
}
