package http

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// zoneFeatures renders zones as point features at their centers. The circle
// is carried in the radius_km property since GeoJSON has no circle type.
func zoneFeatures(zs []domain.ServiceZone) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(zs))}
	for _, z := range zs {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       z.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{z.Center.Lon, z.Center.Lat}),
			Properties: map[string]interface{}{
				"display_name": z.DisplayName,
				"radius_km":    z.RadiusKm,
				"is_active":    z.IsActive,
			},
		})
	}
	return fc
}

// ZonesGeoJSONHandler exports the active catalog as a GeoJSON FeatureCollection.
func ZonesGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Zones == nil {
			return errUnavailable(c, "zone catalog not available")
		}
		zs, err := deps.Zones.ListActive(c.UserContext())
		if err != nil {
			return errInternal(c, err.Error())
		}
		body, err := json.Marshal(zoneFeatures(zs))
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(body)
	}
}
