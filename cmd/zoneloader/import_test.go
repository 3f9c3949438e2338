package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/zones"
)

func TestCheckZones(t *testing.T) {
	zs := []domain.ServiceZone{
		{ID: "A", Center: domain.NewGeoPoint(12.97, 77.59), RadiusKm: 3, IsActive: true},
		{ID: "B", Center: domain.NewGeoPoint(12.90, 77.60), RadiusKm: 2, IsActive: false},
		{ID: "C", Center: domain.NewGeoPoint(12.90, 77.60), RadiusKm: 4, IsActive: true},
	}
	active, err := checkZones(zs)
	require.NoError(t, err)
	assert.Equal(t, 2, active, "inactive zones are accepted but not counted")
}

func TestCheckZones_Invalid(t *testing.T) {
	zs := []domain.ServiceZone{
		{ID: "A", Center: domain.NewGeoPoint(12.97, 77.59), RadiusKm: 0, IsActive: true},
		{ID: "", Center: domain.NewGeoPoint(12.97, 77.59), RadiusKm: 1, IsActive: true},
		{ID: "C", Center: domain.NewGeoPoint(95, 77.59), RadiusKm: 1, IsActive: true},
	}
	active, err := checkZones(zs)
	require.Error(t, err)
	assert.Equal(t, 0, active)
	assert.ErrorIs(t, err, zones.ErrInvalidRadius)
	assert.ErrorIs(t, err, zones.ErrMissingID)
	assert.Contains(t, err.Error(), `zone 2 ("C")`)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["import"])
	assert.True(t, names["audit"])
}
