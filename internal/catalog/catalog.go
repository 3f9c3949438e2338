// Package catalog reads service-zone catalogs from YAML or JSON documents.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// File is the top-level catalog document.
//
//	merchant: acme
//	zones:
//	  - id: blr-koramangala
//	    display_name: Koramangala
//	    center: {lat: 12.9352, lon: 77.6245}
//	    radius_km: 3
type File struct {
	Merchant string  `yaml:"merchant" json:"merchant"`
	Zones    []Entry `yaml:"zones" json:"zones"`
}

// Entry is one zone as written in a catalog. IsActive defaults to true.
type Entry struct {
	ID          string  `yaml:"id" json:"id"`
	DisplayName string  `yaml:"display_name" json:"display_name"`
	Center      Point   `yaml:"center" json:"center"`
	RadiusKm    float64 `yaml:"radius_km" json:"radius_km"`
	IsActive    *bool   `yaml:"is_active,omitempty" json:"is_active,omitempty"`
}

type Point struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

var ErrEmpty = errors.New("catalog has no zones")

// Parse decodes a catalog. JSON is accepted as a YAML subset. Unknown fields
// are rejected so typos do not silently drop data.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Zones) == 0 {
		return nil, ErrEmpty
	}
	return &f, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(data []byte) (*File, error) {
	return Parse(bytes.NewReader(data))
}

// ServiceZones converts the entries. Ids and names are trimmed; duplicate ids
// are an error.
func (f *File) ServiceZones() ([]domain.ServiceZone, error) {
	seen := make(map[string]int, len(f.Zones))
	zones := make([]domain.ServiceZone, 0, len(f.Zones))
	var errs []error
	for i, e := range f.Zones {
		id := strings.TrimSpace(e.ID)
		if prev, ok := seen[id]; ok && id != "" {
			errs = append(errs, fmt.Errorf("zone %d: id %q already used by zone %d", i, id, prev))
			continue
		}
		seen[id] = i

		active := true
		if e.IsActive != nil {
			active = *e.IsActive
		}
		zones = append(zones, domain.ServiceZone{
			ID:          id,
			DisplayName: strings.TrimSpace(e.DisplayName),
			Center:      domain.NewGeoPoint(e.Center.Lat, e.Center.Lon),
			RadiusKm:    e.RadiusKm,
			IsActive:    active,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return zones, nil
}
