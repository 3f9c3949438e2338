// Package zones decides which circular service zone, if any, contains a point.
package zones

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/pkg/geospatial"
)

// TieEpsilonKm is the distance below which two candidates count as equidistant.
const TieEpsilonKm = 1e-9

var (
	ErrInactive      = errors.New("zone inactive")
	ErrInvalidRadius = errors.New("zone radius must be positive and finite")
	ErrMissingID     = errors.New("zone id is empty")
)

// Validate reports why a zone cannot take part in matching, or nil.
func Validate(z domain.ServiceZone) error {
	if z.ID == "" {
		return ErrMissingID
	}
	if math.IsNaN(z.RadiusKm) || math.IsInf(z.RadiusKm, 0) || z.RadiusKm <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, z.RadiusKm)
	}
	if err := geospatial.ValidatePoint(z.Center); err != nil {
		return fmt.Errorf("center: %w", err)
	}
	if !z.IsActive {
		return ErrInactive
	}
	return nil
}

// Matcher matches points against zone snapshots. The zero value is usable
// and logs through slog.Default.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a Matcher that reports data-quality issues to logger.
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger}
}

func (m *Matcher) log() *slog.Logger {
	if m == nil || m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Match returns every zone whose radius contains point, nearest first, and
// selects the nearest one. Zones with malformed data are skipped.
func (m *Matcher) Match(point domain.GeoPoint, zones []domain.ServiceZone) domain.MatchResult {
	result := domain.MatchResult{
		Point:      point,
		Candidates: []domain.ZoneCandidate{},
	}

	if err := geospatial.ValidatePoint(point); err != nil {
		m.log().Warn("match: invalid point", "lat", point.Lat, "lon", point.Lon, "error", err)
		return result
	}

	for _, c := range m.eligible(point, zones) {
		if c.DistanceKm <= c.Zone.RadiusKm {
			result.Candidates = append(result.Candidates, c)
		}
	}
	sortCandidates(result.Candidates)

	if len(result.Candidates) > 0 {
		best := result.Candidates[0]
		zone := best.Zone
		dist := best.DistanceKm
		result.Matched = true
		result.Zone = &zone
		result.DistanceKm = &dist
	}
	return result
}

// Nearest returns the closest eligible zone regardless of radius, or nil when
// no zone is eligible.
func (m *Matcher) Nearest(point domain.GeoPoint, zones []domain.ServiceZone) *domain.ZoneCandidate {
	if geospatial.ValidatePoint(point) != nil {
		return nil
	}
	all := m.eligible(point, zones)
	if len(all) == 0 {
		return nil
	}
	sortCandidates(all)
	nearest := all[0]
	return &nearest
}

// eligible computes distances for every zone that may take part in matching.
func (m *Matcher) eligible(point domain.GeoPoint, zones []domain.ServiceZone) []domain.ZoneCandidate {
	out := make([]domain.ZoneCandidate, 0, len(zones))
	for _, z := range zones {
		if err := Validate(z); err != nil {
			if !errors.Is(err, ErrInactive) {
				m.log().Warn("zone excluded from matching",
					"zone_id", z.ID,
					"reason", err.Error(),
				)
			}
			continue
		}
		d, err := geospatial.DistanceKm(point, z.Center)
		if err != nil {
			m.log().Warn("zone excluded from matching", "zone_id", z.ID, "reason", err.Error())
			continue
		}
		out = append(out, domain.ZoneCandidate{Zone: z, DistanceKm: d})
	}
	return out
}

// sortCandidates orders by distance then zone id, then moves the smallest id
// among the candidates within TieEpsilonKm of the minimum to the front. The
// comparator stays a strict ordering; the epsilon only applies at the head.
func sortCandidates(c []domain.ZoneCandidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].DistanceKm != c[j].DistanceKm {
			return c[i].DistanceKm < c[j].DistanceKm
		}
		return c[i].Zone.ID < c[j].Zone.ID
	})
	if len(c) < 2 {
		return
	}

	best := 0
	for i := 1; i < len(c) && c[i].DistanceKm-c[0].DistanceKm <= TieEpsilonKm; i++ {
		if c[i].Zone.ID < c[best].Zone.ID {
			best = i
		}
	}
	if best > 0 {
		head := c[best]
		copy(c[1:best+1], c[:best])
		c[0] = head
	}
}
