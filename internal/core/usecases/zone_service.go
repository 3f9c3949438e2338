package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/core/zones"
	"github.com/samirrijal/servezone/internal/pkg/metrics"
	"github.com/samirrijal/servezone/internal/pkg/telemetry"
)

const activeZonesCacheKey = "zones:active"

// ZoneService handles the service-zone catalog.
type ZoneService struct {
	zones    ports.ZoneRepository
	cache    ports.CacheService
	cacheTTL int
	now      func() time.Time
}

// NewZoneService creates a new ZoneService. cache may be nil.
func NewZoneService(repo ports.ZoneRepository, cache ports.CacheService) *ZoneService {
	return &ZoneService{zones: repo, cache: cache, cacheTTL: 60, now: time.Now}
}

// ListActive returns the active zone snapshot, read through the cache.
func (s *ZoneService) ListActive(ctx context.Context) ([]domain.ServiceZone, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, activeZonesCacheKey); err == nil {
			var zs []domain.ServiceZone
			if err := json.Unmarshal(data, &zs); err == nil {
				metrics.CacheHits.WithLabelValues("zones_active").Inc()
				return zs, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("zones_active").Inc()
	}

	zs, err := s.zones.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active zones: %w", err)
	}
	if zs == nil {
		zs = []domain.ServiceZone{}
	}

	// Zones change rarely; a minute of staleness is acceptable.
	if s.cache != nil {
		if data, err := json.Marshal(zs); err == nil {
			_ = s.cache.Set(ctx, activeZonesCacheKey, data, s.cacheTTL)
		}
	}
	return zs, nil
}

// Page returns one page of the active catalog plus the total count.
func (s *ZoneService) Page(ctx context.Context, limit, offset int) ([]domain.ServiceZone, int, error) {
	zs, err := s.ListActive(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(zs)
	if offset >= total {
		return []domain.ServiceZone{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return zs[offset:end], total, nil
}

// GetByID returns a single zone.
func (s *ZoneService) GetByID(ctx context.Context, id string) (*domain.ServiceZone, error) {
	return s.zones.GetByID(ctx, id)
}

// Import validates and stores zones. Inactive zones are stored as given;
// zones with malformed geometry are rejected as a batch.
func (s *ZoneService) Import(ctx context.Context, zs []domain.ServiceZone) error {
	var errs []error
	for i := range zs {
		if err := zones.Validate(zs[i]); err != nil && !errors.Is(err, zones.ErrInactive) {
			errs = append(errs, fmt.Errorf("zone %d (%q): %w", i, zs[i].ID, err))
		}
		if zs[i].UpdatedAt.IsZero() {
			zs[i].UpdatedAt = s.now().UTC()
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.zones.UpsertBatch(ctx, zs); err != nil {
		return fmt.Errorf("upsert zones: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, activeZonesCacheKey)
	}
	return nil
}

// Deactivate marks the given zones inactive and returns how many changed.
// Unknown ids are skipped.
func (s *ZoneService) Deactivate(ctx context.Context, ids []string) (int, error) {
	changed := 0
	for _, id := range ids {
		z, err := s.zones.GetByID(ctx, id)
		if errors.Is(err, domain.ErrZoneNotFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("get zone %q: %w", id, err)
		}
		if z == nil || !z.IsActive {
			continue
		}
		z.IsActive = false
		z.UpdatedAt = s.now().UTC()
		if err := s.zones.Upsert(ctx, z); err != nil {
			return changed, fmt.Errorf("deactivate zone %q: %w", id, err)
		}
		changed++
	}
	if changed > 0 && s.cache != nil {
		_ = s.cache.Delete(ctx, activeZonesCacheKey)
	}
	return changed, nil
}

// Audit checks every stored zone against the matching eligibility rules.
func (s *ZoneService) Audit(ctx context.Context) (*domain.ZoneAuditReport, error) {
	ctx, span := tracer.Start(ctx, "ZoneService.Audit")
	defer span.End()

	all, err := s.zones.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}

	report := &domain.ZoneAuditReport{CheckedAt: s.now().UTC(), Total: len(all)}
	seen := make(map[string]bool, len(all))
	for _, z := range all {
		if z.IsActive {
			report.Active++
		}
		if seen[z.ID] && z.ID != "" {
			report.Issues = append(report.Issues, domain.ZoneIssue{ZoneID: z.ID, Reason: domain.IssueDuplicateID})
		}
		seen[z.ID] = true

		err := zones.Validate(z)
		switch {
		case err == nil:
			report.Eligible++
		case errors.Is(err, zones.ErrInactive):
		default:
			report.Issues = append(report.Issues, domain.ZoneIssue{ZoneID: z.ID, Reason: err.Error()})
		}
	}

	metrics.ZoneAuditIssues.Set(float64(len(report.Issues)))
	span.SetAttributes(telemetry.AttrAuditIssue.Int(len(report.Issues)))
	if len(report.Issues) > 0 {
		slog.WarnContext(ctx, "zone audit found issues", "issues", len(report.Issues), "total", report.Total)
	}
	return report, nil
}
