package ports

import (
	"context"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// ZoneRepository persists the merchant's service-zone catalog.
type ZoneRepository interface {
	// ListActive returns a read-only snapshot of active zones.
	ListActive(ctx context.Context) ([]domain.ServiceZone, error)
	// ListAll returns every zone, including inactive ones.
	ListAll(ctx context.Context) ([]domain.ServiceZone, error)
	GetByID(ctx context.Context, id string) (*domain.ServiceZone, error)
	Upsert(ctx context.Context, zone *domain.ServiceZone) error
	UpsertBatch(ctx context.Context, zones []domain.ServiceZone) error
}
