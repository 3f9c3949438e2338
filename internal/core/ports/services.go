package ports

import (
	"context"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishResolution(ctx context.Context, event *domain.ResolutionEvent) error
	PublishZoneAudit(ctx context.Context, report *domain.ZoneAuditReport) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// AddressResolver converts free text to coordinates and back.
type AddressResolver interface {
	// Geocode resolves query to a point plus structured components. Failures
	// wrap domain.ErrGeocodeFailure.
	Geocode(ctx context.Context, query string) (*domain.ResolvedAddress, error)
	// ReverseGeocode returns a best-effort display address for point.
	ReverseGeocode(ctx context.Context, point domain.GeoPoint) (string, error)
}

// PositionRequest parameterises one device acquisition attempt.
type PositionRequest struct {
	Tier    domain.AccuracyTier
	Timeout time.Duration
	// MaxStaleness is how old a fix the device may answer with; zero demands
	// a fresh fix.
	MaxStaleness time.Duration
}

// PositionFix is one reading pushed by a watched acquisition.
type PositionFix struct {
	Point domain.GeoPoint
	Err   error
}

// LocationCapability is the device's location subsystem.
type LocationCapability interface {
	// QueryPermissionState reports the current permission. Implementations
	// return domain.ErrUnsupported when the platform has no location support.
	QueryPermissionState(ctx context.Context) (domain.PermissionState, error)
	// RequestPosition asks for a single fix.
	RequestPosition(ctx context.Context, req PositionRequest) (domain.GeoPoint, error)
	// WatchPosition streams fixes until ctx is cancelled, then closes the channel.
	WatchPosition(ctx context.Context, req PositionRequest) (<-chan PositionFix, error)
	// PermissionChanges delivers states pushed by the subsystem until ctx is done.
	PermissionChanges(ctx context.Context) (<-chan domain.PermissionState, error)
}

// PositionAcquirer obtains one device coordinate.
type PositionAcquirer interface {
	Acquire(ctx context.Context, opts domain.AcquireOptions) (domain.GeoPoint, error)
	Permission() domain.PermissionState
}

// AcquirerProvider returns the device acquirer bound to a cache key.
type AcquirerProvider interface {
	AcquirerFor(ctx context.Context, cacheKey string) (PositionAcquirer, error)
}
