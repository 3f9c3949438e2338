package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
)

// --- Mock PositionAcquirer / AcquirerProvider ---

type mockAcquirer struct {
	acquireFn  func(ctx context.Context, opts domain.AcquireOptions) (domain.GeoPoint, error)
	permission domain.PermissionState
	calls      atomic.Int32
}

func (m *mockAcquirer) Acquire(ctx context.Context, opts domain.AcquireOptions) (domain.GeoPoint, error) {
	m.calls.Add(1)
	if m.acquireFn != nil {
		return m.acquireFn(ctx, opts)
	}
	return domain.GeoPoint{}, domain.ErrPositionUnavailable
}

func (m *mockAcquirer) Permission() domain.PermissionState {
	if m.permission == "" {
		return domain.PermissionGranted
	}
	return m.permission
}

type mockProvider struct {
	acquirer *mockAcquirer
	err      error
}

func (m *mockProvider) AcquirerFor(ctx context.Context, cacheKey string) (ports.PositionAcquirer, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.acquirer, nil
}

// --- Mock AddressResolver ---

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, query string) (*domain.ResolvedAddress, error)
	reverseFn func(ctx context.Context, p domain.GeoPoint) (string, error)
	geocodes  atomic.Int32
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string) (*domain.ResolvedAddress, error) {
	m.geocodes.Add(1)
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, query)
	}
	return nil, domain.ErrGeocodeFailure
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, p domain.GeoPoint) (string, error) {
	if m.reverseFn != nil {
		return m.reverseFn(ctx, p)
	}
	return "", domain.ErrGeocodeFailure
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu          sync.Mutex
	resolutions []domain.ResolutionEvent
	audits      []domain.ZoneAuditReport
}

func (m *mockPublisher) PublishResolution(ctx context.Context, ev *domain.ResolutionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions = append(m.resolutions, *ev)
	return nil
}

func (m *mockPublisher) PublishZoneAudit(ctx context.Context, r *domain.ZoneAuditReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *r)
	return nil
}

func (m *mockPublisher) events() []domain.ResolutionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ResolutionEvent(nil), m.resolutions...)
}

// --- Mock ZoneRepository ---

type mockZoneRepo struct {
	listActiveFn  func(ctx context.Context) ([]domain.ServiceZone, error)
	listAllFn     func(ctx context.Context) ([]domain.ServiceZone, error)
	upsertBatchFn func(ctx context.Context, zones []domain.ServiceZone) error
	getByIDFn     func(ctx context.Context, id string) (*domain.ServiceZone, error)
	upsertFn      func(ctx context.Context, zone *domain.ServiceZone) error
	listCalls     atomic.Int32
}

func (m *mockZoneRepo) ListActive(ctx context.Context) ([]domain.ServiceZone, error) {
	m.listCalls.Add(1)
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx)
	}
	return nil, nil
}

func (m *mockZoneRepo) ListAll(ctx context.Context) ([]domain.ServiceZone, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockZoneRepo) GetByID(ctx context.Context, id string) (*domain.ServiceZone, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrZoneNotFound
}

func (m *mockZoneRepo) Upsert(ctx context.Context, zone *domain.ServiceZone) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, zone)
	}
	return nil
}

func (m *mockZoneRepo) UpsertBatch(ctx context.Context, zones []domain.ServiceZone) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, zones)
	}
	return nil
}

// --- Mock CacheService ---

var errCacheMiss = errors.New("cache miss")

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Fixtures ---

func zoneA() domain.ServiceZone {
	return domain.ServiceZone{ID: "A", Center: domain.NewGeoPoint(11.0168, 76.9558), RadiusKm: 5, DisplayName: "Coimbatore Central", IsActive: true}
}

func zoneB() domain.ServiceZone {
	return domain.ServiceZone{ID: "B", Center: domain.NewGeoPoint(11.0500, 77.0000), RadiusKm: 3, DisplayName: "Peelamedu", IsActive: true}
}

func catalog() []domain.ServiceZone {
	return []domain.ServiceZone{zoneA(), zoneB()}
}

// Typed nil pointers must not leak into interface parameters.

func providerOrNil(p *mockProvider) ports.AcquirerProvider {
	if p == nil {
		return nil
	}
	return p
}

func geoOrNil(g *mockGeocoder) ports.AddressResolver {
	if g == nil {
		return nil
	}
	return g
}

func pubOrNil(p *mockPublisher) ports.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
