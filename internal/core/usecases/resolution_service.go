package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/core/positioning"
	"github.com/samirrijal/servezone/internal/core/zones"
	"github.com/samirrijal/servezone/internal/pkg/metrics"
	"github.com/samirrijal/servezone/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/samirrijal/servezone/internal/core/usecases")

// ResolutionOptions configures a ResolutionService.
type ResolutionOptions struct {
	// TTL of cached points. Zero uses domain.DefaultTTL.
	TTL time.Duration
	// Acquire holds the defaults applied to fields a caller leaves unset.
	Acquire domain.AcquireOptions
	// ReverseGeocodeTimeout bounds the best-effort display-address lookup.
	ReverseGeocodeTimeout time.Duration
}

// ResolutionService resolves a caller's location to a service zone, either
// from the device or from a typed address. At most one resolution per cache
// key is in flight; concurrent callers for the same key share it.
type ResolutionService struct {
	acquirers ports.AcquirerProvider
	geocoder  ports.AddressResolver
	events    ports.EventPublisher
	cache     *positioning.Cache
	matcher   *zones.Matcher
	opts      ResolutionOptions
	logger    *slog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	flights  map[string]*flight
	sessions map[string]*session
}

// flight is the shared context of one de-duplicated resolution. It is
// cancelled once its last waiter leaves.
type flight struct {
	cacheKey string
	ctx      context.Context
	cancel   context.CancelFunc
	waiters  int
}

type session struct {
	active int
	last   domain.ResolutionState
}

type acquisition struct {
	point  domain.GeoPoint
	source domain.Source
	// address is set for manual resolutions only.
	address string
}

// NewResolutionService wires the orchestrator. events and geocoder may be nil;
// manual resolution then fails with domain.ErrGeocodeFailure.
func NewResolutionService(
	acquirers ports.AcquirerProvider,
	geocoder ports.AddressResolver,
	events ports.EventPublisher,
	cache *positioning.Cache,
	matcher *zones.Matcher,
	opts ResolutionOptions,
	logger *slog.Logger,
) *ResolutionService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = domain.DefaultTTL
	}
	if opts.ReverseGeocodeTimeout <= 0 {
		opts.ReverseGeocodeTimeout = 3 * time.Second
	}
	opts.Acquire = opts.Acquire.WithDefaults()
	if cache == nil {
		cache = positioning.NewCache(opts.TTL)
	}
	if matcher == nil {
		matcher = zones.NewMatcher(logger)
	}
	return &ResolutionService{
		acquirers: acquirers,
		geocoder:  geocoder,
		events:    events,
		cache:     cache,
		matcher:   matcher,
		opts:      opts,
		logger:    logger,
		flights:   make(map[string]*flight),
		sessions:  make(map[string]*session),
	}
}

// ResolveCurrentLocation matches the device's position against zs. A valid
// cached point is used without touching the device.
func (s *ResolutionService) ResolveCurrentLocation(ctx context.Context, zs []domain.ServiceZone, cacheKey string, opts domain.AcquireOptions) (*domain.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "ResolutionService.ResolveCurrentLocation",
		trace.WithAttributes(telemetry.AttrCacheKey.String(cacheKey), telemetry.AttrZoneCount.Int(len(zs))))
	defer span.End()

	start := time.Now()
	s.enter(cacheKey)

	var (
		acq acquisition
		err error
		src = domain.SourceDevice
	)
	if entry, ok := s.cache.Get(cacheKey); ok {
		src = domain.SourceCache
		acq = acquisition{point: entry.Point, source: src}
	} else {
		opts = s.mergeOptions(opts)
		acq, err = s.do(ctx, cacheKey, flightKey(cacheKey, domain.SourceDevice, ""), func(fctx context.Context) (acquisition, error) {
			return s.acquire(fctx, cacheKey, opts)
		})
	}

	return s.finish(ctx, span, start, cacheKey, zs, src, acq, err)
}

// ResolveManualAddress geocodes query and matches the result against zs.
// The geocoded point replaces whatever was cached for cacheKey.
func (s *ResolutionService) ResolveManualAddress(ctx context.Context, query string, zs []domain.ServiceZone, cacheKey string) (*domain.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "ResolutionService.ResolveManualAddress",
		trace.WithAttributes(telemetry.AttrCacheKey.String(cacheKey), telemetry.AttrZoneCount.Int(len(zs))))
	defer span.End()

	start := time.Now()
	s.enter(cacheKey)

	normalized := normalizeQuery(query)
	var (
		acq acquisition
		err error
	)
	if normalized == "" {
		err = fmt.Errorf("empty address: %w", domain.ErrGeocodeFailure)
	} else {
		acq, err = s.do(ctx, cacheKey, flightKey(cacheKey, domain.SourceManual, normalized), func(fctx context.Context) (acquisition, error) {
			return s.geocode(fctx, cacheKey, query)
		})
	}

	return s.finish(ctx, span, start, cacheKey, zs, domain.SourceManual, acq, err)
}

// Reset forgets the cached point for cacheKey and cancels any resolution in
// flight for it. Waiters of a cancelled flight receive context.Canceled.
func (s *ResolutionService) Reset(cacheKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, f := range s.flights {
		if f.cacheKey != cacheKey {
			continue
		}
		f.cancel()
		delete(s.flights, key)
		s.group.Forget(key)
	}
	delete(s.sessions, cacheKey)
	s.cache.Invalidate(cacheKey)
}

// State reports the session state for cacheKey: Detecting while a call is in
// progress, Idle otherwise.
func (s *ResolutionService) State(cacheKey string) domain.ResolutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[cacheKey]; ok && sess.active > 0 {
		return domain.ResolutionDetecting
	}
	return domain.ResolutionIdle
}

// LastOutcome reports how the most recent completed call for cacheKey ended,
// Success or Error. ok is false when none has completed since the last Reset.
func (s *ResolutionService) LastOutcome(cacheKey string) (domain.ResolutionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[cacheKey]; ok && sess.last != "" {
		return sess.last, true
	}
	return "", false
}

// Permission reports the device permission state bound to cacheKey.
func (s *ResolutionService) Permission(ctx context.Context, cacheKey string) (domain.PermissionState, error) {
	if s.acquirers == nil {
		return domain.PermissionUnsupported, nil
	}
	a, err := s.acquirers.AcquirerFor(ctx, cacheKey)
	if err != nil {
		return "", fmt.Errorf("acquirer for %q: %w", cacheKey, err)
	}
	return a.Permission(), nil
}

// AcquireDefaults returns the acquisition options applied when a caller
// leaves fields unset.
func (s *ResolutionService) AcquireDefaults() domain.AcquireOptions {
	return s.opts.Acquire
}

// Cached returns the live cache entry for cacheKey, if any.
func (s *ResolutionService) Cached(cacheKey string) (domain.CacheEntry, bool) {
	return s.cache.Get(cacheKey)
}

func (s *ResolutionService) mergeOptions(opts domain.AcquireOptions) domain.AcquireOptions {
	if opts.TierOrder == domain.TierOrderDefault {
		opts.TierOrder = s.opts.Acquire.TierOrder
	}
	if opts.LowAccuracyTimeout <= 0 {
		opts.LowAccuracyTimeout = s.opts.Acquire.LowAccuracyTimeout
	}
	if opts.HighAccuracyTimeout <= 0 {
		opts.HighAccuracyTimeout = s.opts.Acquire.HighAccuracyTimeout
	}
	if opts.MaxStaleness <= 0 {
		opts.MaxStaleness = s.opts.Acquire.MaxStaleness
	}
	return opts.WithDefaults()
}

func (s *ResolutionService) acquire(ctx context.Context, cacheKey string, opts domain.AcquireOptions) (acquisition, error) {
	if s.acquirers == nil {
		return acquisition{}, domain.ErrUnsupported
	}
	a, err := s.acquirers.AcquirerFor(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupported) {
			return acquisition{}, err
		}
		return acquisition{}, fmt.Errorf("acquirer for %q: %w", cacheKey, err)
	}

	p, err := a.Acquire(ctx, opts)
	if err != nil {
		return acquisition{}, err
	}
	if err := s.store(ctx, cacheKey, p, domain.SourceDevice); err != nil {
		return acquisition{}, err
	}
	return acquisition{point: p, source: domain.SourceDevice}, nil
}

func (s *ResolutionService) geocode(ctx context.Context, cacheKey, query string) (acquisition, error) {
	if s.geocoder == nil {
		return acquisition{}, fmt.Errorf("no geocoder configured: %w", domain.ErrGeocodeFailure)
	}
	addr, err := s.geocoder.Geocode(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return acquisition{}, ctx.Err()
		}
		if !errors.Is(err, domain.ErrGeocodeFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrGeocodeFailure, err)
		}
		return acquisition{}, err
	}
	if err := s.store(ctx, cacheKey, addr.Point, domain.SourceManual); err != nil {
		return acquisition{}, err
	}
	return acquisition{point: addr.Point, source: domain.SourceManual, address: addr.FormattedAddress}, nil
}

// store caches p unless the flight behind ctx was cancelled. The check and
// the write happen under s.mu so a concurrent Reset cannot be undone.
func (s *ResolutionService) store(ctx context.Context, cacheKey string, p domain.GeoPoint, src domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Put(cacheKey, p, s.opts.TTL, src)
	return nil
}

// finish matches a successful acquisition, records the outcome and settles
// the session state.
func (s *ResolutionService) finish(ctx context.Context, span trace.Span, start time.Time, cacheKey string, zs []domain.ServiceZone, src domain.Source, acq acquisition, err error) (*domain.MatchResult, error) {
	if err != nil {
		kind := domain.KindOf(err)
		s.leaveSession(cacheKey, domain.ResolutionError)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		span.SetAttributes(telemetry.AttrSource.String(string(src)), telemetry.AttrErrorKind.String(string(kind)))
		metrics.ResolutionsTotal.WithLabelValues(string(src), string(kind)).Inc()
		s.logger.InfoContext(ctx, "resolution failed", "cache_key", cacheKey, "source", src, "kind", kind, "error", err)
		if kind != domain.KindCanceled {
			s.publish(ctx, &domain.ResolutionEvent{CacheKey: cacheKey, Source: src, ErrorKind: kind})
		}
		return nil, err
	}

	result := s.matcher.Match(acq.point, zs)
	result.Source = acq.source
	if !result.Matched {
		result.Nearest = s.matcher.Nearest(acq.point, zs)
	}
	if acq.address != "" {
		result.DisplayAddress = acq.address
	} else {
		result.DisplayAddress = s.reverseGeocode(ctx, acq.point)
	}

	s.leaveSession(cacheKey, domain.ResolutionSuccess)

	outcome := "no_match"
	if result.Matched {
		outcome = "matched"
		span.SetAttributes(telemetry.AttrZoneID.String(result.Zone.ID))
	}
	span.SetAttributes(
		telemetry.AttrSource.String(string(result.Source)),
		telemetry.AttrMatched.Bool(result.Matched),
	)
	metrics.ResolutionsTotal.WithLabelValues(string(result.Source), outcome).Inc()
	metrics.ResolutionDuration.WithLabelValues(string(result.Source)).Observe(time.Since(start).Seconds())

	ev := &domain.ResolutionEvent{CacheKey: cacheKey, Source: result.Source, Matched: result.Matched, DistanceKm: result.DistanceKm}
	if result.Zone != nil {
		ev.ZoneID = result.Zone.ID
	}
	s.publish(ctx, ev)

	return &result, nil
}

func (s *ResolutionService) reverseGeocode(ctx context.Context, p domain.GeoPoint) string {
	if s.geocoder == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ReverseGeocodeTimeout)
	defer cancel()

	addr, err := s.geocoder.ReverseGeocode(ctx, p)
	if err != nil {
		s.logger.DebugContext(ctx, "reverse geocode failed", "error", err)
		return ""
	}
	return addr
}

func (s *ResolutionService) publish(ctx context.Context, ev *domain.ResolutionEvent) {
	if s.events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = time.Now().UTC()
	if err := s.events.PublishResolution(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.WarnContext(ctx, "publish resolution event", "error", err)
	}
}

// do runs fn at most once per key among concurrent callers. fn receives a
// context that outlives any single caller and is cancelled only when every
// caller has returned.
func (s *ResolutionService) do(ctx context.Context, cacheKey, key string, fn func(context.Context) (acquisition, error)) (acquisition, error) {
	f := s.join(ctx, cacheKey, key)
	defer s.leave(key, f)

	ch := s.group.DoChan(key, func() (any, error) {
		defer s.retire(key, f)
		return fn(f.ctx)
	})

	select {
	case <-ctx.Done():
		return acquisition{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return acquisition{}, r.Err
		}
		return r.Val.(acquisition), nil
	}
}

func (s *ResolutionService) join(ctx context.Context, cacheKey, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flights[key]
	if ok {
		metrics.ResolutionsJoined.Inc()
		trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrJoined.Bool(true))
	} else {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{cacheKey: cacheKey, ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *ResolutionService) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
		s.group.Forget(key)
	}
}

// retire removes f once its function has returned so later callers start a
// fresh flight.
func (s *ResolutionService) retire(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
}

func (s *ResolutionService) enter(cacheKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[cacheKey]
	if !ok {
		sess = &session{}
		s.sessions[cacheKey] = sess
	}
	sess.active++
}

func (s *ResolutionService) leaveSession(cacheKey string, outcome domain.ResolutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[cacheKey]
	if !ok {
		// Reset while in flight.
		return
	}
	if sess.active > 0 {
		sess.active--
	}
	sess.last = outcome
}

func flightKey(cacheKey string, source domain.Source, query string) string {
	return cacheKey + "\x00" + string(source) + "\x00" + query
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
