package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/usecases"
)

const (
	maxCacheKeyLen = 128
	maxQueryLen    = 500
)

// AcquireOptionsRequest overrides the configured acquisition defaults. Zero
// values keep the default.
type AcquireOptionsRequest struct {
	PreferLowAccuracyFirst *bool `json:"prefer_low_accuracy_first,omitempty"`
	LowAccuracyTimeoutMs   int64 `json:"low_accuracy_timeout_ms,omitempty"`
	HighAccuracyTimeoutMs  int64 `json:"high_accuracy_timeout_ms,omitempty"`
	MaxStalenessMs         int64 `json:"max_staleness_ms,omitempty"`
}

// ResolveCurrentRequest is the body of POST /v1/resolve/current. Zones
// replaces the stored catalog when present.
type ResolveCurrentRequest struct {
	CacheKey string                `json:"cache_key"`
	Options  AcquireOptionsRequest `json:"options"`
	Zones    []domain.ServiceZone  `json:"zones,omitempty"`
}

// ResolveManualRequest is the body of POST /v1/resolve/manual.
type ResolveManualRequest struct {
	CacheKey string               `json:"cache_key"`
	Query    string               `json:"query"`
	Zones    []domain.ServiceZone `json:"zones,omitempty"`
}

// ResolutionStateResponse reports one cache key's session.
type ResolutionStateResponse struct {
	CacheKey    string                 `json:"cache_key"`
	State       domain.ResolutionState `json:"state"`
	LastOutcome domain.ResolutionState `json:"last_outcome,omitempty"`
	Permission  domain.PermissionState `json:"permission,omitempty"`
	Cached      *domain.CacheEntry     `json:"cached,omitempty"`
}

func stateResponse(r *usecases.ResolutionService, key string) ResolutionStateResponse {
	resp := ResolutionStateResponse{CacheKey: key, State: r.State(key)}
	if last, ok := r.LastOutcome(key); ok {
		resp.LastOutcome = last
	}
	return resp
}

func (o AcquireOptionsRequest) apply(defaults domain.AcquireOptions) domain.AcquireOptions {
	opts := defaults
	if o.PreferLowAccuracyFirst != nil {
		opts.TierOrder = domain.TierOrderOf(*o.PreferLowAccuracyFirst)
	}
	if o.LowAccuracyTimeoutMs > 0 {
		opts.LowAccuracyTimeout = time.Duration(o.LowAccuracyTimeoutMs) * time.Millisecond
	}
	if o.HighAccuracyTimeoutMs > 0 {
		opts.HighAccuracyTimeout = time.Duration(o.HighAccuracyTimeoutMs) * time.Millisecond
	}
	if o.MaxStalenessMs > 0 {
		opts.MaxStaleness = time.Duration(o.MaxStalenessMs) * time.Millisecond
	}
	return opts
}

func validCacheKey(key string) bool {
	return key != "" && len(key) <= maxCacheKeyLen && strings.TrimSpace(key) == key
}

// zonesFor returns the zone snapshot a resolution should match against.
func zonesFor(ctx context.Context, deps *Dependencies, given []domain.ServiceZone) ([]domain.ServiceZone, error) {
	if len(given) > 0 {
		return given, nil
	}
	if deps.Zones == nil {
		return nil, errors.New("zone catalog not available")
	}
	return deps.Zones.ListActive(ctx)
}

// ListZonesHandler returns the active zone catalog, paginated.
func ListZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Zones == nil {
			return errUnavailable(c, "zone catalog not available")
		}

		offset, limit := pageParams(c)
		zs, total, err := deps.Zones.Page(c.UserContext(), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(Page[domain.ServiceZone]{Data: zs, Pagination: pg})
	}
}

// GetZoneHandler returns a single zone by id.
func GetZoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "zone id is required")
		}
		if deps.Zones == nil {
			return errUnavailable(c, "zone catalog not available")
		}
		z, err := deps.Zones.GetByID(c.UserContext(), id)
		if errors.Is(err, domain.ErrZoneNotFound) {
			return errNotFound(c, "zone not found")
		}
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(z)
	}
}

// ResolveCurrentHandler resolves the device position bound to cache_key.
func ResolveCurrentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ResolveCurrentRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if !validCacheKey(req.CacheKey) {
			return errBadRequest(c, "cache_key is required (max 128 characters, no surrounding spaces)")
		}

		ctx := c.UserContext()
		zs, err := zonesFor(ctx, deps, req.Zones)
		if err != nil {
			return errUnavailable(c, err.Error())
		}

		opts := req.Options.apply(deps.Resolver.AcquireDefaults())
		result, err := deps.Resolver.ResolveCurrentLocation(ctx, zs, req.CacheKey, opts)
		if err != nil {
			LoggerFromCtx(ctx).Info("resolve current failed", "cache_key", req.CacheKey, "error", err)
			return errResolution(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(result)
	}
}

// ResolveManualHandler geocodes a typed address and matches it.
func ResolveManualHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ResolveManualRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if !validCacheKey(req.CacheKey) {
			return errBadRequest(c, "cache_key is required (max 128 characters, no surrounding spaces)")
		}
		if len(req.Query) > maxQueryLen {
			return errBadRequest(c, "query too long (max 500 characters)")
		}

		ctx := c.UserContext()
		zs, err := zonesFor(ctx, deps, req.Zones)
		if err != nil {
			return errUnavailable(c, err.Error())
		}

		result, err := deps.Resolver.ResolveManualAddress(ctx, req.Query, zs, req.CacheKey)
		if err != nil {
			LoggerFromCtx(ctx).Info("resolve manual failed", "cache_key", req.CacheKey, "error", err)
			return errResolution(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(result)
	}
}

// ResetHandler drops the cached point and any in-flight resolution for a key.
func ResetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		if !validCacheKey(key) {
			return errBadRequest(c, "invalid cache key")
		}
		deps.Resolver.Reset(key)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ResolutionStateHandler reports the session and permission state of a key.
func ResolutionStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		if !validCacheKey(key) {
			return errBadRequest(c, "invalid cache key")
		}

		resp := stateResponse(deps.Resolver, key)
		if perm, err := deps.Resolver.Permission(c.UserContext(), key); err == nil {
			resp.Permission = perm
		} else {
			LoggerFromCtx(c.UserContext()).Debug("permission lookup failed", "cache_key", key, "error", err)
		}
		if entry, ok := deps.Resolver.Cached(key); ok {
			resp.Cached = &entry
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(resp)
	}
}
