package positioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/pkg/geospatial"
	"github.com/samirrijal/servezone/internal/pkg/metrics"
)

// Acquirer obtains a single device coordinate using two accuracy tiers. Each
// tier races a one-shot request against a watch and keeps whichever answers
// first.
type Acquirer struct {
	capability ports.LocationCapability
	permission *PermissionMachine
	logger     *slog.Logger
}

// NewAcquirer binds an acquirer to a device capability. permission may be nil,
// in which case a machine polling capability is created.
func NewAcquirer(capability ports.LocationCapability, permission *PermissionMachine, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	if permission == nil {
		var q PermissionQuerier
		if capability != nil {
			q = capability
		}
		permission = NewPermissionMachine(q, logger)
	}
	return &Acquirer{capability: capability, permission: permission, logger: logger}
}

// Permission returns the last observed permission state.
func (a *Acquirer) Permission() domain.PermissionState {
	return a.permission.State()
}

// PermissionMachine exposes the underlying state machine.
func (a *Acquirer) PermissionMachine() *PermissionMachine {
	return a.permission
}

type tierPlan struct {
	tier    domain.AccuracyTier
	timeout time.Duration
}

// Acquire returns one fresh coordinate or the most specific failure.
//
// Denied and Unsupported fail immediately without touching the device. The
// second tier runs only when the first failed with Timeout or
// PositionUnavailable. A permission change to Denied or Unsupported while a
// tier is running aborts the whole acquisition. Acquire never writes to any
// cache.
func (a *Acquirer) Acquire(ctx context.Context, opts domain.AcquireOptions) (domain.GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeoPoint{}, err
	}
	if a.capability == nil {
		a.permission.Observe(domain.PermissionUnsupported)
		return domain.GeoPoint{}, domain.ErrUnsupported
	}
	opts = opts.WithDefaults()

	st, err := a.permission.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.GeoPoint{}, ctx.Err()
		}
		a.logger.Warn("permission query failed, using last known state", "state", st, "error", err)
	}
	if err := Blocked(st); err != nil {
		return domain.GeoPoint{}, err
	}

	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	unsubscribe := a.permission.OnChange(func(_, next domain.PermissionState) {
		if err := Blocked(next); err != nil {
			abort(err)
		}
	})
	defer unsubscribe()

	plans := []tierPlan{
		{tier: domain.TierLow, timeout: opts.LowAccuracyTimeout},
		{tier: domain.TierHigh, timeout: opts.HighAccuracyTimeout},
	}
	if !opts.PreferLowAccuracyFirst() {
		plans[0], plans[1] = plans[1], plans[0]
	}

	var failure error
	for _, plan := range plans {
		p, err := a.runTier(ctx, plan, opts.MaxStaleness)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return domain.GeoPoint{}, context.Cause(ctx)
		}

		failure = domain.MoreSpecific(failure, err)
		switch domain.KindOf(err) {
		case domain.KindTimeout, domain.KindPositionUnavailable:
			a.logger.Debug("accuracy tier failed", "tier", plan.tier, "error", err)
			continue
		case domain.KindPermissionDenied:
			a.permission.Observe(domain.PermissionDenied)
		case domain.KindUnsupported:
			a.permission.Observe(domain.PermissionUnsupported)
		}
		return domain.GeoPoint{}, failure
	}
	return domain.GeoPoint{}, failure
}

func (a *Acquirer) runTier(ctx context.Context, plan tierPlan, maxStaleness time.Duration) (domain.GeoPoint, error) {
	start := time.Now()
	tierCtx, cancel := context.WithTimeout(ctx, plan.timeout)
	defer cancel()

	req := ports.PositionRequest{Tier: plan.tier, Timeout: plan.timeout, MaxStaleness: maxStaleness}
	p, err := firstSuccess(tierCtx, a.oneShot(req), a.watch(req))
	if err != nil && ctx.Err() == nil {
		err = normalize(plan.tier, err)
	}

	outcome := "success"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	metrics.AcquisitionDuration.WithLabelValues(string(plan.tier), outcome).Observe(time.Since(start).Seconds())
	return p, err
}

func (a *Acquirer) oneShot(req ports.PositionRequest) strategy {
	return func(ctx context.Context) (domain.GeoPoint, error) {
		p, err := a.capability.RequestPosition(ctx, req)
		if err != nil {
			return domain.GeoPoint{}, err
		}
		return checkFix(p)
	}
}

// watch resolves with the first good fix. Transient fix errors are kept and
// reported if nothing better arrives; permission failures end it at once.
func (a *Acquirer) watch(req ports.PositionRequest) strategy {
	return func(ctx context.Context) (domain.GeoPoint, error) {
		fixes, err := a.capability.WatchPosition(ctx, req)
		if err != nil {
			return domain.GeoPoint{}, err
		}

		var last error
		for {
			select {
			case <-ctx.Done():
				return domain.GeoPoint{}, domain.MoreSpecific(last, ctx.Err())
			case fix, ok := <-fixes:
				if !ok {
					if ctx.Err() != nil {
						return domain.GeoPoint{}, domain.MoreSpecific(last, ctx.Err())
					}
					if last == nil {
						last = fmt.Errorf("watch closed: %w", domain.ErrPositionUnavailable)
					}
					return domain.GeoPoint{}, last
				}
				if fix.Err == nil {
					p, err := checkFix(fix.Point)
					if err == nil {
						return p, nil
					}
					last = domain.MoreSpecific(last, err)
					continue
				}
				switch domain.KindOf(fix.Err) {
				case domain.KindPermissionDenied, domain.KindUnsupported:
					return domain.GeoPoint{}, fix.Err
				}
				last = domain.MoreSpecific(last, fix.Err)
			}
		}
	}
}

func checkFix(p domain.GeoPoint) (domain.GeoPoint, error) {
	if err := geospatial.ValidatePoint(p); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("device reported %v: %w", err, domain.ErrPositionUnavailable)
	}
	return p, nil
}

// normalize maps whatever the capability returned onto the acquisition error
// kinds.
func normalize(tier domain.AccuracyTier, err error) error {
	switch domain.KindOf(err) {
	case domain.KindPermissionDenied, domain.KindUnsupported, domain.KindPositionUnavailable:
		return fmt.Errorf("%s accuracy: %w", tier, err)
	case domain.KindTimeout:
		if errors.Is(err, domain.ErrTimeout) {
			return fmt.Errorf("%s accuracy: %w", tier, err)
		}
		return fmt.Errorf("%s accuracy: %w", tier, domain.ErrTimeout)
	}
	return fmt.Errorf("%s accuracy: %v: %w", tier, err, domain.ErrPositionUnavailable)
}
