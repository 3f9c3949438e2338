package positioning

import (
	"context"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// strategy is one way of obtaining a fix. It must return promptly once ctx
// is cancelled.
type strategy func(ctx context.Context) (domain.GeoPoint, error)

type raceResult struct {
	point domain.GeoPoint
	err   error
}

// firstSuccess runs every strategy concurrently. The first to succeed wins
// and the rest are cancelled; their late results are dropped. When all fail
// the most specific error is returned, including any collected before ctx
// ended the race.
func firstSuccess(ctx context.Context, strategies ...strategy) (domain.GeoPoint, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(strategies))
	for _, s := range strategies {
		go func(s strategy) {
			p, err := s(ctx)
			results <- raceResult{point: p, err: err}
		}(s)
	}

	var failure error
	for range strategies {
		select {
		case r := <-results:
			if r.err == nil {
				return r.point, nil
			}
			failure = domain.MoreSpecific(failure, r.err)
		case <-ctx.Done():
			return domain.GeoPoint{}, domain.MoreSpecific(failure, ctx.Err())
		}
	}
	return domain.GeoPoint{}, failure
}
