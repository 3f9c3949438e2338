package positioning_test

import (
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/positioning"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache_PutGet(t *testing.T) {
	clock := newFakeClock()
	cache := positioning.NewCache(0, positioning.WithClock(clock.Now))

	p := domain.NewGeoPoint(11.0168, 76.9558)
	entry := cache.Put("session-1", p, 0, domain.SourceDevice)

	if got := entry.TTLExpiresAt.Sub(entry.CapturedAt); got != domain.DefaultTTL {
		t.Errorf("expected default ttl %v, got %v", domain.DefaultTTL, got)
	}

	got, ok := cache.Get("session-1")
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if got.Point.Lat != p.Lat || got.Point.Lon != p.Lon {
		t.Errorf("expected %v, got %v", p, got.Point)
	}
	if got.Source != domain.SourceDevice {
		t.Errorf("expected source device, got %s", got.Source)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	cache := positioning.NewCache(time.Hour, positioning.WithClock(clock.Now))

	cache.Put("k", domain.NewGeoPoint(1, 2), time.Second, domain.SourceManual)
	clock.Advance(2 * time.Second)

	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected entry to be expired")
	}
	if cache.Len() != 0 {
		t.Errorf("expected expired entry to be evicted, len=%d", cache.Len())
	}
}

func TestCache_ExpiresExactlyAtDeadline(t *testing.T) {
	clock := newFakeClock()
	cache := positioning.NewCache(0, positioning.WithClock(clock.Now))

	cache.Put("k", domain.NewGeoPoint(1, 2), time.Second, domain.SourceManual)
	clock.Advance(999 * time.Millisecond)
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected entry before deadline")
	}
	clock.Advance(time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected entry to be gone at deadline")
	}
}

func TestCache_PutReplaces(t *testing.T) {
	cache := positioning.NewCache(0)
	cache.Put("k", domain.NewGeoPoint(1, 2), 0, domain.SourceDevice)
	cache.Put("k", domain.NewGeoPoint(3, 4), 0, domain.SourceManual)

	got, ok := cache.Get("k")
	if !ok {
		t.Fatal("expected entry")
	}
	if got.Point.Lat != 3 || got.Source != domain.SourceManual {
		t.Errorf("expected replaced entry, got %+v", got)
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache := positioning.NewCache(0)
	cache.Put("k", domain.NewGeoPoint(1, 2), 0, domain.SourceDevice)
	cache.Invalidate("k")
	cache.Invalidate("missing")

	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected entry to be invalidated")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := positioning.NewCache(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cache.Put("shared", domain.NewGeoPoint(float64(i%90), 0), 0, domain.SourceDevice)
			cache.Get("shared")
		}(i)
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Len())
	}
}
