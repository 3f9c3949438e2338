package natsadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
)

func TestDeviceSubject(t *testing.T) {
	assert.Equal(t, "geo.device.abc123.locate", DeviceSubject("abc123", SuffixLocate))
	assert.Equal(t, "geo.device.a_b_c.permission", DeviceSubject("a.b*c", SuffixPermission))
	assert.Equal(t, "geo.device._.watch", DeviceSubject("", SuffixWatch))
	assert.Equal(t, "geo.device.s1.fix.w_1", FixSubject("s1", "w>1"))
}

func TestFixMessagePoint(t *testing.T) {
	acc := 12.5
	p, err := FixMessage{Lat: 11.0168, Lon: 76.9558, AccuracyMeters: &acc}.point()
	require.NoError(t, err)
	assert.Equal(t, 11.0168, p.Lat)
	require.NotNil(t, p.AccuracyMeters)
	assert.Equal(t, 12.5, *p.AccuracyMeters)

	tests := []struct {
		kind string
		want error
	}{
		{"permission_denied", domain.ErrPermissionDenied},
		{"unsupported", domain.ErrUnsupported},
		{"timeout", domain.ErrTimeout},
		{"position_unavailable", domain.ErrPositionUnavailable},
		{"something_else", domain.ErrPositionUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			_, err := FixMessage{Error: tt.kind, Message: "from device"}.point()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLocateRequest(t *testing.T) {
	req := locateRequest(ports.PositionRequest{
		Tier:         domain.TierHigh,
		Timeout:      30 * time.Second,
		MaxStaleness: 500 * time.Millisecond,
	}, "w1")
	assert.Equal(t, LocateRequest{WatchID: "w1", Tier: domain.TierHigh, TimeoutMs: 30000, MaxStalenessMs: 500}, req)
}

func TestRequestError(t *testing.T) {
	assert.ErrorIs(t, requestError(nats.ErrNoResponders), domain.ErrPositionUnavailable)
	other := errors.New("boom")
	assert.Equal(t, other, requestError(other))
}

func TestResolutionSubject(t *testing.T) {
	assert.Equal(t, "geo.resolution.matched.zone_a", ResolutionSubject(&domain.ResolutionEvent{Matched: true, ZoneID: "zone.a"}))
	assert.Equal(t, "geo.resolution.unmatched", ResolutionSubject(&domain.ResolutionEvent{}))
	assert.Equal(t, "geo.resolution.failed.timeout", ResolutionSubject(&domain.ResolutionEvent{ErrorKind: domain.KindTimeout}))
}

func TestDeviceRegistry_ForgetAndSweep(t *testing.T) {
	r := NewDeviceRegistry(nil, time.Minute, nil)
	cancelled := 0
	r.sessions["old"] = &deviceSession{cancel: func() { cancelled++ }, lastUsed: time.Now().Add(-2 * time.Minute)}
	r.sessions["fresh"] = &deviceSession{cancel: func() { cancelled++ }, lastUsed: time.Now()}

	assert.Equal(t, 1, r.Sweep(time.Now()))
	assert.Len(t, r.sessions, 1)

	r.Forget("fresh")
	r.Forget("missing")
	assert.Empty(t, r.sessions)
	assert.Equal(t, 2, cancelled)

	r.Close()
	_, err := r.AcquirerFor(context.Background(), "x")
	assert.ErrorIs(t, err, errRegistryClosed)
}
