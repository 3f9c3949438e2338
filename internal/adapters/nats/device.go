package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
)

// ErrDeviceOffline is returned when no device bridge answers for a session.
var ErrDeviceOffline = fmt.Errorf("device offline: %w", domain.ErrPositionUnavailable)

// Device subjects, all under geo.device.<session>.
const (
	SuffixPermission        = "permission"
	SuffixPermissionChanged = "permission.changed"
	SuffixLocate            = "locate"
	SuffixWatch             = "watch"
	SuffixWatchStop         = "watch.stop"
	SuffixFix               = "fix"
)

// DeviceSubject returns the subject for suffix in session's namespace.
func DeviceSubject(session, suffix string) string {
	return "geo.device." + token(session) + "." + suffix
}

// FixSubject is where fixes for one watch are published.
func FixSubject(session, watchID string) string {
	return DeviceSubject(session, SuffixFix) + "." + token(watchID)
}

// LocateRequest asks the device for a position. It is the payload of both
// locate requests and watch starts.
type LocateRequest struct {
	WatchID        string              `json:"watch_id,omitempty"`
	Tier           domain.AccuracyTier `json:"tier"`
	TimeoutMs      int64               `json:"timeout_ms"`
	MaxStalenessMs int64               `json:"max_staleness_ms"`
}

// FixMessage is a device position reply or watch update. Error carries an
// ErrorKind when the device failed.
type FixMessage struct {
	WatchID        string   `json:"watch_id,omitempty"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
	Error          string   `json:"error,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// PermissionMessage carries a permission state, or an error kind.
type PermissionMessage struct {
	State domain.PermissionState `json:"state,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// WatchStop cancels a running watch.
type WatchStop struct {
	WatchID string `json:"watch_id"`
}

// DeviceCapability implements ports.LocationCapability by talking to a
// device bridge over NATS request/reply and subjects.
type DeviceCapability struct {
	conn    *nats.Conn
	session string
}

// NewDeviceCapability binds a capability to one device session.
func NewDeviceCapability(conn *nats.Conn, session string) *DeviceCapability {
	return &DeviceCapability{conn: conn, session: session}
}

var _ ports.LocationCapability = (*DeviceCapability)(nil)

func (d *DeviceCapability) QueryPermissionState(ctx context.Context) (domain.PermissionState, error) {
	ctx, cancel := withDefaultDeadline(ctx, 5*time.Second)
	defer cancel()

	msg, err := d.conn.RequestWithContext(ctx, DeviceSubject(d.session, SuffixPermission), nil)
	if err != nil {
		return "", requestError(err)
	}
	var pm PermissionMessage
	if err := json.Unmarshal(msg.Data, &pm); err != nil {
		return "", fmt.Errorf("decode permission reply: %w", err)
	}
	if pm.Error != "" {
		return "", kindError(pm.Error, "")
	}
	return pm.State, nil
}

func (d *DeviceCapability) RequestPosition(ctx context.Context, req ports.PositionRequest) (domain.GeoPoint, error) {
	data, err := json.Marshal(locateRequest(req, ""))
	if err != nil {
		return domain.GeoPoint{}, err
	}
	msg, err := d.conn.RequestWithContext(ctx, DeviceSubject(d.session, SuffixLocate), data)
	if err != nil {
		return domain.GeoPoint{}, requestError(err)
	}
	var fix FixMessage
	if err := json.Unmarshal(msg.Data, &fix); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("decode locate reply: %w", err)
	}
	return fix.point()
}

// WatchPosition subscribes to the watch's fix subject before asking the
// device to start, so no early fix is lost. The channel closes once ctx is
// done and the device is told to stop.
func (d *DeviceCapability) WatchPosition(ctx context.Context, req ports.PositionRequest) (<-chan ports.PositionFix, error) {
	watchID := uuid.NewString()
	msgs := make(chan *nats.Msg, 16)
	sub, err := d.conn.ChanSubscribe(FixSubject(d.session, watchID), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe fixes: %w", err)
	}

	start, err := json.Marshal(locateRequest(req, watchID))
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	if err := d.conn.Publish(DeviceSubject(d.session, SuffixWatch), start); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("start watch: %w", err)
	}

	out := make(chan ports.PositionFix)
	go func() {
		defer close(out)
		defer func() {
			_ = sub.Unsubscribe()
			if stop, err := json.Marshal(WatchStop{WatchID: watchID}); err == nil {
				_ = d.conn.Publish(DeviceSubject(d.session, SuffixWatchStop), stop)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				var fm FixMessage
				var f ports.PositionFix
				if err := json.Unmarshal(msg.Data, &fm); err != nil {
					f.Err = fmt.Errorf("decode fix: %w", domain.ErrPositionUnavailable)
				} else {
					f.Point, f.Err = fm.point()
				}
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *DeviceCapability) PermissionChanges(ctx context.Context) (<-chan domain.PermissionState, error) {
	msgs := make(chan *nats.Msg, 8)
	sub, err := d.conn.ChanSubscribe(DeviceSubject(d.session, SuffixPermissionChanged), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe permission changes: %w", err)
	}

	out := make(chan domain.PermissionState)
	go func() {
		defer close(out)
		defer sub.Unsubscribe() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				var pm PermissionMessage
				if err := json.Unmarshal(msg.Data, &pm); err != nil || !pm.State.Valid() {
					continue
				}
				select {
				case out <- pm.State:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func locateRequest(req ports.PositionRequest, watchID string) LocateRequest {
	return LocateRequest{
		WatchID:        watchID,
		Tier:           req.Tier,
		TimeoutMs:      req.Timeout.Milliseconds(),
		MaxStalenessMs: req.MaxStaleness.Milliseconds(),
	}
}

func (f FixMessage) point() (domain.GeoPoint, error) {
	if f.Error != "" {
		return domain.GeoPoint{}, kindError(f.Error, f.Message)
	}
	p := domain.NewGeoPoint(f.Lat, f.Lon)
	if f.AccuracyMeters != nil {
		p = p.WithAccuracy(*f.AccuracyMeters)
	}
	return p, nil
}

// kindError maps an ErrorKind sent by the device onto the domain sentinel.
func kindError(kind, message string) error {
	var base error
	switch domain.ErrorKind(kind) {
	case domain.KindPermissionDenied:
		base = domain.ErrPermissionDenied
	case domain.KindUnsupported:
		base = domain.ErrUnsupported
	case domain.KindTimeout:
		base = domain.ErrTimeout
	default:
		base = domain.ErrPositionUnavailable
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}

func requestError(err error) error {
	if errors.Is(err, nats.ErrNoResponders) {
		return ErrDeviceOffline
	}
	return err
}

func withDefaultDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
