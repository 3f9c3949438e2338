package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// SimulatedDevice answers the device subjects of one session from a fixed
// position, standing in for a browser bridge during local development.
type SimulatedDevice struct {
	Session    string
	Point      domain.GeoPoint
	Permission domain.PermissionState
	// JitterDeg is the maximum random offset applied to each fix.
	JitterDeg float64
	// FailTier makes every request for that tier time out.
	FailTier    domain.AccuracyTier
	FixInterval time.Duration
	Logger      *slog.Logger

	mu      sync.Mutex
	watches map[string]context.CancelFunc
}

var simulatedAccuracy = map[domain.AccuracyTier]float64{
	domain.TierLow:  500,
	domain.TierHigh: 15,
}

// Serve subscribes to the session's subjects and blocks until ctx is done.
func (s *SimulatedDevice) Serve(ctx context.Context, conn *nats.Conn) error {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.FixInterval <= 0 {
		s.FixInterval = time.Second
	}
	s.mu.Lock()
	s.watches = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	handlers := map[string]nats.MsgHandler{
		SuffixPermission: func(m *nats.Msg) { s.reply(m, s.permissionReply()) },
		SuffixLocate: func(m *nats.Msg) {
			var req LocateRequest
			if err := json.Unmarshal(m.Data, &req); err != nil {
				s.reply(m, FixMessage{Error: string(domain.KindPositionUnavailable), Message: "bad request"})
				return
			}
			if req.Tier == s.FailTier {
				// A real device stays silent until the caller's deadline.
				return
			}
			s.reply(m, s.locateReply(req))
		},
		SuffixWatch: func(m *nats.Msg) {
			var req LocateRequest
			if err := json.Unmarshal(m.Data, &req); err != nil || req.WatchID == "" {
				return
			}
			s.startWatch(ctx, conn, req)
		},
		SuffixWatchStop: func(m *nats.Msg) {
			var stop WatchStop
			if err := json.Unmarshal(m.Data, &stop); err == nil {
				s.stopWatch(stop.WatchID)
			}
		},
	}

	subs := make([]*nats.Subscription, 0, len(handlers))
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()
	for suffix, h := range handlers {
		sub, err := conn.Subscribe(DeviceSubject(s.Session, suffix), h)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", suffix, err)
		}
		subs = append(subs, sub)
	}
	s.Logger.Info("simulated device online", "session", s.Session, "lat", s.Point.Lat, "lon", s.Point.Lon, "permission", s.Permission)

	<-ctx.Done()
	s.mu.Lock()
	for id, cancel := range s.watches {
		cancel()
		delete(s.watches, id)
	}
	s.mu.Unlock()
	return nil
}

// SetPermission changes the simulated permission and announces it.
func (s *SimulatedDevice) SetPermission(conn *nats.Conn, st domain.PermissionState) error {
	s.mu.Lock()
	s.Permission = st
	s.mu.Unlock()
	data, err := json.Marshal(PermissionMessage{State: st})
	if err != nil {
		return err
	}
	return conn.Publish(DeviceSubject(s.Session, SuffixPermissionChanged), data)
}

func (s *SimulatedDevice) permissionReply() PermissionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PermissionMessage{State: s.Permission}
}

// locateReply builds the answer a device gives for req under the current
// permission. Prompt is treated as the user accepting.
func (s *SimulatedDevice) locateReply(req LocateRequest) FixMessage {
	s.mu.Lock()
	perm := s.Permission
	s.mu.Unlock()

	switch perm {
	case domain.PermissionDenied:
		return FixMessage{WatchID: req.WatchID, Error: string(domain.KindPermissionDenied), Message: "user denied geolocation"}
	case domain.PermissionUnsupported:
		return FixMessage{WatchID: req.WatchID, Error: string(domain.KindUnsupported)}
	}

	fix := FixMessage{
		WatchID: req.WatchID,
		Lat:     s.Point.Lat + s.jitter(),
		Lon:     s.Point.Lon + s.jitter(),
	}
	if acc, ok := simulatedAccuracy[req.Tier]; ok {
		fix.AccuracyMeters = &acc
	}
	return fix
}

func (s *SimulatedDevice) jitter() float64 {
	if s.JitterDeg <= 0 {
		return 0
	}
	return (rand.Float64()*2 - 1) * s.JitterDeg
}

func (s *SimulatedDevice) startWatch(ctx context.Context, conn *nats.Conn, req LocateRequest) {
	if req.Tier == s.FailTier {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.watches == nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.watches[req.WatchID] = cancel
	s.mu.Unlock()

	subject := FixSubject(s.Session, req.WatchID)
	go func() {
		defer s.stopWatch(req.WatchID)
		ticker := time.NewTicker(s.FixInterval)
		defer ticker.Stop()
		for {
			data, err := json.Marshal(s.locateReply(req))
			if err == nil {
				_ = conn.Publish(subject, data)
			}
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *SimulatedDevice) stopWatch(id string) {
	s.mu.Lock()
	cancel, ok := s.watches[id]
	delete(s.watches, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *SimulatedDevice) reply(m *nats.Msg, v any) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.Logger.Warn("encode simulated reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		s.Logger.Warn("send simulated reply", "subject", m.Subject, "error", err)
	}
}
