package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/servezone/internal/adapters/nats"
	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/pkg/metrics"
)

// Frames sent to the browser.
const (
	frameHello           = "hello"
	framePermissionQuery = "permission_query"
	frameLocate          = "locate"
	frameWatch           = "watch"
	frameWatchStop       = "watch_stop"
	frameError           = "error"
)

// Frames sent by the browser.
const (
	clientPermission        = "permission"
	clientFix               = "fix"
	clientPermissionChanged = "permission_changed"
)

// deviceFrame is a server → browser message. Frames carrying a ReplyID expect
// an answer with the same ReplyID.
type deviceFrame struct {
	Type    string                     `json:"type"`
	Session string                     `json:"session,omitempty"`
	ReplyID string                     `json:"reply_id,omitempty"`
	Request *natsadapter.LocateRequest `json:"request,omitempty"`
	WatchID string                     `json:"watch_id,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// clientFrame is a browser → server message.
//
//	{"type":"permission","reply_id":"…","state":"granted"}
//	{"type":"fix","reply_id":"…","fix":{"lat":12.9,"lon":77.6}}
//	{"type":"fix","fix":{"watch_id":"…","error":"timeout"}}
//	{"type":"permission_changed","state":"denied"}
type clientFrame struct {
	Type    string                  `json:"type"`
	ReplyID string                  `json:"reply_id,omitempty"`
	State   domain.PermissionState  `json:"state,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Fix     *natsadapter.FixMessage `json:"fix,omitempty"`
}

// bridgeConn is the part of *nats.Conn the bridge uses.
type bridgeConn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
}

// deviceBridge relays one device session between NATS and a browser socket.
// Requests from the server side become frames; the browser's answers are
// published back as NATS replies.
type deviceBridge struct {
	session string
	nc      bridgeConn
	send    func(v any) error
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingReply
	subs    []*nats.Subscription
	closed  bool
}

type pendingReply struct {
	subject string
	frame   string
}

var (
	errUnknownReply = errors.New("unknown reply_id")
	errBridgeClosed = errors.New("bridge closed")
)

func newDeviceBridge(session string, nc bridgeConn, send func(any) error, logger *slog.Logger) *deviceBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &deviceBridge{
		session: session,
		nc:      nc,
		send:    send,
		logger:  logger,
		pending: make(map[string]pendingReply),
	}
}

func (b *deviceBridge) start() error {
	handlers := []struct {
		suffix string
		fn     nats.MsgHandler
	}{
		{natsadapter.SuffixPermission, b.onPermissionQuery},
		{natsadapter.SuffixLocate, b.onLocate},
		{natsadapter.SuffixWatch, b.onWatch},
		{natsadapter.SuffixWatchStop, b.onWatchStop},
	}
	for _, h := range handlers {
		sub, err := b.nc.Subscribe(natsadapter.DeviceSubject(b.session, h.suffix), h.fn)
		if err != nil {
			b.close()
			return fmt.Errorf("subscribe %s: %w", h.suffix, err)
		}
		b.mu.Lock()
		b.subs = append(b.subs, sub)
		b.mu.Unlock()
	}
	return b.send(deviceFrame{Type: frameHello, Session: b.session})
}

func (b *deviceBridge) onPermissionQuery(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	id, ok := b.track(msg.Reply, framePermissionQuery)
	if !ok {
		b.publish(msg.Reply, natsadapter.PermissionMessage{Error: string(domain.KindPositionUnavailable)})
		return
	}
	if err := b.send(deviceFrame{Type: framePermissionQuery, ReplyID: id}); err != nil {
		b.fail(id)
	}
}

func (b *deviceBridge) onLocate(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	var req natsadapter.LocateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.publish(msg.Reply, natsadapter.FixMessage{Error: string(domain.KindPositionUnavailable), Message: "malformed locate request"})
		return
	}
	id, ok := b.track(msg.Reply, frameLocate)
	if !ok {
		b.publish(msg.Reply, natsadapter.FixMessage{Error: string(domain.KindPositionUnavailable), Message: "device disconnected"})
		return
	}
	if err := b.send(deviceFrame{Type: frameLocate, ReplyID: id, Request: &req}); err != nil {
		b.fail(id)
	}
}

func (b *deviceBridge) onWatch(msg *nats.Msg) {
	var req natsadapter.LocateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.WatchID == "" {
		b.logger.Warn("dropping malformed watch request", "error", err)
		return
	}
	_ = b.send(deviceFrame{Type: frameWatch, Request: &req})
}

func (b *deviceBridge) onWatchStop(msg *nats.Msg) {
	var stop natsadapter.WatchStop
	if err := json.Unmarshal(msg.Data, &stop); err != nil || stop.WatchID == "" {
		return
	}
	_ = b.send(deviceFrame{Type: frameWatchStop, WatchID: stop.WatchID})
}

// handleFrame processes one browser message. Protocol errors are returned
// for the caller to report back on the socket.
func (b *deviceBridge) handleFrame(data []byte) error {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.New("invalid JSON")
	}

	switch f.Type {
	case clientPermission:
		p, err := b.take(f.ReplyID, framePermissionQuery)
		if err != nil {
			return err
		}
		if f.Error == "" && !f.State.Valid() {
			b.publish(p.subject, natsadapter.PermissionMessage{Error: string(domain.KindPositionUnavailable)})
			return fmt.Errorf("unknown permission state %q", f.State)
		}
		b.publish(p.subject, natsadapter.PermissionMessage{State: f.State, Error: f.Error})

	case clientFix:
		if f.Fix == nil {
			return errors.New("fix frame without fix")
		}
		if f.ReplyID != "" {
			p, err := b.take(f.ReplyID, frameLocate)
			if err != nil {
				return err
			}
			b.publish(p.subject, f.Fix)
			return nil
		}
		if f.Fix.WatchID == "" {
			return errors.New("fix frame needs reply_id or watch_id")
		}
		b.publish(natsadapter.FixSubject(b.session, f.Fix.WatchID), f.Fix)

	case clientPermissionChanged:
		if !f.State.Valid() {
			return fmt.Errorf("unknown permission state %q", f.State)
		}
		b.publish(natsadapter.DeviceSubject(b.session, natsadapter.SuffixPermissionChanged), natsadapter.PermissionMessage{State: f.State})

	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// close unsubscribes and fails every unanswered request so callers do not
// wait for their timeout.
func (b *deviceBridge) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	pending := b.pending
	b.subs = nil
	b.pending = nil
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	for _, p := range pending {
		b.failReply(p)
	}
}

func (b *deviceBridge) track(reply, frame string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false
	}
	id := uuid.NewString()
	b.pending[id] = pendingReply{subject: reply, frame: frame}
	return id, true
}

func (b *deviceBridge) take(id, frame string) (pendingReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return pendingReply{}, errBridgeClosed
	}
	p, ok := b.pending[id]
	if !ok || p.frame != frame {
		return pendingReply{}, fmt.Errorf("%w %q", errUnknownReply, id)
	}
	delete(b.pending, id)
	return p, nil
}

func (b *deviceBridge) fail(id string) {
	b.mu.Lock()
	p, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if ok {
		b.failReply(p)
	}
}

func (b *deviceBridge) failReply(p pendingReply) {
	switch p.frame {
	case framePermissionQuery:
		b.publish(p.subject, natsadapter.PermissionMessage{Error: string(domain.KindPositionUnavailable)})
	case frameLocate:
		b.publish(p.subject, natsadapter.FixMessage{Error: string(domain.KindPositionUnavailable), Message: "device disconnected"})
	}
}

func (b *deviceBridge) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encode device message", "error", err)
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		b.logger.Warn("publish device message", "subject", subject, "error", err)
	}
}

// DeviceBridgeHandler upgrades a browser connection into the device bridge
// for ?session=<id>. A session id is generated when none is given and sent
// back in the hello frame; it is the cache key for resolutions.
func DeviceBridgeHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		session := c.Query("session")
		if session == "" || len(session) > maxCacheKeyLen {
			session = uuid.NewString()
		}
		logger := slog.Default().With("session", session, "remote", c.RemoteAddr().String())

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		bridge := newDeviceBridge(session, deps.NATS, writeJSON, logger)
		if err := bridge.start(); err != nil {
			logger.Error("device bridge start failed", "error", err)
			return
		}
		metrics.ActiveDeviceBridges.Inc()
		logger.Info("device bridge connected")

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			if err := bridge.handleFrame(msg); err != nil {
				_ = writeJSON(deviceFrame{Type: frameError, Error: err.Error()})
			}
		}

		close(done)
		bridge.close()
		if deps.Devices != nil {
			deps.Devices.Forget(session)
		}
		metrics.ActiveDeviceBridges.Dec()
		logger.Info("device bridge disconnected")
	}
}
