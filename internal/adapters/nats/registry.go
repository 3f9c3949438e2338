package natsadapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/core/positioning"
)

// DeviceRegistry implements ports.AcquirerProvider. It keeps one acquirer and
// permission machine per device session and follows the session's pushed
// permission changes while it lives.
type DeviceRegistry struct {
	conn    *nats.Conn
	logger  *slog.Logger
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*deviceSession
	closed   bool
}

type deviceSession struct {
	acquirer *positioning.Acquirer
	cancel   context.CancelFunc
	lastUsed time.Time
}

// NewDeviceRegistry creates a registry. Sessions unused for idleTTL are
// dropped by Sweep.
func NewDeviceRegistry(conn *nats.Conn, idleTTL time.Duration, logger *slog.Logger) *DeviceRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	return &DeviceRegistry{
		conn:     conn,
		logger:   logger,
		idleTTL:  idleTTL,
		sessions: make(map[string]*deviceSession),
	}
}

var errRegistryClosed = errors.New("device registry closed")

// AcquirerFor returns the acquirer bound to session, creating it on first use.
func (r *DeviceRegistry) AcquirerFor(ctx context.Context, session string) (ports.PositionAcquirer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errRegistryClosed
	}
	if s, ok := r.sessions[session]; ok {
		s.lastUsed = time.Now()
		return s.acquirer, nil
	}

	capability := NewDeviceCapability(r.conn, session)
	logger := r.logger.With("session", session)
	machine := positioning.NewPermissionMachine(capability, logger)

	followCtx, cancel := context.WithCancel(context.Background())
	changes, err := capability.PermissionChanges(followCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	go machine.Follow(followCtx, changes)

	s := &deviceSession{
		acquirer: positioning.NewAcquirer(capability, machine, logger),
		cancel:   cancel,
		lastUsed: time.Now(),
	}
	r.sessions[session] = s
	return s.acquirer, nil
}

// Forget drops a session, for example when its bridge disconnects.
func (r *DeviceRegistry) Forget(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[session]; ok {
		s.cancel()
		delete(r.sessions, session)
	}
}

// Sweep drops sessions idle for longer than the registry's idle TTL and
// returns how many were removed.
func (r *DeviceRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if now.Sub(s.lastUsed) > r.idleTTL {
			s.cancel()
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *DeviceRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Debug("swept idle device sessions", "count", n)
			}
		}
	}
}

// Close drops every session.
func (r *DeviceRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.cancel()
		delete(r.sessions, id)
	}
	r.closed = true
}
