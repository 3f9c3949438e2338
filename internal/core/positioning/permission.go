package positioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// PermissionQuerier is the part of the capability subsystem the permission
// machine polls.
type PermissionQuerier interface {
	QueryPermissionState(ctx context.Context) (domain.PermissionState, error)
}

// ChangeFunc is called after every state transition.
type ChangeFunc func(old, new domain.PermissionState)

// PermissionMachine tracks the capability subsystem's permission state. It
// only observes: states come from polling or push notifications, never from
// the machine itself. Unsupported is sticky once seen.
type PermissionMachine struct {
	querier PermissionQuerier
	logger  *slog.Logger

	mu        sync.Mutex
	state     domain.PermissionState
	listeners map[int]ChangeFunc
	nextID    int
}

// NewPermissionMachine starts in Prompt. A nil querier means the platform has
// no location capability at all.
func NewPermissionMachine(q PermissionQuerier, logger *slog.Logger) *PermissionMachine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &PermissionMachine{
		querier:   q,
		logger:    logger,
		state:     domain.PermissionPrompt,
		listeners: make(map[int]ChangeFunc),
	}
	if q == nil {
		m.state = domain.PermissionUnsupported
	}
	return m
}

// State returns the last observed state.
func (m *PermissionMachine) State() domain.PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Refresh polls the subsystem and applies the reported state.
func (m *PermissionMachine) Refresh(ctx context.Context) (domain.PermissionState, error) {
	if m.querier == nil {
		return m.Observe(domain.PermissionUnsupported), nil
	}

	st, err := m.querier.QueryPermissionState(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupported) {
			return m.Observe(domain.PermissionUnsupported), nil
		}
		return m.State(), fmt.Errorf("query permission state: %w", err)
	}
	if !st.Valid() {
		return m.State(), fmt.Errorf("query permission state: unknown state %q", st)
	}
	return m.Observe(st), nil
}

// Observe applies a state reported by the subsystem and returns the
// resulting state.
func (m *PermissionMachine) Observe(st domain.PermissionState) domain.PermissionState {
	if !st.Valid() {
		return m.State()
	}

	m.mu.Lock()
	old := m.state
	if old == domain.PermissionUnsupported || old == st {
		m.mu.Unlock()
		return old
	}
	m.state = st
	listeners := make([]ChangeFunc, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Debug("permission state changed", "from", old, "to", st)
	for _, fn := range listeners {
		fn(old, st)
	}
	return st
}

// OnChange registers fn for future transitions. The returned func removes it.
func (m *PermissionMachine) OnChange(fn ChangeFunc) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Follow applies every state pushed on changes until the channel closes or
// ctx is done.
func (m *PermissionMachine) Follow(ctx context.Context, changes <-chan domain.PermissionState) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-changes:
			if !ok {
				return
			}
			m.Observe(st)
		}
	}
}

// Blocked reports whether st forbids acquisition, with the matching error.
func Blocked(st domain.PermissionState) error {
	switch st {
	case domain.PermissionDenied:
		return domain.ErrPermissionDenied
	case domain.PermissionUnsupported:
		return domain.ErrUnsupported
	}
	return nil
}
