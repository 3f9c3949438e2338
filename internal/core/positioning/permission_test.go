package positioning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/positioning"
)

type mockQuerier struct {
	queryFn func(ctx context.Context) (domain.PermissionState, error)
}

func (m *mockQuerier) QueryPermissionState(ctx context.Context) (domain.PermissionState, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx)
	}
	return domain.PermissionPrompt, nil
}

func staticQuerier(st domain.PermissionState) *mockQuerier {
	return &mockQuerier{queryFn: func(ctx context.Context) (domain.PermissionState, error) { return st, nil }}
}

func TestPermissionMachine_StartsInPrompt(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionGranted), nil)
	if m.State() != domain.PermissionPrompt {
		t.Errorf("expected prompt, got %s", m.State())
	}
}

func TestPermissionMachine_NilQuerierIsUnsupported(t *testing.T) {
	m := positioning.NewPermissionMachine(nil, nil)
	if m.State() != domain.PermissionUnsupported {
		t.Errorf("expected unsupported, got %s", m.State())
	}
}

func TestPermissionMachine_Refresh(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionGranted), nil)
	st, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.PermissionGranted || m.State() != domain.PermissionGranted {
		t.Errorf("expected granted, got %s", st)
	}
}

func TestPermissionMachine_RefreshUnsupportedError(t *testing.T) {
	q := &mockQuerier{queryFn: func(ctx context.Context) (domain.PermissionState, error) {
		return "", domain.ErrUnsupported
	}}
	m := positioning.NewPermissionMachine(q, nil)
	st, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.PermissionUnsupported {
		t.Errorf("expected unsupported, got %s", st)
	}
}

func TestPermissionMachine_RefreshErrorKeepsState(t *testing.T) {
	q := &mockQuerier{queryFn: func(ctx context.Context) (domain.PermissionState, error) {
		return "", errors.New("bridge offline")
	}}
	m := positioning.NewPermissionMachine(q, nil)
	m.Observe(domain.PermissionGranted)

	st, err := m.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if st != domain.PermissionGranted {
		t.Errorf("expected last known granted, got %s", st)
	}
}

func TestPermissionMachine_UnsupportedIsSticky(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionGranted), nil)
	m.Observe(domain.PermissionUnsupported)
	m.Observe(domain.PermissionGranted)
	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != domain.PermissionUnsupported {
		t.Errorf("expected unsupported to stick, got %s", m.State())
	}
}

func TestPermissionMachine_DeniedCanBeRegranted(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionPrompt), nil)
	m.Observe(domain.PermissionDenied)
	m.Observe(domain.PermissionGranted)
	if m.State() != domain.PermissionGranted {
		t.Errorf("expected granted, got %s", m.State())
	}
}

func TestPermissionMachine_IgnoresUnknownState(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionPrompt), nil)
	m.Observe("maybe")
	if m.State() != domain.PermissionPrompt {
		t.Errorf("expected prompt, got %s", m.State())
	}
}

func TestPermissionMachine_OnChange(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionPrompt), nil)

	var transitions [][2]domain.PermissionState
	unsubscribe := m.OnChange(func(old, next domain.PermissionState) {
		// Reading state from a callback must not deadlock.
		_ = m.State()
		transitions = append(transitions, [2]domain.PermissionState{old, next})
	})

	m.Observe(domain.PermissionGranted)
	m.Observe(domain.PermissionGranted)
	m.Observe(domain.PermissionDenied)
	unsubscribe()
	unsubscribe()
	m.Observe(domain.PermissionGranted)

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %v", len(transitions), transitions)
	}
	if transitions[0] != [2]domain.PermissionState{domain.PermissionPrompt, domain.PermissionGranted} {
		t.Errorf("unexpected first transition %v", transitions[0])
	}
	if transitions[1] != [2]domain.PermissionState{domain.PermissionGranted, domain.PermissionDenied} {
		t.Errorf("unexpected second transition %v", transitions[1])
	}
}

func TestPermissionMachine_Follow(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionPrompt), nil)
	changes := make(chan domain.PermissionState)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Follow(context.Background(), changes)
	}()

	changes <- domain.PermissionGranted
	changes <- domain.PermissionDenied
	close(changes)
	wg.Wait()

	if m.State() != domain.PermissionDenied {
		t.Errorf("expected denied, got %s", m.State())
	}
}

func TestPermissionMachine_FollowStopsOnCancel(t *testing.T) {
	m := positioning.NewPermissionMachine(staticQuerier(domain.PermissionPrompt), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Follow(ctx, make(chan domain.PermissionState))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestBlocked(t *testing.T) {
	tests := []struct {
		state domain.PermissionState
		want  error
	}{
		{domain.PermissionPrompt, nil},
		{domain.PermissionGranted, nil},
		{domain.PermissionDenied, domain.ErrPermissionDenied},
		{domain.PermissionUnsupported, domain.ErrUnsupported},
	}
	for _, tt := range tests {
		if got := positioning.Blocked(tt.state); !errors.Is(got, tt.want) && got != tt.want {
			t.Errorf("Blocked(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}
