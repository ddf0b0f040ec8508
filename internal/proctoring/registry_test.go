package proctoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memStores struct {
	mu       sync.Mutex
	warnings []*WarningRecord
	sessions map[string]SessionState
	statuses map[string]string
	locks    []SessionState
	saves    int
}

func newMemStores() *memStores {
	return &memStores{
		sessions: make(map[string]SessionState),
		statuses: make(map[string]string),
	}
}

func (s *memStores) InsertWarning(ctx context.Context, w *WarningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
	return nil
}

func (s *memStores) SaveSession(ctx context.Context, state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = *state
	s.saves++
	return nil
}

func (s *memStores) SetSessionStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *memStores) PublishLock(ctx context.Context, state SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = append(s.locks, state)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *memStores) {
	t.Helper()
	stores := newMemStores()
	r := NewRegistry(context.Background(), RegistryDeps{
		Warnings: stores,
		Sessions: stores,
		Status:   stores,
		Locks:    stores,
	})
	t.Cleanup(r.Close)
	return r, stores
}

func TestRegistryLifecycle(t *testing.T) {
	r, stores := newTestRegistry(t)
	ctx := context.Background()

	m, err := r.Start(ctx, SessionInfo{AssignmentID: "a1", StudentID: "st1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id := m.Info().ID
	if id == "" {
		t.Fatal("Start() should assign a session id")
	}
	if stores.statuses[id] != StatusActive {
		t.Errorf("status = %q, want %q", stores.statuses[id], StatusActive)
	}

	if _, err := r.Start(ctx, SessionInfo{ID: id}); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate Start() error = %v, want %v", err, ErrSessionExists)
	}

	w, state, err := r.Record(id, NoFaceEvent())
	if err != nil || w == nil || w.Reason != ReasonNoFace {
		t.Fatalf("Record() = %+v, %v", w, err)
	}
	if state.Strikes != 0 {
		t.Errorf("Strikes = %d, want 0", state.Strikes)
	}

	final, err := r.Finish(ctx, id)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if final.EndedAt == nil {
		t.Error("finished state should carry EndedAt")
	}
	if stores.statuses[id] != StatusFinished {
		t.Errorf("status = %q, want %q", stores.statuses[id], StatusFinished)
	}
	if len(stores.warnings) != 1 {
		t.Errorf("persisted %d warnings, want 1", len(stores.warnings))
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}

	if _, _, err := r.Record(id, TabSwitchEvent()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Record() after finish error = %v, want %v", err, ErrSessionNotFound)
	}
	if _, err := r.Finish(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Finish() error = %v, want %v", err, ErrSessionNotFound)
	}
}

func TestRegistryLockPublishesAutoSubmit(t *testing.T) {
	r, stores := newTestRegistry(t)
	ctx := context.Background()

	m, err := r.Start(ctx, SessionInfo{ID: "fixed", AssignmentID: "a2", StudentID: "st2"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, e := range []Event{TabSwitchEvent(), CopyAttemptEvent(), PasteAttemptEvent(), TabSwitchEvent()} {
		if _, _, err := r.Record(m.Info().ID, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	if len(stores.locks) != 1 {
		t.Fatalf("published %d locks, want 1", len(stores.locks))
	}
	if lock := stores.locks[0]; lock.ID != "fixed" || lock.AssignmentID != "a2" || !lock.Locked {
		t.Errorf("published lock = %+v", lock)
	}
	if stores.statuses["fixed"] != StatusLocked {
		t.Errorf("status = %q, want %q", stores.statuses["fixed"], StatusLocked)
	}
	if !stores.sessions["fixed"].Locked {
		t.Error("locked session should be persisted")
	}

	last := stores.warnings[len(stores.warnings)-1]
	if last.Reason != ReasonAssignmentLock || !last.Locked {
		t.Errorf("last warning = %+v", last)
	}

	if _, err := r.Finish(ctx, "fixed"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if stores.statuses["fixed"] != StatusLocked {
		t.Errorf("finishing a locked session must keep status %q, got %q", StatusLocked, stores.statuses["fixed"])
	}
}

func TestRegistrySourceFactory(t *testing.T) {
	src := &queueSource{batches: [][]Event{{MultipleFacesEvent()}}}
	stores := newMemStores()
	r := NewRegistry(context.Background(), RegistryDeps{
		Warnings:     stores,
		Sources:      func(SessionInfo) SignalSource { return src },
		PollInterval: 5 * time.Millisecond,
	})
	defer r.Close()

	if _, err := r.Start(context.Background(), SessionInfo{ID: "polled"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, func() bool {
		stores.mu.Lock()
		defer stores.mu.Unlock()
		return len(stores.warnings) == 1
	})
	stores.mu.Lock()
	reason := stores.warnings[0].Reason
	stores.mu.Unlock()
	if reason != ReasonMultipleFaces {
		t.Errorf("reason = %q, want %q", reason, ReasonMultipleFaces)
	}
}

func TestRegistryConcurrentFinish(t *testing.T) {
	r, stores := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Start(ctx, SessionInfo{ID: "race", AssignmentID: "a1", StudentID: "st1"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Finish(ctx, "race")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrSessionNotFound):
			t.Errorf("Finish() unexpected error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d Finish calls succeeded, want 1", succeeded)
	}

	stores.mu.Lock()
	defer stores.mu.Unlock()
	if stores.saves != 2 {
		t.Errorf("session saved %d times, want 2 (start and finish)", stores.saves)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}
