package proctoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eduportal/integrity/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("proctoring session not found")
	ErrSessionExists   = errors.New("proctoring session already exists")
)

const hookTimeout = 5 * time.Second

// WarningRecord is a persisted warning
type WarningRecord struct {
	SessionID    string    `json:"sessionId" bson:"sessionId"`
	AssignmentID string    `json:"assignmentId" bson:"assignmentId"`
	StudentID    string    `json:"studentId" bson:"studentId"`
	Reason       string    `json:"reason" bson:"reason"`
	Locked       bool      `json:"locked" bson:"locked"`
	Strikes      int       `json:"strikes" bson:"strikes"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

type WarningStore interface {
	InsertWarning(ctx context.Context, w *WarningRecord) error
}

type SessionStore interface {
	SaveSession(ctx context.Context, state *SessionState) error
}

type StatusTracker interface {
	SetSessionStatus(ctx context.Context, sessionID string, status string) error
}

type LockPublisher interface {
	PublishLock(ctx context.Context, state SessionState) error
}

// Session statuses kept in the status tracker
const (
	StatusActive   = "active"
	StatusLocked   = "locked"
	StatusFinished = "finished"
)

// SourceFactory builds the signal source for a new session
type SourceFactory func(info SessionInfo) SignalSource

// RegistryDeps holds the optional collaborators of a Registry
type RegistryDeps struct {
	Warnings     WarningStore
	Sessions     SessionStore
	Status       StatusTracker
	Locks        LockPublisher
	Sources      SourceFactory
	PollInterval time.Duration
}

// Registry keeps the live monitors of the service keyed by session ID
type Registry struct {
	ctx      context.Context
	deps     RegistryDeps
	mu       sync.RWMutex
	monitors map[string]*Monitor
}

// NewRegistry creates a registry whose monitors live until ctx is cancelled
// or they are finished
func NewRegistry(ctx context.Context, deps RegistryDeps) *Registry {
	return &Registry{
		ctx:      ctx,
		deps:     deps,
		monitors: make(map[string]*Monitor),
	}
}

// Start opens a monitor for an attempt. An empty info.ID gets a fresh UUID.
func (r *Registry) Start(ctx context.Context, info SessionInfo) (*Monitor, error) {
	if info.ID == "" {
		info.ID = uuid.New().String()
	}

	opts := []MonitorOption{WithHooks(Hooks{
		OnWarning: r.handleWarning,
		OnLock:    r.handleLock,
	})}
	if r.deps.Sources != nil {
		if src := r.deps.Sources(info); src != nil {
			opts = append(opts, WithSignalSource(src, r.deps.PollInterval))
		}
	}
	m := NewMonitor(info, opts...)

	r.mu.Lock()
	if _, exists := r.monitors[info.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, info.ID)
	}
	r.monitors[info.ID] = m
	r.mu.Unlock()

	if err := m.Open(r.ctx); err != nil {
		r.remove(info.ID)
		return nil, fmt.Errorf("failed to open monitor: %w", err)
	}

	metrics.ActiveSessions.Inc()

	state := m.Snapshot()
	if r.deps.Sessions != nil {
		if err := r.deps.Sessions.SaveSession(ctx, &state); err != nil {
			log.Error().Err(err).Str("sessionId", info.ID).Msg("Failed to persist session")
		}
	}
	r.setStatus(ctx, info.ID, StatusActive)

	log.Info().
		Str("sessionId", info.ID).
		Str("assignmentId", info.AssignmentID).
		Str("studentId", info.StudentID).
		Msg("Proctoring session started")

	return m, nil
}

func (r *Registry) Get(id string) (*Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.monitors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m, nil
}

// Record forwards an event to the session's monitor
func (r *Registry) Record(id string, event Event) (*Warning, SessionState, error) {
	m, err := r.Get(id)
	if err != nil {
		return nil, SessionState{}, err
	}

	w := m.Record(event)
	return w, m.Snapshot(), nil
}

// Finish closes and forgets a session, returning its final state
func (r *Registry) Finish(ctx context.Context, id string) (SessionState, error) {
	m, err := r.take(id)
	if err != nil {
		return SessionState{}, err
	}
	metrics.ActiveSessions.Dec()

	state := m.Close()
	if r.deps.Sessions != nil {
		if err := r.deps.Sessions.SaveSession(ctx, &state); err != nil {
			log.Error().Err(err).Str("sessionId", id).Msg("Failed to persist finished session")
		}
	}
	if !state.Locked {
		r.setStatus(ctx, id, StatusFinished)
	}

	log.Info().
		Str("sessionId", id).
		Int("strikes", state.Strikes).
		Bool("locked", state.Locked).
		Msg("Proctoring session finished")

	return state, nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// Close closes every live monitor
func (r *Registry) Close() {
	r.mu.Lock()
	monitors := r.monitors
	r.monitors = make(map[string]*Monitor)
	r.mu.Unlock()

	for _, m := range monitors {
		m.Close()
		metrics.ActiveSessions.Dec()
	}
}

// take removes and returns a monitor; only one caller wins a given ID
func (r *Registry) take(id string) (*Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.monitors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.monitors, id)
	return m, nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.monitors, id)
	r.mu.Unlock()
}

func (r *Registry) handleWarning(state SessionState, w Warning) {
	log.Info().
		Str("sessionId", state.ID).
		Str("reason", w.Reason).
		Int("strikes", state.Strikes).
		Msg("Proctoring warning")

	if r.deps.Warnings == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	record := &WarningRecord{
		SessionID:    state.ID,
		AssignmentID: state.AssignmentID,
		StudentID:    state.StudentID,
		Reason:       w.Reason,
		Locked:       w.Locked,
		Strikes:      state.Strikes,
		CreatedAt:    time.Now(),
	}
	if err := r.deps.Warnings.InsertWarning(ctx, record); err != nil {
		log.Error().Err(err).Str("sessionId", state.ID).Msg("Failed to persist warning")
	}
}

func (r *Registry) handleLock(state SessionState) {
	metrics.ProctoringLocks.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	if r.deps.Sessions != nil {
		if err := r.deps.Sessions.SaveSession(ctx, &state); err != nil {
			log.Error().Err(err).Str("sessionId", state.ID).Msg("Failed to persist locked session")
		}
	}
	r.setStatus(ctx, state.ID, StatusLocked)

	if r.deps.Locks != nil {
		if err := r.deps.Locks.PublishLock(ctx, state); err != nil {
			log.Error().Err(err).Str("sessionId", state.ID).Msg("Failed to publish auto-submit request")
		}
	}
}

func (r *Registry) setStatus(ctx context.Context, id, status string) {
	if r.deps.Status == nil {
		return
	}
	if err := r.deps.Status.SetSessionStatus(ctx, id, status); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Str("status", status).Msg("Failed to update session status")
	}
}
