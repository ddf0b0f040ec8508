package proctoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eduportal/integrity/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often a SignalSource is polled
const DefaultPollInterval = 2 * time.Second

var ErrMonitorOpen = errors.New("monitor already opened")

// Camera is a media stream the monitor holds for the lifetime of an attempt
type Camera interface {
	Acquire(ctx context.Context) error
	Release() error
}

// SignalSource supplies face and movement detections gathered by the host
type SignalSource interface {
	Poll(ctx context.Context) ([]Event, error)
}

// SessionInfo identifies the attempt a session belongs to
type SessionInfo struct {
	ID           string `json:"sessionId" bson:"sessionId"`
	AssignmentID string `json:"assignmentId" bson:"assignmentId"`
	StudentID    string `json:"studentId" bson:"studentId"`
}

// SessionState is a point-in-time view of a monitored session
type SessionState struct {
	SessionInfo `bson:",inline"`
	Strikes     int        `json:"strikes" bson:"strikes"`
	Movement    int        `json:"movement" bson:"movement"`
	Locked      bool       `json:"locked" bson:"locked"`
	LastWarning string     `json:"lastWarning,omitempty" bson:"lastWarning,omitempty"`
	StartedAt   time.Time  `json:"startedAt" bson:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Hooks receive session output after the monitor's lock is released.
// Hooks must not call Close on the monitor that invoked them.
type Hooks struct {
	OnWarning func(state SessionState, w Warning)
	OnLock    func(state SessionState)
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

func WithCamera(c Camera) MonitorOption {
	return func(m *Monitor) { m.camera = c }
}

func WithSignalSource(src SignalSource, interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.source = src
		if interval > 0 {
			m.interval = interval
		}
	}
}

func WithHooks(h Hooks) MonitorOption {
	return func(m *Monitor) { m.hooks = h }
}

// Monitor owns a Session together with the camera and polling loop of one
// assignment attempt. Record is safe for concurrent use.
type Monitor struct {
	info     SessionInfo
	camera   Camera
	source   SignalSource
	interval time.Duration
	hooks    Hooks

	mu          sync.Mutex
	session     *Session
	lockPending bool
	opened      bool
	cancel      context.CancelFunc
	done        chan struct{}
	startedAt   time.Time
	endedAt     *time.Time

	closeOnce sync.Once
}

func NewMonitor(info SessionInfo, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		info:      info,
		interval:  DefaultPollInterval,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}

	// onLock is only ever invoked while m.mu is held by Record
	m.session = &Session{onLock: func() { m.lockPending = true }}
	return m
}

// Open acquires the camera and starts polling the signal source.
// A camera that cannot be acquired is recorded as CameraAccessDenied.
func (m *Monitor) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.opened {
		m.mu.Unlock()
		return ErrMonitorOpen
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.opened = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	cameraHeld := false
	if m.camera != nil {
		if err := m.camera.Acquire(runCtx); err != nil {
			log.Warn().Err(err).Str("sessionId", m.info.ID).Msg("Camera acquisition failed")
			m.Record(CameraAccessDeniedEvent())
		} else {
			cameraHeld = true
		}
	}

	go m.run(runCtx, cameraHeld)

	log.Debug().
		Str("sessionId", m.info.ID).
		Bool("camera", cameraHeld).
		Bool("polling", m.source != nil).
		Msg("Proctoring monitor opened")

	return nil
}

func (m *Monitor) run(ctx context.Context, cameraHeld bool) {
	defer close(m.done)
	defer func() {
		if !cameraHeld {
			return
		}
		if err := m.camera.Release(); err != nil {
			log.Error().Err(err).Str("sessionId", m.info.ID).Msg("Failed to release camera")
		}
	}()

	if m.source == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := m.source.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("sessionId", m.info.ID).Msg("Signal source poll failed")
				continue
			}
			for _, event := range events {
				m.Record(event)
			}
		}
	}
}

// Record feeds an event to the session and dispatches hooks
func (m *Monitor) Record(event Event) *Warning {
	metrics.ProctoringEvents.WithLabelValues(string(event.Kind)).Inc()

	m.mu.Lock()
	w := m.session.RecordEvent(event)
	locked := m.lockPending
	m.lockPending = false
	state := m.stateLocked()
	m.mu.Unlock()

	if w != nil && m.hooks.OnWarning != nil {
		m.hooks.OnWarning(state, *w)
	}
	if locked {
		log.Info().
			Str("sessionId", m.info.ID).
			Str("assignmentId", m.info.AssignmentID).
			Int("strikes", state.Strikes).
			Msg("Assignment locked")
		m.stop()
		if m.hooks.OnLock != nil {
			m.hooks.OnLock(state)
		}
	}

	return w
}

// stop ends the polling loop, which releases the camera on its way out
func (m *Monitor) stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close stops polling, releases the camera and returns the final state.
// It is safe to call more than once.
func (m *Monitor) Close() SessionState {
	m.closeOnce.Do(func() {
		m.stop()

		m.mu.Lock()
		done := m.done
		m.mu.Unlock()
		if done != nil {
			<-done
		}

		m.mu.Lock()
		now := time.Now()
		m.endedAt = &now
		m.mu.Unlock()
	})
	return m.Snapshot()
}

func (m *Monitor) Snapshot() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Monitor) Info() SessionInfo {
	return m.info
}

func (m *Monitor) stateLocked() SessionState {
	return SessionState{
		SessionInfo: m.info,
		Strikes:     m.session.StrikeCount(),
		Movement:    m.session.MovementTotal(),
		Locked:      m.session.IsLocked(),
		LastWarning: m.session.LastWarning(),
		StartedAt:   m.startedAt,
		EndedAt:     m.endedAt,
	}
}
