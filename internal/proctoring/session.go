package proctoring

import (
	"errors"
	"math"

	"github.com/rs/zerolog/log"
)

const (
	// StrikeLimit is the number of tab/copy/paste violations that locks a session
	StrikeLimit = 3

	movementTotalLimit = 50
	movementEventLimit = 5
)

var (
	ErrNilLockCallback = errors.New("lock callback is required")
	ErrUnknownEvent    = errors.New("unknown proctoring event")
)

// Session turns violation events for one assignment attempt into warnings,
// a strike count and a single lock transition.
//
// Session is not safe for concurrent use; callers serialize RecordEvent.
type Session struct {
	onLock    func()
	onWarning func(reason string)

	strikes     int
	locked      bool
	movement    int
	lastWarning string
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithWarningHandler registers a callback invoked with every emitted reason
func WithWarningHandler(fn func(reason string)) SessionOption {
	return func(s *Session) {
		s.onWarning = fn
	}
}

// NewSession creates an active session. onLock runs exactly once, when the
// strike limit is reached.
func NewSession(onLock func(), opts ...SessionOption) (*Session, error) {
	if onLock == nil {
		return nil, ErrNilLockCallback
	}

	s := &Session{onLock: onLock}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordEvent applies an event and returns the warning it produced, if any
func (s *Session) RecordEvent(event Event) *Warning {
	if s.locked {
		log.Debug().
			Str("event", string(event.Kind)).
			Int("strikes", s.strikes).
			Msg("Event ignored, session locked")
		return nil
	}

	switch {
	case event.Kind.IsStrike():
		s.strikes++
		if s.strikes >= StrikeLimit {
			s.locked = true
			w := s.emit(ReasonAssignmentLock, true)
			s.onLock()
			return w
		}
		return s.emit(event.Kind.Reason(), false)

	case event.Kind == ExcessiveMovement:
		amount := max(event.Amount, 0)
		if amount > math.MaxInt-s.movement {
			s.movement = math.MaxInt
		} else {
			s.movement += amount
		}
		if s.movement > movementTotalLimit && amount > movementEventLimit {
			return s.emit(ReasonMovement, false)
		}
		return nil

	case event.Kind.Reason() != "":
		return s.emit(event.Kind.Reason(), false)
	}

	log.Warn().Str("event", string(event.Kind)).Msg("Unknown proctoring event dropped")
	return nil
}

func (s *Session) emit(reason string, locked bool) *Warning {
	s.lastWarning = reason
	if s.onWarning != nil {
		s.onWarning(reason)
	}
	return &Warning{Reason: reason, Locked: locked}
}

func (s *Session) IsLocked() bool {
	return s.locked
}

func (s *Session) StrikeCount() int {
	return s.strikes
}

// MovementTotal returns the accumulated movement units
func (s *Session) MovementTotal() int {
	return s.movement
}

// LastWarning returns the most recent reason, or "" if none was emitted
func (s *Session) LastWarning() string {
	return s.lastWarning
}
