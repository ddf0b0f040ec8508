package proctoring

import (
	"fmt"
	"strings"
)

// EventKind identifies one of the violation signals a host can report
type EventKind string

const (
	TabSwitch             EventKind = "tab_switch"
	CopyAttempt           EventKind = "copy_attempt"
	PasteAttempt          EventKind = "paste_attempt"
	ExcessiveMovement     EventKind = "excessive_movement"
	MultipleFacesDetected EventKind = "multiple_faces_detected"
	NoFaceDetected        EventKind = "no_face_detected"
	CameraAccessDenied    EventKind = "camera_access_denied"
)

// Warning reasons
const (
	ReasonTabSwitch      = "tab switching detected"
	ReasonCopy           = "copy attempt detected"
	ReasonPaste          = "paste attempt detected"
	ReasonMovement       = "excessive movement detected"
	ReasonMultipleFaces  = "multiple faces detected"
	ReasonNoFace         = "no face detected"
	ReasonCameraDenied   = "camera access denied"
	ReasonAssignmentLock = "assignment locked"
)

// Event is a single violation signal. Amount is only meaningful for
// ExcessiveMovement.
type Event struct {
	Kind   EventKind `json:"type"`
	Amount int       `json:"amount,omitempty"`
}

// Constructors for the closed set of events

func TabSwitchEvent() Event { return Event{Kind: TabSwitch} }
func CopyAttemptEvent() Event { return Event{Kind: CopyAttempt} }
func PasteAttemptEvent() Event { return Event{Kind: PasteAttempt} }
func MultipleFacesEvent() Event { return Event{Kind: MultipleFacesDetected} }
func NoFaceEvent() Event { return Event{Kind: NoFaceDetected} }
func CameraAccessDeniedEvent() Event { return Event{Kind: CameraAccessDenied} }
func MovementEvent(amount int) Event { return Event{Kind: ExcessiveMovement, Amount: amount} }

// IsStrike reports whether the kind counts toward the lock threshold
func (k EventKind) IsStrike() bool {
	switch k {
	case TabSwitch, CopyAttempt, PasteAttempt:
		return true
	default:
		return false
	}
}

// Reason returns the fixed warning text for the kind
func (k EventKind) Reason() string {
	switch k {
	case TabSwitch:
		return ReasonTabSwitch
	case CopyAttempt:
		return ReasonCopy
	case PasteAttempt:
		return ReasonPaste
	case ExcessiveMovement:
		return ReasonMovement
	case MultipleFacesDetected:
		return ReasonMultipleFaces
	case NoFaceDetected:
		return ReasonNoFace
	case CameraAccessDenied:
		return ReasonCameraDenied
	default:
		return ""
	}
}

// ParseEventKind maps a wire value onto a known kind
func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case TabSwitch, CopyAttempt, PasteAttempt, ExcessiveMovement,
		MultipleFacesDetected, NoFaceDetected, CameraAccessDenied:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Warning is what a session emits for an event
type Warning struct {
	Reason string `json:"reason"`
	Locked bool   `json:"locked"`
}
