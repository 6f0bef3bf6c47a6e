package recorder

import (
	"errors"
	"fmt"
	"time"
)

// StateKind enumerates the recording lifecycle states.
type StateKind int

const (
	StateIdle StateKind = iota
	StateRecording
	StatePaused
	StateSaving
	StateError
)

// String returns the uppercase state name used in events and the CLI.
func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StatePaused:
		return "PAUSED"
	case StateSaving:
		return "SAVING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// State is the lifecycle state with its per-variant payload. Exactly one
// value is current at any time and drives all coordinator behavior.
type State struct {
	Kind      StateKind
	StartTime time.Time // Recording, Paused
	PausedAt  time.Time // Paused
	Message   string    // Error
}

// Active reports whether a recording is in progress in any form. Sensor
// additions only take effect while active.
func (s State) Active() bool {
	return s.Kind == StateRecording || s.Kind == StatePaused || s.Kind == StateSaving
}

// Sentinel errors for the recording lifecycle.
var (
	ErrNoSensorsConnected = errors.New("no sensors connected")
	ErrNoDataCaptured     = errors.New("no heart rate data captured")
	ErrSaveFailed         = errors.New("failed to save recording")
)

// TransitionError reports a rejected lifecycle transition. The state machine
// stays in From; the caller decides whether to surface or ignore it.
type TransitionError struct {
	From StateKind
	To   StateKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// transition validates a requested state change against the lifecycle table.
// It returns the new state, or a TransitionError and the unchanged state.
func transition(from State, to State) (State, error) {
	ok := false
	switch to.Kind {
	case StateRecording:
		// start only from Idle; Resume validates Paused itself and never
		// goes through this table
		ok = from.Kind == StateIdle
	case StatePaused:
		ok = from.Kind == StateRecording
	case StateSaving:
		ok = from.Kind == StateRecording || from.Kind == StatePaused
	case StateIdle:
		// cancel from any active state, or recovery from Error/Saving
		ok = from.Active() || from.Kind == StateError
	case StateError:
		ok = true
	}
	if !ok {
		return from, &TransitionError{From: from.Kind, To: to.Kind}
	}
	return to, nil
}
