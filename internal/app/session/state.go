package session

import (
	"time"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

// State is the controller's lifecycle phase. Transitions only move
// forward; a controller instance serves exactly one session attempt.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Snapshot is the full view the controller exposes to its consumer.
// Every change is delivered as a complete snapshot, never a delta.
type Snapshot struct {
	State   State
	Session *domain.Session

	// Muted and CameraOff are local user intent.
	Muted     bool
	CameraOff bool

	// Degraded is set when a device could not be acquired and the
	// session continues in a receive-only mode for that medium.
	Degraded     bool
	MicAvailable bool
	CamAvailable bool

	// ActiveSpeaker is the media identity currently loudest above the
	// noise threshold, zero when nobody is.
	ActiveSpeaker uint32

	// Duration is how long the session has been active, zero before
	// activation.
	Duration time.Duration

	// Notice is a user-facing message about a non-fatal problem.
	Notice string
}
