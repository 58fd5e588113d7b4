package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenUnavailable is fatal to a join attempt; the controller does
	// not retry a failed token fetch.
	ErrTokenUnavailable = errors.New("media token unavailable")
	// ErrChannelJoinFailed is fatal to a join attempt.
	ErrChannelJoinFailed = errors.New("media channel join failed")
	// ErrStoreTransaction surfaces as a non-fatal warning.
	ErrStoreTransaction = errors.New("store transaction failed")
)

type UnavailableReason int

const (
	ReasonPermissionDenied UnavailableReason = iota
	ReasonNotFound
	ReasonOther
)

// DeviceUnavailableError reports a failed device acquisition. It is
// non-fatal: the session continues in a degraded mode.
type DeviceUnavailableError struct {
	Device TrackKind
	Reason UnavailableReason
	Cause  error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable (reason %d): %v", e.Device, e.Reason, e.Cause)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Cause }

// Message is the user-facing text for the failure. Raw errors never reach
// the user.
func (e *DeviceUnavailableError) Message() string {
	device := "microphone"
	if e.Device == TrackVideo {
		device = "camera"
	}
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Permission to use your " + device + " was denied. You can keep listening."
	case ReasonNotFound:
		return "No " + device + " was found. You can keep listening."
	default:
		return "Your " + device + " could not be started. You can keep listening."
	}
}
