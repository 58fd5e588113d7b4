// Package devices acquires local capture devices and classifies failures
// so the session can degrade instead of dying.
package devices

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
)

// Sentinel errors a CaptureSource reports. Anything else classifies as
// ReasonOther.
var (
	ErrPermissionDenied = errors.New("device permission denied")
	ErrNotFound         = errors.New("device not found")
)

// CaptureSource opens raw capture devices. Implementations wrap whatever
// capture backend the deployment has; tests use fakes.
type CaptureSource interface {
	OpenMicrophone(ctx context.Context) (core.LocalTrack, error)
	OpenCamera(ctx context.Context) (core.LocalTrack, error)
}

// Gate implements core.DeviceGate. Each acquisition is a single attempt;
// retry policy belongs to the caller.
type Gate struct {
	source CaptureSource
}

func NewGate(source CaptureSource) *Gate {
	return &Gate{source: source}
}

func (g *Gate) AcquireMicrophone(ctx context.Context) (core.LocalTrack, error) {
	track, err := g.source.OpenMicrophone(ctx)
	if err != nil {
		return nil, classify(core.TrackAudio, err)
	}
	return track, nil
}

func (g *Gate) AcquireCamera(ctx context.Context) (core.LocalTrack, error) {
	track, err := g.source.OpenCamera(ctx)
	if err != nil {
		return nil, classify(core.TrackVideo, err)
	}
	return track, nil
}

func classify(device core.TrackKind, err error) error {
	reason := core.ReasonOther
	switch {
	case errors.Is(err, ErrPermissionDenied):
		reason = core.ReasonPermissionDenied
	case errors.Is(err, ErrNotFound):
		reason = core.ReasonNotFound
	}
	log.Warn().Err(err).Str("module", "devices").Str("device", string(device)).Int("reason", int(reason)).Msg("acquisition failed")
	return &core.DeviceUnavailableError{Device: device, Reason: reason, Cause: err}
}
