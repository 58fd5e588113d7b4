package media

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/devices"
)

var errTrackClosed = errors.New("track closed")

// SampleTrack is a locally captured track backed by a static sample
// track. Disabling it drops samples without releasing the device, which
// is what mute and camera-off mean.
type SampleTrack struct {
	kind    core.TrackKind
	rtp     *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	closed  atomic.Bool
}

func newSampleTrack(kind core.TrackKind) (*SampleTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == core.TrackVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}
	rtp, err := webrtc.NewTrackLocalStaticSample(capability, string(kind), "voicebook")
	if err != nil {
		return nil, err
	}
	t := &SampleTrack{kind: kind, rtp: rtp}
	t.enabled.Store(true)
	return t, nil
}

func (t *SampleTrack) Kind() core.TrackKind { return t.kind }

func (t *SampleTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *SampleTrack) Close() error {
	t.closed.Store(true)
	return nil
}

// WriteSample feeds captured media into the track. Samples written while
// disabled are dropped silently.
func (t *SampleTrack) WriteSample(s media.Sample) error {
	if t.closed.Load() {
		return errTrackClosed
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.rtp.WriteSample(s)
}

// RTPTrack exposes the underlying track for the peer connection.
func (t *SampleTrack) RTPTrack() webrtc.TrackLocal { return t.rtp }

// Devices is the deployment-level capture source: availability is fixed
// by what the host actually has. Headless deployments run with both off
// and rely on the listen-only degradation path.
type Devices struct {
	Mic bool
	Cam bool
}

func (d Devices) OpenMicrophone(_ context.Context) (core.LocalTrack, error) {
	if !d.Mic {
		return nil, devices.ErrNotFound
	}
	return newSampleTrack(core.TrackAudio)
}

func (d Devices) OpenCamera(_ context.Context) (core.LocalTrack, error) {
	if !d.Cam {
		return nil, devices.ErrNotFound
	}
	return newSampleTrack(core.TrackVideo)
}
