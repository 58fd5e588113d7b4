package core

import (
	"context"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is a locally captured media track. Tracks are owned
// exclusively by one controller instance and must be closed on every
// teardown path.
type LocalTrack interface {
	Kind() TrackKind
	// SetEnabled pauses or resumes the track without releasing the
	// device. Disabled audio is mute; disabled video is camera-off.
	SetEnabled(enabled bool)
	Close() error
}

// MediaChannel abstracts the real-time media transport. Join failure is
// fatal to the attempt; per-track publish and subscribe failures are not.
type MediaChannel interface {
	Join(ctx context.Context, session domain.SessionID, identity uint32, token string) error
	Leave() error
	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error
	Subscribe(identity uint32, kind TrackKind) error
	SetLocalAudioMuted(muted bool) error
	SetLocalVideoEnabled(enabled bool) error
	RenewToken(token string) error
	// Events delivers remote-published, remote-left and volume-level
	// events. The stream is closed when the channel is left.
	Events() <-chan MediaEvent
}
