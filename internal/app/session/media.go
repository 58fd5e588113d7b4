package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
	"github.com/shojbahmed330/voicebook/internal/store"
)

const tokenFetchTimeout = 10 * time.Second

const renewNotice = "Having trouble keeping the call connected. It may drop soon."

func (c *Controller) fetchToken(ctx context.Context, renewal bool) {
	id := c.sessionID
	uid := c.mediaUID
	go func() {
		fctx, cancel := context.WithTimeout(ctx, tokenFetchTimeout)
		defer cancel()
		token, err := c.cfg.Tokens.Token(fctx, id, uid)
		c.post(evTokenResult{token: token, renewal: renewal, err: err})
	}()
}

func (c *Controller) onTokenResult(ctx context.Context, e evTokenResult) {
	if e.renewal {
		c.onRenewResult(e)
		return
	}
	if e.err != nil {
		// A failed token fetch is fatal to the attempt.
		log.Error().Err(e.err).Str("module", "session").Msg("token fetch failed")
		c.teardown()
		return
	}
	c.token = e.token
	c.joinChannel(ctx)
}

func (c *Controller) onRenewResult(e evTokenResult) {
	if c.state != StateActive {
		return
	}
	if e.err != nil {
		// The live connection keeps running on the old token; warn the
		// user only after repeated failures.
		c.renewFails++
		log.Warn().Err(e.err).Int("fails", c.renewFails).Str("module", "session").Msg("token renewal failed")
		if c.renewFails == renewFailLimit {
			c.notice = renewNotice
			c.emit()
		}
		return
	}
	c.renewFails = 0
	c.token = e.token
	if err := c.cfg.Media.RenewToken(e.token); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("renew push failed")
	}
}

func (c *Controller) joinChannel(ctx context.Context) {
	c.joinInFlight = true
	id := c.sessionID
	uid := c.mediaUID
	token := c.token
	go func() {
		err := c.cfg.Media.Join(ctx, id, uid, token)
		c.post(evChannelJoined{err: err})
	}()
}

func (c *Controller) onChannelJoined(ctx context.Context, err error) {
	c.joinInFlight = false
	if c.leaveRequested {
		c.teardown()
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "session").Msg("channel join failed")
		c.teardown()
		return
	}
	c.channelJoined = true

	go func() {
		for e := range c.cfg.Media.Events() {
			c.post(evMedia{e: e})
		}
	}()

	c.confirmPresence(ctx)
	c.maybeActivate()
}

// confirmPresence writes this side into the shared record. For rooms
// that is a transactional participant insert; for an answered direct
// call it is the ringing-to-active flip. The caller of a direct call
// waits for the callee's flip instead.
func (c *Controller) confirmPresence(ctx context.Context) {
	if c.session == nil {
		return
	}
	id := c.sessionID
	switch {
	case !c.session.Kind.IsDirect():
		p := domain.NewParticipant(c.cfg.Self)
		p.IsMuted = c.muted
		p.IsCameraOff = c.cameraOff
		// Audio rooms admit everyone as a listener; other kinds publish.
		p.IsSpeaker = c.session.Kind != domain.KindAudioRoom || c.session.IsHost(c.cfg.Self.ID)
		go func() {
			err := store.Join(ctx, c.cfg.Store, id, p)
			c.post(evPresenceResult{err: err})
		}()
	case !c.isCaller:
		go func() {
			err := store.AcceptCall(ctx, c.cfg.Store, id)
			c.post(evPresenceResult{err: err})
		}()
	}
}

func (c *Controller) onPresenceResult(err error) {
	if err != nil {
		if errors.Is(err, core.ErrStoreTransaction) {
			// Non-fatal per contract, but without a presence record the
			// session cannot proceed either.
			log.Warn().Err(err).Str("module", "session").Msg("presence write failed")
		} else {
			log.Error().Err(err).Str("module", "session").Msg("presence write failed")
		}
		c.teardown()
		return
	}
	if c.session != nil && !c.session.Kind.IsDirect() {
		c.presenceConfirmed = true
		c.maybeActivate()
	}
	// Direct calls confirm presence through the store update that
	// reports the active status.
}

// startPublishing kicks off device acquisition for whatever this user
// is entitled to publish right now.
func (c *Controller) startPublishing() {
	if c.session == nil {
		return
	}
	if c.session.IsSpeaker(c.cfg.Self.ID) {
		c.acquireMic()
	}
	if c.session.Kind.HasVideo() {
		c.acquireCam()
	}
}

// reconcileRoles reacts to speaker promotions and demotions in audio
// rooms. Promotion acquires the mic exactly once; demotion drops it.
func (c *Controller) reconcileRoles() {
	if c.session == nil || c.session.Kind != domain.KindAudioRoom {
		return
	}
	speaker := c.session.IsSpeaker(c.cfg.Self.ID)
	switch {
	case speaker && c.micTrack == nil && !c.acquiringMic && !c.micFailed:
		c.acquireMic()
	case !speaker && c.micTrack != nil:
		track := c.micTrack
		c.micTrack = nil
		go func() {
			if err := c.cfg.Media.Unpublish(context.Background(), track); err != nil {
				log.Warn().Err(err).Str("module", "session").Msg("unpublish on demotion failed")
			}
			_ = track.Close()
		}()
		c.emit()
	}
}

func (c *Controller) acquireMic() {
	c.acquiringMic = true
	go func() {
		track, err := c.cfg.Gate.AcquireMicrophone(context.Background())
		if err == nil {
			if perr := c.cfg.Media.Publish(context.Background(), track); perr != nil {
				_ = track.Close()
				track, err = nil, perr
			}
		}
		c.post(evDeviceResult{kind: core.TrackAudio, track: track, err: err})
	}()
}

func (c *Controller) acquireCam() {
	c.acquiringCam = true
	go func() {
		track, err := c.cfg.Gate.AcquireCamera(context.Background())
		if err == nil {
			if perr := c.cfg.Media.Publish(context.Background(), track); perr != nil {
				_ = track.Close()
				track, err = nil, perr
			}
		}
		c.post(evDeviceResult{kind: core.TrackVideo, track: track, err: err})
	}()
}

// onDeviceResult lands an acquisition attempt. Failure degrades the
// session instead of ending it.
func (c *Controller) onDeviceResult(e evDeviceResult) {
	if e.kind == core.TrackAudio {
		c.acquiringMic = false
	} else {
		c.acquiringCam = false
	}

	if c.state != StateActive {
		if e.track != nil {
			_ = e.track.Close()
		}
		return
	}

	if e.err != nil {
		// The intent flag follows availability so other participants
		// see a muted mic rather than a phantom live one.
		if e.kind == core.TrackAudio {
			c.micFailed = true
			c.muted = true
			c.pushFlags(context.Background(), domain.ParticipantUpdate{IsMuted: domain.Bool(true)})
		} else {
			c.camFailed = true
			c.cameraOff = true
			c.pushFlags(context.Background(), domain.ParticipantUpdate{IsCameraOff: domain.Bool(true)})
		}
		c.degraded = true
		var unavailable *core.DeviceUnavailableError
		if errors.As(e.err, &unavailable) {
			c.notice = unavailable.Message()
		} else {
			c.notice = "Your device could not be started. You can keep listening."
		}
		log.Warn().Err(e.err).Str("module", "session").Str("device", string(e.kind)).Msg("device unavailable, continuing degraded")
		c.emit()
		return
	}

	if e.kind == core.TrackAudio {
		c.micTrack = e.track
		e.track.SetEnabled(!c.muted)
	} else {
		c.camTrack = e.track
		e.track.SetEnabled(!c.cameraOff)
	}
	c.emit()
}

func (c *Controller) onToggleMute(ctx context.Context) {
	if c.state != StateActive {
		return
	}
	c.muted = !c.muted
	if c.micTrack != nil {
		c.micTrack.SetEnabled(!c.muted)
	}
	if err := c.cfg.Media.SetLocalAudioMuted(c.muted); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("mute toggle failed on transport")
	}
	c.pushFlags(ctx, domain.ParticipantUpdate{IsMuted: domain.Bool(c.muted)})
	c.emit()
}

func (c *Controller) onToggleCamera(ctx context.Context) {
	if c.state != StateActive || c.session == nil || !c.session.Kind.HasVideo() {
		return
	}
	c.cameraOff = !c.cameraOff
	if c.camTrack != nil {
		c.camTrack.SetEnabled(!c.cameraOff)
	}
	if err := c.cfg.Media.SetLocalVideoEnabled(!c.cameraOff); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("camera toggle failed on transport")
	}
	c.pushFlags(ctx, domain.ParticipantUpdate{IsCameraOff: domain.Bool(c.cameraOff)})
	c.emit()
}

// pushFlags mirrors local intent flags into the shared record so other
// participants render them. A lost write is non-fatal.
func (c *Controller) pushFlags(ctx context.Context, u domain.ParticipantUpdate) {
	if c.session == nil || c.session.Kind.IsDirect() {
		return
	}
	id := c.sessionID
	self := c.cfg.Self.ID
	go func() {
		if err := store.UpdateParticipant(ctx, c.cfg.Store, id, self, u); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("flag update lost")
		}
	}()
}

func (c *Controller) onMediaEvent(e core.MediaEvent) {
	switch e.Type {
	case core.MediaRemotePublished:
		if err := c.cfg.Media.Subscribe(e.Identity, e.Kind); err != nil {
			log.Warn().Err(err).Uint32("uid", e.Identity).Str("module", "session").Msg("subscribe failed")
		}
	case core.MediaRemoteLeft:
		if c.activeSpeaker == e.Identity {
			c.activeSpeaker = 0
			c.emit()
		}
		// A direct call has exactly one remote; the channel emptying is
		// as final as a terminal status in the record.
		if c.state == StateActive && c.session != nil && c.session.Kind.IsDirect() {
			log.Info().Str("module", "session").Uint32("uid", e.Identity).Msg("peer left channel")
			c.teardown()
		}
	case core.MediaVolumeLevels:
		speaker := ActiveSpeaker(e.Levels, c.cfg.NoiseThreshold)
		if speaker != c.activeSpeaker {
			c.activeSpeaker = speaker
			c.emit()
		}
	}
}
