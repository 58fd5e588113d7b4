package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/domain"
	"github.com/shojbahmed330/voicebook/internal/store"
)

func (c *Controller) onStoreUpdate(s *domain.Session) {
	if s == nil {
		// Record removed under us. The session is over regardless of
		// what this side was doing.
		log.Info().Str("module", "session").Str("session", string(c.sessionID)).Msg("record removed")
		c.requestTeardown()
		return
	}

	first := c.session == nil
	c.session = s
	if first {
		c.isCaller = s.Kind.IsDirect() && s.Caller != nil && s.Caller.ID == c.cfg.Self.ID
		if c.isCaller && s.Status == domain.StatusRinging {
			c.ringTimer = time.AfterFunc(c.cfg.RingTimeout, func() {
				c.post(evRingTimeout{})
			})
		}
	}

	if s.Status.IsTerminal() {
		// The other side ended, declined or missed the call.
		c.requestTeardown()
		return
	}

	if s.Kind.IsDirect() && s.Status == domain.StatusActive && !c.presenceConfirmed {
		c.presenceConfirmed = true
		c.maybeActivate()
	}

	if c.state == StateActive {
		c.reconcileRoles()
	}
	c.emit()
}

// maybeActivate flips to Active once both halves of the connect are in:
// the media channel is joined and the shared record confirms us.
func (c *Controller) maybeActivate() {
	if c.state != StateConnecting || !c.channelJoined || !c.presenceConfirmed {
		return
	}
	c.state = StateActive
	c.activatedAt = time.Now()
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	c.renewTicker = time.NewTicker(c.cfg.RenewInterval)
	go c.renewLoop(c.renewTicker)

	log.Info().Str("module", "session").Str("session", string(c.sessionID)).Msg("session active")
	c.startPublishing()
	c.emit()
}

func (c *Controller) renewLoop(t *time.Ticker) {
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.post(evRenewTick{})
		}
	}
}

func (c *Controller) onRingTimeout() {
	if c.state != StateConnecting || c.presenceConfirmed {
		return
	}
	log.Info().Str("module", "session").Str("session", string(c.sessionID)).Msg("ring timeout")
	c.ringTimedOut = true
	c.requestTeardown()
}

func (c *Controller) onLeaveIntent() {
	c.requestTeardown()
}

// requestTeardown ends the session, but never while a join is still in
// flight: the join goroutine holds the transport mid-handshake, so the
// teardown is deferred until it reports either way. Leaving before the
// join lands would no-op and strand a live connection.
func (c *Controller) requestTeardown() {
	if c.state == StateEnding || c.state == StateEnded {
		return
	}
	if c.joinInFlight {
		c.leaveRequested = true
		return
	}
	c.teardown()
}

// teardown runs every cleanup step unconditionally. A failing step is
// logged and never blocks the remaining steps.
func (c *Controller) teardown() {
	if c.state == StateEnding || c.state == StateEnded {
		return
	}
	c.state = StateEnding
	c.emit()

	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	if c.renewTicker != nil {
		c.renewTicker.Stop()
	}

	for _, t := range []struct {
		track interface{ Close() error }
		name  string
	}{{c.micTrack, "mic"}, {c.camTrack, "camera"}} {
		if t.track == nil {
			continue
		}
		if err := t.track.Close(); err != nil {
			log.Warn().Err(err).Str("module", "session").Str("track", t.name).Msg("track close failed")
		}
	}
	c.micTrack = nil
	c.camTrack = nil

	if err := c.cfg.Media.Leave(); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("media leave failed")
	}

	// The caller's context may already be canceled; the shared record
	// must still be settled.
	c.settleRecord(context.Background())

	if c.unsubscribe != nil {
		c.unsubscribe()
	}

	c.state = StateEnded
	c.emit()
	close(c.done)
	log.Info().Str("module", "session").Str("session", string(c.sessionID)).Msg("session ended")
}

// settleRecord writes this side's departure into the shared record.
func (c *Controller) settleRecord(ctx context.Context) {
	if c.session == nil {
		return
	}
	if c.session.Kind.IsDirect() {
		if status, ok := c.finalStatus(); ok {
			if err := c.cfg.Store.SetStatus(ctx, c.sessionID, status); err != nil {
				log.Warn().Err(err).Str("module", "session").Str("status", string(status)).Msg("final status write failed")
			}
		}
		return
	}

	if err := store.Leave(ctx, c.cfg.Store, c.sessionID, c.cfg.Self.ID); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("leave write failed")
	}
	// The room lives and dies with its host.
	if c.session.IsHost(c.cfg.Self.ID) {
		if err := c.cfg.Store.SetStatus(ctx, c.sessionID, domain.StatusEnded); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("room end write failed")
		}
	}
}

// finalStatus maps how a direct call is ending onto its terminal status.
func (c *Controller) finalStatus() (domain.SessionStatus, bool) {
	if c.session.Status.IsTerminal() {
		return "", false
	}
	if c.session.Status == domain.StatusRinging {
		if c.ringTimedOut || c.isCaller {
			return domain.StatusMissed, true
		}
		return domain.StatusDeclined, true
	}
	return domain.StatusEnded, true
}
