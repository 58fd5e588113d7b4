// Package media implements the media-transport contract on top of a
// WebRTC gateway: one peer connection plus a websocket signaling leg.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
)

type Config struct {
	// GatewayURL is the ws(s):// base of the media gateway.
	GatewayURL string
	// ICEServers defaults to a public STUN server when empty.
	ICEServers []string
	// JoinTimeout bounds the offer/answer exchange.
	JoinTimeout time.Duration
	// LevelInterval is the volume snapshot period.
	LevelInterval time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.ICEServers) == 0 {
		c.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 15 * time.Second
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = 200 * time.Millisecond
	}
	return c
}

// Channel implements core.MediaChannel. One Channel serves one session
// attempt; Leave tears it down for good.
type Channel struct {
	cfg Config

	events  chan core.MediaEvent
	answers chan webrtc.SessionDescription
	send    chan []byte

	mu      sync.Mutex
	ws      *websocket.Conn
	pc      *webrtc.PeerConnection
	meter   *levelMeter
	senders map[core.LocalTrack]*webrtc.RTPSender
	joined  bool

	// evMu orders emits against the teardown close of events, so late
	// callbacks from the peer connection never hit a closed channel.
	evMu     sync.Mutex
	evClosed bool

	cancel    context.CancelFunc
	leaveOnce sync.Once
}

// rtpProvider is what a publishable local track must expose.
type rtpProvider interface {
	RTPTrack() webrtc.TrackLocal
}

func NewChannel(cfg Config) *Channel {
	return &Channel{
		cfg:     cfg.withDefaults(),
		events:  make(chan core.MediaEvent, 64),
		answers: make(chan webrtc.SessionDescription, 1),
		send:    make(chan []byte, 32),
		senders: make(map[core.LocalTrack]*webrtc.RTPSender),
	}
}

func (c *Channel) Events() <-chan core.MediaEvent { return c.events }

func (c *Channel) Join(ctx context.Context, session domain.SessionID, identity uint32, token string) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return fmt.Errorf("%w: already joined", core.ErrChannelJoinFailed)
	}
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/ws/media?channel=%s&uid=%d", c.cfg.GatewayURL, session, identity)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("%w: dial gateway: %w", core.ErrChannelJoinFailed, err)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(c.cfg.ICEServers))
	for _, u := range c.cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("%w: new peer connection: %w", core.ErrChannelJoinFailed, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.ws = ws
	c.pc = pc
	c.cancel = cancel
	c.meter = newLevelMeter(func(levels map[uint32]int) {
		c.emitEvent(core.MediaEvent{Type: core.MediaVolumeLevels, Levels: levels})
	})
	c.mu.Unlock()

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		env := envelope{Type: "candidate", Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			env.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			env.SDPMLineIndex = *ci.SDPMLineIndex
		}
		c.enqueue(env)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		uid := parseStreamUID(track.StreamID())
		kind := core.TrackAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = core.TrackVideo
		}
		log.Info().Str("module", "media").Uint32("uid", uid).Str("kind", string(kind)).Msg("remote track")
		c.emitEvent(core.MediaEvent{Type: core.MediaRemotePublished, Identity: uid, Kind: kind})
		if kind == core.TrackAudio {
			go c.meter.watch(runCtx, uid, track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "media").Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})

	go c.writePump(runCtx)
	go c.readPump(runCtx)
	go c.meter.run(runCtx, c.cfg.LevelInterval)

	if err := c.negotiate(ctx, token); err != nil {
		c.teardownTransport()
		return fmt.Errorf("%w: %w", core.ErrChannelJoinFailed, err)
	}

	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	log.Info().Str("module", "media").Str("channel", string(session)).Uint32("uid", identity).Msg("joined")
	return nil
}

// negotiate runs one offer/answer round with the gateway.
func (c *Channel) negotiate(ctx context.Context, token string) error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	c.enqueue(envelope{Type: "offer", SDP: c.pc.LocalDescription().SDP, Token: token})

	select {
	case answer := <-c.answers:
		if err := c.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.JoinTimeout):
		return errors.New("timed out waiting for answer")
	}
}

func (c *Channel) Leave() error {
	var err error
	c.leaveOnce.Do(func() {
		err = c.teardownTransport()
		log.Info().Str("module", "media").Msg("left channel")
	})
	return err
}

func (c *Channel) teardownTransport() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	var firstErr error
	if c.pc != nil {
		if err := c.pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.ws != nil {
		if err := c.ws.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.joined = false

	// Consumers range over Events; the close is their signal to stop.
	c.evMu.Lock()
	if !c.evClosed {
		c.evClosed = true
		close(c.events)
	}
	c.evMu.Unlock()

	return firstErr
}

// Publish adds local tracks to the connection. Per-track failures are
// reported to the caller and do not end the session.
func (c *Channel) Publish(ctx context.Context, tracks ...core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return errors.New("publish before join")
	}
	for _, t := range tracks {
		provider, ok := t.(rtpProvider)
		if !ok {
			return fmt.Errorf("track %s cannot be published on this transport", t.Kind())
		}
		sender, err := c.pc.AddTrack(provider.RTPTrack())
		if err != nil {
			return fmt.Errorf("publish %s: %w", t.Kind(), err)
		}
		c.senders[t] = sender
	}
	return c.renegotiateLocked(ctx)
}

func (c *Channel) Unpublish(ctx context.Context, tracks ...core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tracks {
		sender, ok := c.senders[t]
		if !ok {
			continue
		}
		if err := c.pc.RemoveTrack(sender); err != nil {
			return fmt.Errorf("unpublish %s: %w", t.Kind(), err)
		}
		delete(c.senders, t)
	}
	if !c.joined {
		return nil
	}
	return c.renegotiateLocked(ctx)
}

// renegotiateLocked refreshes the offer after the track set changed.
func (c *Channel) renegotiateLocked(ctx context.Context) error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	c.enqueue(envelope{Type: "offer", SDP: offer.SDP})

	select {
	case answer := <-c.answers:
		return c.pc.SetRemoteDescription(answer)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.JoinTimeout):
		return errors.New("timed out waiting for renegotiation answer")
	}
}

func (c *Channel) Subscribe(identity uint32, kind core.TrackKind) error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return errors.New("subscribe before join")
	}
	c.enqueue(envelope{Type: "subscribe", UID: identity, Kind: string(kind)})
	return nil
}

func (c *Channel) SetLocalAudioMuted(muted bool) error {
	return c.setKindEnabled(core.TrackAudio, !muted)
}

func (c *Channel) SetLocalVideoEnabled(enabled bool) error {
	return c.setKindEnabled(core.TrackVideo, enabled)
}

func (c *Channel) setKindEnabled(kind core.TrackKind, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t := range c.senders {
		if t.Kind() == kind {
			t.SetEnabled(enabled)
		}
	}
	return nil
}

// RenewToken refreshes the gateway's authorization for the live
// connection, without a leave/rejoin cycle.
func (c *Channel) RenewToken(token string) error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return errors.New("renew before join")
	}
	c.enqueue(envelope{Type: "renew", Token: token})
	return nil
}

func (c *Channel) emitEvent(e core.MediaEvent) {
	c.evMu.Lock()
	defer c.evMu.Unlock()
	if c.evClosed {
		return
	}
	select {
	case c.events <- e:
	default:
		log.Warn().Str("module", "media").Int("type", int(e.Type)).Msg("event queue full, dropping")
	}
}

// parseStreamUID recovers the publisher identity the gateway encodes as
// the stream id.
func parseStreamUID(streamID string) uint32 {
	uid, err := strconv.ParseUint(streamID, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(uid)
}
