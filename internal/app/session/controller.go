// Package session drives one call or room attempt from connect to
// teardown. All state lives on a single event loop goroutine; blocking
// work runs in helper goroutines that post their results back as events.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
	"github.com/shojbahmed330/voicebook/internal/identity"
)

const (
	defaultRingTimeout    = 30 * time.Second
	defaultRenewInterval  = 45 * time.Second
	defaultNoiseThreshold = 5

	// renewFailNotice fires after this many consecutive renewal failures.
	renewFailLimit = 3
)

type Config struct {
	Store  core.SessionStore
	Media  core.MediaChannel
	Gate   core.DeviceGate
	Tokens core.TokenSource

	// Self is the local user driving this controller.
	Self domain.Author

	// RingTimeout bounds how long an outgoing direct call rings.
	RingTimeout time.Duration
	// RenewInterval is the media token refresh period.
	RenewInterval time.Duration
	// NoiseThreshold is the minimum audio level that counts as speaking.
	NoiseThreshold int

	// OnChange receives every snapshot. The initial snapshot is
	// delivered during Start from the caller's goroutine; every later
	// one comes from the loop goroutine.
	OnChange func(Snapshot)
}

func (c Config) withDefaults() Config {
	if c.RingTimeout <= 0 {
		c.RingTimeout = defaultRingTimeout
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = defaultRenewInterval
	}
	if c.NoiseThreshold <= 0 {
		c.NoiseThreshold = defaultNoiseThreshold
	}
	return c
}

// Loop events. Helper goroutines post these; only the loop reads state.
type (
	evIntentLeave        struct{}
	evIntentToggleMute   struct{}
	evIntentToggleCamera struct{}

	evStoreUpdate struct{ session *domain.Session }

	evTokenResult struct {
		token   string
		renewal bool
		err     error
	}
	evChannelJoined  struct{ err error }
	evPresenceResult struct{ err error }

	evMedia struct{ e core.MediaEvent }

	evDeviceResult struct {
		kind  core.TrackKind
		track core.LocalTrack
		err   error
	}

	evRingTimeout struct{}
	evRenewTick   struct{}
)

type Controller struct {
	cfg    Config
	events chan any
	done   chan struct{}

	// Loop-owned state. Never touched outside the run goroutine.
	state     State
	sessionID domain.SessionID
	session   *domain.Session
	mediaUID  uint32
	token     string
	isCaller  bool

	channelJoined     bool
	presenceConfirmed bool
	joinInFlight      bool
	leaveRequested    bool
	ringTimedOut      bool

	muted     bool
	cameraOff bool
	degraded  bool

	micTrack     core.LocalTrack
	camTrack     core.LocalTrack
	acquiringMic bool
	acquiringCam bool
	micFailed    bool
	camFailed    bool

	renewFails    int
	activeSpeaker uint32
	notice        string
	activatedAt   time.Time

	unsubscribe func()
	ringTimer   *time.Timer
	renewTicker *time.Ticker
}

func New(cfg Config) *Controller {
	return &Controller{
		cfg:    cfg.withDefaults(),
		events: make(chan any, 64),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
}

// Start begins connecting to the session. The record must already exist
// in the store; creating it is the API layer's job.
func (c *Controller) Start(ctx context.Context, id domain.SessionID) error {
	if c.state != StateIdle {
		return errors.New("controller already started")
	}
	c.state = StateConnecting
	c.sessionID = id
	c.mediaUID = identity.MediaUID(c.cfg.Self.ID)

	c.unsubscribe = c.cfg.Store.Subscribe(id, func(s *domain.Session) {
		c.post(evStoreUpdate{session: s})
	})
	c.fetchToken(ctx, false)

	c.emit()
	go c.run(ctx)
	return nil
}

// Leave requests an orderly teardown. Safe to call from any goroutine,
// any number of times.
func (c *Controller) Leave() { c.post(evIntentLeave{}) }

func (c *Controller) ToggleMute() { c.post(evIntentToggleMute{}) }

func (c *Controller) ToggleCamera() { c.post(evIntentToggleCamera{}) }

// Done closes once teardown has fully completed.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return
		case ev := <-c.events:
			c.handle(ctx, ev)
			if c.state == StateEnded {
				return
			}
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case evIntentLeave:
		c.onLeaveIntent()
	case evIntentToggleMute:
		c.onToggleMute(ctx)
	case evIntentToggleCamera:
		c.onToggleCamera(ctx)
	case evStoreUpdate:
		c.onStoreUpdate(e.session)
	case evTokenResult:
		c.onTokenResult(ctx, e)
	case evChannelJoined:
		c.onChannelJoined(ctx, e.err)
	case evPresenceResult:
		c.onPresenceResult(e.err)
	case evMedia:
		c.onMediaEvent(e.e)
	case evDeviceResult:
		c.onDeviceResult(e)
	case evRingTimeout:
		c.onRingTimeout()
	case evRenewTick:
		c.fetchToken(ctx, true)
	default:
		log.Warn().Str("module", "session").Msgf("unhandled event %T", ev)
	}
}

// post delivers an event to the loop without blocking. The queue is
// deep enough that a drop means the loop is gone or wedged; later
// snapshots supersede a lost update.
func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	default:
		log.Warn().Str("module", "session").Msgf("event queue full, dropping %T", ev)
	}
}

func (c *Controller) emit() {
	if c.cfg.OnChange == nil {
		return
	}
	c.cfg.OnChange(c.snapshot())
}

func (c *Controller) snapshot() Snapshot {
	var sess *domain.Session
	if c.session != nil {
		sess = c.session.Clone()
	}
	var duration time.Duration
	if !c.activatedAt.IsZero() {
		duration = time.Since(c.activatedAt)
	}
	return Snapshot{
		Duration:      duration,
		State:         c.state,
		Session:       sess,
		Muted:         c.muted,
		CameraOff:     c.cameraOff,
		Degraded:      c.degraded,
		MicAvailable:  c.micTrack != nil,
		CamAvailable:  c.camTrack != nil,
		ActiveSpeaker: c.activeSpeaker,
		Notice:        c.notice,
	}
}
