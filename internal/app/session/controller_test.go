package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
	"github.com/shojbahmed330/voicebook/internal/store"
)

type fakeMedia struct {
	mu          sync.Mutex
	events      chan core.MediaEvent
	joinErr     error
	joinGate    chan struct{}
	joinStarted chan struct{}
	joined      bool
	left        bool
	order       []string
	published   []core.TrackKind
	renewed     []string
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{events: make(chan core.MediaEvent, 16)}
}

func (m *fakeMedia) Join(context.Context, domain.SessionID, uint32, string) error {
	if m.joinStarted != nil {
		close(m.joinStarted)
	}
	if m.joinGate != nil {
		<-m.joinGate
	}
	if m.joinErr != nil {
		return m.joinErr
	}
	m.mu.Lock()
	m.joined = true
	m.order = append(m.order, "join")
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) Leave() error {
	m.mu.Lock()
	m.left = true
	m.order = append(m.order, "leave")
	m.mu.Unlock()
	// The real transport closes the stream on leave.
	close(m.events)
	return nil
}

func (m *fakeMedia) Publish(_ context.Context, tracks ...core.LocalTrack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tracks {
		m.published = append(m.published, t.Kind())
	}
	return nil
}

func (m *fakeMedia) Unpublish(context.Context, ...core.LocalTrack) error { return nil }

func (m *fakeMedia) Subscribe(uint32, core.TrackKind) error { return nil }

func (m *fakeMedia) SetLocalAudioMuted(bool) error { return nil }

func (m *fakeMedia) SetLocalVideoEnabled(bool) error { return nil }

func (m *fakeMedia) RenewToken(token string) error {
	m.mu.Lock()
	m.renewed = append(m.renewed, token)
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) Events() <-chan core.MediaEvent { return m.events }

func (m *fakeMedia) hasLeft() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.left
}

func (m *fakeMedia) callOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

func (m *fakeMedia) publishedKinds() []core.TrackKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.TrackKind(nil), m.published...)
}

type fakeTrack struct {
	kind     core.TrackKind
	closeErr error
	closed   atomic.Bool
	enabled  atomic.Bool
}

func (f *fakeTrack) Kind() core.TrackKind { return f.kind }

func (f *fakeTrack) SetEnabled(enabled bool) { f.enabled.Store(enabled) }

func (f *fakeTrack) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

type fakeGate struct {
	micErr   error
	camErr   error
	micTrack *fakeTrack
	camTrack *fakeTrack
	micCalls atomic.Int32
}

func (g *fakeGate) AcquireMicrophone(context.Context) (core.LocalTrack, error) {
	g.micCalls.Add(1)
	if g.micErr != nil {
		return nil, g.micErr
	}
	if g.micTrack == nil {
		g.micTrack = &fakeTrack{kind: core.TrackAudio}
	}
	return g.micTrack, nil
}

func (g *fakeGate) AcquireCamera(context.Context) (core.LocalTrack, error) {
	if g.camErr != nil {
		return nil, g.camErr
	}
	if g.camTrack == nil {
		g.camTrack = &fakeTrack{kind: core.TrackVideo}
	}
	return g.camTrack, nil
}

type fakeTokens struct {
	calls    atomic.Int32
	failFrom int32
}

func (f *fakeTokens) Token(context.Context, domain.SessionID, uint32) (string, error) {
	n := f.calls.Add(1)
	if f.failFrom > 0 && n >= f.failFrom {
		return "", core.ErrTokenUnavailable
	}
	return "tok", nil
}

var (
	alice = domain.Author{ID: "alice", Name: "Alice"}
	bob   = domain.Author{ID: "bob", Name: "Bob"}
)

type rig struct {
	store  *store.Memory
	media  *fakeMedia
	gate   *fakeGate
	tokens *fakeTokens
	snaps  chan Snapshot
	ctrl   *Controller
}

func newRig(t *testing.T, self domain.Author, tune func(*Config)) *rig {
	t.Helper()
	r := &rig{
		store:  store.NewMemory(),
		media:  newFakeMedia(),
		gate:   &fakeGate{},
		tokens: &fakeTokens{},
		snaps:  make(chan Snapshot, 128),
	}
	cfg := Config{
		Store:       r.store,
		Media:       r.media,
		Gate:        r.gate,
		Tokens:      r.tokens,
		Self:        self,
		RingTimeout: time.Second,
		OnChange:    func(s Snapshot) { r.snaps <- s },
	}
	if tune != nil {
		tune(&cfg)
	}
	r.ctrl = New(cfg)
	return r
}

func (r *rig) createRoom(t *testing.T, kind domain.SessionKind, host domain.Author) domain.SessionID {
	t.Helper()
	id, err := r.store.Create(context.Background(), domain.NewRoom(kind, host, "topic", time.Now()))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return id
}

func (r *rig) createCall(t *testing.T, kind domain.SessionKind) domain.SessionID {
	t.Helper()
	id, err := r.store.Create(context.Background(), domain.NewDirectCall(kind, alice, bob, "chat-1", time.Now()))
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return id
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot, what string, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not finish teardown")
	}
}

func TestHostGoesActiveAndPublishes(t *testing.T) {
	r := newRig(t, alice, nil)
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	s := waitSnapshot(t, r.snaps, "active with mic", func(s Snapshot) bool {
		return s.State == StateActive && s.MicAvailable
	})
	if s.Degraded {
		t.Fatal("healthy session must not be degraded")
	}

	sess, err := r.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := sess.Participant(alice.ID); !ok {
		t.Fatal("host presence not written to the record")
	}

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}

func TestMicFailureDegradesInsteadOfEnding(t *testing.T) {
	r := newRig(t, alice, nil)
	r.gate.micErr = &core.DeviceUnavailableError{
		Device: core.TrackAudio,
		Reason: core.ReasonPermissionDenied,
		Cause:  errors.New("denied"),
	}
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	s := waitSnapshot(t, r.snaps, "degraded active", func(s Snapshot) bool {
		return s.State == StateActive && s.Degraded
	})
	if s.Notice == "" {
		t.Fatal("degraded session must carry a user-facing notice")
	}
	if s.MicAvailable {
		t.Fatal("mic must not be reported available")
	}
	if r.media.hasLeft() {
		t.Fatal("device failure must not end the session")
	}

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}

func TestCallerRingTimeoutMarksMissed(t *testing.T) {
	r := newRig(t, alice, func(c *Config) { c.RingTimeout = 50 * time.Millisecond })
	id := r.createCall(t, domain.KindDirectAudio)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r.ctrl)

	sess, err := r.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Status != domain.StatusMissed {
		t.Fatalf("expected missed, got %s", sess.Status)
	}
	if !r.media.hasLeft() {
		t.Fatal("channel must be left on timeout")
	}
}

func TestCalleeAnswerActivatesWithoutTimeout(t *testing.T) {
	// The ring timeout belongs to the caller only; the callee answering
	// right at the deadline must still connect.
	r := newRig(t, bob, func(c *Config) { c.RingTimeout = 30 * time.Millisecond })
	id := r.createCall(t, domain.KindDirectAudio)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "callee active", func(s Snapshot) bool {
		return s.State == StateActive
	})

	time.Sleep(60 * time.Millisecond)
	sess, err := r.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", sess.Status)
	}

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}

func TestCalleeLeaveWhileRingingDeclines(t *testing.T) {
	r := newRig(t, bob, nil)
	id := r.createCall(t, domain.KindDirectAudio)

	// Never join media: leave before anything lands.
	r.media.joinErr = core.ErrChannelJoinFailed

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, r.ctrl)

	sess, err := r.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Status != domain.StatusDeclined {
		t.Fatalf("expected declined, got %s", sess.Status)
	}
}

func TestTeardownRunsEveryStep(t *testing.T) {
	r := newRig(t, alice, nil)
	r.gate.micTrack = &fakeTrack{kind: core.TrackAudio, closeErr: errors.New("device wedged")}
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "active with mic", func(s Snapshot) bool {
		return s.State == StateActive && s.MicAvailable
	})

	r.ctrl.Leave()
	waitDone(t, r.ctrl)

	// A failing track close must not skip the later steps.
	if !r.gate.micTrack.closed.Load() {
		t.Fatal("track close not attempted")
	}
	if !r.media.hasLeft() {
		t.Fatal("media leave skipped")
	}
	sess, err := r.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Status != domain.StatusEnded {
		t.Fatalf("host leaving must end the room, got %s", sess.Status)
	}
}

func TestPromotionAcquiresMicExactlyOnce(t *testing.T) {
	r := newRig(t, bob, nil)
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "listener active", func(s Snapshot) bool {
		return s.State == StateActive
	})
	if n := r.gate.micCalls.Load(); n != 0 {
		t.Fatalf("listener must not touch the mic, got %d attempts", n)
	}

	ctx := context.Background()
	if err := store.PromoteToSpeaker(ctx, r.store, id, bob.ID); err != nil {
		t.Fatalf("promote: %v", err)
	}
	waitSnapshot(t, r.snaps, "mic acquired", func(s Snapshot) bool {
		return s.MicAvailable
	})

	// Redundant promotions and unrelated record churn must not re-open
	// the device.
	if err := store.PromoteToSpeaker(ctx, r.store, id, bob.ID); err != nil {
		t.Fatalf("promote again: %v", err)
	}
	if err := store.RaiseHand(ctx, r.store, id, bob.ID); err != nil {
		t.Fatalf("raise hand: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := r.gate.micCalls.Load(); n != 1 {
		t.Fatalf("expected one acquisition, got %d", n)
	}

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}

func TestDemotionDropsMic(t *testing.T) {
	r := newRig(t, bob, nil)
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "listener active", func(s Snapshot) bool {
		return s.State == StateActive
	})

	ctx := context.Background()
	if err := store.PromoteToSpeaker(ctx, r.store, id, bob.ID); err != nil {
		t.Fatalf("promote: %v", err)
	}
	waitSnapshot(t, r.snaps, "mic acquired", func(s Snapshot) bool {
		return s.MicAvailable
	})

	if err := store.MoveToAudience(ctx, r.store, id, bob.ID); err != nil {
		t.Fatalf("demote: %v", err)
	}
	waitSnapshot(t, r.snaps, "mic released", func(s Snapshot) bool {
		return !s.MicAvailable
	})

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}

func TestLeaveDuringConnectingNeverActivates(t *testing.T) {
	r := newRig(t, alice, nil)
	r.media.joinGate = make(chan struct{})
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.ctrl.Leave()
	close(r.media.joinGate)
	waitDone(t, r.ctrl)

	// Drain everything emitted; Active must never have been reached.
	for {
		select {
		case s := <-r.snaps:
			if s.State == StateActive {
				t.Fatal("controller activated after leave was requested")
			}
		default:
			if !r.media.hasLeft() {
				t.Fatal("joined transport must still be torn down")
			}
			return
		}
	}
}

func TestRemoteEndDuringJoinWaitsForJoin(t *testing.T) {
	r := newRig(t, bob, nil)
	r.media.joinGate = make(chan struct{})
	r.media.joinStarted = make(chan struct{})
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-r.media.joinStarted:
	case <-time.After(3 * time.Second):
		t.Fatal("join never started")
	}

	// The room ends remotely while the join handshake is suspended.
	if err := r.store.SetStatus(context.Background(), id, domain.StatusEnded); err != nil {
		t.Fatalf("end room: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if r.media.hasLeft() {
		t.Fatal("leave must wait for the in-flight join to land")
	}

	close(r.media.joinGate)
	waitDone(t, r.ctrl)

	// The joined transport must be the one that gets left, in order.
	order := r.media.callOrder()
	if len(order) != 2 || order[0] != "join" || order[1] != "leave" {
		t.Fatalf("expected join then leave, got %v", order)
	}
	for {
		select {
		case s := <-r.snaps:
			if s.State == StateActive {
				t.Fatal("controller activated after the session ended")
			}
		default:
			return
		}
	}
}

func TestRenewalFailuresToleratedUpToLimit(t *testing.T) {
	r := newRig(t, alice, func(c *Config) { c.RenewInterval = 20 * time.Millisecond })
	r.tokens.failFrom = 2
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "active", func(s Snapshot) bool {
		return s.State == StateActive
	})

	s := waitSnapshot(t, r.snaps, "renewal notice", func(s Snapshot) bool {
		return s.Notice != ""
	})
	if s.State != StateActive {
		t.Fatalf("renewal trouble must not end the session, state %s", s.State)
	}
	if r.media.hasLeft() {
		t.Fatal("renewal trouble must not leave the channel")
	}
	if n := r.tokens.calls.Load(); n < renewFailLimit+1 {
		t.Fatalf("notice fired after %d fetches, before the failure limit", n)
	}

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}

func TestRemoteEndTearsDown(t *testing.T) {
	r := newRig(t, bob, nil)
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "active", func(s Snapshot) bool {
		return s.State == StateActive
	})

	// Host ends the room from the other side.
	if err := r.store.SetStatus(context.Background(), id, domain.StatusEnded); err != nil {
		t.Fatalf("end room: %v", err)
	}
	waitDone(t, r.ctrl)
	if !r.media.hasLeft() {
		t.Fatal("remote end must tear the channel down")
	}
}

func TestActiveSpeakerFollowsLevels(t *testing.T) {
	r := newRig(t, alice, nil)
	id := r.createRoom(t, domain.KindAudioRoom, alice)

	if err := r.ctrl.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, r.snaps, "active", func(s Snapshot) bool {
		return s.State == StateActive
	})

	r.media.events <- core.MediaEvent{
		Type:   core.MediaVolumeLevels,
		Levels: map[uint32]int{101: 40, 202: 3},
	}
	waitSnapshot(t, r.snaps, "speaker 101", func(s Snapshot) bool {
		return s.ActiveSpeaker == 101
	})

	r.media.events <- core.MediaEvent{
		Type:   core.MediaVolumeLevels,
		Levels: map[uint32]int{101: 2, 202: 4},
	}
	waitSnapshot(t, r.snaps, "nobody above threshold", func(s Snapshot) bool {
		return s.ActiveSpeaker == 0
	})

	r.ctrl.Leave()
	waitDone(t, r.ctrl)
}
