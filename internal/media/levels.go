package media

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// audioLevelExtensionID is the RFC 6464 audio-level header extension as
// negotiated by the gateway's SDP.
const audioLevelExtensionID = 1

// levelMeter reads RTP from subscribed remote audio tracks and emits a
// periodic per-identity level snapshot on a 0..100 scale.
type levelMeter struct {
	mu     sync.Mutex
	levels map[uint32]int
	emit   func(map[uint32]int)
}

func newLevelMeter(emit func(map[uint32]int)) *levelMeter {
	return &levelMeter{
		levels: make(map[uint32]int),
		emit:   emit,
	}
}

// run ticks the snapshot loop until ctx is done.
func (m *levelMeter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.emit(m.snapshot())
		}
	}
}

func (m *levelMeter) snapshot() map[uint32]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32]int, len(m.levels))
	for uid, lvl := range m.levels {
		out[uid] = lvl
	}
	return out
}

func (m *levelMeter) drop(uid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.levels, uid)
}

// watch reads RTP packets from one remote track until the track ends or
// ctx is canceled, keeping the identity's latest level.
func (m *levelMeter) watch(ctx context.Context, uid uint32, track *webrtc.TrackRemote) {
	defer m.drop(uid)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "media.levels").Uint32("uid", uid).Msg("level loop stopped")
			return
		}
		m.mu.Lock()
		m.levels[uid] = levelFromPacket(pkt)
		m.mu.Unlock()
	}
}

// levelFromPacket maps the RFC 6464 audio level (dBov, 0 loudest, 127
// silence) onto the 0..100 scale the controller thresholds against. A
// packet without the extension falls back to a payload-size heuristic.
func levelFromPacket(pkt *rtp.Packet) int {
	if ext := pkt.GetExtension(audioLevelExtensionID); len(ext) > 0 {
		dbov := int(ext[0] & 0x7f)
		return (127 - dbov) * 100 / 127
	}
	level := len(pkt.Payload) / 10
	if level > 100 {
		level = 100
	}
	return level
}
