package media

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
)

const writeWait = 5 * time.Second

// envelope is the one message shape on the gateway signaling socket.
type envelope struct {
	Type          string `json:"type"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	UID           uint32 `json:"uid,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Token         string `json:"token,omitempty"`
}

func (c *Channel) enqueue(v envelope) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "media.signal").Msg("marshal outbound")
		return
	}
	select {
	case c.send <- b:
	default:
		log.Warn().Str("module", "media.signal").Str("type", v.Type).Msg("outbound queue full, dropping")
	}
}

func (c *Channel) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "media.signal").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "media.signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context) {
	defer c.cancel()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "media.signal").Msg("readPump closed")
				return
			}
			c.handleSignal(data)
		}
	}
}

func (c *Channel) handleSignal(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "media.signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "answer":
		select {
		case c.answers <- webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}:
		default:
			log.Warn().Str("module", "media.signal").Msg("unexpected answer dropped")
		}
	case "candidate":
		cand := webrtc.ICECandidateInit{Candidate: env.Candidate}
		if env.SDPMid != "" {
			mid := env.SDPMid
			cand.SDPMid = &mid
		}
		idx := env.SDPMLineIndex
		cand.SDPMLineIndex = &idx
		if err := c.pc.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "media.signal").Msg("add ice candidate")
		}
	case "peer-left":
		c.meter.drop(env.UID)
		c.emitEvent(core.MediaEvent{Type: core.MediaRemoteLeft, Identity: env.UID})
	case "renewed":
		log.Debug().Str("module", "media.signal").Msg("token renewal acknowledged")
	default:
		log.Warn().Str("module", "media.signal").Str("type", env.Type).Msg("unknown signal")
	}
}
