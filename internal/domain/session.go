package domain

import (
	"errors"
	"time"
)

type SessionID string

type SessionKind string

const (
	KindDirectAudio SessionKind = "direct-audio"
	KindDirectVideo SessionKind = "direct-video"
	KindAudioRoom   SessionKind = "audio-room"
	KindVideoRoom   SessionKind = "video-room"
)

func (k SessionKind) IsDirect() bool {
	return k == KindDirectAudio || k == KindDirectVideo
}

func (k SessionKind) HasVideo() bool {
	return k == KindDirectVideo || k == KindVideoRoom
}

type SessionStatus string

const (
	StatusRinging  SessionStatus = "ringing"
	StatusActive   SessionStatus = "active"
	StatusEnded    SessionStatus = "ended"
	StatusDeclined SessionStatus = "declined"
	StatusMissed   SessionStatus = "missed"
)

func (s SessionStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusDeclined || s == StatusMissed
}

// allowedTransitions is the monotonic status table for direct calls.
// Nothing re-enters ringing; active only ends.
var allowedTransitions = map[SessionStatus]map[SessionStatus]struct{}{
	StatusRinging: {
		StatusActive:   {},
		StatusDeclined: {},
		StatusMissed:   {},
	},
	StatusActive: {
		StatusEnded: {},
	},
}

func CanTransition(from, to SessionStatus) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Session is a direct call or a live room tracked by the backing store.
// Direct calls carry exactly two fixed parties; rooms carry a host and a
// mutable participant set.
type Session struct {
	ID     SessionID     `json:"id"`
	Kind   SessionKind   `json:"kind"`
	Status SessionStatus `json:"status"`
	Topic  string        `json:"topic,omitempty"`

	Caller *Author `json:"caller,omitempty"`
	Callee *Author `json:"callee,omitempty"`
	ChatID string  `json:"chatId,omitempty"`

	Host         *Author       `json:"host,omitempty"`
	Participants []Participant `json:"participants,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

func NewDirectCall(kind SessionKind, caller, callee Author, chatID string, now time.Time) *Session {
	return &Session{
		Kind:      kind,
		Status:    StatusRinging,
		Caller:    &caller,
		Callee:    &callee,
		ChatID:    chatID,
		CreatedAt: now,
	}
}

func NewRoom(kind SessionKind, host Author, topic string, now time.Time) *Session {
	s := &Session{
		Kind:      kind,
		Status:    StatusActive,
		Topic:     topic,
		Host:      &host,
		CreatedAt: now,
	}
	// The host is a participant from the start; a speaker in audio rooms.
	p := NewParticipant(host)
	p.IsSpeaker = true
	s.Participants = []Participant{p}
	return s
}

// Clone deep-copies the session so transactional updates never mutate the
// stored record in place.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Caller != nil {
		c := *s.Caller
		out.Caller = &c
	}
	if s.Callee != nil {
		c := *s.Callee
		out.Callee = &c
	}
	if s.Host != nil {
		h := *s.Host
		out.Host = &h
	}
	if s.Participants != nil {
		out.Participants = make([]Participant, len(s.Participants))
		copy(out.Participants, s.Participants)
	}
	return &out
}

// HasParty reports whether the user is a named party (direct call) or a
// present participant (room).
func (s *Session) HasParty(id UserID) bool {
	if s.Kind.IsDirect() {
		return (s.Caller != nil && s.Caller.ID == id) || (s.Callee != nil && s.Callee.ID == id)
	}
	_, ok := s.Participant(id)
	return ok
}

func (s *Session) Participant(id UserID) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// UpsertParticipant removes any stale entry for the same user before
// inserting the fresh one, so a reconnecting user never shows up twice.
func (s *Session) UpsertParticipant(p Participant) {
	s.RemoveParticipant(p.ID)
	s.Participants = append(s.Participants, p)
}

func (s *Session) RemoveParticipant(id UserID) {
	kept := s.Participants[:0]
	for _, p := range s.Participants {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.Participants = kept
}

// IsSpeaker reports whether the user may publish audio in an audio room.
// For direct calls and video rooms every party is a publisher.
func (s *Session) IsSpeaker(id UserID) bool {
	if s.Kind != KindAudioRoom {
		return s.HasParty(id)
	}
	p, ok := s.Participant(id)
	return ok && p.IsSpeaker
}

func (s *Session) IsHost(id UserID) bool {
	return s.Host != nil && s.Host.ID == id
}
