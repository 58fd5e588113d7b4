package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
)

// Contract-level operations built on TransactionalUpdate. Plain
// read-then-write would lose updates under concurrent joins; these do the
// read-modify-write inside the store's transaction instead.

// Join inserts the participant, removing any stale entry for the same
// user first. Joining twice is safe and keeps the latest flags.
func Join(ctx context.Context, s core.SessionStore, id domain.SessionID, p domain.Participant) error {
	return s.TransactionalUpdate(ctx, id, func(sess *domain.Session) error {
		if sess.Status.IsTerminal() {
			return fmt.Errorf("session %s already %s", id, sess.Status)
		}
		sess.UpsertParticipant(p)
		return nil
	})
}

// Leave removes the participant entry. Leaving a session that already
// ended is not an error.
func Leave(ctx context.Context, s core.SessionStore, id domain.SessionID, user domain.UserID) error {
	err := s.TransactionalUpdate(ctx, id, func(sess *domain.Session) error {
		sess.RemoveParticipant(user)
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// UpdateParticipant merges a partial flag update into the participant's
// record. A participant that already left is skipped silently.
func UpdateParticipant(ctx context.Context, s core.SessionStore, id domain.SessionID, user domain.UserID, u domain.ParticipantUpdate) error {
	return s.TransactionalUpdate(ctx, id, func(sess *domain.Session) error {
		p, ok := sess.Participant(user)
		if !ok {
			return nil
		}
		u.ApplyTo(p)
		return nil
	})
}

// AcceptCall marks a ringing direct call active.
func AcceptCall(ctx context.Context, s core.SessionStore, id domain.SessionID) error {
	return s.SetStatus(ctx, id, domain.StatusActive)
}

// RaiseHand flags the participant as asking to speak in an audio room.
func RaiseHand(ctx context.Context, s core.SessionStore, id domain.SessionID, user domain.UserID) error {
	return UpdateParticipant(ctx, s, id, user, domain.ParticipantUpdate{HandRaised: domain.Bool(true)})
}

// PromoteToSpeaker moves a listener to the speakers set and clears the
// raised hand. Host-only; the caller enforces authorization.
func PromoteToSpeaker(ctx context.Context, s core.SessionStore, id domain.SessionID, user domain.UserID) error {
	return UpdateParticipant(ctx, s, id, user, domain.ParticipantUpdate{
		IsSpeaker:  domain.Bool(true),
		HandRaised: domain.Bool(false),
	})
}

// MoveToAudience moves a speaker back to the listeners set.
func MoveToAudience(ctx context.Context, s core.SessionStore, id domain.SessionID, user domain.UserID) error {
	return UpdateParticipant(ctx, s, id, user, domain.ParticipantUpdate{IsSpeaker: domain.Bool(false)})
}
