package core

import (
	"context"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

// SessionStore is the contract required of the backing record store.
// The store is shared with other clients; every participant-list edit goes
// through TransactionalUpdate so concurrent joins never lose each other.
type SessionStore interface {
	// Create persists a new session and returns its assigned id.
	Create(ctx context.Context, s *domain.Session) (domain.SessionID, error)
	// Subscribe registers onChange for every update to the session,
	// delivering the current snapshot immediately if one exists. A nil
	// snapshot means the record was removed. The returned func cancels
	// the subscription.
	Subscribe(id domain.SessionID, onChange func(*domain.Session)) (unsubscribe func())
	// TransactionalUpdate applies fn to the current record with
	// read-modify-write atomicity. fn receives a private copy; returning
	// an error aborts the update.
	TransactionalUpdate(ctx context.Context, id domain.SessionID, fn func(*domain.Session) error) error
	// SetStatus moves the session to status, enforcing the monotonic
	// transition table for direct calls.
	SetStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) error
}
