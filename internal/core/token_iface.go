package core

import (
	"context"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

// TokenSource issues short-lived media-session tokens. Any non-success
// response and any transport failure look the same to callers: token
// unavailable.
type TokenSource interface {
	Token(ctx context.Context, channel domain.SessionID, identity uint32) (string, error)
}
