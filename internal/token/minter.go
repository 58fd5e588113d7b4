package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid media token")

// Minter is the trusted token-minting side: it signs short-lived HMAC
// tokens binding a channel to a numeric media identity.
type Minter struct {
	secret []byte
	ttl    time.Duration
}

type claims struct {
	Channel string `json:"chn"`
	UID     uint32 `json:"uid"`
	jwt.RegisteredClaims
}

func NewMinter(secret string, ttl time.Duration) *Minter {
	if ttl == 0 {
		ttl = 2 * time.Minute
	}
	return &Minter{secret: []byte(secret), ttl: ttl}
}

func (m *Minter) Mint(channel string, uid uint32) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Channel: channel,
		UID:     uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := t.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign media token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the bound channel
// and identity.
func (m *Minter) Verify(raw string) (channel string, uid uint32, err error) {
	var c claims
	t, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid {
		return "", 0, ErrInvalidToken
	}
	return c.Channel, c.UID, nil
}
