// Package domain contains entity without logic, just meta-data
// plus the participant-merge helpers the store relies on.
package domain

import "errors"

const (
	MaxUserIDLen = 36
	MaxNameLen   = 64
)

var (
	ErrNameTooLong   = errors.New("name too long")
	ErrNameEmpty     = errors.New("name empty")
	ErrUserIDInvalid = errors.New("user id empty or too long")
)

type UserID string

// Author is the public identity attached to sessions and participants:
// just enough to render a caller, a callee or a room member.
type Author struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Validate rejects authors that would corrupt the shared record.
func (a Author) Validate() error {
	if a.ID == "" || len(a.ID) > MaxUserIDLen {
		return ErrUserIDInvalid
	}
	if a.Name == "" {
		return ErrNameEmpty
	}
	if len(a.Name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
