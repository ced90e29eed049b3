// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrMissingIdentity = errors.New("identity missing userId or username")
	ErrUserIDTooLong   = errors.New("userId too long")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

// Identity is the claim asserted once at handshake time. It never changes
// for the lifetime of the connection that carries it.
type Identity struct {
	UserID   UserID `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (id Identity) Validate() error {
	if id.UserID == "" || id.Username == "" {
		return ErrMissingIdentity
	}
	if len(id.UserID) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	if len(id.Username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
