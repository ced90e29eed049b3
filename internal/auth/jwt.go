// Package auth issues and verifies the signed identity claims the rest
// of the system trusts at handshake time.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/averin/parlor/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Tokens wraps a signing secret for issuing/verifying identity tokens.
type Tokens struct{ secret []byte }

func NewTokens(secret string) *Tokens { return &Tokens{secret: []byte(secret)} }

// Sign creates a token embedding the identity claim with the given TTL.
func (t *Tokens) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      string(id.UserID),
		"username": id.Username,
		"isAdmin":  id.IsAdmin,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.secret)
}

// Verify checks a token and returns the identity claim it carries.
func (t *Tokens) Verify(tok string) (domain.Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	isAdmin, _ := claims["isAdmin"].(bool)

	id := domain.Identity{UserID: domain.UserID(sub), Username: username, IsAdmin: isAdmin}
	if err := id.Validate(); err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return id, nil
}
