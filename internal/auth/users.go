package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/averin/parlor/internal/domain"
)

var (
	ErrBadCredentials = errors.New("unknown username or wrong password")
	ErrNotAdmin       = errors.New("account has no admin privileges")
)

type userRecord struct {
	id      domain.UserID
	hash    []byte
	isAdmin bool
}

// Users is the seeded in-memory account table. All state is
// process-lifetime only; a real deployment would back this with a store.
type Users struct {
	byName map[string]userRecord
}

// SeedUsers builds the default account table.
func SeedUsers() *Users {
	u := &Users{byName: make(map[string]userRecord)}
	u.add("1", "admin", "admin123", true)
	u.add("2", "user1", "user123", false)
	u.add("3", "user2", "user123", false)
	return u
}

func (u *Users) add(id domain.UserID, username, password string, isAdmin bool) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err) // static seed data, cannot fail at runtime
	}
	u.byName[username] = userRecord{id: id, hash: hash, isAdmin: isAdmin}
}

// Verify checks username/password and returns the identity claim.
// asAdmin mirrors the login form's admin toggle: requesting an admin
// session on a non-admin account fails with ErrNotAdmin.
func (u *Users) Verify(username, password string, asAdmin bool) (domain.Identity, error) {
	rec, ok := u.byName[username]
	if !ok {
		return domain.Identity{}, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword(rec.hash, []byte(password)) != nil {
		return domain.Identity{}, ErrBadCredentials
	}
	if asAdmin && !rec.isAdmin {
		return domain.Identity{}, ErrNotAdmin
	}
	return domain.Identity{UserID: rec.id, Username: username, IsAdmin: rec.isAdmin}, nil
}
