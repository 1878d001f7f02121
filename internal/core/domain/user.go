package domain

import (
	"errors"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Credential rejection reasons produced while verifying a bearer token.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("credential expired")
	ErrUnknownIdentity   = errors.New("unknown identity")
)

// ErrDenied is returned when an authenticated identity lacks the role an action requires.
var ErrDenied = errors.New("access denied")

// User models an account stored in the user repository.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the authenticated principal derived from a verified credential.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Identity returns the principal view of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// Caller is the outcome of authenticating an inbound request. Identity is nil
// when no credential was presented or when it was rejected; AuthErr keeps the
// rejection reason in the latter case.
type Caller struct {
	Identity *Identity
	AuthErr  error
}

// Anonymous is a caller that presented no credential.
var Anonymous = Caller{}

// Authenticated returns a caller for a verified identity.
func Authenticated(id Identity) Caller {
	return Caller{Identity: &id}
}
