// Package auth issues and verifies bearer credentials and evaluates the
// access policy for record actions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/metacode/fiches-api/internal/core/domain"
)

// DefaultTokenTTL is the validity of a credential from issuance.
const DefaultTokenTTL = time.Hour

// Claims is the payload of a signed credential.
type Claims struct {
	UserID   string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Clock returns the current time.
type Clock func() time.Time

// IdentityLookup re-resolves the identity referenced by a credential.
type IdentityLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", domain.ErrMissingCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.ErrMissingCredential
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", domain.ErrMissingCredential
	}
	return token, nil
}

// Issuer signs HS256 credentials with the process secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    Clock
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (i *Issuer) WithClock(now Clock) *Issuer {
	i.now = now
	return i
}

// Issue returns a signed credential for user and its expiry.
func (i *Issuer) Issue(user *domain.User) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)
	claims := Claims{
		UserID:   user.ID,
		Role:     user.Role,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verifier validates credentials. It is a pure function of the token, the
// clock and, when a lookup is configured, the user store.
type Verifier struct {
	secret []byte
	users  IdentityLookup
	now    Clock
}

// NewVerifier returns a Verifier. users may be nil, in which case the
// identity encoded in the token is trusted as-is.
func NewVerifier(secret string, users IdentityLookup) *Verifier {
	return &Verifier{secret: []byte(secret), users: users, now: time.Now}
}

// WithClock replaces the time source.
func (v *Verifier) WithClock(now Clock) *Verifier {
	v.now = now
	return v
}

// Verify checks signature, expiry and identity existence, in that order.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.ErrMissingCredential
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, domain.ErrExpiredCredential
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	if claims.UserID == "" || !domain.ValidRole(claims.Role) {
		return domain.Identity{}, fmt.Errorf("%w: incomplete claims", domain.ErrInvalidCredential)
	}

	identity := domain.Identity{ID: claims.UserID, Username: claims.Username, Role: claims.Role}
	if v.users == nil {
		return identity, nil
	}

	user, err := v.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Identity{}, domain.ErrUnknownIdentity
		}
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	return user.Identity(), nil
}

// RejectionReason labels an authentication or authorization failure.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		return "missing"
	case errors.Is(err, domain.ErrExpiredCredential):
		return "expired"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "invalid"
	case errors.Is(err, domain.ErrUnknownIdentity):
		return "unknown_identity"
	case errors.Is(err, domain.ErrDenied):
		return "denied"
	default:
		return "other"
	}
}
