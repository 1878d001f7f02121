package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/metacode/fiches-api/internal/core/auth"
	"github.com/metacode/fiches-api/internal/core/domain"
)

const callerKey = "caller"

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Authenticate verifies the bearer credential, when one is presented, and
// stores the resulting domain.Caller in the context. It never rejects a
// request: whether an action needs an identity is decided by the access
// policy, so public reads still succeed with a bad token.
func Authenticate(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				c.Set(callerKey, domain.Anonymous)
				return next(c)
			}

			token, err := auth.BearerToken(header)
			if err != nil {
				c.Set(callerKey, domain.Caller{AuthErr: err})
				return next(c)
			}

			identity, err := v.Verify(c.Request().Context(), token)
			if err != nil {
				c.Set(callerKey, domain.Caller{AuthErr: err})
				return next(c)
			}

			c.Set(callerKey, domain.Authenticated(identity))
			return next(c)
		}
	}
}

// CallerFrom returns the caller stored by Authenticate, or an anonymous
// caller when the middleware did not run.
func CallerFrom(c echo.Context) domain.Caller {
	caller, ok := c.Get(callerKey).(domain.Caller)
	if !ok {
		return domain.Anonymous
	}
	return caller
}
