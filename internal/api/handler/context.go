package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/metacode/fiches-api/internal/api/middleware"
	"github.com/metacode/fiches-api/internal/core/domain"
)

// caller returns the authentication outcome recorded by the Authenticate
// middleware. Handlers pass it through untouched; the record service decides
// whether the action needs an identity.
func caller(c echo.Context) domain.Caller {
	return middleware.CallerFrom(c)
}

// reqCtx is the request context.
func reqCtx(c echo.Context) context.Context {
	return c.Request().Context()
}
