package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// UserIDHeader carries the caller's uid when the service runs behind a
// trusted gateway with AUTH_MODE=header.
const UserIDHeader = "X-User-ID"

// TokenVerifier resolves a bearer token to a uid.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware verifies bearer tokens with verifier. A nil verifier
// trusts the X-User-ID header instead.
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := m.Identify(c)
		if err != nil {
			return err
		}

		c.Set("uid", uid)

		return next(c)
	}
}

// Identify returns the caller's uid without touching the echo context.
// Websocket clients that cannot set headers may pass the token as ?token=.
func (m *AuthMiddleware) Identify(c echo.Context) (string, error) {
	if m.verifier == nil {
		uid := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
		if uid == "" {
			return "", echo.NewHTTPError(http.StatusUnauthorized, UserIDHeader+" header is required")
		}
		return uid, nil
	}

	idToken := c.QueryParam("token")
	if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}
		idToken = parts[1]
	}
	if idToken == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
	}

	uid, err := m.verifier.VerifyToken(c.Request().Context(), idToken)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}

	return uid, nil
}
