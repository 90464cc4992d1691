// Package middleware provides the HTTP request processing shared by
// the API routes: JWT authentication, role checks, Redis rate limiting
// and response caching.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by the auth middleware.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth validates a Bearer access token and stores the user ID and
// role claims in the request context. Protected routes read them via
// c.Get(CtxUserID) (uint64) and c.Get(CtxRole) (string).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, role, err := parseBearer(c, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": err.Error()})
			}
			c.Set(CtxUserID, userID)
			c.Set(CtxRole, role)
			return next(c)
		}
	}
}

// OptionalJWTAuth behaves like JWTAuth when a valid Bearer token is
// present and lets the request through anonymously otherwise. Used on
// the join endpoint, which serves walk-ins without an account.
func OptionalJWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if userID, role, err := parseBearer(c, secret); err == nil {
				c.Set(CtxUserID, userID)
				c.Set(CtxRole, role)
			}
			return next(c)
		}
	}
}

func parseBearer(c echo.Context, secret string) (uint64, string, error) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return 0, "", errMissingToken
	}
	raw := strings.TrimPrefix(auth, "Bearer ")

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, "", errInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errInvalidToken
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub < 0 {
		return 0, "", errInvalidToken
	}
	role, _ := claims["role"].(string)
	return uint64(sub), role, nil
}

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)
