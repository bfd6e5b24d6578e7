// Package auth extracts the calling actor from a bearer token and enforces
// role requirements on routes. Full identity-provider integration and
// consent policy live outside this core.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims are the token claims this service reads.
type Claims struct {
	jwt.RegisteredClaims
	Name         string `json:"name"`
	Role         string `json:"role"`
	Organization string `json:"organization"`
}

// Actor is the authenticated caller attached to the request context.
type Actor struct {
	ID           string
	Name         string
	Role         string
	Organization string
}

// Middleware parses the Authorization bearer token with the given HMAC
// signing key and stores the Actor in the request context.
func Middleware(signingKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			actor := &Actor{
				ID:           claims.Subject,
				Name:         claims.Name,
				Role:         claims.Role,
				Organization: claims.Organization,
			}
			ctx := WithActor(c.Request().Context(), actor)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor", actor)
			return next(c)
		}
	}
}

// DevMiddleware grants every request an admin actor. Development only.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := &Actor{ID: "dev", Name: "Development User", Role: "admin", Organization: "dev"}
			ctx := WithActor(c.Request().Context(), actor)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor", actor)
			return next(c)
		}
	}
}

// RequireRole rejects requests whose actor has none of the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromEcho(c)
			if actor == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated actor")
			}
			if !allowed[actor.Role] {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the actor from a context, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorKey).(*Actor)
	return a
}

// ActorFromEcho retrieves the actor from an echo context, or nil.
func ActorFromEcho(c echo.Context) *Actor {
	a, _ := c.Get("actor").(*Actor)
	return a
}
