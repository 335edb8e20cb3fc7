// Package middleware provides authentication, logging, tracing and rate
// limiting middleware for the HTTP API.
package middleware

import (
	"context"
	"strings"

	"petpals/internal/identity"

	"github.com/gofiber/fiber/v2"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

var verifier TokenVerifier

// InitMiddleware installs the verifier used by the auth middleware.
func InitMiddleware(v TokenVerifier) {
	verifier = v
}

func bearerToken(c *fiber.Ctx) (string, string) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		return "", "Invalid authorization header format"
	}
	return token, ""
}

func authenticate(c *fiber.Ctx, token string) error {
	if verifier == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "authentication unavailable",
		})
	}
	uid, err := verifier.VerifyToken(token)
	if err != nil || uid == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("userID", uid)
	ctx := identity.WithUserID(c.UserContext(), uid)
	ctx = context.WithValue(ctx, UserIDKey, uid)
	c.SetUserContext(ctx)

	return c.Next()
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	token, problem := bearerToken(c)
	if problem != "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": problem,
		})
	}
	return authenticate(c, token)
}

// WebSocketAuthRequired validates a token passed as the "token" query
// parameter, falling back to the Authorization header. Browsers cannot set
// headers on WebSocket upgrades.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		var problem string
		token, problem = bearerToken(c)
		if problem != "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token required",
			})
		}
	}
	return authenticate(c, token)
}
