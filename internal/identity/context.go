package identity

import (
	"context"

	"petpals/internal/models"
)

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userIDKey{}, uid)
}

// CurrentUserID returns the authenticated user id, or AuthRequired when the
// context carries none.
func CurrentUserID(ctx context.Context) (string, error) {
	uid, _ := ctx.Value(userIDKey{}).(string)
	if uid == "" {
		return "", models.NewUnauthorizedError("Authentication required")
	}
	return uid, nil
}
