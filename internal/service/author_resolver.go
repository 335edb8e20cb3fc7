package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"petpals/internal/docstore"
	"petpals/internal/models"
	"petpals/internal/observability"
)

// ProfileLookup is the slice of the profile repository the resolver needs.
type ProfileLookup interface {
	GetByID(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Author is the outcome of one profile lookup. Exactly one of Profile and
// Err is set.
type Author struct {
	Profile *models.UserProfile
	Err     error
}

// Missing reports whether the profile document does not exist.
func (a Author) Missing() bool {
	return errors.Is(a.Err, docstore.ErrNotFound)
}

// AuthorResolver joins posts with their authors' profiles, one lookup per
// distinct author.
type AuthorResolver struct {
	profiles ProfileLookup
	limit    int
}

// NewAuthorResolver bounds concurrent lookups to limit (unbounded if <= 0).
func NewAuthorResolver(profiles ProfileLookup, limit int) *AuthorResolver {
	return &AuthorResolver{profiles: profiles, limit: limit}
}

// Resolve looks up every distinct non-empty id concurrently and returns once
// all lookups have finished. Individual failures are reported per author and
// never cancel the others.
func (r *AuthorResolver) Resolve(ctx context.Context, userIDs []string) map[string]Author {
	out := make(map[string]Author, len(userIDs))
	var mu sync.Mutex

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}

	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		id := id
		g.Go(func() error {
			p, err := r.profiles.GetByID(ctx, id)
			a := Author{Profile: p, Err: err}
			switch {
			case err == nil:
				observability.AuthorLookups.WithLabelValues("ok").Inc()
			case a.Missing():
				observability.AuthorLookups.WithLabelValues("missing").Inc()
			default:
				observability.AuthorLookups.WithLabelValues("error").Inc()
			}
			mu.Lock()
			out[id] = a
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return out
}
