// Package service implements PetPals business logic on top of the document
// store, blob store and identity collaborators.
package service

import (
	"errors"
	"time"

	"petpals/internal/blobstore"
	"petpals/internal/docstore"
	"petpals/internal/models"
)

// Clock returns the current time in epoch milliseconds.
type Clock func() int64

// SystemClock reads the wall clock.
func SystemClock() int64 {
	return time.Now().UnixMilli()
}

// Options are the tunables shared by the services.
type Options struct {
	FeedWindowSize          int
	MapWindowSize           int
	DefaultRadiusKm         float64
	CommentPageSize         int
	AuthorLookupConcurrency int
	MaxPostTextLength       int
	MaxCommentLength        int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		FeedWindowSize:          0,
		MapWindowSize:           200,
		DefaultRadiusKm:         5,
		CommentPageSize:         300,
		AuthorLookupConcurrency: 16,
		MaxPostTextLength:       2000,
		MaxCommentLength:        500,
	}
}

const truncatedIDLength = 8

// truncateID is the display-name fallback for authors without a usable name.
func truncateID(userID string) string {
	if len(userID) <= truncatedIDLength {
		return userID
	}
	return userID[:truncatedIDLength]
}

// storeError maps a collaborator error onto the application taxonomy.
func storeError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewUnavailableError(err)
}
