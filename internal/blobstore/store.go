// Package blobstore stores post images and avatars. A ref is the object path
// inside the store ("post_images/{postId}.jpg"); download URLs are derived
// from refs and refs can be recovered from URLs the store issued.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when no object exists at a ref.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrForeignURL is returned by RefFromURL for URLs the store did not issue.
	ErrForeignURL = errors.New("blobstore: url does not belong to this store")
)

// Store is the blob storage collaborator.
type Store interface {
	Upload(ctx context.Context, ref string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
	DownloadURL(ctx context.Context, ref string) (string, error)
	RefFromURL(rawURL string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// PostImageRef is where a post's image is stored.
func PostImageRef(postID string) string {
	return "post_images/" + postID + ".jpg"
}

// ProfileImageRef is where a user's avatar is stored.
func ProfileImageRef(userID string) string {
	return "profile_images/" + userID + ".jpg"
}

// cleanRef rejects empty, absolute and escaping refs.
func cleanRef(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("blobstore: empty ref")
	}
	c := path.Clean(ref)
	if strings.HasPrefix(c, "/") || c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("blobstore: invalid ref %q", ref)
	}
	return c, nil
}
