package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"petpals/internal/observability"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a client from a service account key file, or from
// application default credentials when credentialsFile is empty.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) object(ref string) (*storage.ObjectHandle, string, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return nil, "", err
	}
	return s.client.Bucket(s.bucket).Object(c), c, nil
}

// Upload implements Store.
func (s *GCSStore) Upload(ctx context.Context, ref string, data []byte, contentType string) (string, error) {
	obj, c, err := s.object(ref)
	if err != nil {
		return "", err
	}
	ctx, span := observability.GetTraceLayer().TraceBlobOperation(ctx, "gcs", "upload", c)
	defer span.End()

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write GCS object %s: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", c, err)
	}
	return c, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	obj, c, err := s.object(ref)
	if err != nil {
		return err
	}
	ctx, span := observability.GetTraceLayer().TraceBlobOperation(ctx, "gcs", "delete", c)
	defer span.End()

	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DownloadURL implements Store. Objects are expected to be publicly readable.
func (s *GCSStore) DownloadURL(_ context.Context, ref string) (string, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + s.bucket + "/" + c}
	return u.String(), nil
}

// RefFromURL accepts public storage.googleapis.com URLs, Firebase download
// URLs (/v0/b/{bucket}/o/{escaped ref}) and gs:// URIs for this bucket.
func (s *GCSStore) RefFromURL(rawURL string) (string, error) {
	return gcsRefFromURL(s.bucket, rawURL)
}

func gcsRefFromURL(bucket, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch {
	case u.Scheme == "gs" && u.Host == bucket:
		return cleanRef(strings.TrimPrefix(u.Path, "/"))
	case u.Host == "storage.googleapis.com":
		prefix := "/" + bucket + "/"
		if strings.HasPrefix(u.Path, prefix) {
			return cleanRef(strings.TrimPrefix(u.Path, prefix))
		}
	case u.Host == "firebasestorage.googleapis.com":
		prefix := "/v0/b/" + bucket + "/o/"
		if strings.HasPrefix(u.Path, prefix) {
			return cleanRef(strings.TrimPrefix(u.Path, prefix))
		}
	}
	return "", ErrForeignURL
}

// Open implements Store.
func (s *GCSStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	obj, _, err := s.object(ref)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return r, err
}
