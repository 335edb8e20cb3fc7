package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs on the local filesystem under root. The API server
// serves root at the path component of baseURL.
type LocalStore struct {
	root    string
	baseURL *url.URL
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse blob base url: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{root: root, baseURL: u}, nil
}

// Root returns the directory blobs are written to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) file(ref string) (string, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}

// Upload writes data to a temp file and renames it into place.
func (s *LocalStore) Upload(_ context.Context, ref string, data []byte, _ string) (string, error) {
	p, err := s.file(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	c, _ := cleanRef(ref)
	return c, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	p, err := s.file(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DownloadURL implements Store. It does not check that the object exists.
func (s *LocalStore) DownloadURL(_ context.Context, ref string) (string, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	u := *s.baseURL
	u.Path = u.Path + "/" + c
	return u.String(), nil
}

// RefFromURL implements Store.
func (s *LocalStore) RefFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host != s.baseURL.Host || u.Scheme != s.baseURL.Scheme {
		return "", ErrForeignURL
	}
	prefix := s.baseURL.Path + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", ErrForeignURL
	}
	return cleanRef(strings.TrimPrefix(u.Path, prefix))
}

// Open implements Store.
func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	p, err := s.file(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}
