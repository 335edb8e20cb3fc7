package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

const memoryURLPrefix = "mem://blobs/"

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

// Upload implements Store.
func (s *MemoryStore) Upload(_ context.Context, ref string, data []byte, contentType string) (string, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[c] = append([]byte(nil), data...)
	s.types[c] = contentType
	return c, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	c, err := cleanRef(ref)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[c]; !ok {
		return ErrNotFound
	}
	delete(s.objects, c)
	delete(s.types, c)
	return nil
}

// DownloadURL implements Store.
func (s *MemoryStore) DownloadURL(_ context.Context, ref string) (string, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	return memoryURLPrefix + c, nil
}

// RefFromURL implements Store.
func (s *MemoryStore) RefFromURL(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, memoryURLPrefix) {
		return "", ErrForeignURL
	}
	return cleanRef(strings.TrimPrefix(rawURL, memoryURLPrefix))
}

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	c, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[c]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Has reports whether an object exists at ref.
func (s *MemoryStore) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok
}
