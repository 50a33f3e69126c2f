// Package memory is an in-process blob store for tests.
package memory

import (
	"context"
	"io"
	"sync"
)

// Store keeps objects in a map keyed by path. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// PutObject records the object and returns a mem:// URI.
func (s *Store) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = buf
	s.types[path] = contentType
	return "mem://" + path, nil
}

// Object returns the stored bytes for path.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.objects[path]
	return buf, ok
}

// ContentType returns the recorded content type for path.
func (s *Store) ContentType(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[path]
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
