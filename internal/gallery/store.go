// Package gallery owns the enrolled face encodings of the station.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/observability"
)

var (
	ErrDuplicate      = errors.New("identity already enrolled")
	ErrNotFound       = errors.New("identity not found")
	ErrEmptyEncodings = errors.New("no encodings to add")
)

// Backend persists the whole gallery. Save must replace the previous state
// atomically.
type Backend interface {
	Load(ctx context.Context) (models.Gallery, error)
	Save(ctx context.Context, g models.Gallery) error
}

// Store is the in-memory gallery plus its backend. Every mutation builds a
// new gallery, persists it and only then swaps it in, so a failed save leaves
// both memory and disk at the previous state.
type Store struct {
	backend Backend

	mu      sync.RWMutex
	gallery models.Gallery
}

// Open loads the persisted gallery.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	g, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	observability.GallerySize.Set(float64(g.Len()))
	return &Store{backend: backend, gallery: g}, nil
}

// Snapshot returns a copy safe to read without holding the lock.
func (s *Store) Snapshot() models.Gallery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gallery.Clone()
}

func (s *Store) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gallery.Contains(name)
}

func (s *Store) Identities() []models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gallery.Identities()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gallery.Len()
}

// Save persists the current gallery.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, s.gallery); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}
	return nil
}

// Add appends encodings under name and persists.
func (s *Store) Add(ctx context.Context, name string, encodings [][]float32) error {
	return s.add(ctx, name, encodings, false)
}

// Insert is Add for a new identity: it fails with ErrDuplicate when name is
// already enrolled.
func (s *Store) Insert(ctx context.Context, name string, encodings [][]float32) error {
	return s.add(ctx, name, encodings, true)
}

func (s *Store) add(ctx context.Context, name string, encodings [][]float32, unique bool) error {
	if name == "" {
		return fmt.Errorf("add encodings: %w", models.ErrInvalidName)
	}
	if len(encodings) == 0 {
		return ErrEmptyEncodings
	}
	for i, enc := range encodings {
		if len(enc) == 0 {
			return fmt.Errorf("encoding %d: %w", i, ErrEmptyEncodings)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if unique && s.gallery.Contains(name) {
		return fmt.Errorf("%q: %w", name, ErrDuplicate)
	}

	next := s.gallery.With(name, encodings)
	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}
	s.gallery = next
	observability.GallerySize.Set(float64(next.Len()))
	return nil
}

// Remove deletes every encoding owned by name and persists. It returns the
// number of encodings removed.
func (s *Store) Remove(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := s.gallery.Without(name)
	if removed == 0 {
		return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if err := s.backend.Save(ctx, next); err != nil {
		return 0, fmt.Errorf("save gallery: %w", err)
	}
	s.gallery = next
	observability.GallerySize.Set(float64(next.Len()))
	return removed, nil
}
