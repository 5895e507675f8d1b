// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jmcleod/heist/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Flags are lost on restart.
type Repository struct {
	mu   sync.Mutex
	data map[string]*sessionFlags
	now  func() time.Time
}

type sessionFlags struct {
	flags   []string
	touched time.Time
}

var (
	_ storage.Repository = (*Repository)(nil)
	_ storage.Purger     = (*Repository)(nil)
)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		data: make(map[string]*sessionFlags),
		now:  time.Now,
	}
}

func (r *Repository) Add(_ context.Context, sessionID, flag string) (bool, error) {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.data[sessionID]
	if !ok {
		s = &sessionFlags{}
		r.data[sessionID] = s
	}
	s.touched = r.now()
	if slices.Contains(s.flags, flag) {
		return false, nil
	}
	s.flags = append(s.flags, flag)
	return true, nil
}

func (r *Repository) List(_ context.Context, sessionID string) ([]string, error) {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.data[sessionID]
	if !ok {
		return []string{}, nil
	}
	s.touched = r.now()
	return slices.Clone(s.flags), nil
}

func (r *Repository) Delete(_ context.Context, sessionID string) error {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.data, sessionID)
	r.mu.Unlock()
	return nil
}

// Purge removes sessions last touched before idleBefore.
func (r *Repository) Purge(_ context.Context, idleBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.data {
		if s.touched.Before(idleBefore) {
			delete(r.data, id)
			removed++
		}
	}
	return removed, nil
}
