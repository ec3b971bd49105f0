package project

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mshare/mshare/internal/apperr"
)

// MemoryStore keeps projects in a map. Used in development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]*Project)}
}

// Create stores a copy of p, assigning an id, status and timestamps when unset.
func (s *MemoryStore) Create(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.projects[p.ID]; exists {
		return fmt.Errorf("create project %s: %w", p.ID, apperr.ErrConflict)
	}
	prepare(p, time.Now())
	s.projects[p.ID] = p.Clone()
	return nil
}

// Get returns a copy of the project.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project %s: %w", id, apperr.ErrNotFound)
	}
	return p.Clone(), nil
}

// Save overwrites the stored project and bumps UpdatedAt.
func (s *MemoryStore) Save(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; !ok {
		return fmt.Errorf("save project %s: %w", p.ID, apperr.ErrNotFound)
	}
	p.UpdatedAt = time.Now().UTC()
	s.projects[p.ID] = p.Clone()
	return nil
}

func prepare(p *Project, now time.Time) {
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now.UTC()
	}
	p.UpdatedAt = p.CreatedAt
}
