package tree

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mshare/mshare/internal/apperr"
)

// MemoryStore is an arena of nodes keyed by id with a parent index.
// Traversal is index lookups; nodes never point at each other.
type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	children map[string][]string // parentKey -> child ids
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		now:      time.Now,
	}
}

func parentKey(projectID string, parentID *string) string {
	if parentID == nil {
		return projectID + "/"
	}
	return projectID + "/" + *parentID
}

// Create stores a copy of n and writes the assigned id and timestamps back.
func (s *MemoryStore) Create(ctx context.Context, n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ParentID != nil {
		parent, ok := s.nodes[*n.ParentID]
		if !ok || parent.ProjectID != n.ProjectID {
			return fmt.Errorf("create node %s: parent %s: %w", n.Name, *n.ParentID, apperr.ErrNotFound)
		}
		if !parent.IsFolder {
			return fmt.Errorf("create node %s: parent %s is a file: %w", n.Name, *n.ParentID, apperr.ErrInvalidState)
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("create node %s: duplicate id %s: %w", n.Name, n.ID, apperr.ErrConflict)
	}
	stampNode(n, s.now())

	s.nodes[n.ID] = n.Clone()
	key := parentKey(n.ProjectID, n.ParentID)
	s.children[key] = append(s.children[key], n.ID)
	return nil
}

// Get returns a copy of the node, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, projectID, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok || n.ProjectID != projectID {
		return nil, fmt.Errorf("get node %s: %w", id, apperr.ErrNotFound)
	}
	return n.Clone(), nil
}

// ListChildren returns copies of the direct children of parentID.
func (s *MemoryStore) ListChildren(ctx context.Context, projectID string, parentID *string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.children[parentKey(projectID, parentID)]
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.nodes[id].Clone())
	}
	SortSiblings(out)
	return out, nil
}

// ListByProject returns copies of every node of the project ordered by path.
func (s *MemoryStore) ListByProject(ctx context.Context, projectID string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Node
	for _, n := range s.nodes {
		if n.ProjectID == projectID {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// DeleteByProject removes every node of the project.
func (s *MemoryStore) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, n := range s.nodes {
		if n.ProjectID != projectID {
			continue
		}
		delete(s.nodes, id)
		delete(s.children, parentKey(projectID, &id))
		deleted++
	}
	delete(s.children, parentKey(projectID, nil))
	return deleted, nil
}

// SortSiblings orders nodes by position, breaking ties by name.
func SortSiblings(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func stampNode(n *Node, now time.Time) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now.UTC()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
}
