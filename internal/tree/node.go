// Package tree persists the file and folder nodes that make up a project's
// hierarchy. Nodes reference their parent by id; a nil parent marks a
// root-level node.
package tree

import (
	"context"
	"time"
)

// Node is one file or folder in a project's hierarchy.
type Node struct {
	ID        string
	ProjectID string
	ParentID  *string
	Name      string
	IsFolder  bool
	MimeType  string
	Size      int64
	Path      string
	StorageID string
	URL       string
	Checksum  string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.Metadata != nil {
		c.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Store persists tree nodes.
//
// Create assigns an id and timestamps when they are unset. A parent, when
// set, must already exist in the same project and be a folder.
type Store interface {
	Create(ctx context.Context, n *Node) error
	Get(ctx context.Context, projectID, id string) (*Node, error)
	// ListChildren returns the immediate children of parentID ordered by
	// position, or the project's root-level nodes when parentID is nil.
	ListChildren(ctx context.Context, projectID string, parentID *string) ([]*Node, error)
	ListByProject(ctx context.Context, projectID string) ([]*Node, error)
	DeleteByProject(ctx context.Context, projectID string) (int, error)
}
