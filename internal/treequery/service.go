// Package treequery answers read queries over a project's file tree.
package treequery

import (
	"context"
	"fmt"

	"github.com/mshare/mshare/internal/apperr"
	"github.com/mshare/mshare/internal/project"
	"github.com/mshare/mshare/internal/tree"
)

const (
	// DefaultDepth is the expansion depth used when a caller gives none.
	DefaultDepth = 10
	// Unlimited expands the whole tree.
	Unlimited = -1
)

// ProjectTree is the response of GetTree.
type ProjectTree struct {
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	Root        *Node  `json:"root"`
	ItemCount   int    `json:"itemCount"`
	StorageUsed int64  `json:"storageUsed"`
}

// FileContent locates the bytes of a file node.
type FileContent struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// Service provides read access to project trees.
type Service struct {
	projects project.Store
	nodes    tree.Store
}

// NewService creates a new tree query Service.
func NewService(projects project.Store, nodes tree.Store) *Service {
	return &Service{projects: projects, nodes: nodes}
}

// index is an arena view of one project's nodes.
type index struct {
	byID     map[string]*tree.Node
	children map[string][]*tree.Node // parent id ("" for roots) -> ordered children
}

func buildIndex(nodes []*tree.Node) *index {
	idx := &index{
		byID:     make(map[string]*tree.Node, len(nodes)),
		children: make(map[string][]*tree.Node),
	}
	for _, n := range nodes {
		idx.byID[n.ID] = n
		var parent string
		if n.ParentID != nil {
			parent = *n.ParentID
		}
		idx.children[parent] = append(idx.children[parent], n)
	}
	for _, siblings := range idx.children {
		tree.SortSiblings(siblings)
	}
	return idx
}

// expand renders n with up to remaining levels of descendants. A negative
// remaining never reaches zero.
func (idx *index) expand(n *tree.Node, remaining int) *Node {
	v := viewOf(n)
	if !n.IsFolder || remaining == 0 {
		return v
	}
	v.Expanded = true
	for _, c := range idx.children[n.ID] {
		v.Children = append(v.Children, idx.expand(c, remaining-1))
	}
	return v
}

// GetTree returns the project's hierarchy expanded to maxDepth levels.
// When the project has exactly one root folder it is returned as the root;
// otherwise the roots are wrapped in a folder named after the project.
func (s *Service) GetTree(ctx context.Context, projectID string, maxDepth int) (*ProjectTree, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	nodes, err := s.nodes.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get tree of project %s: %w", projectID, err)
	}
	if maxDepth < 0 {
		maxDepth = Unlimited
	}

	idx := buildIndex(nodes)
	roots := idx.children[""]

	var root *Node
	if len(roots) == 1 && roots[0].IsFolder {
		root = idx.expand(roots[0], maxDepth)
	} else {
		root = &Node{
			ID:        p.ID,
			Name:      p.Name,
			Type:      TypeFolder,
			Path:      "/",
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
			Expanded:  true,
			Children:  make([]*Node, 0, len(roots)),
		}
		for _, r := range roots {
			root.Children = append(root.Children, idx.expand(r, maxDepth))
		}
	}

	return &ProjectTree{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Root:        root,
		ItemCount:   p.ItemCount,
		StorageUsed: p.StorageUsed,
	}, nil
}

// GetFolderChildren returns one level of children of folderID, or the
// project's root-level nodes when folderID is nil.
func (s *Service) GetFolderChildren(ctx context.Context, projectID string, folderID *string) ([]*Node, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, fmt.Errorf("get folder children: %w", err)
	}
	if folderID != nil {
		folder, err := s.nodes.Get(ctx, projectID, *folderID)
		if err != nil {
			return nil, fmt.Errorf("get folder children: %w", err)
		}
		if !folder.IsFolder {
			return nil, fmt.Errorf("get folder children: node %s is a file: %w", *folderID, apperr.ErrNotFound)
		}
	}
	children, err := s.nodes.ListChildren(ctx, projectID, folderID)
	if err != nil {
		return nil, fmt.Errorf("get folder children: %w", err)
	}
	out := make([]*Node, 0, len(children))
	for _, c := range children {
		out = append(out, viewOf(c))
	}
	return out, nil
}

// GetFileContent resolves where a file's bytes can be fetched.
func (s *Service) GetFileContent(ctx context.Context, projectID, fileID string) (*FileContent, error) {
	n, err := s.nodes.Get(ctx, projectID, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file content: %w", err)
	}
	if n.IsFolder {
		return nil, fmt.Errorf("get file content: node %s is a folder: %w", fileID, apperr.ErrInvalidState)
	}
	if n.URL == "" {
		return nil, fmt.Errorf("get file content: file %s has no storage url: %w", fileID, apperr.ErrNotAccessible)
	}
	return &FileContent{URL: n.URL, FileName: n.Name}, nil
}
