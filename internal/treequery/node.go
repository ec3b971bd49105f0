package treequery

import (
	"encoding/json"
	"time"

	"github.com/mshare/mshare/internal/tree"
)

// Node types as rendered to clients.
const (
	TypeFile   = "FILE"
	TypeFolder = "FOLDER"
)

// Node is the client view of a tree node. Children are only meaningful when
// Expanded is set; an expanded folder with no children renders an empty list
// while an unexpanded one omits the field.
type Node struct {
	ID        string
	Name      string
	Type      string
	MimeType  string
	Size      int64
	Path      string
	URL       string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
	Expanded  bool
	Children  []*Node
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.Type == TypeFolder
}

type wireNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	MimeType  string    `json:"mime_type,omitempty"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
	URL       string    `json:"b2_url,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Children  *[]*Node  `json:"children,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireNode{
		ID:        n.ID,
		Name:      n.Name,
		Type:      n.Type,
		MimeType:  n.MimeType,
		Size:      n.Size,
		Path:      n.Path,
		URL:       n.URL,
		Order:     n.Order,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.Expanded {
		children := n.Children
		if children == nil {
			children = []*Node{}
		}
		w.Children = &children
	}
	return json.Marshal(w)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = Node{
		ID:        w.ID,
		Name:      w.Name,
		Type:      w.Type,
		MimeType:  w.MimeType,
		Size:      w.Size,
		Path:      w.Path,
		URL:       w.URL,
		Order:     w.Order,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	if w.Children != nil {
		n.Expanded = true
		n.Children = *w.Children
	}
	return nil
}

func viewOf(n *tree.Node) *Node {
	v := &Node{
		ID:        n.ID,
		Name:      n.Name,
		Type:      TypeFile,
		Size:      n.Size,
		Path:      n.Path,
		Order:     n.Order,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.IsFolder {
		v.Type = TypeFolder
	} else {
		v.MimeType = n.MimeType
		v.URL = n.URL
	}
	return v
}

// Flatten indexes every node under root, root included, by path.
func Flatten(root *Node) map[string]*Node {
	out := make(map[string]*Node)
	var visit func(n *Node)
	visit = func(n *Node) {
		out[n.Path] = n
		for _, c := range n.Children {
			visit(c)
		}
	}
	if root != nil {
		visit(root)
	}
	return out
}
