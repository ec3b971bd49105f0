package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/mshare/mshare/internal/treequery"
)

// MarkdownRenderer renders a ProjectTree as a nested Markdown list, with
// files linked to their storage URL.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(w io.Writer, tree *treequery.ProjectTree) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## %s\n\n", tree.ProjectName))
	sb.WriteString("| Items | Storage |\n|-------|---------|\n")
	sb.WriteString(fmt.Sprintf("| %d | %s |\n\n", tree.ItemCount, HumanBytes(tree.StorageUsed)))

	if tree.Root != nil {
		writeMarkdownNodes(&sb, tree.Root.Children, 0)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeMarkdownNodes(sb *strings.Builder, nodes []*treequery.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.IsFolder() {
			sb.WriteString(fmt.Sprintf("%s- **%s/**\n", indent, n.Name))
			writeMarkdownNodes(sb, n.Children, depth+1)
			continue
		}
		if n.URL != "" {
			sb.WriteString(fmt.Sprintf("%s- [%s](%s) (%s)\n", indent, n.Name, n.URL, HumanBytes(n.Size)))
		} else {
			sb.WriteString(fmt.Sprintf("%s- %s (%s)\n", indent, n.Name, HumanBytes(n.Size)))
		}
	}
}
