package surface

import (
	"fmt"
	"io"
	"os"

	"github.com/mshare/mshare/internal/treequery"
)

// TerminalRenderer renders a ProjectTree as an indented, colored listing.
type TerminalRenderer struct{}

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBlue  = "\033[34m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
)

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, tree *treequery.ProjectTree) error {
	// Header
	fmt.Fprintf(w, "%s %s\n", bold(tree.ProjectName), dim("("+tree.ProjectID+")"))
	fmt.Fprintf(w, "%d items, %s\n\n", tree.ItemCount, HumanBytes(tree.StorageUsed))

	if tree.Root == nil {
		fmt.Fprintln(w, "Empty.")
		return nil
	}
	fmt.Fprintln(w, colored(tree.Root.Name+"/", colorBlue))
	renderChildren(w, tree.Root, "")
	if tree.Root.Expanded && len(tree.Root.Children) == 0 {
		fmt.Fprintln(w, dim("(empty)"))
	}
	return nil
}

func renderChildren(w io.Writer, n *treequery.Node, prefix string) {
	for i, c := range n.Children {
		last := i == len(n.Children)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}

		if c.IsFolder() {
			label := colored(c.Name+"/", colorBlue)
			if !c.Expanded {
				label += " " + dim("…")
			}
			fmt.Fprintf(w, "%s%s%s\n", prefix, branch, label)
			renderChildren(w, c, prefix+indent)
			continue
		}
		fmt.Fprintf(w, "%s%s%s %s\n", prefix, branch, c.Name, dim(HumanBytes(c.Size)))
	}
}
