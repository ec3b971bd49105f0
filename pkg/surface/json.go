package surface

import (
	"encoding/json"
	"io"

	"github.com/mshare/mshare/internal/treequery"
)

// JSONRenderer marshals the ProjectTree to indented JSON in the API's shape.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(w io.Writer, tree *treequery.ProjectTree) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tree)
}
