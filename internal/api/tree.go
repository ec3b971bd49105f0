package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mshare/mshare/internal/apperr"
	"github.com/mshare/mshare/internal/treequery"
)

// rootFolderID addresses the project's root level in folder routes.
const rootFolderID = "root"

func parseDepth(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "":
		return treequery.DefaultDepth, nil
	case "all":
		return treequery.Unlimited, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("depth must be an integer or \"all\": %w", apperr.ErrValidation)
	}
	if d < 0 {
		return treequery.Unlimited, nil
	}
	return d, nil
}

// handleTree handles GET /projects/{id}/tree?depth=N.
func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	depth, err := parseDepth(r.URL.Query().Get("depth"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	t, err := h.query.GetTree(r.Context(), r.PathValue("id"), depth)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleFolderChildren handles GET /projects/{id}/folders/{folderId}/children.
func (h *Handler) handleFolderChildren(w http.ResponseWriter, r *http.Request) {
	var folderID *string
	if id := r.PathValue("folderId"); id != rootFolderID {
		folderID = &id
	}
	children, err := h.query.GetFolderChildren(r.Context(), r.PathValue("id"), folderID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// handleFileContent handles GET /projects/{id}/files/{fileId}/content.
func (h *Handler) handleFileContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.query.GetFileContent(r.Context(), r.PathValue("id"), r.PathValue("fileId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}
