// Package apperr defines the error kinds shared by the ingestion and tree
// services. Callers wrap one of the sentinels with fmt.Errorf("...: %w") and
// match with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks a malformed or missing upload payload.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown project, node or upload.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a caller that does not own the project.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState marks an operation the target's state does not allow.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict marks an upload submitted while another one is running.
	ErrConflict = errors.New("conflict")
	// ErrNotAccessible marks a file node without a resolvable storage URL.
	ErrNotAccessible = errors.New("not accessible")
	// ErrExtraction marks a malformed archive.
	ErrExtraction = errors.New("extraction failed")
	// ErrStorage marks a blob store failure.
	ErrStorage = errors.New("storage failed")
)

// HTTPStatus maps an error to the status code the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotAccessible):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
