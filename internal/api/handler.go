// Package api implements the mshare REST API: uploads into projects and
// read access to their file trees.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mshare/mshare/internal/apperr"
	"github.com/mshare/mshare/internal/auth"
	"github.com/mshare/mshare/internal/ingestion"
	"github.com/mshare/mshare/internal/progress"
	"github.com/mshare/mshare/internal/treequery"
)

// Handler is the top-level API handler.
type Handler struct {
	ingestion      *ingestion.Service
	query          *treequery.Service
	tracker        *progress.Tracker
	verifier       *auth.Verifier
	log            logrus.FieldLogger
	maxUploadBytes int64
	health         func(context.Context) error
}

// NewHandler creates a new API handler. maxUploadBytes caps multipart
// bodies when positive.
func NewHandler(ingestionSvc *ingestion.Service, query *treequery.Service, tracker *progress.Tracker, verifier *auth.Verifier, log logrus.FieldLogger, maxUploadBytes int64) *Handler {
	return &Handler{
		ingestion:      ingestionSvc,
		query:          query,
		tracker:        tracker,
		verifier:       verifier,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// WithHealthCheck makes /healthz answer 503 whenever check fails.
func (h *Handler) WithHealthCheck(check func(context.Context) error) *Handler {
	h.health = check
	return h
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Write endpoints (auth-protected)
	mux.Handle("POST /projects/{id}/upload", h.RequireCaller(http.HandlerFunc(h.handleUpload)))
	mux.Handle("GET /projects/{id}/upload-status", h.RequireCaller(http.HandlerFunc(h.handleUploadStatus)))

	// Read endpoints
	mux.HandleFunc("GET /projects/{id}/tree", h.handleTree)
	mux.HandleFunc("GET /projects/{id}/folders/{folderId}/children", h.handleFolderChildren)
	mux.HandleFunc("GET /projects/{id}/files/{fileId}/content", h.handleFileContent)

	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{StatusCode: status, Message: msg, Error: http.StatusText(status)})
}

// writeAppError maps err to a status code. Internal failures are logged and
// reported without detail.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, status, "internal server error")
		return
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		status = http.StatusRequestEntityTooLarge
	}
	writeError(w, status, err.Error())
}
