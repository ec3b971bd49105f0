package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mshare/mshare/internal/apperr"
	"github.com/mshare/mshare/internal/auth"
	"github.com/mshare/mshare/internal/ingestion"
)

// multipartOverhead is allowed on top of the upload cap for form framing.
const multipartOverhead = 1 << 20

// handleUpload handles POST /projects/{id}/upload with a multipart "file".
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}

	upload, err := readUpload(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	res, err := h.ingestion.Submit(r.Context(), ingestion.SubmitRequest{
		ProjectID: r.PathValue("id"),
		CallerID:  caller,
		File:      upload,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// readUpload returns the "file" part of the form, or nil when absent.
func readUpload(r *http.Request) (*ingestion.Upload, error) {
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("upload exceeds %d bytes: %w", mbe.Limit, errors.Join(apperr.ErrValidation, mbe))
		}
		return nil, fmt.Errorf("read multipart form: %v: %w", err, apperr.ErrValidation)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %v: %w", err, apperr.ErrValidation)
	}
	return &ingestion.Upload{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// handleUploadStatus handles GET /projects/{id}/upload-status.
func (h *Handler) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.tracker.Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
