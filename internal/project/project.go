// Package project holds the project records that own uploaded trees.
package project

import (
	"context"
	"time"
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusReady     Status = "READY"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
	StatusFailed    Status = "FAILED"
	StatusActive    Status = "ACTIVE"
	StatusDeleted   Status = "DELETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReady, StatusPublished, StatusArchived,
		StatusFailed, StatusActive, StatusDeleted:
		return true
	}
	return false
}

// Metadata keys written by ingestion.
const (
	MetaUploadError    = "uploadError"
	MetaUploadFailedAt = "uploadFailedAt"
)

// Project is a container for an uploaded file tree.
type Project struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	ItemCount   int            `json:"itemCount"`
	StorageUsed int64          `json:"storageUsed"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Clone returns a copy of p with its own metadata map.
func (p *Project) Clone() *Project {
	c := *p
	if p.Metadata != nil {
		c.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Store persists projects. Get returns an error wrapping apperr.ErrNotFound
// for unknown ids.
type Store interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	Save(ctx context.Context, p *Project) error
}
