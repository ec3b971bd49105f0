// Package progress tracks the state of background uploads per project.
// Records live in memory only and are lost on restart.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/mshare/mshare/internal/apperr"
)

// Status is the state of an upload run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is the snapshot of one upload run.
type Progress struct {
	ProjectID      string     `json:"projectId"`
	Status         Status     `json:"status"`
	Progress       int        `json:"progress"`
	FilesProcessed int        `json:"filesProcessed"`
	TotalFiles     int        `json:"totalFiles"`
	FoldersCreated int        `json:"foldersCreated"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Tracker holds at most one Progress per project.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Progress
	now     func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*Progress), now: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Begin registers a PENDING run for the project. It fails with
// apperr.ErrConflict while an earlier run is still active; a terminal record
// is replaced.
func (t *Tracker) Begin(projectID string) (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.records[projectID]; ok && !p.Status.Terminal() {
		return Progress{}, fmt.Errorf("upload for project %s is %s: %w", projectID, p.Status, apperr.ErrConflict)
	}
	p := &Progress{
		ProjectID: projectID,
		Status:    StatusPending,
		StartedAt: t.now().UTC(),
	}
	t.records[projectID] = p
	return *p, nil
}

// Update applies fn to the project's record. Unknown projects are ignored.
func (t *Tracker) Update(projectID string, fn func(*Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.records[projectID]; ok {
		fn(p)
	}
}

// Complete marks the run COMPLETED at 100%.
func (t *Tracker) Complete(projectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.records[projectID]; ok {
		now := t.now().UTC()
		p.Status = StatusCompleted
		p.Progress = 100
		p.CompletedAt = &now
	}
}

// Fail marks the run FAILED with the given message.
func (t *Tracker) Fail(projectID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.records[projectID]; ok {
		now := t.now().UTC()
		p.Status = StatusFailed
		p.Error = message
		p.CompletedAt = &now
	}
}

// Get returns a copy of the project's record, or apperr.ErrNotFound when no
// upload was started or the record is no longer retained.
func (t *Tracker) Get(projectID string) (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.records[projectID]
	if !ok {
		return Progress{}, fmt.Errorf("upload status for project %s: %w", projectID, apperr.ErrNotFound)
	}
	c := *p
	if p.CompletedAt != nil {
		done := *p.CompletedAt
		c.CompletedAt = &done
	}
	return c, nil
}

// Sweep drops terminal records completed more than retention ago and
// returns how many were removed.
func (t *Tracker) Sweep(retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-retention)
	removed := 0
	for id, p := range t.records {
		if p.Status.Terminal() && p.CompletedAt != nil && p.CompletedAt.Before(cutoff) {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}

// Percent returns done/total as a rounded percentage in [0, 100].
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return (done*100 + total/2) / total
}
