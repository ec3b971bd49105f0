package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mshare/mshare/internal/apperr"
)

// SQLStore provides project persistence backed by Postgres or SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create inserts a new project.
func (s *SQLStore) Create(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	prepare(p, time.Now())
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal project metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, status, item_count, storage_used, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OwnerID, p.Name, string(p.Status), p.ItemCount, p.StorageUsed, string(meta),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.Name, err)
	}
	return nil
}

// Get looks up a project by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Project, error) {
	var (
		p      Project
		status string
		meta   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, status, item_count, storage_used, metadata, created_at, updated_at
		 FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &status, &p.ItemCount, &p.StorageUsed, &meta, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get project %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	p.Status = Status(status)
	if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal project metadata: %w", err)
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	return &p, nil
}

// Save writes the mutable fields of p back and bumps UpdatedAt.
func (s *SQLStore) Save(ctx context.Context, p *Project) error {
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal project metadata: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects
		 SET name = $1, status = $2, item_count = $3, storage_used = $4, metadata = $5, updated_at = $6
		 WHERE id = $7`,
		p.Name, string(p.Status), p.ItemCount, p.StorageUsed, string(meta), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("save project %s: %w", p.ID, apperr.ErrNotFound)
	}
	return nil
}
