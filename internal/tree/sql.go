package tree

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

// SQLStore provides node persistence backed by Postgres or SQLite.
// Placeholders appear once each in ascending order so the same statements
// run on both drivers.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const nodeColumns = `id, project_id, parent_id, name, is_folder, mime_type, size, path,
	storage_id, url, checksum, position, metadata, created_at, updated_at`

// Create inserts a single node.
func (s *SQLStore) Create(ctx context.Context, n *Node) error {
	return insertNode(ctx, s.db, n)
}

func insertNode(ctx context.Context, q execQueryer, n *Node) error {
	if n.ParentID != nil {
		var projectID string
		var isFolder bool
		err := q.QueryRowContext(ctx,
			`SELECT project_id, is_folder FROM tree_nodes WHERE id = $1`, *n.ParentID,
		).Scan(&projectID, &isFolder)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && projectID != n.ProjectID) {
			return fmt.Errorf("create node %s: parent %s: %w", n.Name, *n.ParentID, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("create node %s: lookup parent: %w", n.Name, err)
		}
		if !isFolder {
			return fmt.Errorf("create node %s: parent %s is a file: %w", n.Name, *n.ParentID, apperr.ErrInvalidState)
		}
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	stampNode(n, time.Now())
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal node metadata: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO tree_nodes (`+nodeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		n.ID, n.ProjectID, n.ParentID, n.Name, n.IsFolder, nilIfEmpty(n.MimeType), n.Size, n.Path,
		nilIfEmpty(n.StorageID), nilIfEmpty(n.URL), nilIfEmpty(n.Checksum), n.Order, string(meta),
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", n.Path, err)
	}
	return nil
}

// Get retrieves a node by project and id.
func (s *SQLStore) Get(ctx context.Context, projectID, id string) (*Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM tree_nodes WHERE project_id = $1 AND id = $2`,
		projectID, id,
	)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get node %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

// ListChildren returns the direct children of parentID, or root-level nodes
// when parentID is nil.
func (s *SQLStore) ListChildren(ctx context.Context, projectID string, parentID *string) ([]*Node, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM tree_nodes
			 WHERE project_id = $1 AND parent_id IS NULL
			 ORDER BY position, name`,
			projectID,
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+nodeColumns+` FROM tree_nodes
			 WHERE project_id = $1 AND parent_id = $2
			 ORDER BY position, name`,
			projectID, *parentID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return collectNodes(rows)
}

// ListByProject returns every node of the project ordered by path.
func (s *SQLStore) ListByProject(ctx context.Context, projectID string) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM tree_nodes WHERE project_id = $1 ORDER BY path`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list project nodes: %w", err)
	}
	return collectNodes(rows)
}

// DeleteByProject removes every node of the project.
func (s *SQLStore) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tree_nodes WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("delete project nodes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete project nodes: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		n                                  Node
		mimeType, storageID, url, checksum sql.NullString
		meta                               string
	)
	err := row.Scan(&n.ID, &n.ProjectID, &n.ParentID, &n.Name, &n.IsFolder, &mimeType, &n.Size, &n.Path,
		&storageID, &url, &checksum, &n.Order, &meta, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.MimeType = mimeType.String
	n.StorageID = storageID.String
	n.URL = url.String
	n.Checksum = checksum.String
	if err := json.Unmarshal([]byte(meta), &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal node metadata: %w", err)
	}
	return &n, nil
}

func collectNodes(rows *sql.Rows) ([]*Node, error) {
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
