// Package sqlite persists tree nodes in a local SQLite database, suitable
// for single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"brainflow-backend/application/ports"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS tree_nodes (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	path       TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (user_id, path)
);
CREATE INDEX IF NOT EXISTS idx_tree_nodes_user ON tree_nodes (user_id, path);
`

// TreeStore is a SQLite-backed PageStore
type TreeStore struct {
	db *sql.DB
}

// NewTreeStore opens the database at path and ensures the schema exists
func NewTreeStore(path string) (*TreeStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("open sqlite", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent organization runs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pkgerrors.NewPersistenceError("migrate sqlite schema", err)
	}
	return &TreeStore{db: db}, nil
}

var _ ports.PageStore = (*TreeStore)(nil)

// Close releases the underlying database handle
func (s *TreeStore) Close() error {
	return s.db.Close()
}

func (s *TreeStore) GetNodeByID(ctx context.Context, userID string, id valueobjects.NodeID) (*entities.TreeNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, parent_id, path, content, created_at, updated_at
		 FROM tree_nodes WHERE id = ? AND user_id = ?`,
		id.String(), userID,
	)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("node not found: " + id.String())
	}
	return node, err
}

func (s *TreeStore) GetNodeByPath(ctx context.Context, userID string, path valueobjects.TreePath) (*entities.TreeNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, parent_id, path, content, created_at, updated_at
		 FROM tree_nodes WHERE user_id = ? AND path = ?`,
		userID, path.String(),
	)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("node not found at path: " + path.String())
	}
	return node, err
}

func (s *TreeStore) CreateNode(ctx context.Context, node *entities.TreeNode) (valueobjects.NodeID, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tree_nodes (id, user_id, kind, parent_id, path, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID().String(),
		node.UserID(),
		string(node.Kind()),
		node.ParentID().String(),
		node.Path().String(),
		node.Content(),
		node.CreatedAt().UTC().Format(time.RFC3339Nano),
		node.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return valueobjects.NodeID{}, pkgerrors.NewConflictError("path already exists: " + node.Path().String())
		}
		return valueobjects.NodeID{}, pkgerrors.NewPersistenceError("create node", err)
	}
	return node.ID(), nil
}

func (s *TreeStore) UpdateNode(ctx context.Context, node *entities.TreeNode) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tree_nodes SET path = ?, parent_id = ?, content = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		node.Path().String(),
		node.ParentID().String(),
		node.Content(),
		node.UpdatedAt().UTC().Format(time.RFC3339Nano),
		node.ID().String(),
		node.UserID(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.NewConflictError("path already exists: " + node.Path().String())
		}
		return pkgerrors.NewPersistenceError("update node", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.NewPersistenceError("update node", err)
	}
	if affected == 0 {
		return pkgerrors.NewNotFoundError("node not found: " + node.ID().String())
	}
	return nil
}

func (s *TreeStore) ListTree(ctx context.Context, userID string) ([]*entities.TreeNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, parent_id, path, content, created_at, updated_at
		 FROM tree_nodes WHERE user_id = ? ORDER BY path`,
		userID,
	)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list tree", err)
	}
	defer rows.Close()

	var nodes []*entities.TreeNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewPersistenceError("list tree", err)
	}
	return nodes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*entities.TreeNode, error) {
	var (
		id, userID, kind, parentID, path, content string
		createdAt, updatedAt                      string
	)
	if err := row.Scan(&id, &userID, &kind, &parentID, &path, &content, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, pkgerrors.NewPersistenceError("scan node", err)
	}

	nodeID, err := valueobjects.NewNodeIDFromString(id)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("scan node", err)
	}
	var parent valueobjects.NodeID
	if parentID != "" {
		parent, err = valueobjects.NewNodeIDFromString(parentID)
		if err != nil {
			return nil, pkgerrors.NewPersistenceError("scan node", err)
		}
	}
	treePath, err := valueobjects.NewTreePath(path)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("scan node", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("scan node", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("scan node", err)
	}
	return entities.ReconstructTreeNode(nodeID, userID, entities.NodeKind(kind), parent, treePath, content, created, updated)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
