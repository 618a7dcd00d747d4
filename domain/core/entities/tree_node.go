package entities

import (
	"strings"
	"time"
	"unicode/utf8"

	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

// NodeKind distinguishes files from folders
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

const maxNodeContentLength = 100000

// TreeNode is a page or folder in a user's hierarchical tree.
// Invariant: Path is the separator-joined titles from root to this node and
// is unique within a user's tree; folders may have children, files may not.
type TreeNode struct {
	id        valueobjects.NodeID
	userID    string
	title     string
	kind      NodeKind
	parentID  valueobjects.NodeID
	path      valueobjects.TreePath
	content   string
	createdAt time.Time
	updatedAt time.Time
}

// NewFileNode creates a file node at the given path
func NewFileNode(userID string, path valueobjects.TreePath, parentID valueobjects.NodeID, content string) (*TreeNode, error) {
	return newNode(userID, path, parentID, KindFile, content)
}

// NewFolderNode creates a folder node at the given path
func NewFolderNode(userID string, path valueobjects.TreePath, parentID valueobjects.NodeID) (*TreeNode, error) {
	return newNode(userID, path, parentID, KindFolder, "")
}

func newNode(userID string, path valueobjects.TreePath, parentID valueobjects.NodeID, kind NodeKind, content string) (*TreeNode, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if path.IsZero() {
		return nil, pkgerrors.NewValidationError("path cannot be empty")
	}
	title := path.Title()
	if strings.TrimSpace(title) == "" {
		return nil, pkgerrors.NewValidationError("node title cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxNodeContentLength {
		return nil, pkgerrors.NewValidationError("node content exceeds maximum length")
	}

	now := time.Now()
	return &TreeNode{
		id:        valueobjects.NewNodeID(),
		userID:    userID,
		title:     title,
		kind:      kind,
		parentID:  parentID,
		path:      path,
		content:   content,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructTreeNode rebuilds a node from repository data with preserved timestamps
func ReconstructTreeNode(
	id valueobjects.NodeID,
	userID string,
	kind NodeKind,
	parentID valueobjects.NodeID,
	path valueobjects.TreePath,
	content string,
	createdAt, updatedAt time.Time,
) (*TreeNode, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if path.IsZero() {
		return nil, pkgerrors.NewValidationError("path cannot be empty")
	}
	return &TreeNode{
		id:        id,
		userID:    userID,
		title:     path.Title(),
		kind:      kind,
		parentID:  parentID,
		path:      path,
		content:   content,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}, nil
}

// ID returns the node's unique identifier
func (n *TreeNode) ID() valueobjects.NodeID {
	return n.id
}

// UserID returns the owning user's ID
func (n *TreeNode) UserID() string {
	return n.userID
}

// Title returns the node's title (the final path segment)
func (n *TreeNode) Title() string {
	return n.title
}

// Kind returns whether the node is a file or folder
func (n *TreeNode) Kind() NodeKind {
	return n.kind
}

// IsFolder reports whether the node may have children
func (n *TreeNode) IsFolder() bool {
	return n.kind == KindFolder
}

// ParentID returns the parent node's ID; zero for root-level nodes
func (n *TreeNode) ParentID() valueobjects.NodeID {
	return n.parentID
}

// Path returns the node's full tree path
func (n *TreeNode) Path() valueobjects.TreePath {
	return n.path
}

// Content returns the node's content body
func (n *TreeNode) Content() string {
	return n.content
}

// CreatedAt returns when the node was created
func (n *TreeNode) CreatedAt() time.Time {
	return n.createdAt
}

// UpdatedAt returns when the node was last updated
func (n *TreeNode) UpdatedAt() time.Time {
	return n.updatedAt
}

// ReplaceContent swaps the node's content for the merged result
func (n *TreeNode) ReplaceContent(content string) error {
	if n.kind != KindFile {
		return pkgerrors.NewValidationError("cannot write content to a folder")
	}
	if utf8.RuneCountInString(content) > maxNodeContentLength {
		return pkgerrors.NewValidationError("node content exceeds maximum length")
	}
	n.content = content
	n.updatedAt = time.Now()
	return nil
}

// Relocate updates the node's path after a collision rename
func (n *TreeNode) Relocate(path valueobjects.TreePath) error {
	if path.IsZero() {
		return pkgerrors.NewValidationError("path cannot be empty")
	}
	n.path = path
	n.title = path.Title()
	n.updatedAt = time.Now()
	return nil
}
