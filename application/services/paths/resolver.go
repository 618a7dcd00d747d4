// Package paths validates and resolves hierarchical tree locations proposed
// by the oracle before any content is merged at them.
package paths

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

// Resolver validates proposed paths against a user's tree and creates the
// intermediate folders the oracle explicitly asked for
type Resolver struct {
	store  ports.PageStore
	config *config.DomainConfig
	logger *zap.Logger
}

// NewResolver creates a path resolver
func NewResolver(store ports.PageStore, cfg *config.DomainConfig, logger *zap.Logger) *Resolver {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Resolver{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Validation is the outcome of a path legality check
type Validation struct {
	Legal   bool
	Reasons []string
}

// ValidatePath checks a raw path for legality without touching the tree
func (r *Resolver) ValidatePath(raw string) Validation {
	reasons := valueobjects.ValidatePathString(raw)
	return Validation{
		Legal:   len(reasons) == 0,
		Reasons: reasons,
	}
}

// ParentResolution describes whether a path's parent can hold a new file
type ParentResolution struct {
	Exists     bool
	IsFolder   bool
	IsRoot     bool
	ParentPath valueobjects.TreePath
	ParentID   valueobjects.NodeID
}

// ResolveParent checks that a new file may be created at path: its parent
// must be the root or an already existing folder
func (r *Resolver) ResolveParent(ctx context.Context, userID string, path valueobjects.TreePath) (ParentResolution, error) {
	parent, isRoot := path.Parent()
	if isRoot {
		return ParentResolution{Exists: true, IsFolder: true, IsRoot: true, ParentPath: parent}, nil
	}

	node, err := r.store.GetNodeByPath(ctx, userID, parent)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return ParentResolution{Exists: false, ParentPath: parent}, nil
		}
		return ParentResolution{}, pkgerrors.NewPersistenceError("resolve parent", err)
	}

	return ParentResolution{
		Exists:     true,
		IsFolder:   node.IsFolder(),
		ParentPath: parent,
		ParentID:   node.ID(),
	}, nil
}

// EnsureFolders creates the missing ancestor folders of path, bottom-up.
// Only called when the oracle explicitly requested folder creation; the
// resolver never invents folders on its own.
func (r *Resolver) EnsureFolders(ctx context.Context, userID string, path valueobjects.TreePath) ([]*entities.TreeNode, error) {
	created := make([]*entities.TreeNode, 0)
	parentID := valueobjects.NodeID{}

	for _, ancestor := range path.Ancestors() {
		node, err := r.store.GetNodeByPath(ctx, userID, ancestor)
		if err == nil {
			if !node.IsFolder() {
				return created, pkgerrors.NewConflictError(
					fmt.Sprintf("path segment %q exists as a file", ancestor.String()),
				)
			}
			parentID = node.ID()
			continue
		}
		if !pkgerrors.IsNotFound(err) {
			return created, pkgerrors.NewPersistenceError("lookup folder", err)
		}

		folder, err := entities.NewFolderNode(userID, ancestor, parentID)
		if err != nil {
			return created, err
		}
		id, err := r.store.CreateNode(ctx, folder)
		if err != nil {
			return created, pkgerrors.NewPersistenceError("create folder", err)
		}
		parentID = id

		r.logger.Debug("Created intermediate folder",
			zap.String("userID", userID),
			zap.String("path", ancestor.String()),
		)
		created = append(created, folder)
	}

	return created, nil
}

// Uniquify returns a path that does not collide with an existing node,
// appending " (n)" with increasing n. After the retry budget is exhausted a
// timestamp suffix is used; if even that collides the invariant is violated
// and the batch must abort.
func (r *Resolver) Uniquify(ctx context.Context, userID string, path valueobjects.TreePath) (valueobjects.TreePath, error) {
	taken, err := r.pathTaken(ctx, userID, path)
	if err != nil {
		return valueobjects.TreePath{}, err
	}
	if !taken {
		return path, nil
	}

	parent, isRoot := path.Parent()
	base := path.Title()

	for n := 2; n <= r.config.UniquifyBudget+1; n++ {
		candidate, err := childOf(parent, isRoot, fmt.Sprintf("%s (%d)", base, n))
		if err != nil {
			return valueobjects.TreePath{}, err
		}
		taken, err := r.pathTaken(ctx, userID, candidate)
		if err != nil {
			return valueobjects.TreePath{}, err
		}
		if !taken {
			return candidate, nil
		}
	}

	stamped, err := childOf(parent, isRoot, fmt.Sprintf("%s %d", base, time.Now().UnixMilli()))
	if err != nil {
		return valueobjects.TreePath{}, err
	}
	taken, err = r.pathTaken(ctx, userID, stamped)
	if err != nil {
		return valueobjects.TreePath{}, err
	}
	if taken {
		return valueobjects.TreePath{}, pkgerrors.NewInvariantError(
			fmt.Sprintf("could not find a unique path for %q within budget", path.String()),
		)
	}
	return stamped, nil
}

func (r *Resolver) pathTaken(ctx context.Context, userID string, path valueobjects.TreePath) (bool, error) {
	_, err := r.store.GetNodeByPath(ctx, userID, path)
	if err == nil {
		return true, nil
	}
	if pkgerrors.IsNotFound(err) {
		return false, nil
	}
	return false, pkgerrors.NewPersistenceError("check path", err)
}

func childOf(parent valueobjects.TreePath, isRoot bool, title string) (valueobjects.TreePath, error) {
	if isRoot {
		return valueobjects.NewTreePath(valueobjects.Separator + title)
	}
	return parent.Child(title)
}
