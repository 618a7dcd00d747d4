// Package memory provides an in-process PageStore for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"brainflow-backend/application/ports"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

// record is a flat snapshot of a node, detached from the entity so callers
// cannot mutate stored state through a shared pointer
type record struct {
	id        valueobjects.NodeID
	userID    string
	kind      entities.NodeKind
	parentID  valueobjects.NodeID
	path      valueobjects.TreePath
	content   string
	createdAt time.Time
	updatedAt time.Time
}

func snapshot(node *entities.TreeNode) record {
	return record{
		id:        node.ID(),
		userID:    node.UserID(),
		kind:      node.Kind(),
		parentID:  node.ParentID(),
		path:      node.Path(),
		content:   node.Content(),
		createdAt: node.CreatedAt(),
		updatedAt: node.UpdatedAt(),
	}
}

func (r record) entity() (*entities.TreeNode, error) {
	return entities.ReconstructTreeNode(r.id, r.userID, r.kind, r.parentID, r.path, r.content, r.createdAt, r.updatedAt)
}

// TreeStore keeps each user's tree in maps keyed by node ID and path
type TreeStore struct {
	mu      sync.RWMutex
	byID    map[string]record            // nodeID -> record
	byPath  map[string]map[string]string // userID -> path -> nodeID
	byUser  map[string][]string          // userID -> nodeIDs in insertion order
}

// NewTreeStore creates an empty in-memory store
func NewTreeStore() *TreeStore {
	return &TreeStore{
		byID:   make(map[string]record),
		byPath: make(map[string]map[string]string),
		byUser: make(map[string][]string),
	}
}

var _ ports.PageStore = (*TreeStore)(nil)

func (s *TreeStore) GetNodeByID(ctx context.Context, userID string, id valueobjects.NodeID) (*entities.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id.String()]
	if !ok || rec.userID != userID {
		return nil, pkgerrors.NewNotFoundError("node not found: " + id.String())
	}
	return rec.entity()
}

func (s *TreeStore) GetNodeByPath(ctx context.Context, userID string, path valueobjects.TreePath) (*entities.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths, ok := s.byPath[userID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node not found at path: " + path.String())
	}
	nodeID, ok := paths[path.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node not found at path: " + path.String())
	}
	return s.byID[nodeID].entity()
}

func (s *TreeStore) CreateNode(ctx context.Context, node *entities.TreeNode) (valueobjects.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := node.UserID()
	pathKey := node.Path().String()
	if paths, ok := s.byPath[userID]; ok {
		if _, taken := paths[pathKey]; taken {
			return valueobjects.NodeID{}, pkgerrors.NewConflictError("path already exists: " + pathKey)
		}
	} else {
		s.byPath[userID] = make(map[string]string)
	}

	rec := snapshot(node)
	idKey := rec.id.String()
	s.byID[idKey] = rec
	s.byPath[userID][pathKey] = idKey
	s.byUser[userID] = append(s.byUser[userID], idKey)
	return rec.id, nil
}

func (s *TreeStore) UpdateNode(ctx context.Context, node *entities.TreeNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idKey := node.ID().String()
	existing, ok := s.byID[idKey]
	if !ok || existing.userID != node.UserID() {
		return pkgerrors.NewNotFoundError("node not found: " + idKey)
	}

	newPath := node.Path().String()
	if oldPath := existing.path.String(); oldPath != newPath {
		paths := s.byPath[existing.userID]
		if other, taken := paths[newPath]; taken && other != idKey {
			return pkgerrors.NewConflictError("path already exists: " + newPath)
		}
		delete(paths, oldPath)
		paths[newPath] = idKey
	}

	s.byID[idKey] = snapshot(node)
	return nil
}

func (s *TreeStore) ListTree(ctx context.Context, userID string) ([]*entities.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	nodes := make([]*entities.TreeNode, 0, len(ids))
	for _, id := range ids {
		node, err := s.byID[id].entity()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Path().String() < nodes[j].Path().String()
	})
	return nodes, nil
}
