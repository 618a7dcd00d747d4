package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/pkg/auth"
	"brainflow-backend/pkg/common"
)

// TreeHandler serves read access to a user's organized tree
type TreeHandler struct {
	store  ports.PageStore
	logger *zap.Logger
}

// NewTreeHandler creates a tree handler
func NewTreeHandler(store ports.PageStore, logger *zap.Logger) *TreeHandler {
	return &TreeHandler{
		store:  store,
		logger: logger,
	}
}

// TreeNodeView is the wire representation of one tree node
type TreeNodeView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	ParentID  string `json:"parentId,omitempty"`
	Content   string `json:"content,omitempty"`
	UpdatedAt string `json:"updatedAt"`
}

// GetTree handles GET /tree
func (h *TreeHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	includeContent := r.URL.Query().Get("content") == "true"

	nodes, err := h.store.ListTree(r.Context(), user.UserID)
	if err != nil {
		h.logger.Error("Failed to list tree", zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, "INTERNAL", "Failed to list tree")
		return
	}

	views := make([]TreeNodeView, 0, len(nodes))
	for _, node := range nodes {
		view := TreeNodeView{
			ID:        node.ID().String(),
			Title:     node.Title(),
			Kind:      string(node.Kind()),
			Path:      node.Path().String(),
			UpdatedAt: node.UpdatedAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if !node.ParentID().IsZero() {
			view.ParentID = node.ParentID().String()
		}
		if includeContent {
			view.Content = node.Content()
		}
		views = append(views, view)
	}

	common.RespondJSON(w, http.StatusOK, views)
}
