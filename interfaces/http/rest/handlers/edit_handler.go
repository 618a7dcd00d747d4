package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"brainflow-backend/application/services/session"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	"brainflow-backend/pkg/auth"
	"brainflow-backend/pkg/common"
	pkgerrors "brainflow-backend/pkg/errors"
	"brainflow-backend/pkg/utils"
)

// EditHandler handles the editor boundary: append edits, flush, and inspect
// the unorganized backlog
type EditHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewEditHandler creates an edit handler
func NewEditHandler(sessions *session.Manager, logger *zap.Logger) *EditHandler {
	return &EditHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// AppendEditRequest represents the request body for recording an edit
type AppendEditRequest struct {
	LineID   string `json:"lineId" validate:"required,max=128"`
	PageID   string `json:"pageId" validate:"required,max=128"`
	Content  string `json:"content"`
	EditType string `json:"editType" validate:"required,oneof=create update delete"`
	Position *int   `json:"position,omitempty" validate:"omitempty,min=0"`
}

// AppendEditResponse reports what the edit log did with the edit
type AppendEditResponse struct {
	RecordID  string `json:"recordId"`
	LineID    string `json:"lineId"`
	Version   int    `json:"version"`
	Organized bool   `json:"organized"`
}

// AppendEdit handles POST /edits
func (h *EditHandler) AppendEdit(w http.ResponseWriter, r *http.Request) {
	var req AppendEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	lineID, err := valueobjects.NewLineID(req.LineID)
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sess := h.sessions.Get(user.UserID)
	if sess == nil {
		common.RespondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down")
		return
	}

	edit, err := sess.AppendEdit(lineID, req.PageID, req.Content, valueobjects.EditType(req.EditType), req.Position)
	if err != nil {
		if pkgerrors.IsValidation(err) {
			common.RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		h.logger.Error("Failed to append edit", zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, "INTERNAL", "Failed to record edit")
		return
	}

	common.RespondJSON(w, http.StatusAccepted, AppendEditResponse{
		RecordID:  edit.RecordID,
		LineID:    edit.LineID.String(),
		Version:   edit.Version,
		Organized: edit.Organized,
	})
}

// Flush handles POST /edits/flush
func (h *EditHandler) Flush(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	sess, exists := h.sessions.Peek(user.UserID)
	if !exists {
		common.RespondJSON(w, http.StatusOK, map[string]string{"status": "no session"})
		return
	}

	sess.Flush()
	common.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "flushed"})
}

// LineEditView is the wire representation of one logged edit version
type LineEditView struct {
	RecordID  string `json:"recordId"`
	LineID    string `json:"lineId"`
	PageID    string `json:"pageId"`
	Content   string `json:"content"`
	EditType  string `json:"editType"`
	Version   int    `json:"version"`
	Organized bool   `json:"organized"`
	Timestamp string `json:"timestamp"`
}

func toLineEditViews(edits []*entities.LineEdit) []LineEditView {
	views := make([]LineEditView, 0, len(edits))
	for _, edit := range edits {
		views = append(views, LineEditView{
			RecordID:  edit.RecordID,
			LineID:    edit.LineID.String(),
			PageID:    edit.PageID,
			Content:   edit.Content,
			EditType:  string(edit.EditType),
			Version:   edit.Version,
			Organized: edit.Organized,
			Timestamp: edit.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return views
}

// ListUnorganized handles GET /lines/unorganized
func (h *EditHandler) ListUnorganized(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	sess, exists := h.sessions.Peek(user.UserID)
	if !exists {
		common.RespondJSON(w, http.StatusOK, []LineEditView{})
		return
	}
	common.RespondJSON(w, http.StatusOK, toLineEditViews(sess.Unorganized()))
}

// LineHistory handles GET /lines/{lineID}/history
func (h *EditHandler) LineHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	lineID, err := valueobjects.NewLineID(chi.URLParam(r, "lineID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	params := common.ExtractPaginationParams(r)

	sess, exists := h.sessions.Peek(user.UserID)
	if !exists {
		common.RespondJSON(w, http.StatusOK, common.NewPaginatedResult([]LineEditView{}, params, 0))
		return
	}

	views := toLineEditViews(sess.LineHistory(lineID))
	start, end := params.Bounds(len(views))
	common.RespondJSON(w, http.StatusOK, common.NewPaginatedResult(views[start:end], params, len(views)))
}
