package entities

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"brainflow-backend/domain/core/valueobjects"
)

// EditMetadata carries derived facts about an edit's content
type EditMetadata struct {
	WordCount int  `json:"word_count"`
	CharCount int  `json:"char_count"`
	Position  *int `json:"position,omitempty"`
}

// NewEditMetadata derives metadata from content
func NewEditMetadata(content string, position *int) EditMetadata {
	return EditMetadata{
		WordCount: len(strings.Fields(content)),
		CharCount: utf8.RuneCountInString(content),
		Position:  position,
	}
}

// LineEdit is one version in a line's edit history. The history is an audit
// trail as much as a work queue: versions are never deleted, and only the
// unorganized latest version of a line may be rewritten in place.
type LineEdit struct {
	RecordID  string                 `json:"record_id"`
	LineID    valueobjects.LineID    `json:"line_id"`
	PageID    string                 `json:"page_id"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	EditType  valueobjects.EditType  `json:"edit_type"`
	Organized bool                   `json:"organized"`
	Version   int                    `json:"version"`
	Revision  int                    `json:"revision"`
	Metadata  EditMetadata           `json:"metadata"`
}

// NewLineEdit creates the given version of a line's history
func NewLineEdit(
	lineID valueobjects.LineID,
	pageID string,
	content string,
	editType valueobjects.EditType,
	version int,
	metadata EditMetadata,
) *LineEdit {
	return &LineEdit{
		RecordID:  ulid.Make().String(),
		LineID:    lineID,
		PageID:    pageID,
		Content:   content,
		Timestamp: time.Now(),
		EditType:  editType,
		Organized: false,
		Version:   version,
		Metadata:  metadata,
	}
}

// Matches reports whether a proposed edit duplicates this version exactly.
// Duplicate edits are suppressed rather than recorded.
func (e *LineEdit) Matches(content string, editType valueobjects.EditType) bool {
	return e.Content == content && e.EditType == editType
}

// Rewrite collapses a rapid successive edit into this not-yet-organized
// version instead of growing the log. Each rewrite bumps Revision, so a
// batch snapshot taken earlier can be told apart from the live version.
func (e *LineEdit) Rewrite(content string, editType valueobjects.EditType, metadata EditMetadata) {
	e.Content = content
	e.EditType = editType
	e.Metadata = metadata
	e.Revision++
	e.Timestamp = time.Now()
}

// MarkOrganized flags this version as merged into the tree. Idempotent.
func (e *LineEdit) MarkOrganized() {
	e.Organized = true
}

// Clone returns a copy so batches can snapshot a version while the live
// history keeps collapsing new keystrokes into it
func (e *LineEdit) Clone() *LineEdit {
	clone := *e
	if e.Metadata.Position != nil {
		pos := *e.Metadata.Position
		clone.Metadata.Position = &pos
	}
	return &clone
}
