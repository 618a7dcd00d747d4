package valueobjects

import (
	"strings"

	pkgerrors "brainflow-backend/pkg/errors"
)

// LineID identifies a tracked paragraph-level unit of content.
// The editor owns the identity; this side only validates it.
type LineID struct {
	value string
}

// NewLineID creates a LineID from an editor-provided identifier
func NewLineID(id string) (LineID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return LineID{}, pkgerrors.NewValidationError("line ID cannot be empty")
	}
	return LineID{value: id}, nil
}

// String returns the string representation of the LineID
func (id LineID) String() string {
	return id.value
}

// Equals checks if two LineIDs are equal
func (id LineID) Equals(other LineID) bool {
	return id.value == other.value
}

// IsZero checks if the LineID is the zero value
func (id LineID) IsZero() bool {
	return id.value == ""
}

// EditType classifies a tracked edit event
type EditType string

const (
	EditTypeCreate EditType = "create"
	EditTypeUpdate EditType = "update"
	EditTypeDelete EditType = "delete"
)

// IsValid reports whether the edit type is one of the known kinds
func (t EditType) IsValid() bool {
	switch t {
	case EditTypeCreate, EditTypeUpdate, EditTypeDelete:
		return true
	}
	return false
}
