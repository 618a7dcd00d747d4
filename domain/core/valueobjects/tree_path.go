package valueobjects

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	pkgerrors "brainflow-backend/pkg/errors"
)

// Separator joins path segments from the root down to a node
const Separator = "/"

// Path constraints enforced on every proposed location. Oracle output is
// untrusted input, so these are checked before a path touches the tree.
const (
	maxSegmentLength = 100
	maxPathDepth     = 10
)

// TreePath is a value object for a hierarchical location in a user's tree.
// A valid path starts with the separator, contains no empty or
// parent-traversal segments, and uses a restricted character set.
type TreePath struct {
	value string
}

// NewTreePath validates and creates a TreePath
func NewTreePath(raw string) (TreePath, error) {
	if reasons := ValidatePathString(raw); len(reasons) > 0 {
		return TreePath{}, pkgerrors.NewValidationError(
			fmt.Sprintf("illegal path %q: %s", raw, strings.Join(reasons, "; ")),
		)
	}
	return TreePath{value: raw}, nil
}

// ValidatePathString checks path legality and returns the reasons it fails.
// An empty slice means the path is legal.
func ValidatePathString(raw string) []string {
	var reasons []string

	if raw == "" {
		return []string{"path is empty"}
	}
	if !strings.HasPrefix(raw, Separator) {
		reasons = append(reasons, "path must start with "+Separator)
	}
	if strings.Contains(raw, Separator+Separator) {
		reasons = append(reasons, "path contains doubled separators")
	}
	if raw != Separator && strings.HasSuffix(raw, Separator) {
		reasons = append(reasons, "path must not end with "+Separator)
	}

	segments := splitSegments(raw)
	if len(segments) == 0 {
		reasons = append(reasons, "path has no segments")
	}
	if len(segments) > maxPathDepth {
		reasons = append(reasons, fmt.Sprintf("path exceeds maximum depth of %d", maxPathDepth))
	}

	for _, seg := range segments {
		switch {
		case seg == "":
			reasons = append(reasons, "path contains an empty segment")
		case seg == "." || seg == "..":
			reasons = append(reasons, "path contains a traversal segment")
		case utf8.RuneCountInString(seg) > maxSegmentLength:
			reasons = append(reasons, fmt.Sprintf("segment %q exceeds %d characters", seg, maxSegmentLength))
		case !isSafeSegment(seg):
			reasons = append(reasons, fmt.Sprintf("segment %q contains illegal characters", seg))
		}
	}

	return reasons
}

// splitSegments returns the path's segments without the leading separator
func splitSegments(raw string) []string {
	trimmed := strings.TrimPrefix(raw, Separator)
	trimmed = strings.TrimSuffix(trimmed, Separator)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, Separator)
}

// isSafeSegment restricts segments to letters, digits, spaces and a small
// set of punctuation that titles legitimately carry
func isSafeSegment(seg string) bool {
	if strings.TrimSpace(seg) == "" {
		return false
	}
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			continue
		}
		switch r {
		case '-', '_', '.', ',', '(', ')', '&', '\'', '!', '?':
			continue
		}
		return false
	}
	return true
}

// String returns the full path
func (p TreePath) String() string {
	return p.value
}

// IsZero checks if the path is the zero value
func (p TreePath) IsZero() bool {
	return p.value == ""
}

// Equals checks if two paths are equal
func (p TreePath) Equals(other TreePath) bool {
	return p.value == other.value
}

// Segments returns the path segments from root to leaf
func (p TreePath) Segments() []string {
	return splitSegments(p.value)
}

// Title returns the final segment, which names the node at this path
func (p TreePath) Title() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the parent path and whether the parent is the root
func (p TreePath) Parent() (TreePath, bool) {
	segs := p.Segments()
	if len(segs) <= 1 {
		return TreePath{value: Separator}, true
	}
	parent := Separator + strings.Join(segs[:len(segs)-1], Separator)
	return TreePath{value: parent}, false
}

// IsRoot reports whether this path is the tree root
func (p TreePath) IsRoot() bool {
	return p.value == Separator
}

// Child returns the path extended with one more segment
func (p TreePath) Child(title string) (TreePath, error) {
	base := strings.TrimSuffix(p.value, Separator)
	return NewTreePath(base + Separator + title)
}

// Ancestors returns every strict ancestor path from the shallowest down,
// excluding the root. Used for bottom-up folder creation.
func (p TreePath) Ancestors() []TreePath {
	segs := p.Segments()
	if len(segs) <= 1 {
		return nil
	}
	ancestors := make([]TreePath, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		ancestors = append(ancestors, TreePath{
			value: Separator + strings.Join(segs[:i], Separator),
		})
	}
	return ancestors
}

// MarshalJSON implements json.Marshaler
func (p TreePath) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (p *TreePath) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return pkgerrors.NewValidationError("tree path must be a string")
	}
	parsed, err := NewTreePath(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
