package valueobjects

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathString_LegalPaths(t *testing.T) {
	for _, raw := range []string{
		"/Work",
		"/Work/Notes",
		"/Projects/Q3 Planning/Drafts",
		"/Reading (2026)",
		"/Dad's Recipes",
		"/Why not?",
	} {
		assert.Empty(t, ValidatePathString(raw), "expected %q to be legal", raw)
	}
}

func TestValidatePathString_IllegalPaths(t *testing.T) {
	tests := []struct {
		raw    string
		reason string
	}{
		{"", "path is empty"},
		{"Work/Notes", "must start with /"},
		{"/Work//Notes", "doubled separators"},
		{"/Work/Notes/", "must not end with /"},
		{"/../etc", "traversal segment"},
		{"/Work/..", "traversal segment"},
		{"/.", "traversal segment"},
		{"/Work/<script>", "illegal characters"},
		{"/a/b/c/d/e/f/g/h/i/j/k", "maximum depth"},
		{"/" + strings.Repeat("x", 101), "exceeds 100 characters"},
	}

	for _, tt := range tests {
		reasons := ValidatePathString(tt.raw)
		require.NotEmpty(t, reasons, "expected %q to be illegal", tt.raw)
		assert.Contains(t, strings.Join(reasons, "; "), tt.reason, "path %q", tt.raw)
	}
}

func TestNewTreePath_RejectsIllegal(t *testing.T) {
	_, err := NewTreePath("/a//b")
	assert.Error(t, err)
}

func TestTreePath_ParentAndTitle(t *testing.T) {
	path, err := NewTreePath("/Work/Notes/Standup")
	require.NoError(t, err)

	assert.Equal(t, "Standup", path.Title())

	parent, isRoot := path.Parent()
	assert.False(t, isRoot)
	assert.Equal(t, "/Work/Notes", parent.String())

	top, err := NewTreePath("/Work")
	require.NoError(t, err)
	root, isRoot := top.Parent()
	assert.True(t, isRoot)
	assert.True(t, root.IsRoot())
}

func TestTreePath_Ancestors(t *testing.T) {
	path, err := NewTreePath("/a/b/c")
	require.NoError(t, err)

	ancestors := path.Ancestors()

	require.Len(t, ancestors, 2)
	assert.Equal(t, "/a", ancestors[0].String())
	assert.Equal(t, "/a/b", ancestors[1].String())
}

func TestTreePath_Child(t *testing.T) {
	path, err := NewTreePath("/Work")
	require.NoError(t, err)

	child, err := path.Child("Notes")
	require.NoError(t, err)
	assert.Equal(t, "/Work/Notes", child.String())

	_, err = path.Child("bad/segment")
	assert.Error(t, err)
}

func TestTreePath_JSONRoundTrip(t *testing.T) {
	path, err := NewTreePath("/Work/Notes")
	require.NoError(t, err)

	data, err := path.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"/Work/Notes"`, string(data))

	var decoded TreePath
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, path.Equals(decoded))

	assert.Error(t, decoded.UnmarshalJSON([]byte(`"../x"`)))
}
