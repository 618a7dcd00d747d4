package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

func mustLineID(t *testing.T, raw string) valueobjects.LineID {
	t.Helper()
	id, err := valueobjects.NewLineID(raw)
	require.NoError(t, err)
	return id
}

func TestBrainState_AppendEdit_NewLine(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	edit, changed, err := brain.AppendEdit(lineID, "page-1", "first thought", valueobjects.EditTypeCreate, nil)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, edit.Version)
	assert.False(t, edit.Organized)
	assert.Equal(t, 1, brain.UnorganizedCount())
}

func TestBrainState_AppendEdit_CollapsesUnorganizedLatest(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "draft", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	edit, changed, err := brain.AppendEdit(lineID, "page-1", "draft, extended", valueobjects.EditTypeUpdate, nil)
	require.NoError(t, err)

	// Rapid successive edits collapse into the same pending version
	assert.True(t, changed)
	assert.Equal(t, 1, edit.Version)
	assert.Equal(t, "draft, extended", edit.Content)
	assert.Len(t, brain.LineHistory(lineID), 1)
}

func TestBrainState_AppendEdit_NewVersionAfterOrganized(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	first, _, err := brain.AppendEdit(lineID, "page-1", "original", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	brain.MarkOrganized(lineID, first.Version, first.Revision)

	second, changed, err := brain.AppendEdit(lineID, "page-1", "revised", valueobjects.EditTypeUpdate, nil)
	require.NoError(t, err)

	assert.True(t, changed)
	assert.Equal(t, 2, second.Version)

	history := brain.LineHistory(lineID)
	require.Len(t, history, 2)
	assert.Equal(t, "original", history[0].Content)
	assert.True(t, history[0].Organized)
	assert.Equal(t, "revised", history[1].Content)
	assert.False(t, history[1].Organized)
}

func TestBrainState_AppendEdit_SuppressesExactDuplicate(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "same text", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	edit, changed, err := brain.AppendEdit(lineID, "page-1", "same text", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)

	assert.False(t, changed)
	assert.Equal(t, 1, edit.Version)
	assert.Len(t, brain.LineHistory(lineID), 1)
}

func TestBrainState_AppendEdit_VersionSequence(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	for i := 0; i < 4; i++ {
		edit, _, err := brain.AppendEdit(lineID, "page-1", "rev", valueobjects.EditTypeUpdate, nil)
		require.NoError(t, err)
		brain.MarkOrganized(lineID, edit.Version, edit.Revision)
		// vary content so the next append is not a duplicate
		next, _, err := brain.AppendEdit(lineID, "page-1", "rev+", valueobjects.EditTypeUpdate, nil)
		require.NoError(t, err)
		brain.MarkOrganized(lineID, next.Version, next.Revision)
	}

	history := brain.LineHistory(lineID)
	for i, edit := range history {
		assert.Equal(t, i+1, edit.Version)
	}
}

func TestBrainState_AppendEdit_RejectsEmptyContent(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "", valueobjects.EditTypeCreate, nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestBrainState_AppendEdit_AllowsEmptyContentForDelete(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "text", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	edit, changed, err := brain.AppendEdit(lineID, "page-1", "", valueobjects.EditTypeDelete, nil)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, valueobjects.EditTypeDelete, edit.EditType)
}

func TestBrainState_UnorganizedLatest_SnapshotsAreIsolated(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "before", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)

	snapshot := brain.UnorganizedLatest()
	require.Len(t, snapshot, 1)

	// A collapse after snapshotting must not mutate the snapshot
	_, _, err = brain.AppendEdit(lineID, "page-1", "after", valueobjects.EditTypeUpdate, nil)
	require.NoError(t, err)

	assert.Equal(t, "before", snapshot[0].Content)
}

func TestBrainState_NextBatch_OldestFirstAndBounded(t *testing.T) {
	brain := NewBrainState("user1", nil)

	for _, raw := range []string{"a", "b", "c", "d"} {
		_, _, err := brain.AppendEdit(mustLineID(t, raw), "page-1", "content "+raw, valueobjects.EditTypeCreate, nil)
		require.NoError(t, err)
	}

	batch := brain.NextBatch(2)

	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].LineID.String())
	assert.Equal(t, "b", batch[1].LineID.String())
}

func TestBrainState_MarkOrganized_MatchingVersionOnly(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	first, _, err := brain.AppendEdit(lineID, "page-1", "v1", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	brain.MarkOrganized(lineID, first.Version, first.Revision)
	second, _, err := brain.AppendEdit(lineID, "page-1", "v2", valueobjects.EditTypeUpdate, nil)
	require.NoError(t, err)

	// Marking version 1 again must not touch the newer pending version
	brain.MarkOrganized(lineID, first.Version, first.Revision)

	history := brain.LineHistory(lineID)
	require.Len(t, history, 2)
	assert.True(t, history[0].Organized)
	assert.False(t, history[1].Organized)
	assert.Equal(t, second.Version, history[1].Version)
	assert.Equal(t, 1, brain.UnorganizedCount())
}

func TestBrainState_MarkOrganized_UnknownVersionIsNoop(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "text", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)

	brain.MarkOrganized(lineID, 99, 0)

	assert.Equal(t, 1, brain.UnorganizedCount())
}

func TestBrainState_MarkOrganized_SkipsRewrittenVersion(t *testing.T) {
	brain := NewBrainState("user1", nil)
	lineID := mustLineID(t, "line-1")

	_, _, err := brain.AppendEdit(lineID, "page-1", "first thought", valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	snapshot := brain.NextBatch(1)
	require.Len(t, snapshot, 1)

	// The line keeps collapsing edits while the snapshot is being organized
	_, _, err = brain.AppendEdit(lineID, "page-1", "first thought, sharpened", valueobjects.EditTypeUpdate, nil)
	require.NoError(t, err)

	brain.MarkOrganized(lineID, snapshot[0].Version, snapshot[0].Revision)

	pending := brain.UnorganizedLatest()
	require.Len(t, pending, 1)
	assert.Equal(t, "first thought, sharpened", pending[0].Content)
	assert.Equal(t, snapshot[0].Version, pending[0].Version)
}

func TestBrainState_DevelopmentConfig_AllowsEmptyContent(t *testing.T) {
	brain := NewBrainState("user1", config.DevelopmentDomainConfig())
	lineID := mustLineID(t, "line-1")

	_, changed, err := brain.AppendEdit(lineID, "page-1", "", valueobjects.EditTypeCreate, nil)

	require.NoError(t, err)
	assert.True(t, changed)
}
