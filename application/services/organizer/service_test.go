package organizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/application/services/merge"
	"brainflow-backend/application/services/oracle"
	"brainflow-backend/application/services/paths"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	"brainflow-backend/infrastructure/persistence/memory"
	pkgerrors "brainflow-backend/pkg/errors"
)

const orgTestUser = "user-1"

// scriptedProvider returns a canned JSON decision, or fails every call
type scriptedProvider struct {
	response string
	err      error
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string, options ports.OracleCompletionOptions) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func (p *scriptedProvider) IsAvailable() bool { return p.err == nil }

func newTestService(t *testing.T, store ports.PageStore, provider ports.OracleProvider) *Service {
	t.Helper()
	cfg := config.DefaultDomainConfig()
	logger := zap.NewNop()
	client := oracle.NewClient(provider, cfg, logger)
	resolver := paths.NewResolver(store, cfg, logger)
	engine := merge.NewEngine(cfg, logger)
	return NewService(store, client, resolver, engine, nil, cfg, logger)
}

func orgEdit(t *testing.T, lineID, content string) *entities.LineEdit {
	t.Helper()
	id, err := valueobjects.NewLineID(lineID)
	require.NoError(t, err)
	return entities.NewLineEdit(id, "", content, valueobjects.EditTypeCreate, 1, entities.NewEditMetadata(content, nil))
}

func seedOrgFile(t *testing.T, store ports.PageStore, path, content string) *entities.TreeNode {
	t.Helper()
	p, err := valueobjects.NewTreePath(path)
	require.NoError(t, err)
	node, err := entities.NewFileNode(orgTestUser, p, valueobjects.NodeID{}, content)
	require.NoError(t, err)
	_, err = store.CreateNode(context.Background(), node)
	require.NoError(t, err)
	return node
}

func decisionJSON(targetPath string, createFile, createFolder bool, strategy, refinements string) string {
	return fmt.Sprintf(`{
		"targetPath": %q,
		"createFile": %t,
		"createFolder": %t,
		"parentPath": "",
		"strategy": %q,
		"refinements": [%s],
		"reasoning": "test placement"
	}`, targetPath, createFile, createFolder, strategy, refinements)
}

func nodeContentAt(t *testing.T, store ports.PageStore, path string) string {
	t.Helper()
	p, err := valueobjects.NewTreePath(path)
	require.NoError(t, err)
	node, err := store.GetNodeByPath(context.Background(), orgTestUser, p)
	require.NoError(t, err)
	return node.Content()
}

func TestService_OrganizeBatch_CreatesNodeFromDecision(t *testing.T) {
	store := memory.NewTreeStore()
	refinement := `{"lineId": "l1", "originalContent": "review quarterly budget numbers", "refinedContent": "Review quarterly budget numbers."}`
	provider := &scriptedProvider{response: decisionJSON("/Inbox", true, false, "append", refinement)}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "review quarterly budget numbers")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.UsedFallback)
	require.Len(t, result.NewNodes, 1)
	assert.Equal(t, []string{"/Inbox"}, result.TouchedPaths)
	require.Len(t, result.ProcessedLines, 1)
	assert.Equal(t, "l1", result.ProcessedLines[0].LineID)
	assert.Equal(t, 1, result.ProcessedLines[0].Version)
	assert.Equal(t, "Review quarterly budget numbers.", nodeContentAt(t, store, "/Inbox"))
}

func TestService_OrganizeBatch_MergesIntoExistingNode(t *testing.T) {
	store := memory.NewTreeStore()
	seedOrgFile(t, store, "/Work", "standup at nine")
	provider := &scriptedProvider{response: decisionJSON("/Work", false, false, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "prepare slides for review")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	assert.Empty(t, result.NewNodes)
	require.Len(t, result.UpdatedNodes, 1)
	assert.Equal(t, "standup at nine\n\nprepare slides for review", nodeContentAt(t, store, "/Work"))
}

func TestService_OrganizeBatch_CreatesRequestedFolders(t *testing.T) {
	store := memory.NewTreeStore()
	provider := &scriptedProvider{response: decisionJSON("/Projects/Go/Ideas", true, true, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "generics for the store layer")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	// Two folders plus the file itself
	assert.Len(t, result.NewNodes, 3)
	assert.ElementsMatch(t, []string{"/Projects", "/Projects/Go", "/Projects/Go/Ideas"}, result.TouchedPaths)

	folderPath, err := valueobjects.NewTreePath("/Projects/Go")
	require.NoError(t, err)
	folder, err := store.GetNodeByPath(context.Background(), orgTestUser, folderPath)
	require.NoError(t, err)
	assert.True(t, folder.IsFolder())

	filePath, err := valueobjects.NewTreePath("/Projects/Go/Ideas")
	require.NoError(t, err)
	file, err := store.GetNodeByPath(context.Background(), orgTestUser, filePath)
	require.NoError(t, err)
	assert.Equal(t, folder.ID(), file.ParentID())
}

func TestService_OrganizeBatch_IllegalPathGoesToCatchAll(t *testing.T) {
	store := memory.NewTreeStore()
	provider := &scriptedProvider{response: decisionJSON("/bad//path", true, false, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "orphaned thought")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "illegal oracle path")
	assert.Equal(t, []string{"/Unsorted"}, result.TouchedPaths)
	assert.Equal(t, "orphaned thought", nodeContentAt(t, store, "/Unsorted"))
}

func TestService_OrganizeBatch_MissingTargetWithoutCreateGoesToCatchAll(t *testing.T) {
	store := memory.NewTreeStore()
	provider := &scriptedProvider{response: decisionJSON("/Ghost", false, false, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "orphaned thought")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "file creation was not requested")
	assert.Equal(t, "orphaned thought", nodeContentAt(t, store, "/Unsorted"))
}

func TestService_OrganizeBatch_ParentFileGoesToCatchAll(t *testing.T) {
	store := memory.NewTreeStore()
	seedOrgFile(t, store, "/Notes", "existing note")
	provider := &scriptedProvider{response: decisionJSON("/Notes/Sub", true, false, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "misplaced thought")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], `parent "/Notes" exists as a file`)
	assert.Equal(t, []string{"/Unsorted"}, result.TouchedPaths)
	assert.Equal(t, "misplaced thought", nodeContentAt(t, store, "/Unsorted"))
	assert.Equal(t, "existing note", nodeContentAt(t, store, "/Notes"))
}

func TestService_OrganizeBatch_FolderBlockedByFileGoesToCatchAll(t *testing.T) {
	store := memory.NewTreeStore()
	seedOrgFile(t, store, "/Notes", "existing note")
	provider := &scriptedProvider{response: decisionJSON("/Notes/Sub/Item", true, true, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "misplaced thought")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], `"/Notes" exists as a file`)
	assert.Equal(t, []string{"/Unsorted"}, result.TouchedPaths)
	assert.Equal(t, "misplaced thought", nodeContentAt(t, store, "/Unsorted"))
}

func TestService_OrganizeBatch_RejectedRefinementKeepsOriginal(t *testing.T) {
	store := memory.NewTreeStore()
	hallucination := `{"lineId": "l1", "originalContent": "remember dentist appointment tuesday", "refinedContent": "The stock market closed higher today."}`
	provider := &scriptedProvider{response: decisionJSON("/Inbox", true, false, "append", hallucination)}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "remember dentist appointment tuesday")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, "l1", result.Rejections[0].LineID)
	assert.Equal(t, "remember dentist appointment tuesday", nodeContentAt(t, store, "/Inbox"))
}

func TestService_OrganizeBatch_OracleFailureFallsBackToOverlap(t *testing.T) {
	store := memory.NewTreeStore()
	seedOrgFile(t, store, "/Groceries", "milk eggs bread shopping checklist")
	provider := &scriptedProvider{err: errors.New("connection refused")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{
		orgEdit(t, "l1", "buy milk and eggs tomorrow"),
		orgEdit(t, "l2", "zebra quantum xylophone"),
	}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "oracle unavailable")

	// The overlapping edit lands on the grocery list, the stray one on the
	// catch-all, and neither is refined.
	assert.Contains(t, nodeContentAt(t, store, "/Groceries"), "buy milk and eggs tomorrow")
	assert.Equal(t, "zebra quantum xylophone", nodeContentAt(t, store, "/Unsorted"))
	assert.ElementsMatch(t, []string{"/Groceries", "/Unsorted"}, result.TouchedPaths)
}

// failingStore aborts every node creation to exercise the persistence path
type failingStore struct {
	ports.PageStore
}

func (f *failingStore) CreateNode(ctx context.Context, node *entities.TreeNode) (valueobjects.NodeID, error) {
	return valueobjects.NodeID{}, errors.New("disk full")
}

func TestService_OrganizeBatch_StoreFailureAbortsBatch(t *testing.T) {
	store := &failingStore{PageStore: memory.NewTreeStore()}
	provider := &scriptedProvider{response: decisionJSON("/Inbox", true, false, "append", "")}
	svc := newTestService(t, store, provider)
	batch := []*entities.LineEdit{orgEdit(t, "l1", "this write will not land")}

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, batch)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsPersistence(err))
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, result.TouchedPaths)
}

func TestService_OrganizeBatch_EmptyBatchRejected(t *testing.T) {
	svc := newTestService(t, memory.NewTreeStore(), &scriptedProvider{})

	result, err := svc.OrganizeBatch(context.Background(), orgTestUser, nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, StateFailed, result.State)
}
