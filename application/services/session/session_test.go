package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/application/services/merge"
	"brainflow-backend/application/services/oracle"
	"brainflow-backend/application/services/organizer"
	"brainflow-backend/application/services/paths"
	"brainflow-backend/application/services/scheduler"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	"brainflow-backend/domain/events"
	"brainflow-backend/infrastructure/persistence/memory"
)

// handTimer lets tests fire the debounce by hand
type handTimer struct {
	mu        sync.Mutex
	scheduled []func()
}

func (h *handTimer) Schedule(delay time.Duration, fn func()) ports.CancelTimer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduled = append(h.scheduled, fn)
	return func() bool { return true }
}

func (h *handTimer) fireLatest(t *testing.T) {
	h.mu.Lock()
	require.NotEmpty(t, h.scheduled)
	fn := h.scheduled[len(h.scheduled)-1]
	h.mu.Unlock()
	fn()
}

func (h *handTimer) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scheduled)
}

// recordingPublisher captures published events; runs publish from their own
// goroutine, so access is locked
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, batch...)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.GetEventType())
	}
	return types
}

// stubOracle always proposes the same placement, or always fails
type stubOracle struct {
	response string
	err      error
}

func (o *stubOracle) Complete(ctx context.Context, prompt string, options ports.OracleCompletionOptions) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	return o.response, nil
}

func (o *stubOracle) IsAvailable() bool { return o.err == nil }

// gateOracle parks the completion call until the test releases it, so a
// test can interleave appends with an in-flight organization run
type gateOracle struct {
	response string
	entered  chan struct{}
	release  chan struct{}
}

func newGateOracle(response string) *gateOracle {
	return &gateOracle{
		response: response,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (o *gateOracle) Complete(ctx context.Context, prompt string, options ports.OracleCompletionOptions) (string, error) {
	close(o.entered)
	<-o.release
	return o.response, nil
}

func (o *gateOracle) IsAvailable() bool { return true }

const inboxDecision = `{
	"targetPath": "/Inbox",
	"createFile": true,
	"createFolder": false,
	"parentPath": "",
	"strategy": "append",
	"refinements": [],
	"reasoning": "inbox placement"
}`

type sessionFixture struct {
	session   *Session
	timer     *handTimer
	publisher *recordingPublisher
	store     ports.PageStore
}

func newSessionFixture(t *testing.T, store ports.PageStore, provider ports.OracleProvider) *sessionFixture {
	t.Helper()
	cfg := config.DefaultDomainConfig()
	cfg.OrganizeThreshold = 2
	cfg.BatchSize = 2

	logger := zap.NewNop()
	resolver := paths.NewResolver(store, cfg, logger)
	engine := merge.NewEngine(cfg, logger)
	client := oracle.NewClient(provider, cfg, logger)
	orgService := organizer.NewService(store, client, resolver, engine, nil, cfg, logger)

	timer := &handTimer{}
	publisher := &recordingPublisher{}
	s := NewSession(context.Background(), "user-1", orgService, publisher, nil, cfg, timer, logger)
	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})
	return &sessionFixture{session: s, timer: timer, publisher: publisher, store: store}
}

func appendLine(t *testing.T, s *Session, lineID, content string) *entities.LineEdit {
	t.Helper()
	id, err := valueobjects.NewLineID(lineID)
	require.NoError(t, err)
	edit, err := s.AppendEdit(id, "", content, valueobjects.EditTypeCreate, nil)
	require.NoError(t, err)
	return edit
}

func TestSession_AppendEdit_RecordsAndDebounces(t *testing.T) {
	fx := newSessionFixture(t, memory.NewTreeStore(), &stubOracle{response: inboxDecision})

	edit := appendLine(t, fx.session, "l1", "first thought of the day")

	assert.Equal(t, 1, edit.Version)
	assert.Equal(t, scheduler.StateDebouncing, fx.session.TriggerState())
	assert.Len(t, fx.session.Unorganized(), 1)
	assert.Equal(t, 1, fx.timer.count())
}

func TestSession_OrganizesWhenThresholdMet(t *testing.T) {
	store := memory.NewTreeStore()
	fx := newSessionFixture(t, store, &stubOracle{response: inboxDecision})

	appendLine(t, fx.session, "l1", "renew the car insurance")
	appendLine(t, fx.session, "l2", "call the garage about tires")
	fx.timer.fireLatest(t)
	fx.session.Wait()

	assert.Empty(t, fx.session.Unorganized())
	assert.Equal(t, scheduler.StateIdle, fx.session.TriggerState())

	path, err := valueobjects.NewTreePath("/Inbox")
	require.NoError(t, err)
	node, err := store.GetNodeByPath(context.Background(), "user-1", path)
	require.NoError(t, err)
	assert.Equal(t, "renew the car insurance\n\ncall the garage about tires", node.Content())

	assert.Equal(t, []string{"organization.needed", "organization.completed"}, fx.publisher.eventTypes())
}

func TestSession_BelowThresholdStaysUnorganized(t *testing.T) {
	fx := newSessionFixture(t, memory.NewTreeStore(), &stubOracle{response: inboxDecision})

	appendLine(t, fx.session, "l1", "a single stray note")
	fx.timer.fireLatest(t)
	fx.session.Wait()

	assert.Len(t, fx.session.Unorganized(), 1)
	assert.Equal(t, scheduler.StateIdle, fx.session.TriggerState())
	assert.Empty(t, fx.publisher.eventTypes())
}

func TestSession_FailedRunKeepsBatchUnorganized(t *testing.T) {
	store := &brokenStore{PageStore: memory.NewTreeStore()}
	fx := newSessionFixture(t, store, &stubOracle{response: inboxDecision})

	appendLine(t, fx.session, "l1", "renew the car insurance")
	appendLine(t, fx.session, "l2", "call the garage about tires")
	fx.timer.fireLatest(t)
	fx.session.Wait()

	// Nothing was marked; the same batch is retried wholesale next time.
	assert.Len(t, fx.session.Unorganized(), 2)
	assert.Equal(t, scheduler.StateIdle, fx.session.TriggerState())
	assert.Equal(t, []string{"organization.needed", "organization.failed"}, fx.publisher.eventTypes())
}

func TestSession_EditDuringRunStaysPending(t *testing.T) {
	store := memory.NewTreeStore()
	gate := newGateOracle(inboxDecision)
	fx := newSessionFixture(t, store, gate)

	appendLine(t, fx.session, "l1", "meeting notes for the offsite")
	appendLine(t, fx.session, "l2", "book the venue")
	fx.timer.fireLatest(t)
	<-gate.entered

	// The run is parked inside the oracle call; the user keeps typing on a
	// line that is part of the in-flight batch
	appendLine(t, fx.session, "l1", "meeting notes for the offsite and the follow-up owners")

	close(gate.release)
	fx.session.Wait()

	// Only the snapshot the run actually persisted may be committed; the
	// rewritten line keeps its newer content pending for the next batch.
	pending := fx.session.Unorganized()
	require.Len(t, pending, 1)
	assert.Equal(t, "l1", pending[0].LineID.String())
	assert.Equal(t, 1, pending[0].Version)
	assert.Equal(t, "meeting notes for the offsite and the follow-up owners", pending[0].Content)

	path, err := valueobjects.NewTreePath("/Inbox")
	require.NoError(t, err)
	node, err := store.GetNodeByPath(context.Background(), "user-1", path)
	require.NoError(t, err)
	assert.Equal(t, "meeting notes for the offsite\n\nbook the venue", node.Content())
}

func TestSession_DeleteEditFlushesWithoutDebounce(t *testing.T) {
	fx := newSessionFixture(t, memory.NewTreeStore(), &stubOracle{response: inboxDecision})
	appendLine(t, fx.session, "l1", "buy milk on the way home")
	appendLine(t, fx.session, "l2", "temporary scratch line")

	id, err := valueobjects.NewLineID("l2")
	require.NoError(t, err)
	_, err = fx.session.AppendEdit(id, "", "", valueobjects.EditTypeDelete, nil)
	require.NoError(t, err)
	fx.session.Wait()

	// The delete bypassed the debounce entirely: only the first two edits
	// ever scheduled a timer.
	assert.Equal(t, 2, fx.timer.count())
	assert.Empty(t, fx.session.Unorganized())
}

func TestSession_BatchSizeBoundsOneRun(t *testing.T) {
	fx := newSessionFixture(t, memory.NewTreeStore(), &stubOracle{response: inboxDecision})

	appendLine(t, fx.session, "l1", "oldest pending line")
	appendLine(t, fx.session, "l2", "middle pending line")
	appendLine(t, fx.session, "l3", "newest pending line")
	fx.session.Flush()
	fx.session.Wait()

	// Two oldest lines went out; the third waits for the next trigger.
	remaining := fx.session.Unorganized()
	require.Len(t, remaining, 1)
	assert.Equal(t, "newest pending line", remaining[0].Content)
}

func TestSession_LineHistoryTracksVersions(t *testing.T) {
	fx := newSessionFixture(t, memory.NewTreeStore(), &stubOracle{response: inboxDecision})
	id, err := valueobjects.NewLineID("l1")
	require.NoError(t, err)

	appendLine(t, fx.session, "l1", "first draft")
	_, err = fx.session.AppendEdit(id, "", "second draft", valueobjects.EditTypeUpdate, nil)
	require.NoError(t, err)

	history := fx.session.LineHistory(id)
	require.Len(t, history, 1)
	assert.Equal(t, "second draft", history[0].Content)
	assert.Len(t, fx.session.Unorganized(), 1)
}

func TestSession_CloseCancelsPendingDebounce(t *testing.T) {
	fx := newSessionFixture(t, memory.NewTreeStore(), &stubOracle{response: inboxDecision})

	appendLine(t, fx.session, "l1", "renew the car insurance")
	appendLine(t, fx.session, "l2", "call the garage about tires")
	fx.session.Close()
	fx.timer.fireLatest(t)
	fx.session.Wait()

	assert.Len(t, fx.session.Unorganized(), 2)
	assert.Empty(t, fx.publisher.eventTypes())
}

// brokenStore fails every write so runs abort at the persistence step
type brokenStore struct {
	ports.PageStore
}

func (b *brokenStore) CreateNode(ctx context.Context, node *entities.TreeNode) (valueobjects.NodeID, error) {
	return valueobjects.NodeID{}, errors.New("disk full")
}

func (b *brokenStore) UpdateNode(ctx context.Context, node *entities.TreeNode) error {
	return errors.New("disk full")
}

func TestManager_GetCreatesAndReusesSessions(t *testing.T) {
	store := memory.NewTreeStore()
	cfg := config.DefaultDomainConfig()
	logger := zap.NewNop()
	resolver := paths.NewResolver(store, cfg, logger)
	engine := merge.NewEngine(cfg, logger)
	client := oracle.NewClient(&stubOracle{response: inboxDecision}, cfg, logger)
	orgService := organizer.NewService(store, client, resolver, engine, nil, cfg, logger)
	mgr := NewManager(context.Background(), orgService, &recordingPublisher{}, nil, cfg, &handTimer{}, logger)

	first := mgr.Get("user-1")
	second := mgr.Get("user-1")
	other := mgr.Get("user-2")

	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.NotSame(t, first, other)

	_, ok := mgr.Peek("user-3")
	assert.False(t, ok)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(shutdownCtx))
	assert.Nil(t, mgr.Get("user-3"))
}
