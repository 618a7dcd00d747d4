// Package session owns the per-user editing session. Each session is the
// single writer of its BrainState: every mutation goes through the session,
// which serializes appends, organization commits, and teardown so the
// version-sequencing invariant of the line map always holds.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/application/services/organizer"
	"brainflow-backend/application/services/scheduler"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/aggregates"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	"brainflow-backend/domain/events"
	"brainflow-backend/pkg/observability"
)

// organizeTimeout bounds one run's oracle call plus store writes
const organizeTimeout = 90 * time.Second

// Session coordinates one user's edit log and organization runs
type Session struct {
	userID    string
	organizer *organizer.Service
	publisher ports.EventPublisher
	metrics   *observability.Metrics
	config    *config.DomainConfig
	logger    *zap.Logger

	mu    sync.Mutex
	brain *aggregates.BrainState

	trigger *scheduler.Trigger
	baseCtx context.Context
	runs    sync.WaitGroup
}

// NewSession creates a session and its trigger scheduler
func NewSession(
	ctx context.Context,
	userID string,
	orgService *organizer.Service,
	publisher ports.EventPublisher,
	metrics *observability.Metrics,
	cfg *config.DomainConfig,
	timer ports.Timer,
	logger *zap.Logger,
) *Session {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	s := &Session{
		userID:    userID,
		organizer: orgService,
		publisher: publisher,
		metrics:   metrics,
		config:    cfg,
		logger:    logger.With(zap.String("userID", userID)),
		brain:     aggregates.NewBrainState(userID, cfg),
		baseCtx:   ctx,
	}
	s.trigger = scheduler.NewTrigger(
		scheduler.Config{
			DebounceDelay: cfg.DebounceDelay,
			Threshold:     cfg.OrganizeThreshold,
		},
		timer,
		s.pendingCount,
		s.startRun,
		s.logger,
	)
	return s
}

// UserID returns the session's owner
func (s *Session) UserID() string {
	return s.userID
}

// AppendEdit records an edit event and restarts the debounce window.
// Delete edits flush immediately: an emptied paragraph is a natural batch
// boundary.
func (s *Session) AppendEdit(
	lineID valueobjects.LineID,
	pageID string,
	content string,
	editType valueobjects.EditType,
	position *int,
) (*entities.LineEdit, error) {
	s.mu.Lock()
	edit, changed, err := s.brain.AppendEdit(lineID, pageID, content, editType, position)
	pending := s.brain.UnorganizedCount()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if changed {
		if s.metrics != nil {
			s.metrics.EditsTotal.Inc()
			s.metrics.PendingLines.Set(float64(pending))
		}
		if editType == valueobjects.EditTypeDelete {
			s.trigger.Flush()
		} else {
			s.trigger.NoteEdit()
		}
	}
	return edit, nil
}

// Flush evaluates batch readiness immediately, bypassing the debounce
func (s *Session) Flush() {
	s.trigger.Flush()
}

// Unorganized returns a snapshot of the lines awaiting organization
func (s *Session) Unorganized() []*entities.LineEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brain.UnorganizedLatest()
}

// LineHistory returns a snapshot of one line's complete version history
func (s *Session) LineHistory(lineID valueobjects.LineID) []*entities.LineEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brain.LineHistory(lineID)
}

// TriggerState exposes the scheduler state for inspection
func (s *Session) TriggerState() scheduler.State {
	return s.trigger.State()
}

// SetTuning adjusts organization thresholds while the session is live
func (s *Session) SetTuning(delay time.Duration, threshold, batchSize int) {
	s.mu.Lock()
	s.config.BatchSize = batchSize
	s.mu.Unlock()
	s.trigger.SetTuning(delay, threshold)
}

// Close cancels any pending debounce without side effects. An in-flight
// organization run completes rather than being torn down mid-write.
func (s *Session) Close() {
	s.trigger.Close()
}

// Wait blocks until any in-flight organization run has finished
func (s *Session) Wait() {
	s.runs.Wait()
}

func (s *Session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brain.UnorganizedCount()
}

// startRun launches one organization run. The trigger guarantees at most
// one run is in flight; the run calls RunFinished when done, which performs
// the single deferred readiness re-check.
func (s *Session) startRun() {
	s.mu.Lock()
	batch := s.brain.NextBatch(s.config.BatchSize)
	s.mu.Unlock()

	if len(batch) == 0 {
		s.trigger.RunFinished()
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.trigger.RunFinished()
		s.run(batch)
	}()
}

// run executes one organize-and-commit cycle off the session's hot path
func (s *Session) run(batch []*entities.LineEdit) {
	ctx, cancel := context.WithTimeout(s.baseCtx, organizeTimeout)
	defer cancel()

	refs := make([]events.LineVersionRef, 0, len(batch))
	for _, edit := range batch {
		refs = append(refs, events.LineVersionRef{
			LineID:   edit.LineID.String(),
			Version:  edit.Version,
			Revision: edit.Revision,
		})
	}
	s.publish(ctx, events.NewOrganizationNeeded(s.userID, refs, time.Now()))

	result, err := s.organizer.OrganizeBatch(ctx, s.userID, batch)
	if err != nil {
		// The batch stays unorganized and is retried wholesale on the next
		// trigger; nothing was marked, so no edit can be lost.
		s.logger.Error("Organization run failed", zap.Error(err))
		s.publish(ctx, events.NewOrganizationFailed(s.userID, err.Error(), time.Now()))
		return
	}

	// Commit point: only after successful persistence are the batch's line
	// versions marked organized. The revision check skips any line rewritten
	// while the run was in flight, so its newer content stays pending.
	s.mu.Lock()
	for _, ref := range result.ProcessedLines {
		lineID, idErr := valueobjects.NewLineID(ref.LineID)
		if idErr != nil {
			continue
		}
		s.brain.MarkOrganized(lineID, ref.Version, ref.Revision)
	}
	pending := s.brain.UnorganizedCount()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PendingLines.Set(float64(pending))
	}

	s.publish(ctx, events.NewOrganizationCompleted(
		s.userID, result.TouchedPaths, result.ProcessedLines, result.UsedFallback, time.Now(),
	))
}

func (s *Session) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err),
		)
	}
}
