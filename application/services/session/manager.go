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
	"brainflow-backend/pkg/observability"
)

// Manager tracks one live session per user and creates them on demand
type Manager struct {
	organizer *organizer.Service
	publisher ports.EventPublisher
	metrics   *observability.Metrics
	config    *config.DomainConfig
	timer     ports.Timer
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	baseCtx  context.Context
	closed   bool
}

// NewManager creates a session manager rooted at ctx; sessions inherit the
// context so shutting down the process bounds their in-flight runs
func NewManager(
	ctx context.Context,
	orgService *organizer.Service,
	publisher ports.EventPublisher,
	metrics *observability.Metrics,
	cfg *config.DomainConfig,
	timer ports.Timer,
	logger *zap.Logger,
) *Manager {
	if timer == nil {
		timer = scheduler.NewRealTimer()
	}
	return &Manager{
		organizer: orgService,
		publisher: publisher,
		metrics:   metrics,
		config:    cfg,
		timer:     timer,
		logger:    logger,
		sessions:  make(map[string]*Session),
		baseCtx:   ctx,
	}
}

// Get returns the user's session, creating one on first use
func (m *Manager) Get(userID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	if m.closed {
		return nil
	}
	s = NewSession(m.baseCtx, userID, m.organizer, m.publisher, m.metrics, m.config.Clone(), m.timer, m.logger)
	m.sessions[userID] = s
	m.logger.Info("Session created", zap.String("userID", userID))
	return s
}

// Peek returns the user's session without creating one
func (m *Manager) Peek(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// SetTuning applies new organization tuning to all live sessions
func (m *Manager) SetTuning(delay time.Duration, threshold, batchSize int) {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	for _, s := range live {
		s.SetTuning(delay, threshold, batchSize)
	}
	m.logger.Info("Organization tuning updated",
		zap.Duration("debounceDelay", delay),
		zap.Int("threshold", threshold),
		zap.Int("batchSize", batchSize),
	)
}

// Shutdown closes every session and waits for in-flight runs to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		for _, s := range live {
			s.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
