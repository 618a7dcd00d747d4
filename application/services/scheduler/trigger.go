// Package scheduler decides when a session's pending edits become a batch.
// It owns the debounce timer and the Idle/Debouncing/Ready/Organizing state
// machine; the session actor drives it and guarantees single-threaded access.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
)

// State is the trigger scheduler's lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateReady      State = "ready"
	StateOrganizing State = "organizing"
)

// realTimer schedules callbacks on the wall clock
type realTimer struct{}

// NewRealTimer returns a Timer backed by time.AfterFunc
func NewRealTimer() ports.Timer {
	return realTimer{}
}

func (realTimer) Schedule(delay time.Duration, fn func()) ports.CancelTimer {
	t := time.AfterFunc(delay, fn)
	return t.Stop
}

// Trigger debounces edit activity and fires an organization run when enough
// unorganized edits exist. Only one run may be in flight; triggers arriving
// during a run are coalesced into a single readiness re-check afterwards.
type Trigger struct {
	mu sync.Mutex

	state        State
	pending      bool
	cancelTimer  ports.CancelTimer
	timerGen     uint64
	closed       bool

	timer         ports.Timer
	debounceDelay time.Duration
	threshold     int

	// pendingCount reports how many lines currently await organization
	pendingCount func() int
	// fire starts an organization run; it must eventually call RunFinished
	fire func()

	logger *zap.Logger
}

// Config tunes the trigger
type Config struct {
	DebounceDelay time.Duration
	Threshold     int
}

// NewTrigger creates a trigger scheduler
func NewTrigger(cfg Config, timer ports.Timer, pendingCount func() int, fire func(), logger *zap.Logger) *Trigger {
	if timer == nil {
		timer = NewRealTimer()
	}
	return &Trigger{
		state:         StateIdle,
		timer:         timer,
		debounceDelay: cfg.DebounceDelay,
		threshold:     cfg.Threshold,
		pendingCount:  pendingCount,
		fire:          fire,
		logger:        logger,
	}
}

// State returns the current scheduler state
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetTuning adjusts the debounce delay and threshold at runtime
func (t *Trigger) SetTuning(delay time.Duration, threshold int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debounceDelay = delay
	t.threshold = threshold
}

// NoteEdit restarts the debounce timer. Readiness is only evaluated after
// the editor has gone quiet, never mid-keystroke.
func (t *Trigger) NoteEdit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if t.state == StateOrganizing {
		t.pending = true
		return
	}

	t.stopTimerLocked()
	t.state = StateDebouncing
	t.timerGen++
	gen := t.timerGen
	t.cancelTimer = t.timer.Schedule(t.debounceDelay, func() {
		t.timerFired(gen)
	})
}

// Flush evaluates readiness immediately, bypassing the debounce. Used when
// a paragraph completes or the editor signals an explicit flush.
func (t *Trigger) Flush() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.state == StateOrganizing {
		t.pending = true
		t.mu.Unlock()
		return
	}
	t.stopTimerLocked()
	t.mu.Unlock()

	t.evaluate()
}

// timerFired handles a debounce timer expiry. Stale timers from a
// superseded debounce window are ignored.
func (t *Trigger) timerFired(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.timerGen || t.state != StateDebouncing {
		t.mu.Unlock()
		return
	}
	t.cancelTimer = nil
	t.mu.Unlock()

	t.evaluate()
}

// evaluate checks the threshold and, when met, transitions to Organizing
// and fires exactly one run
func (t *Trigger) evaluate() {
	count := t.pendingCount()

	t.mu.Lock()
	if t.closed || t.state == StateOrganizing {
		t.pending = t.state == StateOrganizing
		t.mu.Unlock()
		return
	}
	if count < t.threshold {
		t.state = StateIdle
		t.mu.Unlock()
		return
	}
	// Ready is transient: the run starts immediately and Organizing is the
	// mutual-exclusion state.
	t.state = StateOrganizing
	t.mu.Unlock()

	t.logger.Debug("Organization triggered", zap.Int("pendingCount", count))
	t.fire()
}

// RunFinished must be called when an organization run completes, whether it
// succeeded or failed. A trigger deferred during the run causes a single
// fresh readiness check.
func (t *Trigger) RunFinished() {
	t.mu.Lock()
	if t.state != StateOrganizing {
		t.mu.Unlock()
		return
	}
	t.state = StateIdle
	rerun := t.pending && !t.closed
	t.pending = false
	t.mu.Unlock()

	if rerun {
		t.evaluate()
	}
}

// Close cancels any pending debounce timer without side effects. An
// in-flight run is allowed to complete; it is never aborted mid-write.
func (t *Trigger) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = false
	t.stopTimerLocked()
	if t.state != StateOrganizing {
		t.state = StateIdle
	}
}

func (t *Trigger) stopTimerLocked() {
	if t.cancelTimer != nil {
		t.cancelTimer()
		t.cancelTimer = nil
	}
	t.timerGen++
}
