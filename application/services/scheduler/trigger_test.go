package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brainflow-backend/application/ports"
)

// fakeTimer lets tests fire or drop scheduled callbacks by hand
type fakeTimer struct {
	scheduled []*fakeTimerEntry
}

type fakeTimerEntry struct {
	delay    time.Duration
	fn       func()
	canceled bool
}

func (f *fakeTimer) Schedule(delay time.Duration, fn func()) ports.CancelTimer {
	entry := &fakeTimerEntry{delay: delay, fn: fn}
	f.scheduled = append(f.scheduled, entry)
	return func() bool {
		if entry.canceled {
			return false
		}
		entry.canceled = true
		return true
	}
}

// fireLatest runs the most recently scheduled callback if still live
func (f *fakeTimer) fireLatest() {
	if len(f.scheduled) == 0 {
		return
	}
	entry := f.scheduled[len(f.scheduled)-1]
	if !entry.canceled {
		entry.fn()
	}
}

func (f *fakeTimer) liveCount() int {
	count := 0
	for _, entry := range f.scheduled {
		if !entry.canceled {
			count++
		}
	}
	return count
}

type triggerHarness struct {
	trigger *Trigger
	timer   *fakeTimer
	pending int
	fires   int
}

func newTriggerHarness(threshold int) *triggerHarness {
	h := &triggerHarness{timer: &fakeTimer{}}
	h.trigger = NewTrigger(
		Config{DebounceDelay: 2 * time.Second, Threshold: threshold},
		h.timer,
		func() int { return h.pending },
		func() { h.fires++ },
		zap.NewNop(),
	)
	return h
}

func TestTrigger_NoteEdit_RestartsDebounce(t *testing.T) {
	h := newTriggerHarness(5)

	h.trigger.NoteEdit()
	h.trigger.NoteEdit()
	h.trigger.NoteEdit()

	// Each edit supersedes the previous window; only one timer stays live
	assert.Equal(t, StateDebouncing, h.trigger.State())
	assert.Equal(t, 1, h.timer.liveCount())
}

func TestTrigger_BelowThreshold_ReturnsToIdle(t *testing.T) {
	h := newTriggerHarness(5)
	h.pending = 3

	h.trigger.NoteEdit()
	h.timer.fireLatest()

	assert.Equal(t, StateIdle, h.trigger.State())
	assert.Equal(t, 0, h.fires)
}

func TestTrigger_ThresholdMet_FiresOnce(t *testing.T) {
	h := newTriggerHarness(5)
	h.pending = 5

	h.trigger.NoteEdit()
	h.timer.fireLatest()

	assert.Equal(t, StateOrganizing, h.trigger.State())
	assert.Equal(t, 1, h.fires)
}

func TestTrigger_StaleTimerIsIgnored(t *testing.T) {
	h := newTriggerHarness(1)
	h.pending = 1

	h.trigger.NoteEdit()
	stale := h.timer.scheduled[0]
	h.trigger.NoteEdit()

	// The superseded window's callback must not evaluate
	stale.canceled = false
	stale.fn()

	assert.Equal(t, StateDebouncing, h.trigger.State())
	assert.Equal(t, 0, h.fires)
}

func TestTrigger_AtMostOneRunInFlight(t *testing.T) {
	h := newTriggerHarness(1)
	h.pending = 3

	h.trigger.NoteEdit()
	h.timer.fireLatest()
	require.Equal(t, 1, h.fires)

	// Edits and flushes during the run are deferred, not fired
	h.trigger.NoteEdit()
	h.trigger.Flush()

	assert.Equal(t, 1, h.fires)
	assert.Equal(t, StateOrganizing, h.trigger.State())
}

func TestTrigger_RunFinished_CoalescesDeferredTriggers(t *testing.T) {
	h := newTriggerHarness(1)
	h.pending = 3

	h.trigger.NoteEdit()
	h.timer.fireLatest()
	h.trigger.NoteEdit()
	h.trigger.NoteEdit()
	require.Equal(t, 1, h.fires)

	// Many deferred triggers collapse into exactly one re-check
	h.trigger.RunFinished()

	assert.Equal(t, 2, h.fires)
}

func TestTrigger_RunFinished_NoPendingGoesIdle(t *testing.T) {
	h := newTriggerHarness(1)
	h.pending = 1

	h.trigger.NoteEdit()
	h.timer.fireLatest()
	h.pending = 0
	h.trigger.RunFinished()

	assert.Equal(t, StateIdle, h.trigger.State())
	assert.Equal(t, 1, h.fires)
}

func TestTrigger_Flush_BypassesDebounce(t *testing.T) {
	h := newTriggerHarness(5)
	h.pending = 5

	h.trigger.Flush()

	assert.Equal(t, StateOrganizing, h.trigger.State())
	assert.Equal(t, 1, h.fires)
}

func TestTrigger_Close_CancelsDebounceWithoutFiring(t *testing.T) {
	h := newTriggerHarness(1)
	h.pending = 1

	h.trigger.NoteEdit()
	h.trigger.Close()
	h.timer.fireLatest()

	assert.Equal(t, StateIdle, h.trigger.State())
	assert.Equal(t, 0, h.fires)
}

func TestTrigger_SetTuning_AppliesToNextWindow(t *testing.T) {
	h := newTriggerHarness(5)

	h.trigger.SetTuning(500*time.Millisecond, 2)
	h.pending = 2
	h.trigger.NoteEdit()

	require.Equal(t, 1, h.timer.liveCount())
	assert.Equal(t, 500*time.Millisecond, h.timer.scheduled[len(h.timer.scheduled)-1].delay)

	h.timer.fireLatest()
	assert.Equal(t, 1, h.fires)
}
