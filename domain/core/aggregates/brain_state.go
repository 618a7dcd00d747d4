package aggregates

import (
	"sort"
	"time"

	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

// BrainState is the per-session aggregate owning the append-only line map.
// It has exactly one writer at a time: the session actor serializes every
// mutation, so the aggregate itself carries no locking.
//
// Invariants:
//   - a line's history is ordered by version, and history[i].Version == i+1
//   - at most the last version of a line is unorganized at rest
//   - no operation ever deletes history
type BrainState struct {
	userID      string
	lineMap     map[string][]*entities.LineEdit
	lineOrder   []valueobjects.LineID
	lastUpdated time.Time
	config      *config.DomainConfig
}

// NewBrainState creates an empty brain state for a user session
func NewBrainState(userID string, cfg *config.DomainConfig) *BrainState {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &BrainState{
		userID:      userID,
		lineMap:     make(map[string][]*entities.LineEdit),
		lineOrder:   []valueobjects.LineID{},
		lastUpdated: time.Now(),
		config:      cfg,
	}
}

// UserID returns the owning user's ID
func (b *BrainState) UserID() string {
	return b.userID
}

// Config returns the aggregate's domain configuration
func (b *BrainState) Config() *config.DomainConfig {
	return b.config
}

// LastUpdated returns when the aggregate last changed
func (b *BrainState) LastUpdated() time.Time {
	return b.lastUpdated
}

// AppendEdit records a tracked edit event for a line.
//
// If the line has no history, or its latest version is already organized, a
// new version is pushed. Otherwise the unorganized latest version is
// rewritten in place, collapsing rapid keystrokes into one pending version.
// An edit that exactly duplicates the latest version is suppressed.
//
// Returns the affected version and whether the aggregate changed.
func (b *BrainState) AppendEdit(
	lineID valueobjects.LineID,
	pageID string,
	content string,
	editType valueobjects.EditType,
	position *int,
) (*entities.LineEdit, bool, error) {
	if lineID.IsZero() {
		return nil, false, pkgerrors.NewValidationError("line ID cannot be empty")
	}
	if !editType.IsValid() {
		return nil, false, pkgerrors.NewValidationError("unknown edit type: " + string(editType))
	}
	if content == "" && editType != valueobjects.EditTypeDelete && !b.config.AllowEmptyContent {
		return nil, false, pkgerrors.NewValidationError("edit content cannot be empty")
	}

	history := b.lineMap[lineID.String()]
	metadata := entities.NewEditMetadata(content, position)

	if len(history) == 0 || history[len(history)-1].Organized {
		edit := entities.NewLineEdit(lineID, pageID, content, editType, len(history)+1, metadata)
		if len(history) == 0 {
			b.lineOrder = append(b.lineOrder, lineID)
		}
		b.lineMap[lineID.String()] = append(history, edit)
		b.lastUpdated = time.Now()
		return edit, true, nil
	}

	latest := history[len(history)-1]
	if latest.Matches(content, editType) {
		return latest, false, nil
	}

	latest.Rewrite(content, editType, metadata)
	b.lastUpdated = time.Now()
	return latest, true, nil
}

// UnorganizedLatest returns, for every line whose latest version is
// unorganized, a snapshot of that version, sorted ascending by timestamp.
func (b *BrainState) UnorganizedLatest() []*entities.LineEdit {
	pending := make([]*entities.LineEdit, 0)
	for _, lineID := range b.lineOrder {
		history := b.lineMap[lineID.String()]
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		if !latest.Organized {
			pending = append(pending, latest.Clone())
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})
	return pending
}

// UnorganizedCount returns how many lines currently await organization
func (b *BrainState) UnorganizedCount() int {
	count := 0
	for _, lineID := range b.lineOrder {
		history := b.lineMap[lineID.String()]
		if len(history) > 0 && !history[len(history)-1].Organized {
			count++
		}
	}
	return count
}

// NextBatch selects the oldest pending line versions, at most batchSize
func (b *BrainState) NextBatch(batchSize int) []*entities.LineEdit {
	pending := b.UnorganizedLatest()
	if batchSize > 0 && len(pending) > batchSize {
		pending = pending[:batchSize]
	}
	return pending
}

// MarkOrganized flags the matching version of a line as organized.
// Idempotent; versions other than the matching one are never touched.
// The revision must match the snapshot that was actually persisted: a
// version rewritten after the snapshot was taken carries content the run
// never saw, so it stays pending and is retried on the next trigger.
func (b *BrainState) MarkOrganized(lineID valueobjects.LineID, version, revision int) {
	history := b.lineMap[lineID.String()]
	for _, edit := range history {
		if edit.Version == version {
			if edit.Revision != revision {
				return
			}
			edit.MarkOrganized()
			b.lastUpdated = time.Now()
			return
		}
	}
}

// LineHistory returns a snapshot of a line's complete version history
func (b *BrainState) LineHistory(lineID valueobjects.LineID) []*entities.LineEdit {
	history := b.lineMap[lineID.String()]
	out := make([]*entities.LineEdit, 0, len(history))
	for _, edit := range history {
		out = append(out, edit.Clone())
	}
	return out
}

// LineCount returns how many lines have ever been tracked
func (b *BrainState) LineCount() int {
	return len(b.lineOrder)
}
