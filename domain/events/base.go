package events

import (
	"time"

	"brainflow-backend/domain/core/valueobjects"
)

// SourceBackend identifies this service as the event source
const SourceBackend = "brainflow.backend"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// LineVersionRef identifies one line version inside a batch. Revision pins
// the exact rewrite of that version the batch snapshotted.
type LineVersionRef struct {
	LineID   string `json:"line_id"`
	Version  int    `json:"version"`
	Revision int    `json:"revision"`
}

// Organization lifecycle events

// OrganizationNeeded is raised when enough unorganized edits have
// accumulated for a batch to be processed
type OrganizationNeeded struct {
	BaseEvent
	UserID    string           `json:"user_id"`
	BatchSize int              `json:"batch_size"`
	Lines     []LineVersionRef `json:"lines"`
}

// NewOrganizationNeeded creates an OrganizationNeeded event
func NewOrganizationNeeded(userID string, lines []LineVersionRef, timestamp time.Time) OrganizationNeeded {
	return OrganizationNeeded{
		BaseEvent: BaseEvent{
			AggregateID: userID,
			EventType:   "organization.needed",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:    userID,
		BatchSize: len(lines),
		Lines:     lines,
	}
}

// OrganizationCompleted is raised after a batch has been merged into the
// tree and committed
type OrganizationCompleted struct {
	BaseEvent
	UserID       string           `json:"user_id"`
	TouchedPaths []string         `json:"touched_paths"`
	Lines        []LineVersionRef `json:"lines"`
	UsedFallback bool             `json:"used_fallback"`
}

// NewOrganizationCompleted creates an OrganizationCompleted event
func NewOrganizationCompleted(userID string, touchedPaths []string, lines []LineVersionRef, usedFallback bool, timestamp time.Time) OrganizationCompleted {
	return OrganizationCompleted{
		BaseEvent: BaseEvent{
			AggregateID: userID,
			EventType:   "organization.completed",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:       userID,
		TouchedPaths: touchedPaths,
		Lines:        lines,
		UsedFallback: usedFallback,
	}
}

// OrganizationFailed is raised when a batch could not be committed; the
// batch stays unorganized and is retried on the next trigger
type OrganizationFailed struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// NewOrganizationFailed creates an OrganizationFailed event
func NewOrganizationFailed(userID, reason string, timestamp time.Time) OrganizationFailed {
	return OrganizationFailed{
		BaseEvent: BaseEvent{
			AggregateID: userID,
			EventType:   "organization.failed",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID: userID,
		Reason: reason,
	}
}

// Tree node events

// TreeNodeCreated is raised when organization creates a new file or folder
type TreeNodeCreated struct {
	BaseEvent
	NodeID valueobjects.NodeID `json:"node_id"`
	UserID string              `json:"user_id"`
	Path   string              `json:"path"`
	Kind   string              `json:"kind"`
}

// NewTreeNodeCreated creates a TreeNodeCreated event
func NewTreeNodeCreated(nodeID valueobjects.NodeID, userID, path, kind string, timestamp time.Time) TreeNodeCreated {
	return TreeNodeCreated{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "tree_node.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID: nodeID,
		UserID: userID,
		Path:   path,
		Kind:   kind,
	}
}

// TreeNodeUpdated is raised when organization merges content into an
// existing node
type TreeNodeUpdated struct {
	BaseEvent
	NodeID valueobjects.NodeID `json:"node_id"`
	UserID string              `json:"user_id"`
	Path   string              `json:"path"`
}

// NewTreeNodeUpdated creates a TreeNodeUpdated event
func NewTreeNodeUpdated(nodeID valueobjects.NodeID, userID, path string, timestamp time.Time) TreeNodeUpdated {
	return TreeNodeUpdated{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "tree_node.updated",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID: nodeID,
		UserID: userID,
		Path:   path,
	}
}
