package ports

import (
	"context"
	"time"

	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	"brainflow-backend/domain/events"
)

// PageStore defines the interface for tree node persistence.
// This is a port in hexagonal architecture - the domain doesn't know about
// the implementation. The store is expected to forbid two organization runs
// from writing the same node concurrently.
type PageStore interface {
	// GetNodeByID retrieves a node by its ID
	GetNodeByID(ctx context.Context, userID string, id valueobjects.NodeID) (*entities.TreeNode, error)

	// GetNodeByPath retrieves a node by its full tree path
	GetNodeByPath(ctx context.Context, userID string, path valueobjects.TreePath) (*entities.TreeNode, error)

	// CreateNode persists a new node and returns its ID
	CreateNode(ctx context.Context, node *entities.TreeNode) (valueobjects.NodeID, error)

	// UpdateNode persists changes to an existing node
	UpdateNode(ctx context.Context, node *entities.TreeNode) error

	// ListTree retrieves every node in a user's tree
	ListTree(ctx context.Context, userID string) ([]*entities.TreeNode, error)
}

// OracleCompletionOptions configures a single oracle request
type OracleCompletionOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Format      string  `json:"format"` // "json" or "text"
}

// OracleProvider is the external reasoning oracle, consumed as an opaque
// prompt-in, raw-response-out function. Transport and retries belong to the
// provider implementation, never to this core.
type OracleProvider interface {
	Complete(ctx context.Context, prompt string, options OracleCompletionOptions) (string, error)
	IsAvailable() bool
}

// EventPublisher defines the interface for publishing domain events.
// Publishing is fire-and-forget: this core does not depend on events being
// handled by collaborators.
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// CancelTimer cancels a scheduled callback; reports whether cancellation
// happened before the callback fired
type CancelTimer func() bool

// Timer schedules delayed callbacks for the trigger scheduler. All external
// timer mechanisms reduce to this one shape so tests can drive time by hand.
type Timer interface {
	Schedule(delay time.Duration, fn func()) CancelTimer
}
