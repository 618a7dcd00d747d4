// Package logging provides an EventPublisher that writes events to the
// structured log. It is the default publisher when no event bus is
// configured.
package logging

import (
	"context"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/domain/events"
)

// Publisher logs events instead of sending them anywhere
type Publisher struct {
	logger *zap.Logger
}

// NewPublisher creates a log-only publisher
func NewPublisher(logger *zap.Logger) ports.EventPublisher {
	return &Publisher{logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Info("Domain event",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
		zap.Time("timestamp", event.GetTimestamp()),
	)
	return nil
}

func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, event := range domainEvents {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
