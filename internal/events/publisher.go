package events

import (
	"context"
	"fmt"
	"log/slog"
)

// Sender is the broker side of publishing, implemented by rabbitmq.Client
type Sender interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType, messageID string) error
}

// Publisher encodes step events and hands them to a Sender
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

// NewPublisher creates a Publisher
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{sender: sender, logger: logger}
}

// PublishStepEvent sends e with its type's routing key
func (p *Publisher) PublishStepEvent(ctx context.Context, e StepEvent) error {
	body, err := Encode(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.sender.Publish(ctx, e.Type.RoutingKey(), body, ContentType, e.EventID); err != nil {
		return fmt.Errorf("failed to publish %s for job %s: %w", e.Type, e.JobID, err)
	}

	p.logger.Debug("Step event published",
		slog.String("event_id", e.EventID),
		slog.String("type", string(e.Type)),
		slog.String("job_id", e.JobID),
	)
	return nil
}
