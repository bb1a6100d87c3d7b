package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobflow/internal/events"
	"github.com/cuongbtq/jobflow/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming with the worker ID as consumer tag. QoS is
// applied by the client from its prefetch setting.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the worker
// pool. It returns false when the delivery channel closes.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return true

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return false
			}

			msg, err := decodeDelivery(delivery)
			if err != nil {
				w.logger.Error("Failed to decode step event",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("event_id", msg.Event.EventID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching event")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return true
			}
		}
	}
}

func decodeDelivery(delivery amqp.Delivery) (*domain.EventMessage, error) {
	event, err := events.Decode(delivery.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	return &domain.EventMessage{
		Event:       event,
		DeliveryTag: delivery.DeliveryTag,
		Redelivered: delivery.Redelivered,
		Delivery:    delivery,
	}, nil
}
