package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobflow/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}
			w.handle(ctx, workerName, msg)
		}
	}
}

// handle processes one event and settles its delivery
func (w *Worker) handle(ctx context.Context, workerName string, msg *domain.EventMessage) {
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("event_id", msg.Event.EventID),
		slog.String("event_type", string(msg.Event.Type)),
		slog.String("job_id", msg.Event.JobID),
	)

	err := w.processEvent(ctx, msg)
	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			log.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	requeue := shouldRequeue(err)
	log.Error("Event processing failed",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
		slog.Bool("redelivered", msg.Redelivered),
	)

	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		log.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
	}
}

// shouldRequeue determines if an event should be requeued based on the error type
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrInvalidEvent) {
		return false
	}

	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	return false
}
