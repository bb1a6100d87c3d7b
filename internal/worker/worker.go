package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apidomain "github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/worker/domain"
	"github.com/cuongbtq/jobflow/internal/workflow"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the
// delivery channel before the worker is stopped
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Store is the persistence the worker writes notifications to
type Store interface {
	InsertNotifications(ctx context.Context, ns []notify.Notification) (int, error)
	ListOverdueJobs(ctx context.Context, now time.Time, after *apidomain.DeadlineCursor, limit int) ([]*workflow.Job, error)
}

// DeliverySource starts a consumer on the events queue.
// *rabbitmq.Client satisfies it.
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Store        Store
	Consumer     DeliverySource
	WorkerID     string
	QueueName    string
	Concurrency  int
	EventTimeout time.Duration
	Scheduler    SchedulerConfig
	Now          func() time.Time
}

// Worker consumes step events and turns them into inbox notifications
type Worker struct {
	logger       *slog.Logger
	store        Store
	consumer     DeliverySource
	workerID     string
	queueName    string
	concurrency  int
	eventTimeout time.Duration
	scheduler    *Scheduler
	jobsChan     chan *domain.EventMessage
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = 10 * time.Second
	}

	w := &Worker{
		logger:       cfg.Logger,
		store:        cfg.Store,
		consumer:     cfg.Consumer,
		workerID:     cfg.WorkerID,
		queueName:    cfg.QueueName,
		concurrency:  concurrency,
		eventTimeout: eventTimeout,
		jobsChan:     make(chan *domain.EventMessage, concurrency),
		stopChan:     make(chan struct{}),
	}
	if cfg.Scheduler.Enabled {
		w.scheduler = NewScheduler(cfg.Store, cfg.Logger, cfg.Scheduler, cfg.Now)
	}
	return w
}

// Start consumes events until ctx is canceled. It returns
// ErrDeliveriesClosed if the broker closes the consumer first.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("event_timeout", w.eventTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if !w.startMessageDispatcher(ctx, deliveries) {
		return ErrDeliveriesClosed
	}
	return nil
}

// Stop waits for the pool to finish in-flight events, stops the scheduler
// and returns undispatched messages to the queue
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()

		if w.scheduler != nil {
			w.scheduler.Stop()
		}

		w.drain()
		w.logger.Info("Worker stopped")
	})
}

func (w *Worker) drain() {
	for {
		select {
		case msg := <-w.jobsChan:
			if err := msg.Delivery.Nack(false, true); err != nil {
				w.logger.Warn("Failed to requeue undispatched message",
					slog.String("event_id", msg.Event.EventID),
					slog.String("error", err.Error()),
				)
			}
		default:
			return
		}
	}
}
