package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nextslurm/backend/internal/worker/domain"
	"github.com/nextslurm/backend/internal/worker/storage"
	"github.com/nextslurm/backend/shared/postgresql"
	"github.com/nextslurm/backend/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	DBClient      *postgresql.Client
	RabbitClient  *rabbitmq.Client
	Dispatcher    *Dispatcher
	Concurrency   int
	PrefetchCount int
	QueueName     string
}

// Worker consumes submission messages from RabbitMQ and dispatches each one
// to the batch scheduler.
type Worker struct {
	logger        *slog.Logger
	dbClient      *postgresql.Client
	rabbitClient  *rabbitmq.Client
	storage       *storage.Storage
	dispatcher    *Dispatcher
	concurrency   int
	prefetchCount int
	queueName     string
	workerID      string
	jobsChan      chan *domain.SubmissionMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		dbClient:      cfg.DBClient,
		rabbitClient:  cfg.RabbitClient,
		storage:       storage.NewStorage(cfg.DBClient.GetDB(), cfg.Logger),
		dispatcher:    cfg.Dispatcher,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		queueName:     cfg.QueueName,
		workerID:      fmt.Sprintf("dispatch-worker-%s", uuid.New().String()[:8]),
		jobsChan:      make(chan *domain.SubmissionMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and dispatching submissions. Blocks until the
// context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.String("queue", w.queueName),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
