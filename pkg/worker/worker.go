// Package worker runs the background side of the inventory: it consumes
// batch triggers into the ingestion pipeline and sweeps expired reservations.
package worker

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/trigger"
)

// BatchProcessor is satisfied by *ingest.Pipeline.
type BatchProcessor interface {
	Process(ctx context.Context, batchID string) (*models.IngestionJob, error)
}

// Sweeper is satisfied by *lifecycle.Reaper.
type Sweeper interface {
	Start(ctx context.Context)
}

type Worker struct {
	processor  BatchProcessor
	subscriber trigger.Subscriber
	reaper     Sweeper
	cancel     context.CancelFunc
}

// NewWorker returns a worker. reaper may be nil when another process sweeps
// reservations.
func NewWorker(processor BatchProcessor, subscriber trigger.Subscriber, reaper Sweeper) *Worker {
	return &Worker{
		processor:  processor,
		subscriber: subscriber,
		reaper:     reaper,
	}
}

// Start blocks until ctx is cancelled, Stop is called, or the subscriber
// fails.
func (w *Worker) Start(ctx context.Context) error {
	log.WithField("component", "worker").Info("Starting")

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer cancel()

	if w.reaper != nil {
		go w.reaper.Start(ctx)
	}

	err := w.subscriber.Run(ctx, w.HandleBatch)

	log.WithField("component", "worker").Info("Stopped")

	return err
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		log.WithField("component", "worker").Info("Shutting down...")
		w.cancel()
	}
}

// HandleBatch runs one trigger through the pipeline. Jobs that are unknown or
// already claimed are acknowledged: processing them again cannot succeed.
func (w *Worker) HandleBatch(ctx context.Context, batchID string) error {
	logger := log.WithFields(log.Fields{
		"component": "worker",
		"batch_id":  batchID,
	})

	job, err := w.processor.Process(ctx, batchID)

	switch {
	case errors.Is(err, models.ErrInvalidState):
		logger.WithError(err).Warn("Skipping batch that already finished")
		return nil
	case errors.Is(err, models.ErrNotFound):
		logger.WithError(err).Warn("Skipping unknown batch")
		return nil
	case err != nil:
		return err
	}

	logger.WithFields(log.Fields{
		"status":    job.Status,
		"total":     job.TotalRecords,
		"processed": job.ProcessedRecords,
		"failed":    job.FailedRecords,
	}).Info("Batch finished")

	return nil
}
