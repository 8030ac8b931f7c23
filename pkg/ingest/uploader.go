package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/staging"
	"github.com/targc/numbervault/pkg/store"
	"github.com/targc/numbervault/pkg/trigger"
)

type UploadRequest struct {
	FileName    string    `validate:"required"`
	ContentType string
	Size        int64     `validate:"gte=-1"`
	Body        io.Reader `validate:"required"`
	UploadedBy  string    `validate:"required"`
}

// Uploader accepts batch files: it stages the payload, records a PENDING job
// and notifies the ingestion worker.
type Uploader struct {
	jobs      store.JobStore
	staging   staging.Store
	publisher trigger.Publisher
}

func NewUploader(jobs store.JobStore, stage staging.Store, publisher trigger.Publisher) *Uploader {
	return &Uploader{jobs: jobs, staging: stage, publisher: publisher}
}

func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (*models.IngestionJob, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid upload: %v: %w", err, models.ErrMalformedInput)
	}

	batchID := uuid.NewString()
	key := staging.Key(batchID, req.FileName)

	logger := log.WithFields(log.Fields{
		"component": "upload",
		"batch_id":  batchID,
		"file":      req.FileName,
	})

	err := u.staging.Put(ctx, key, req.Body, req.Size, req.ContentType)

	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	job := &models.IngestionJob{
		ID:               uuid.Must(uuid.NewV7()),
		BatchID:          batchID,
		FileName:         key,
		OriginalFileName: req.FileName,
		FileSize:         req.Size,
		ContentType:      req.ContentType,
		UploadedBy:       req.UploadedBy,
		Status:           models.JobStatusPending,
	}

	err = u.jobs.CreateJob(ctx, job)

	if err != nil {
		if derr := u.staging.Delete(ctx, key); derr != nil {
			logger.WithError(derr).Warn("Failed to discard staged payload")
		}
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	err = u.publisher.Publish(ctx, batchID)

	if err != nil {
		msg := fmt.Sprintf("failed to enqueue batch: %v", err)
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &msg

		if uerr := u.jobs.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
			logger.WithError(uerr).Error("Failed to mark unqueued batch as failed")
		}

		return nil, fmt.Errorf("failed to enqueue batch %s: %w", batchID, err)
	}

	logger.WithField("uploaded_by", req.UploadedBy).Info("Batch uploaded")

	return job, nil
}

func (u *Uploader) Status(ctx context.Context, batchID string) (*models.IngestionJob, error) {
	return u.jobs.GetJob(ctx, batchID)
}

func (u *Uploader) List(ctx context.Context) ([]models.IngestionJob, error) {
	return u.jobs.ListJobs(ctx)
}
