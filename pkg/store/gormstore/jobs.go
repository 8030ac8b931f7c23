package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/targc/numbervault/pkg/models"
	"gorm.io/gorm"
)

func (s *Store) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	err := s.DB.
		WithContext(ctx).
		Create(job).
		Error

	if err != nil {
		return fmt.Errorf("failed to create ingestion job: %w", err)
	}

	return nil
}

func (s *Store) GetJob(ctx context.Context, batchID string) (*models.IngestionJob, error) {
	var job models.IngestionJob

	err := s.DB.
		WithContext(ctx).
		Where("batch_id = ?", batchID).
		First(&job).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ingestion job for batch %s: %w", batchID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ingestion job: %w", err)
	}

	return &job, nil
}

func (s *Store) ClaimJob(ctx context.Context, batchID string) (*models.IngestionJob, error) {
	result := s.DB.
		WithContext(ctx).
		Model(&models.IngestionJob{}).
		Where("batch_id = ? AND status IN ?", batchID, []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Update("status", models.JobStatusProcessing)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim ingestion job: %w", result.Error)
	}

	job, err := s.GetJob(ctx, batchID)

	if err != nil {
		return nil, err
	}

	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("ingestion job for batch %s is %s: %w", batchID, job.Status, models.ErrInvalidState)
	}

	return job, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *models.IngestionJob) error {
	updates := map[string]interface{}{
		"status":            job.Status,
		"total_records":     job.TotalRecords,
		"processed_records": job.ProcessedRecords,
		"failed_records":    job.FailedRecords,
		"error_message":     job.ErrorMessage,
	}

	result := s.DB.
		WithContext(ctx).
		Model(&models.IngestionJob{}).
		Where("batch_id = ?", job.BatchID).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update ingestion job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("ingestion job for batch %s: %w", job.BatchID, models.ErrNotFound)
	}

	return nil
}

func (s *Store) ListJobs(ctx context.Context) ([]models.IngestionJob, error) {
	var jobs []models.IngestionJob

	err := s.DB.
		WithContext(ctx).
		Order("created_at DESC").
		Find(&jobs).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion jobs: %w", err)
	}

	return jobs, nil
}
