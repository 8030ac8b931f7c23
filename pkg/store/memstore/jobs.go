package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/targc/numbervault/pkg/models"
)

func (s *Store) CreateJob(_ context.Context, job *models.IngestionJob) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(jobsTable, idIndex, job.BatchID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("ingestion job for batch %s already exists", job.BatchID)
	}

	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	v := *job
	if err := txn.Insert(jobsTable, &jobRow{ID: job.BatchID, Value: &v}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetJob(_ context.Context, batchID string) (*models.IngestionJob, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	job, err := getJob(txn, batchID)
	if err != nil {
		return nil, err
	}
	v := *job
	return &v, nil
}

func (s *Store) ClaimJob(_ context.Context, batchID string) (*models.IngestionJob, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	job, err := getJob(txn, batchID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("ingestion job for batch %s is %s: %w", batchID, job.Status, models.ErrInvalidState)
	}

	v := *job
	v.Status = models.JobStatusProcessing
	v.UpdatedAt = s.now()
	if err := txn.Insert(jobsTable, &jobRow{ID: batchID, Value: &v}); err != nil {
		return nil, err
	}
	txn.Commit()

	out := v
	return &out, nil
}

func (s *Store) UpdateJob(_ context.Context, job *models.IngestionJob) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	current, err := getJob(txn, job.BatchID)
	if err != nil {
		return err
	}

	v := *current
	v.Status = job.Status
	v.TotalRecords = job.TotalRecords
	v.ProcessedRecords = job.ProcessedRecords
	v.FailedRecords = job.FailedRecords
	v.ErrorMessage = job.ErrorMessage
	v.UpdatedAt = s.now()
	if err := txn.Insert(jobsTable, &jobRow{ID: job.BatchID, Value: &v}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) ListJobs(_ context.Context) ([]models.IngestionJob, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(jobsTable, idIndex)
	if err != nil {
		return nil, err
	}

	jobs := []models.IngestionJob{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		jobs = append(jobs, *obj.(*jobRow).Value)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func getJob(txn *memdb.Txn, batchID string) (*models.IngestionJob, error) {
	raw, err := txn.First(jobsTable, idIndex, batchID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("ingestion job for batch %s: %w", batchID, models.ErrNotFound)
	}
	return raw.(*jobRow).Value, nil
}
