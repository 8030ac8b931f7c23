// Package store defines the system-of-record contracts for telephone numbers,
// their status history and ingestion jobs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/targc/numbervault/pkg/models"
)

var (
	// ErrRevisionConflict is returned by Tx.Save when the stored revision no
	// longer matches the expected one.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrDuplicateNumber is returned when a write violates the unique number
	// constraint.
	ErrDuplicateNumber = errors.New("duplicate number")
)

// Store is the durable, transactional home of telephone numbers.
type Store interface {
	// WithExclusiveAccess runs fn while holding exclusive access to the number
	// with the given id. Concurrent calls for the same id are serialized;
	// calls for different ids are not. Writes made through tx commit
	// atomically when fn returns nil and are discarded otherwise. fn must
	// not call WithExclusiveAccess.
	WithExclusiveAccess(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	Get(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error)

	// GetMany returns the numbers found for ids, in the order of ids. Unknown
	// ids are skipped.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*models.TelephoneNumber, error)

	ExistsByNumber(ctx context.Context, number string) (bool, error)

	// SaveAll inserts new numbers as one grouped write. Either all rows are
	// written or none are.
	SaveAll(ctx context.Context, numbers []*models.TelephoneNumber) error

	// History returns the status history of a number, newest first.
	History(ctx context.Context, id uuid.UUID) ([]models.StatusHistory, error)

	// ListExpiredReservations returns RESERVED numbers whose reservation
	// expired before now, oldest expiry first, at most limit rows.
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*models.TelephoneNumber, error)
}

// Tx is the view of one number granted by Store.WithExclusiveAccess.
type Tx interface {
	// GetForUpdate reads the current committed state with intent to write.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error)

	// Save persists n conditioned on expectedRevision and bumps n.Revision.
	Save(ctx context.Context, n *models.TelephoneNumber, expectedRevision int) error

	AppendHistory(ctx context.Context, entry *models.StatusHistory) error
}

// JobStore persists ingestion jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, batchID string) (*models.IngestionJob, error)

	// ClaimJob moves a PENDING job to PROCESSING and returns it. A job already
	// PROCESSING is taken over as is, counters included, so that a redelivered
	// batch can resume an interrupted run. A COMPLETED or FAILED job yields
	// models.ErrInvalidState.
	ClaimJob(ctx context.Context, batchID string) (*models.IngestionJob, error)

	// UpdateJob writes the status, counters and error message of job.
	UpdateJob(ctx context.Context, job *models.IngestionJob) error

	// ListJobs returns all jobs, newest first.
	ListJobs(ctx context.Context) ([]models.IngestionJob, error)
}
