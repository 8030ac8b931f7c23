// Package ingest turns uploaded batch files into AVAILABLE telephone numbers.
//
// A batch is read in chunks. Each chunk is split into contiguous sub-batches
// that run on a shared worker pool; the chunk is a barrier, so the job's
// counters only move once every sub-batch of the chunk has finished, and a
// chunk's writes are durable before the next chunk starts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/clock"
	"github.com/targc/numbervault/pkg/metrics"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
	"github.com/targc/numbervault/pkg/staging"
	"github.com/targc/numbervault/pkg/store"
	"github.com/targc/numbervault/pkg/workpool"
)

const DefaultChunkSize = 1000

type Options struct {
	ChunkSize int
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

type Pipeline struct {
	store      store.Store
	jobs       store.JobStore
	projection search.Projection
	staging    staging.Store
	pool       *workpool.Pool
	chunkSize  int
	clock      clock.Clock
	metrics    *metrics.Metrics
}

// New returns a pipeline running sub-batches on pool. projection may be nil.
func New(st store.Store, jobs store.JobStore, projection search.Projection, stage staging.Store, pool *workpool.Pool, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	return &Pipeline{
		store:      st,
		jobs:       jobs,
		projection: projection,
		staging:    stage,
		pool:       pool,
		chunkSize:  opts.ChunkSize,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
	}
}

// SubBatchSize is ceil(chunk size / pool width).
func (p *Pipeline) SubBatchSize() int {
	width := p.pool.Width()
	return (p.chunkSize + width - 1) / width
}

// Process runs the job of batchID to completion. The returned job is in a
// terminal state; failures inside the run are recorded on the job rather
// than returned. An error is returned only when the job could not be
// claimed (models.ErrNotFound, models.ErrInvalidState for a job that already
// finished) or its final state could not be persisted.
//
// A job found PROCESSING is resumed: the rows its persisted counters already
// account for are skipped.
func (p *Pipeline) Process(ctx context.Context, batchID string) (*models.IngestionJob, error) {
	logger := log.WithFields(log.Fields{"component": "ingest", "batch_id": batchID})

	job, err := p.jobs.ClaimJob(ctx, batchID)

	if err != nil {
		return nil, err
	}

	logger.WithField("file", job.OriginalFileName).Info("Processing batch")
	started := time.Now()

	err = p.run(ctx, job)

	if err != nil {
		logger.WithError(err).Error("Batch failed")

		msg := err.Error()
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &msg

		if uerr := p.jobs.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
			return job, fmt.Errorf("failed to record failure of batch %s: %w", batchID, uerr)
		}

		p.metrics.ReportJob(string(models.JobStatusFailed))

		return job, nil
	}

	job.Status = models.JobStatusCompleted

	err = p.jobs.UpdateJob(ctx, job)

	if err != nil {
		return job, fmt.Errorf("failed to complete batch %s: %w", batchID, err)
	}

	p.metrics.ReportJob(string(models.JobStatusCompleted))

	err = p.staging.Delete(ctx, job.FileName)

	if err != nil {
		logger.WithError(err).Warn("Failed to release staged payload")
	}

	logger.WithFields(log.Fields{
		"total":     job.TotalRecords,
		"processed": job.ProcessedRecords,
		"failed":    job.FailedRecords,
		"duration":  time.Since(started),
	}).Info("Batch completed")

	return job, nil
}

func (p *Pipeline) run(ctx context.Context, job *models.IngestionJob) error {
	payload, err := p.staging.Open(ctx, job.FileName)

	if err != nil {
		return fmt.Errorf("failed to open staged payload: %w", err)
	}

	defer payload.Close()

	rows, err := NewRowReader(payload)

	if err != nil {
		return err
	}

	skip := job.TotalRecords

	if skip > 0 {
		log.WithFields(log.Fields{
			"component": "ingest",
			"batch_id":  job.BatchID,
			"rows":      skip,
		}).Info("Resuming batch")
	}

	chunk := make([]Row, 0, p.chunkSize)

	for {
		row, err := rows.Next()

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return err
		}

		if skip > 0 {
			skip--
			continue
		}

		chunk = append(chunk, row)

		if len(chunk) == p.chunkSize {
			if err := p.flush(ctx, job, chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}

	if len(chunk) > 0 {
		return p.flush(ctx, job, chunk)
	}

	return nil
}

// flush processes one chunk and persists the job's cumulative counters.
func (p *Pipeline) flush(ctx context.Context, job *models.IngestionJob, chunk []Row) error {
	result, err := p.processChunk(ctx, job.BatchID, chunk)

	if err != nil {
		return err
	}

	job.TotalRecords += len(chunk)
	job.ProcessedRecords += result.processed
	job.FailedRecords += result.failed

	p.metrics.ReportRows(metrics.OutcomeCreated, result.processed)
	p.metrics.ReportRows(metrics.OutcomeDuplicate, result.duplicates)
	p.metrics.ReportRows(metrics.OutcomeInvalid, result.invalid)
	p.metrics.ReportRows(metrics.OutcomeFailed, result.failed-result.invalid)

	err = p.jobs.UpdateJob(ctx, job)

	if err != nil {
		return fmt.Errorf("failed to persist progress: %w", err)
	}

	return nil
}

type subBatchResult struct {
	processed  int
	failed     int
	invalid    int
	duplicates int
}

func (r *subBatchResult) add(o subBatchResult) {
	r.processed += o.processed
	r.failed += o.failed
	r.invalid += o.invalid
	r.duplicates += o.duplicates
}

func (p *Pipeline) processChunk(ctx context.Context, batchID string, chunk []Row) (subBatchResult, error) {
	markRows(chunk)

	size := p.SubBatchSize()
	count := (len(chunk) + size - 1) / size
	results := make([]subBatchResult, count)

	g := p.pool.Group(ctx)

	for i := 0; i < count; i++ {
		i := i
		lo := i * size
		hi := lo + size
		if hi > len(chunk) {
			hi = len(chunk)
		}
		rows := chunk[lo:hi]

		g.Go(func(ctx context.Context) error {
			results[i] = p.processSubBatch(ctx, batchID, rows)
			return nil
		})
	}

	err := g.Wait()

	if err != nil {
		return subBatchResult{}, fmt.Errorf("chunk interrupted: %w", err)
	}

	var total subBatchResult
	for _, r := range results {
		total.add(r)
	}

	return total, nil
}

// processSubBatch never returns an error: a sub-batch that cannot be written
// counts all of its rows as failed.
func (p *Pipeline) processSubBatch(ctx context.Context, batchID string, rows []Row) (result subBatchResult) {
	logger := log.WithFields(log.Fields{
		"component":  "ingest",
		"batch_id":   batchID,
		"first_line": rows[0].Line,
		"rows":       len(rows),
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Sub-batch panicked")
			result = subBatchResult{failed: len(rows)}
		}
	}()

	fail := func(err error) subBatchResult {
		logger.WithError(err).Error("Sub-batch failed")
		return subBatchResult{failed: len(rows)}
	}

	now := p.clock.Now()
	fresh := make([]*models.TelephoneNumber, 0, len(rows))

	for _, row := range rows {
		if row.invalid != nil {
			logger.WithField("line", row.Line).WithError(row.invalid).Debug("Invalid row")
			result.invalid++
			continue
		}

		if row.repeat {
			result.duplicates++
			continue
		}

		exists, err := p.store.ExistsByNumber(ctx, row.Number)

		if err != nil {
			return fail(err)
		}

		if exists {
			result.duplicates++
			continue
		}

		fresh = append(fresh, newNumber(row, batchID, now))
	}

	if len(fresh) > 0 {
		err := p.store.SaveAll(ctx, fresh)

		if err != nil {
			return fail(err)
		}

		p.project(ctx, logger, fresh)
	}

	result.processed = len(fresh)
	result.failed = result.invalid

	return result
}

// markRows validates every row of a chunk and flags repeats of a number
// already seen earlier in the chunk, so that sibling sub-batches never race
// to insert the same number.
func markRows(chunk []Row) {
	seen := make(map[string]struct{}, len(chunk))

	for i := range chunk {
		if err := chunk[i].Validate(); err != nil {
			chunk[i].invalid = err
			continue
		}

		if _, dup := seen[chunk[i].Number]; dup {
			chunk[i].repeat = true
			continue
		}
		seen[chunk[i].Number] = struct{}{}
	}
}

func (p *Pipeline) project(ctx context.Context, logger *log.Entry, numbers []*models.TelephoneNumber) {
	if p.projection == nil {
		return
	}

	err := p.projection.UpsertAll(ctx, search.FromNumbers(numbers))

	if err != nil {
		p.metrics.ReportProjectionFailure("ingest")
		logger.WithError(err).Warn("Failed to index new numbers")
	}
}

func newNumber(row Row, batchID string, now time.Time) *models.TelephoneNumber {
	return &models.TelephoneNumber{
		ID:          uuid.Must(uuid.NewV7()),
		Number:      row.Number,
		CountryCode: row.CountryCode,
		AreaCode:    models.StringPtr(row.AreaCode),
		NumberType:  models.StringPtr(row.NumberType),
		Category:    models.StringPtr(row.Category),
		Features:    models.StringPtr(row.Features),
		Status:      models.StatusAvailable,
		Revision:    1,
		BatchID:     models.StringPtr(batchID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
