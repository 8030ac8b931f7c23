package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/targc/numbervault/pkg/ingest"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/staging"
	"github.com/targc/numbervault/pkg/staging/fsstage"
	"github.com/targc/numbervault/pkg/store/memstore"
	"github.com/targc/numbervault/pkg/trigger"
	"github.com/targc/numbervault/pkg/workpool"
)

type stubProcessor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *stubProcessor) Process(_ context.Context, batchID string) (*models.IngestionJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, batchID)
	if p.err != nil {
		return nil, p.err
	}
	return &models.IngestionJob{BatchID: batchID, Status: models.JobStatusCompleted}, nil
}

func TestHandleBatchAbsorbsUnretryableErrors(t *testing.T) {
	cases := map[string]struct {
		err     error
		wantErr bool
	}{
		"completed":        {nil, false},
		"already finished": {fmt.Errorf("claim: %w", models.ErrInvalidState), false},
		"unknown":          {fmt.Errorf("claim: %w", models.ErrNotFound), false},
		"database down":    {errors.New("connection refused"), true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := NewWorker(&stubProcessor{err: tc.err}, trigger.NewLocal(1), nil)

			err := w.HandleBatch(context.Background(), "b1")

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type countingSweeper struct {
	started chan struct{}
	stopped chan struct{}
}

func (s *countingSweeper) Start(ctx context.Context) {
	close(s.started)
	<-ctx.Done()
	close(s.stopped)
}

func TestStartRunsReaperAndStops(t *testing.T) {
	sweeper := &countingSweeper{started: make(chan struct{}), stopped: make(chan struct{})}
	w := NewWorker(&stubProcessor{}, trigger.NewLocal(1), sweeper)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case <-sweeper.started:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper was not started")
	}

	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	select {
	case <-sweeper.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestUploadedBatchIsIngested(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := memstore.New()
	require.NoError(t, err)
	stage, err := fsstage.New(t.TempDir())
	require.NoError(t, err)
	pool, err := workpool.New(2)
	require.NoError(t, err)

	local := trigger.NewLocal(4)
	pipeline := ingest.New(st, st, nil, stage, pool, ingest.Options{ChunkSize: 2})
	uploader := ingest.NewUploader(st, stage, local)

	w := NewWorker(pipeline, local, nil)
	go w.Start(ctx)

	csv := "number,countryCode\n+14155550100,+1\n+14155550101,+1\nbogus,+1\n"
	job, err := uploader.Upload(ctx, ingest.UploadRequest{
		FileName:   "numbers.csv",
		Size:       int64(len(csv)),
		Body:       strings.NewReader(csv),
		UploadedBy: "alice",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.GetJob(ctx, job.BatchID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	got, err := st.GetJob(ctx, job.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 3, got.TotalRecords)
	assert.Equal(t, 2, got.ProcessedRecords)
	assert.Equal(t, 1, got.FailedRecords)

	exists, err := st.ExistsByNumber(ctx, "+14155550101")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = stage.Open(ctx, staging.Key(job.BatchID, "numbers.csv"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}
