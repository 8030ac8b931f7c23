// Package storetest holds the behavioural contract shared by every
// store.Store and store.JobStore implementation.
package storetest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/store"
)

// Backend is the pair of contracts under test. Both are usually the same value.
type Backend interface {
	store.Store
	store.JobStore
}

// NewNumber returns an AVAILABLE number with a fresh id.
func NewNumber(number string) *models.TelephoneNumber {
	return &models.TelephoneNumber{
		ID:          uuid.Must(uuid.NewV7()),
		Number:      number,
		CountryCode: "+1",
		AreaCode:    models.StringPtr("415"),
		Status:      models.StatusAvailable,
		Revision:    1,
	}
}

// UniqueNumber returns a number string that does not collide across runs
// sharing one database.
func UniqueNumber() string {
	id := uuid.New()
	return fmt.Sprintf("+1%d", 1000000000+binary.BigEndian.Uint64(id[8:])%9000000000)
}

// Run exercises b against the store contracts. newBackend must return an
// isolated or at least collision-free backend.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("SaveAllAndGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		a, c := NewNumber(UniqueNumber()), NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{a, c}))

		got, err := b.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Number, got.Number)
		assert.Equal(t, models.StatusAvailable, got.Status)
		assert.Equal(t, 1, got.Revision)

		exists, err := b.ExistsByNumber(ctx, c.Number)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = b.ExistsByNumber(ctx, UniqueNumber())
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.Get(context.Background(), uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("GetManyKeepsOrderAndSkipsUnknown", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		a, c := NewNumber(UniqueNumber()), NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{a, c}))

		got, err := b.GetMany(ctx, []uuid.UUID{c.ID, uuid.Must(uuid.NewV7()), a.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, c.ID, got[0].ID)
		assert.Equal(t, a.ID, got[1].ID)
	})

	t.Run("SaveAllRejectsDuplicateAtomically", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		existing := NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{existing}))

		fresh := NewNumber(UniqueNumber())
		err := b.SaveAll(ctx, []*models.TelephoneNumber{fresh, NewNumber(existing.Number)})
		assert.ErrorIs(t, err, store.ErrDuplicateNumber)

		exists, err := b.ExistsByNumber(ctx, fresh.Number)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("SaveBumpsRevisionAndCommitsHistory", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		n := NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{n}))

		until := time.Now().UTC().Add(time.Hour)
		err := b.WithExclusiveAccess(ctx, n.ID, func(ctx context.Context, tx store.Tx) error {
			cur, err := tx.GetForUpdate(ctx, n.ID)
			if err != nil {
				return err
			}
			old := cur.Status
			cur.Status = models.StatusReserved
			cur.HolderID = models.StringPtr("alice")
			cur.ReservedUntil = &until
			if err := tx.Save(ctx, cur, cur.Revision); err != nil {
				return err
			}
			return tx.AppendHistory(ctx, &models.StatusHistory{
				ID:                uuid.Must(uuid.NewV7()),
				TelephoneNumberID: n.ID,
				OldStatus:         &old,
				NewStatus:         models.StatusReserved,
				UserID:            "alice",
				Reason:            "Number reserved",
				CreatedAt:         time.Now().UTC(),
			})
		})
		require.NoError(t, err)

		got, err := b.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReserved, got.Status)
		assert.Equal(t, 2, got.Revision)
		require.NotNil(t, got.HolderID)
		assert.Equal(t, "alice", *got.HolderID)

		history, err := b.History(ctx, n.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.StatusReserved, history[0].NewStatus)
	})

	t.Run("FailedCallbackDiscardsWrites", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		n := NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{n}))

		boom := errors.New("boom")
		err := b.WithExclusiveAccess(ctx, n.ID, func(ctx context.Context, tx store.Tx) error {
			cur, err := tx.GetForUpdate(ctx, n.ID)
			if err != nil {
				return err
			}
			cur.Status = models.StatusActivated
			if err := tx.Save(ctx, cur, cur.Revision); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := b.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, got.Status)
		assert.Equal(t, 1, got.Revision)
	})

	t.Run("StaleRevisionIsRejected", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		n := NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{n}))

		err := b.WithExclusiveAccess(ctx, n.ID, func(ctx context.Context, tx store.Tx) error {
			cur, err := tx.GetForUpdate(ctx, n.ID)
			if err != nil {
				return err
			}
			return tx.Save(ctx, cur, cur.Revision+5)
		})
		assert.ErrorIs(t, err, store.ErrRevisionConflict)
	})

	t.Run("ExclusiveAccessSerializesSameID", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		n := NewNumber(UniqueNumber())
		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{n}))

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- b.WithExclusiveAccess(ctx, n.ID, func(ctx context.Context, tx store.Tx) error {
					cur, err := tx.GetForUpdate(ctx, n.ID)
					if err != nil {
						return err
					}
					return tx.Save(ctx, cur, cur.Revision)
				})
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}

		got, err := b.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, 1+workers, got.Revision)
	})

	t.Run("HistoryOfUnknownNumber", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.History(context.Background(), uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("ListExpiredReservations", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		now := time.Now().UTC()
		expired := NewNumber(UniqueNumber())
		expired.Status = models.StatusReserved
		expired.HolderID = models.StringPtr("bob")
		past := now.Add(-time.Minute)
		expired.ReservedUntil = &past

		live := NewNumber(UniqueNumber())
		live.Status = models.StatusReserved
		live.HolderID = models.StringPtr("bob")
		future := now.Add(time.Hour)
		live.ReservedUntil = &future

		require.NoError(t, b.SaveAll(ctx, []*models.TelephoneNumber{expired, live}))

		got, err := b.ListExpiredReservations(ctx, now, 1000)
		require.NoError(t, err)

		ids := make(map[uuid.UUID]bool)
		for _, n := range got {
			ids[n.ID] = true
		}
		assert.True(t, ids[expired.ID])
		assert.False(t, ids[live.ID])
	})

	t.Run("JobLifecycle", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		batchID := uuid.Must(uuid.NewV7()).String()
		job := &models.IngestionJob{
			ID:               uuid.Must(uuid.NewV7()),
			BatchID:          batchID,
			FileName:         batchID + "_numbers.csv",
			OriginalFileName: "numbers.csv",
			FileSize:         42,
			UploadedBy:       "carol",
			Status:           models.JobStatusPending,
		}
		require.NoError(t, b.CreateJob(ctx, job))

		claimed, err := b.ClaimJob(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusProcessing, claimed.Status)

		claimed.TotalRecords = 2
		claimed.ProcessedRecords = 2
		require.NoError(t, b.UpdateJob(ctx, claimed))

		retaken, err := b.ClaimJob(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusProcessing, retaken.Status)
		assert.Equal(t, 2, retaken.TotalRecords)
		assert.Equal(t, 2, retaken.ProcessedRecords)

		claimed.Status = models.JobStatusCompleted
		claimed.TotalRecords = 4
		claimed.ProcessedRecords = 3
		require.NoError(t, b.UpdateJob(ctx, claimed))

		_, err = b.ClaimJob(ctx, batchID)
		assert.ErrorIs(t, err, models.ErrInvalidState)

		got, err := b.GetJob(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, 4, got.TotalRecords)
		assert.Equal(t, 3, got.ProcessedRecords)
		assert.Equal(t, 0, got.FailedRecords)

		jobs, err := b.ListJobs(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, jobs)

		_, err = b.GetJob(ctx, "missing-"+batchID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = b.ClaimJob(ctx, "missing-"+batchID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
