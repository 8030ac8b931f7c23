// Package gormstore implements the store contracts on Postgres through gorm.
// Exclusive access is a SELECT ... FOR UPDATE row lock held for the duration
// of a database transaction, and every update is additionally guarded by the
// revision read under that lock.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ store.Store    = (*Store)(nil)
	_ store.JobStore = (*Store)(nil)
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) WithExclusiveAccess(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &numberTx{db: tx})
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	var n models.TelephoneNumber

	err := s.DB.
		WithContext(ctx).
		First(&n, "id = ?", id).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("telephone number %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get telephone number: %w", err)
	}

	return &n, nil
}

func (s *Store) GetMany(ctx context.Context, ids []uuid.UUID) ([]*models.TelephoneNumber, error) {
	if len(ids) == 0 {
		return []*models.TelephoneNumber{}, nil
	}

	var found []*models.TelephoneNumber

	err := s.DB.
		WithContext(ctx).
		Where("id IN ?", ids).
		Find(&found).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to get telephone numbers: %w", err)
	}

	byID := make(map[uuid.UUID]*models.TelephoneNumber, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}

	result := make([]*models.TelephoneNumber, 0, len(found))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			result = append(result, n)
		}
	}

	return result, nil
}

func (s *Store) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var count int64

	err := s.DB.
		WithContext(ctx).
		Model(&models.TelephoneNumber{}).
		Where("number = ?", number).
		Count(&count).
		Error

	if err != nil {
		return false, fmt.Errorf("failed to check number %s: %w", number, err)
	}

	return count > 0, nil
}

func (s *Store) SaveAll(ctx context.Context, numbers []*models.TelephoneNumber) error {
	if len(numbers) == 0 {
		return nil
	}

	err := s.DB.
		WithContext(ctx).
		Create(&numbers).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to save telephone numbers: %w", store.ErrDuplicateNumber)
		}
		return fmt.Errorf("failed to save telephone numbers: %w", err)
	}

	return nil
}

func (s *Store) History(ctx context.Context, id uuid.UUID) ([]models.StatusHistory, error) {
	var count int64

	err := s.DB.
		WithContext(ctx).
		Model(&models.TelephoneNumber{}).
		Where("id = ?", id).
		Count(&count).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to check telephone number: %w", err)
	}

	if count == 0 {
		return nil, fmt.Errorf("telephone number %s: %w", id, models.ErrNotFound)
	}

	var history []models.StatusHistory

	err = s.DB.
		WithContext(ctx).
		Where("telephone_number_id = ?", id).
		Order("created_at DESC, id DESC").
		Find(&history).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}

	return history, nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*models.TelephoneNumber, error) {
	var expired []*models.TelephoneNumber

	q := s.DB.
		WithContext(ctx).
		Where("status = ? AND reserved_until < ?", models.StatusReserved, now).
		Order("reserved_until ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	err := q.Find(&expired).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	return expired, nil
}

type numberTx struct {
	db *gorm.DB
}

func (t *numberTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	var n models.TelephoneNumber

	err := t.db.
		WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&n, "id = ?", id).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("telephone number %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock telephone number: %w", err)
	}

	return &n, nil
}

func (t *numberTx) Save(ctx context.Context, n *models.TelephoneNumber, expectedRevision int) error {
	next := expectedRevision + 1

	updates := map[string]interface{}{
		"status":         n.Status,
		"holder_id":      n.HolderID,
		"reserved_until": n.ReservedUntil,
		"revision":       next,
		"updated_at":     n.UpdatedAt,
	}

	result := t.db.
		WithContext(ctx).
		Model(&models.TelephoneNumber{}).
		Where("id = ? AND revision = ?", n.ID, expectedRevision).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update telephone number: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("telephone number %s at revision %d: %w", n.ID, expectedRevision, store.ErrRevisionConflict)
	}

	n.Revision = next

	return nil
}

func (t *numberTx) AppendHistory(ctx context.Context, entry *models.StatusHistory) error {
	err := t.db.
		WithContext(ctx).
		Create(entry).
		Error

	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	return nil
}
