// Package memstore implements the store contracts in process on top of
// go-memdb. Exclusive access is a striped mutex keyed by number id; every
// commit re-checks the revision inside a single memdb write transaction, so a
// caller that bypasses the lock still cannot overwrite a newer revision.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/store"
)

var (
	_ store.Store    = (*Store)(nil)
	_ store.JobStore = (*Store)(nil)
)

const (
	numbersTable = "numbers"
	historyTable = "history"
	jobsTable    = "jobs"

	idIndex       = "id"
	numberIndex   = "number"
	statusIndex   = "status"
	numberIDIndex = "number_id"
)

type numberRow struct {
	ID     string
	Number string
	Status string
	Value  *models.TelephoneNumber
}

type historyRow struct {
	ID       string
	NumberID string
	Value    models.StatusHistory
}

type jobRow struct {
	ID    string
	Value *models.IngestionJob
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			numbersTable: {
				Name: numbersTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:     {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					numberIndex: {Name: numberIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Number"}},
					statusIndex: {Name: statusIndex, Indexer: &memdb.StringFieldIndex{Field: "Status"}},
				},
			},
			historyTable: {
				Name: historyTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:       {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					numberIDIndex: {Name: numberIDIndex, Indexer: &memdb.StringFieldIndex{Field: "NumberID"}},
				},
			},
			jobsTable: {
				Name: jobsTable,
				Indexes: map[string]*memdb.IndexSchema{
					// jobs are keyed by batch id
					idIndex: {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
		},
	}
}

// lockStripes bounds the number of mutexes no matter how many numbers the
// store has ever locked.
const lockStripes = 256

type Store struct {
	db    *memdb.MemDB
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// lockFor may hand two numbers the same mutex, so callers must never hold
// exclusive access to more than one number at a time.
func (s *Store) lockFor(id uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(id[:])
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) WithExclusiveAccess(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &numberTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	n, err := getNumber(txn, id)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (s *Store) GetMany(_ context.Context, ids []uuid.UUID) ([]*models.TelephoneNumber, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	result := make([]*models.TelephoneNumber, 0, len(ids))
	for _, id := range ids {
		raw, err := txn.First(numbersTable, idIndex, id.String())
		if err != nil {
			return nil, err
		}
		if raw != nil {
			result = append(result, raw.(*numberRow).Value.Clone())
		}
	}
	return result, nil
}

func (s *Store) ExistsByNumber(_ context.Context, number string) (bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(numbersTable, numberIndex, number)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (s *Store) SaveAll(_ context.Context, numbers []*models.TelephoneNumber) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	now := s.now()
	for _, n := range numbers {
		existing, err := txn.First(numbersTable, numberIndex, n.Number)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("number %s: %w", n.Number, store.ErrDuplicateNumber)
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = now
		}
		if n.Revision == 0 {
			n.Revision = 1
		}
		if err := txn.Insert(numbersTable, toNumberRow(n)); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *Store) History(_ context.Context, id uuid.UUID) ([]models.StatusHistory, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	if _, err := getNumber(txn, id); err != nil {
		return nil, err
	}

	it, err := txn.Get(historyTable, numberIDIndex, id.String())
	if err != nil {
		return nil, err
	}

	history := []models.StatusHistory{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		history = append(history, obj.(*historyRow).Value)
	}

	sort.Slice(history, func(i, j int) bool {
		if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		}
		return bytes.Compare(history[i].ID[:], history[j].ID[:]) > 0
	})

	return history, nil
}

func (s *Store) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]*models.TelephoneNumber, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(numbersTable, statusIndex, string(models.StatusReserved))
	if err != nil {
		return nil, err
	}

	var expired []*models.TelephoneNumber
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n := obj.(*numberRow).Value
		if n.ReservedUntil != nil && n.ReservedUntil.Before(now) {
			expired = append(expired, n.Clone())
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ReservedUntil.Before(*expired[j].ReservedUntil)
	})

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func getNumber(txn *memdb.Txn, id uuid.UUID) (*models.TelephoneNumber, error) {
	raw, err := txn.First(numbersTable, idIndex, id.String())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("telephone number %s: %w", id, models.ErrNotFound)
	}
	return raw.(*numberRow).Value, nil
}

func toNumberRow(n *models.TelephoneNumber) *numberRow {
	v := n.Clone()
	return &numberRow{ID: v.ID.String(), Number: v.Number, Status: string(v.Status), Value: v}
}

// numberTx buffers writes until WithExclusiveAccess commits them.
type numberTx struct {
	store   *Store
	saves   []pendingSave
	history []models.StatusHistory
}

type pendingSave struct {
	number           *models.TelephoneNumber
	expectedRevision int
}

func (t *numberTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	return t.store.Get(ctx, id)
}

func (t *numberTx) Save(_ context.Context, n *models.TelephoneNumber, expectedRevision int) error {
	txn := t.store.db.Txn(false)
	defer txn.Abort()

	current, err := getNumber(txn, n.ID)
	if err != nil {
		return err
	}
	if current.Revision != expectedRevision {
		return fmt.Errorf("telephone number %s at revision %d: %w", n.ID, expectedRevision, store.ErrRevisionConflict)
	}

	n.Revision = expectedRevision + 1
	t.saves = append(t.saves, pendingSave{number: n.Clone(), expectedRevision: expectedRevision})
	return nil
}

func (t *numberTx) AppendHistory(_ context.Context, entry *models.StatusHistory) error {
	t.history = append(t.history, *entry)
	return nil
}

func (t *numberTx) commit() error {
	if len(t.saves) == 0 && len(t.history) == 0 {
		return nil
	}

	txn := t.store.db.Txn(true)
	defer txn.Abort()

	for _, p := range t.saves {
		current, err := getNumber(txn, p.number.ID)
		if err != nil {
			return err
		}
		if current.Revision != p.expectedRevision {
			return fmt.Errorf("telephone number %s at revision %d: %w", p.number.ID, p.expectedRevision, store.ErrRevisionConflict)
		}
		if current.Number != p.number.Number {
			return fmt.Errorf("telephone number %s is immutable", current.Number)
		}
		if err := txn.Insert(numbersTable, toNumberRow(p.number)); err != nil {
			return err
		}
	}

	for _, h := range t.history {
		if err := txn.Insert(historyTable, &historyRow{ID: h.ID.String(), NumberID: h.TelephoneNumberID.String(), Value: h}); err != nil {
			return err
		}
	}

	txn.Commit()
	return nil
}
