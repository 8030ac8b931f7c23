// Package lifecycle moves telephone numbers through their status lifecycle.
//
// Every operation follows the same protocol: take exclusive access to the
// number, read it with intent to write, re-check the precondition, mutate it,
// append one history entry and save under the revision that was read. Only
// after the store committed is the search projection updated; a projection
// failure is logged and counted but never undoes the committed change.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/clock"
	"github.com/targc/numbervault/pkg/metrics"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
	"github.com/targc/numbervault/pkg/store"
)

const (
	DefaultReservationTTL = 24 * time.Hour

	// SystemActor is recorded on transitions the system makes on its own.
	SystemActor = "system"

	reasonReserved       = "Number reserved"
	reasonAllocated      = "Number allocated"
	reasonStatusChanged  = "Status changed"
	reasonReservationEnd = "Reservation expired"
)

const (
	opReserve      = "reserve"
	opAllocate     = "allocate"
	opChangeStatus = "change_status"
	opRelease      = "release_expired"
)

type Options struct {
	ReservationTTL time.Duration
	Clock          clock.Clock
	Metrics        *metrics.Metrics
}

type Engine struct {
	store      store.Store
	projection search.Projection
	clock      clock.Clock
	ttl        time.Duration
	metrics    *metrics.Metrics
}

// New returns an engine over st. projection may be nil, in which case nothing
// is mirrored and Search is unavailable.
func New(st store.Store, projection search.Projection, opts Options) *Engine {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = DefaultReservationTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	return &Engine{
		store:      st,
		projection: projection,
		clock:      opts.Clock,
		ttl:        opts.ReservationTTL,
		metrics:    opts.Metrics,
	}
}

// Reserve moves an AVAILABLE number to RESERVED, held by actor until
// now + the reservation TTL.
func (e *Engine) Reserve(ctx context.Context, id uuid.UUID, actor string) (*models.TelephoneNumber, error) {
	if actor == "" {
		return nil, fmt.Errorf("actor is required: %w", models.ErrMalformedInput)
	}

	return e.mutate(ctx, opReserve, id, actor, func(n *models.TelephoneNumber, now time.Time) (string, error) {
		if n.Status != models.StatusAvailable {
			return "", fmt.Errorf("telephone number %s is %s, not available for reservation: %w", n.Number, n.Status, models.ErrInvalidState)
		}

		until := now.Add(e.ttl)
		n.Status = models.StatusReserved
		n.HolderID = &actor
		n.ReservedUntil = &until

		return reasonReserved, nil
	})
}

// Allocate moves a number reserved by actor to ALLOCATED.
func (e *Engine) Allocate(ctx context.Context, id uuid.UUID, actor string) (*models.TelephoneNumber, error) {
	if actor == "" {
		return nil, fmt.Errorf("actor is required: %w", models.ErrMalformedInput)
	}

	return e.mutate(ctx, opAllocate, id, actor, func(n *models.TelephoneNumber, _ time.Time) (string, error) {
		if n.Status != models.StatusReserved || n.HolderID == nil || *n.HolderID != actor {
			return "", fmt.Errorf("telephone number %s is not reserved by %s: %w", n.Number, actor, models.ErrInvalidState)
		}

		n.Status = models.StatusAllocated
		n.ReservedUntil = nil

		return reasonAllocated, nil
	})
}

// ChangeStatus applies any transition allowed by the lifecycle table. An
// empty reason is recorded as "Status changed".
func (e *Engine) ChangeStatus(ctx context.Context, id uuid.UUID, next models.Status, actor, reason string) (*models.TelephoneNumber, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", next, models.ErrMalformedInput)
	}
	if actor == "" {
		return nil, fmt.Errorf("actor is required: %w", models.ErrMalformedInput)
	}
	if reason == "" {
		reason = reasonStatusChanged
	}

	return e.mutate(ctx, opChangeStatus, id, actor, func(n *models.TelephoneNumber, now time.Time) (string, error) {
		if !n.Status.CanTransitionTo(next) {
			return "", &models.IllegalTransitionError{From: n.Status, To: next}
		}

		applyStatus(n, next, actor, now.Add(e.ttl))

		return reason, nil
	})
}

// applyStatus sets next and the holder/expiry fields it implies.
func applyStatus(n *models.TelephoneNumber, next models.Status, actor string, reservedUntil time.Time) {
	n.Status = next

	switch next {
	case models.StatusReserved:
		n.HolderID = &actor
		n.ReservedUntil = &reservedUntil
	case models.StatusAllocated:
		// the reservation holder keeps the number
		if n.HolderID == nil {
			n.HolderID = &actor
		}
		n.ReservedUntil = nil
	default:
		n.HolderID = nil
		n.ReservedUntil = nil
	}
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	return e.store.Get(ctx, id)
}

// History returns the status history of a number, newest first.
func (e *Engine) History(ctx context.Context, id uuid.UUID) ([]models.StatusHistory, error) {
	return e.store.History(ctx, id)
}

// Search finds ids in the projection and loads the authoritative rows, keeping
// the projection's order.
func (e *Engine) Search(ctx context.Context, criteria search.Criteria) ([]*models.TelephoneNumber, error) {
	if e.projection == nil {
		return nil, fmt.Errorf("search projection is not configured")
	}

	if criteria.Status != "" && !criteria.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", criteria.Status, models.ErrMalformedInput)
	}

	ids, err := e.projection.Search(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search projection: %w", err)
	}

	if len(ids) == 0 {
		return []*models.TelephoneNumber{}, nil
	}

	return e.store.GetMany(ctx, ids)
}

type mutation func(n *models.TelephoneNumber, now time.Time) (reason string, err error)

func (e *Engine) mutate(ctx context.Context, op string, id uuid.UUID, actor string, apply mutation) (*models.TelephoneNumber, error) {
	var updated *models.TelephoneNumber

	err := e.store.WithExclusiveAccess(ctx, id, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.GetForUpdate(ctx, id)

		if err != nil {
			return err
		}

		old := n.Status
		expected := n.Revision
		now := e.clock.Now()

		reason, err := apply(n, now)

		if err != nil {
			return err
		}

		n.UpdatedAt = now

		err = n.Validate()

		if err != nil {
			return fmt.Errorf("refusing to save: %w", err)
		}

		err = tx.Save(ctx, n, expected)

		if err != nil {
			return err
		}

		err = tx.AppendHistory(ctx, &models.StatusHistory{
			ID:                uuid.Must(uuid.NewV7()),
			TelephoneNumberID: n.ID,
			OldStatus:         &old,
			NewStatus:         n.Status,
			UserID:            actor,
			Reason:            reason,
			CreatedAt:         now,
		})

		if err != nil {
			return err
		}

		updated = n

		return nil
	})

	if err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			err = fmt.Errorf("telephone number %s was modified concurrently, retry the operation: %w", id, models.ErrConcurrencyConflict)
		}
		e.metrics.ReportTransition(op, resultLabel(err))
		return nil, err
	}

	e.metrics.ReportTransition(op, resultLabel(nil))

	log.WithFields(log.Fields{
		"component": "lifecycle",
		"operation": op,
		"number_id": id,
		"status":    updated.Status,
		"actor":     actor,
		"revision":  updated.Revision,
	}).Debug("Transition committed")

	e.project(ctx, op, updated)

	return updated, nil
}

func (e *Engine) project(ctx context.Context, op string, n *models.TelephoneNumber) {
	if e.projection == nil {
		return
	}

	err := e.projection.Upsert(ctx, search.FromNumber(n))

	if err != nil {
		e.metrics.ReportProjectionFailure(op)
		log.WithFields(log.Fields{
			"component": "lifecycle",
			"operation": op,
			"number_id": n.ID,
		}).WithError(err).Warn("Failed to update search projection")
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, models.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, models.ErrMalformedInput):
		return "malformed"
	default:
		return "error"
	}
}
