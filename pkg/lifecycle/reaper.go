package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/models"
)

const (
	DefaultReaperInterval = time.Minute
	releaseBatchSize      = 500
)

// ReleaseExpired returns every RESERVED number whose reservation has expired
// to AVAILABLE. Numbers that changed meanwhile are skipped. It reports how
// many numbers were released.
func (e *Engine) ReleaseExpired(ctx context.Context) (int, error) {
	now := e.clock.Now()

	expired, err := e.store.ListExpiredReservations(ctx, now, releaseBatchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	released := 0

	for _, candidate := range expired {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}

		_, err := e.mutate(ctx, opRelease, candidate.ID, SystemActor, func(n *models.TelephoneNumber, at time.Time) (string, error) {
			if n.Status != models.StatusReserved || n.ReservedUntil == nil || !n.ReservedUntil.Before(at) {
				return "", fmt.Errorf("telephone number %s no longer holds an expired reservation: %w", n.Number, models.ErrInvalidState)
			}

			applyStatus(n, models.StatusAvailable, SystemActor, at)

			return reasonReservationEnd, nil
		})

		if err != nil {
			entry := log.WithFields(log.Fields{
				"component": "reaper",
				"number_id": candidate.ID,
			}).WithError(err)

			if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrConcurrencyConflict) || errors.Is(err, models.ErrNotFound) {
				entry.Debug("Skipping reservation")
			} else {
				entry.Warn("Failed to release reservation")
			}
			continue
		}

		e.metrics.ReportReservationReleased()
		released++
	}

	return released, nil
}

// Reaper periodically releases expired reservations.
type Reaper struct {
	Engine   *Engine
	Interval time.Duration
}

func NewReaper(engine *Engine, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	return &Reaper{Engine: engine, Interval: interval}
}

// Start runs until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	logger := log.WithField("component", "reaper")
	logger.WithField("interval", r.Interval).Info("Starting reservation reaper")

	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping reservation reaper")
			return
		case <-time.After(r.Interval):
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	released, err := r.Engine.ReleaseExpired(ctx)

	if err != nil {
		if ctx.Err() == nil {
			log.WithField("component", "reaper").WithError(err).Error("Failed to release expired reservations")
		}
		return
	}

	if released > 0 {
		log.WithField("component", "reaper").WithField("released", released).Info("Released expired reservations")
	}
}
