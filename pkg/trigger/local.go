package trigger

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Local is an in-process Publisher and Subscriber backed by a buffered
// channel. It serves single-process deployments on the memory store.
type Local struct {
	ch chan string
}

func NewLocal(buffer int) *Local {
	return &Local{ch: make(chan string, buffer)}
}

func (l *Local) Publish(ctx context.Context, batchID string) error {
	select {
	case l.ch <- batchID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batchID := <-l.ch:
			if err := handler(ctx, batchID); err != nil {
				log.WithField("component", "trigger").
					WithField("batch_id", batchID).
					WithError(err).
					Error("Trigger handler failed")
			}
		}
	}
}
