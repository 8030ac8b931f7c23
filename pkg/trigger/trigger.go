// Package trigger carries "batch uploaded" notifications from the upload path
// to the ingestion worker. Delivery is at least once: a message is
// acknowledged only after its handler returned.
package trigger

import (
	"context"
)

// Handler processes one batch. A returned error is retried by the subscriber;
// errors that retrying cannot fix should be absorbed by the handler.
type Handler func(ctx context.Context, batchID string) error

type Publisher interface {
	Publish(ctx context.Context, batchID string) error
}

type Subscriber interface {
	// Run delivers messages to handler until ctx is done.
	Run(ctx context.Context, handler Handler) error
}
