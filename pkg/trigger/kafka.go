package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader used by KafkaConsumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxWait:  500 * time.Millisecond,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, batchID string) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(batchID),
		Value: []byte(batchID),
	})
	if err != nil {
		return fmt.Errorf("failed to publish batch %s: %w", batchID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	reader       MessageReader
	MaxAttempts  int
	RetryBackoff time.Duration
}

func NewKafkaConsumer(reader MessageReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader:       reader,
		MaxAttempts:  3,
		RetryBackoff: 2 * time.Second,
	}
}

func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	logger := log.WithField("component", "trigger")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch trigger message: %w", err)
		}

		batchID := string(msg.Value)
		entry := logger.WithFields(log.Fields{
			"batch_id":  batchID,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		})

		if err := c.handle(ctx, handler, batchID); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			entry.WithError(err).Error("Giving up on trigger message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			entry.WithError(err).Error("Unable to commit trigger message")
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, handler Handler, batchID string) error {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = handler(ctx, batchID)
		if err == nil {
			return nil
		}

		log.WithFields(log.Fields{
			"component": "trigger",
			"batch_id":  batchID,
			"attempt":   attempt,
		}).WithError(err).Warn("Trigger handler failed")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.RetryBackoff):
			}
		}
	}
	return err
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
