// Package bootstrap assembles the backends named by the configuration into
// the engine, pipeline and trigger endpoints the binaries run.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/config"
	"github.com/targc/numbervault/pkg/database"
	"github.com/targc/numbervault/pkg/ingest"
	"github.com/targc/numbervault/pkg/lifecycle"
	"github.com/targc/numbervault/pkg/metrics"
	"github.com/targc/numbervault/pkg/search"
	"github.com/targc/numbervault/pkg/search/redisindex"
	"github.com/targc/numbervault/pkg/staging"
	"github.com/targc/numbervault/pkg/staging/fsstage"
	"github.com/targc/numbervault/pkg/staging/s3stage"
	"github.com/targc/numbervault/pkg/store"
	"github.com/targc/numbervault/pkg/store/gormstore"
	"github.com/targc/numbervault/pkg/store/memstore"
	"github.com/targc/numbervault/pkg/trigger"
	"github.com/targc/numbervault/pkg/workpool"
)

type Backend struct {
	Store      store.Store
	Jobs       store.JobStore
	Projection search.Projection
	Staging    staging.Store
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry

	cfg     config.CommonConfig
	local   *trigger.Local
	closers []func() error
}

// Open connects every backend cfg names. With the memory store driver the
// projection runs on an embedded Redis and triggers stay in process.
func Open(ctx context.Context, cfg config.CommonConfig) (*Backend, error) {
	b := &Backend{cfg: cfg}

	err := b.open(ctx, cfg)
	if err != nil {
		if cerr := b.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to release partially opened backends")
		}
		return nil, err
	}

	return b, nil
}

func (b *Backend) open(ctx context.Context, cfg config.CommonConfig) error {

	b.Metrics = metrics.New()
	b.Registry = prometheus.NewRegistry()
	b.Registry.MustRegister(
		b.Metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	err := b.openStore(cfg)
	if err != nil {
		return err
	}

	err = b.openProjection(ctx, cfg)
	if err != nil {
		return err
	}

	b.Staging, err = openStaging(ctx, cfg.Staging)
	if err != nil {
		return err
	}

	if cfg.InMemory() {
		b.local = trigger.NewLocal(64)
	}

	return nil
}

func (b *Backend) openStore(cfg config.CommonConfig) error {
	if cfg.InMemory() {
		st, err := memstore.New()
		if err != nil {
			return fmt.Errorf("failed to create memory store: %w", err)
		}

		log.Warn("Using the in-memory store, data is lost on exit")

		b.Store, b.Jobs = st, st
		return nil
	}

	db, err := database.Connect(cfg.DBURL)
	if err != nil {
		return err
	}

	b.closers = append(b.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if cfg.AutoMigrate {
		err = database.AutoMigrate(db)

		if err != nil {
			return err
		}
	}

	st := gormstore.New(db)
	b.Store, b.Jobs = st, st

	return nil
}

func (b *Backend) openProjection(ctx context.Context, cfg config.CommonConfig) error {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	if cfg.InMemory() {
		mr := miniredis.NewMiniRedis()

		err := mr.Start()
		if err != nil {
			return fmt.Errorf("failed to start embedded redis: %w", err)
		}

		b.closers = append(b.closers, func() error {
			mr.Close()
			return nil
		})

		opts = &redis.Options{Addr: mr.Addr()}
	}

	client := redis.NewClient(opts)
	b.closers = append(b.closers, client.Close)

	err := client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	b.Projection = redisindex.New(client, cfg.Redis.KeyPrefix)

	return nil
}

func openStaging(ctx context.Context, cfg config.StagingConfig) (staging.Store, error) {
	switch cfg.Driver {
	case "s3":
		return s3stage.New(ctx, s3stage.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return fsstage.New(cfg.Dir)
	}
}

func (b *Backend) Engine() *lifecycle.Engine {
	return lifecycle.New(b.Store, b.Projection, lifecycle.Options{
		ReservationTTL: b.cfg.Lifecycle.ReservationTTL,
		Metrics:        b.Metrics,
	})
}

func (b *Backend) Reaper(engine *lifecycle.Engine) *lifecycle.Reaper {
	return lifecycle.NewReaper(engine, b.cfg.Lifecycle.ReaperInterval)
}

func (b *Backend) Pipeline() (*ingest.Pipeline, error) {
	pool, err := workpool.New(b.cfg.Ingest.MaxParallelism)
	if err != nil {
		return nil, err
	}

	return ingest.New(b.Store, b.Jobs, b.Projection, b.Staging, pool, ingest.Options{
		ChunkSize: b.cfg.Ingest.ChunkSize,
		Metrics:   b.Metrics,
	}), nil
}

// Publisher returns where uploads announce new batches.
func (b *Backend) Publisher() trigger.Publisher {
	if b.local != nil {
		return b.local
	}

	publisher := trigger.NewKafkaPublisher(trigger.NewWriter(b.cfg.Kafka.Brokers, b.cfg.Kafka.Topic))
	b.closers = append(b.closers, publisher.Close)

	return publisher
}

// Subscriber returns the consumer side of Publisher.
func (b *Backend) Subscriber() trigger.Subscriber {
	if b.local != nil {
		return b.local
	}

	consumer := trigger.NewKafkaConsumer(trigger.NewReader(b.cfg.Kafka.Brokers, b.cfg.Kafka.Topic, b.cfg.Kafka.GroupID))
	b.closers = append(b.closers, consumer.Close)

	return consumer
}

// Close releases the backends in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
