// Package app assembles the contact service from configuration. Both the
// server and the CLI build through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"contactsvc/internal/contact/events"
	contactmetrics "contactsvc/internal/contact/metrics"
	"contactsvc/internal/contact/lock"
	"contactsvc/internal/contact/ports"
	"contactsvc/internal/contact/service"
	"contactsvc/internal/contact/store"
	"contactsvc/internal/platform/config"
	"contactsvc/internal/platform/database"
	redisclient "contactsvc/internal/platform/redis"
)

// App owns the service and every connection it was built on.
type App struct {
	Service *service.Service
	Metrics *contactmetrics.Metrics

	db     *sqlx.DB
	redis  *redisclient.Client
	kafka  *kgo.Client
	logger *slog.Logger
}

// Build opens the configured store, lock and publisher and wires the
// service. reg receives the contact metrics; nil disables them.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	if reg != nil {
		a.Metrics = contactmetrics.NewWithRegistry(reg)
	}

	tx, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(a.Metrics),
		service.WithTxTimeout(cfg.Reconcile.TxTimeout),
		service.WithMaxAttempts(cfg.Reconcile.MaxAttempts),
	}

	a.redis, err = redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if a.redis != nil {
		opts = append(opts, service.WithLocker(lock.NewRedis(a.redis.Client,
			lock.WithTTL(cfg.Redis.LockTTL),
			lock.WithLogger(logger),
		)))
		logger.Info("distributed reconciliation lock enabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka, err = events.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithPublisher(events.NewKafkaPublisher(a.kafka, cfg.Kafka.Topic,
			events.WithKafkaLogger(logger),
			events.WithKafkaMetrics(a.Metrics),
		)))
		logger.Info("contact events enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	} else {
		opts = append(opts, service.WithPublisher(events.Noop{}))
	}

	a.Service, err = service.New(tx, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (ports.StoreTx, error) {
	if cfg.Database.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory contact store; data is lost on exit")
		return store.NewInMemory(), nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database, database.Up, a.logger); err != nil {
			return nil, err
		}
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db

	storeOpts := []store.Option{store.WithTxTimeout(cfg.Reconcile.TxTimeout)}
	if cfg.Database.Driver == config.DriverSQLite {
		return store.NewSQLite(db, storeOpts...), nil
	}
	return store.NewPostgres(db, storeOpts...), nil
}

// Health pings every external dependency in use.
func (a *App) Health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

// Close flushes and closes every connection. Safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
