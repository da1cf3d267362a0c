package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/time/rate"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/config"
	"github.com/AdewaleAdeniji/mailqueue/memory"
	"github.com/AdewaleAdeniji/mailqueue/mongo"
	"github.com/AdewaleAdeniji/mailqueue/mysql"
	"github.com/AdewaleAdeniji/mailqueue/postgres"
	"github.com/AdewaleAdeniji/mailqueue/transport"
)

const eligibleInterval = 30 * time.Second

type closeFunc func(context.Context) error

func noopClose(context.Context) error { return nil }

// openStore connects the configured backend and prepares its schema or indexes.
func openStore(ctx context.Context, cfg config.Config, logger mailqueue.Logger) (mailqueue.Store, closeFunc, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("mailqueue using in-memory store, entries are lost on restart")

		return memory.NewStore(), noopClose, nil

	case config.DriverMongo:
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.StoreDSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)

			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		var opts []mongo.Option
		if cfg.Table != "" {
			opts = append(opts, mongo.WithCollection(cfg.Table))
		}
		store, err := mongo.NewStore(client.Database(cfg.DBName), opts...)
		if err != nil {
			_ = client.Disconnect(ctx)

			return nil, nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)

			return nil, nil, err
		}
		logger.Info("mailqueue connected to mongo", "db", cfg.DBName)

		return store, client.Disconnect, nil

	case config.DriverMySQL:
		dsn, err := mysql.NormalizeDSN(cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		closer := func(context.Context) error { return db.Close() }
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()

			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		var opts []mysql.Option
		if cfg.Table != "" {
			opts = append(opts, mysql.WithTable(cfg.Table))
		}
		store, err := mysql.NewStore(db, opts...)
		if err != nil {
			_ = db.Close()

			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()

			return nil, nil, err
		}
		logger.Info("mailqueue connected to mysql")

		return store, closer, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closer := func(context.Context) error {
			pool.Close()

			return nil
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		var opts []postgres.Option
		if cfg.Table != "" {
			opts = append(opts, postgres.WithTable(cfg.Table))
		}
		store, err := postgres.NewStore(pool, opts...)
		if err != nil {
			pool.Close()

			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			pool.Close()

			return nil, nil, err
		}
		logger.Info("mailqueue connected to postgres")

		return store, closer, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newTransport(cfg config.Config, logger mailqueue.Logger) (mailqueue.Transport, error) {
	switch cfg.Transport {
	case config.TransportLog:
		return transport.NewLog(logger), nil
	case config.TransportSMTP:
		smtp, err := transport.NewSMTP(transport.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Timeout:  cfg.SendTimeout,
		})
		if err != nil {
			return nil, err
		}

		return smtp, nil
	}

	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func dispatcherOptions(cfg config.Config, logger mailqueue.Logger, metrics mailqueue.Metrics) []mailqueue.DispatcherOption {
	opts := []mailqueue.DispatcherOption{
		mailqueue.WithLogger(logger),
		mailqueue.WithMetrics(metrics),
		mailqueue.WithSendTimeout(cfg.SendTimeout),
		mailqueue.WithSingleFlight(cfg.SingleFlight),
		mailqueue.WithEligibleInterval(eligibleInterval),
		mailqueue.WithExhaustedHandler(func(_ context.Context, entry mailqueue.Entry, err error) {
			logger.Error("mailqueue entry abandoned",
				"id", entry.ID,
				"to", entry.Payload.To,
				"attempts", entry.RetryCount,
				"err", err,
			)
		}),
	}
	if cfg.SendRate > 0 {
		opts = append(opts, mailqueue.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst)))
	}

	return opts
}
