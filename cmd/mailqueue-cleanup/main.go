// Command mailqueue-cleanup removes sent entries older than a retention window.
//
// Exhausted entries are never removed. For MySQL the pass is serialised
// across replicas with GET_LOCK so it can run as a CronJob next to the service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/config"
	"github.com/AdewaleAdeniji/mailqueue/internal/logging"
	"github.com/AdewaleAdeniji/mailqueue/mongo"
	"github.com/AdewaleAdeniji/mailqueue/mysql"
	"github.com/AdewaleAdeniji/mailqueue/postgres"
)

const exitUsage = 2

var (
	errDSNRequired       = errors.New("dsn is required")
	errRetentionRequired = errors.New("retention must be positive")
)

type cleanupOptions struct {
	driver     string
	dsn        string
	dbName     string
	table      string
	retention  time.Duration
	checkEvery time.Duration
	limit      int
	lockName   string
	once       bool
	verbose    bool
}

// deleter removes sent entries at or before cutoff and reports how many were removed.
type deleter func(ctx context.Context, cutoff time.Time) (int64, error)

func parseOptions(args []string, output io.Writer) (cleanupOptions, error) {
	var opts cleanupOptions

	fs := flag.NewFlagSet("mailqueue-cleanup", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.driver, "driver", config.DriverMySQL, "store driver: mysql, postgres or mongo")
	fs.StringVar(&opts.dsn, "dsn", "", "store DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	fs.StringVar(&opts.dbName, "db", "mailqueue", "mongo database name")
	fs.StringVar(&opts.table, "table", "", "queue table or collection name (empty uses the store default)")
	fs.DurationVar(&opts.retention, "retention", 0, "delete entries sent longer ago than this")
	fs.DurationVar(&opts.checkEvery, "check-every", time.Hour, "how often to run cleanup")
	fs.IntVar(&opts.limit, "limit", 0, "max rows deleted per MySQL run (0 uses default)")
	fs.StringVar(&opts.lockName, "lock-name", "", "MySQL advisory lock name (optional)")
	fs.BoolVar(&opts.once, "once", false, "run once and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return cleanupOptions{}, err
	}

	var errs []error
	if opts.dsn == "" {
		errs = append(errs, errDSNRequired)
	}
	if opts.retention <= 0 {
		errs = append(errs, errRetentionRequired)
	}
	switch opts.driver {
	case config.DriverMySQL, config.DriverPostgres, config.DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("unsupported driver %q", opts.driver))
	}
	if err := errors.Join(errs...); err != nil {
		return cleanupOptions{}, err
	}

	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitUsage)
	}

	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(os.Stdout, level, "text")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("cleanup stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts cleanupOptions, logger mailqueue.Logger) error {
	switch opts.driver {
	case config.DriverMySQL:
		return runMySQL(ctx, opts, logger)
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, opts.dsn)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pool.Close()

		var storeOpts []postgres.Option
		if opts.table != "" {
			storeOpts = append(storeOpts, postgres.WithTable(opts.table))
		}
		store, err := postgres.NewStore(pool, storeOpts...)
		if err != nil {
			return err
		}

		return runLoop(ctx, opts, store.DeleteSentBefore, mailqueue.SystemClock{}, logger)
	case config.DriverMongo:
		client, err := mongod.Connect(options.Client().ApplyURI(opts.dsn))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() {
			_ = client.Disconnect(context.WithoutCancel(ctx))
		}()

		var storeOpts []mongo.Option
		if opts.table != "" {
			storeOpts = append(storeOpts, mongo.WithCollection(opts.table))
		}
		store, err := mongo.NewStore(client.Database(opts.dbName), storeOpts...)
		if err != nil {
			return err
		}

		return runLoop(ctx, opts, store.DeleteSentBefore, mailqueue.SystemClock{}, logger)
	}

	return fmt.Errorf("unsupported driver %q", opts.driver)
}

func runMySQL(ctx context.Context, opts cleanupOptions, logger mailqueue.Logger) error {
	dsn, err := mysql.NormalizeDSN(opts.dsn)
	if err != nil {
		return err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
		Table:      opts.table,
		Retention:  opts.retention,
		CheckEvery: opts.checkEvery,
		Limit:      opts.limit,
		LockName:   opts.lockName,
		Clock:      mailqueue.SystemClock{},
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init maintainer: %w", err)
	}

	if opts.once {
		result, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("cleanup done", "sent", result.Sent)

		return nil
	}

	if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
}

// runLoop drives stores that have no cross-process lock. Their deletes are
// idempotent, so concurrent runs only waste work.
func runLoop(ctx context.Context, opts cleanupOptions, del deleter, clock mailqueue.Clock, logger mailqueue.Logger) error {
	pass := func() error {
		removed, err := del(ctx, clock.Now().Add(-opts.retention))
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("cleanup done", "sent", removed)

		return nil
	}

	if err := pass(); err != nil || opts.once {
		return err
	}

	ticker := time.NewTicker(opts.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := pass(); err != nil {
				logger.Warn("cleanup failed", "err", err)
			}
		}
	}
}
