// Command mailqueue runs the HTTP ingress and the dispatcher over a persistent email queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/app"
	"github.com/AdewaleAdeniji/mailqueue/internal/config"
	"github.com/AdewaleAdeniji/mailqueue/internal/ingress"
	"github.com/AdewaleAdeniji/mailqueue/internal/logging"
	"github.com/AdewaleAdeniji/mailqueue/otelmetrics"
)

const (
	exitUsage         = 2
	readHeaderTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("mailqueue stopped", "err", err)
		os.Exit(1)
	}
}

// run serves until ctx ends. Exported metrics are written to metricsOut.
func run(ctx context.Context, cfg config.Config, logger mailqueue.Logger, metricsOut io.Writer) (err error) {
	provider, err := newMeterProvider(cfg, metricsOut)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err = errors.Join(err, shutdownMeterProvider(shutdownCtx, provider))
	}()

	metrics := otelmetrics.NewWithProvider(provider)
	application := app.New(logger, metrics)

	var sweeper *app.Sweeper
	if cfg.SweepSchedule != "" {
		schedule, err := config.ParseSchedule(cfg.SweepSchedule)
		if err != nil {
			return err
		}
		sweeper = app.NewSweeper(schedule, application.Sweep, logger)
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	server := &http.Server{
		Handler:           ingress.NewHandler(application, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("mailqueue listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	})

	var closeStore func(context.Context) error
	g.Go(func() error {
		store, closer, err := openStore(gctx, cfg, logger)
		if err != nil {
			return err
		}
		closeStore = closer

		queue, err := mailqueue.NewQueue(store, mailqueue.WithMaxRetries(cfg.MaxRetries))
		if err != nil {
			return err
		}
		transport, err := newTransport(cfg, logger)
		if err != nil {
			return err
		}
		dispatcher := mailqueue.NewDispatcher(queue, transport, dispatcherOptions(cfg, logger, metrics)...)

		return application.Init(queue, dispatcher)
	})

	if sweeper != nil {
		g.Go(func() error {
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("mailqueue shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Init may land after shutdown started, so the dispatcher is closed only
	// once every goroutine has returned.
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = errors.Join(err, application.Close(closeCtx))
	if closeStore != nil {
		err = errors.Join(err, closeStore(closeCtx))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
