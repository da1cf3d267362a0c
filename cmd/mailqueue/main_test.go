package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AdewaleAdeniji/mailqueue"
	"github.com/AdewaleAdeniji/mailqueue/internal/config"
	"github.com/AdewaleAdeniji/mailqueue/internal/logging"
	"github.com/AdewaleAdeniji/mailqueue/memory"
	"github.com/AdewaleAdeniji/mailqueue/otelmetrics"
	"github.com/AdewaleAdeniji/mailqueue/transport"
)

func memoryConfig() config.Config {
	return config.Config{
		Addr:            "127.0.0.1:0",
		StoreDriver:     config.DriverMemory,
		MaxRetries:      3,
		SendTimeout:     time.Second,
		SendBurst:       1,
		SweepSchedule:   "@every 1s",
		Transport:       config.TransportLog,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, closer, err := openStore(context.Background(), memoryConfig(), mailqueue.NopLogger{})
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, store)
	require.NoError(t, closer(context.Background()))
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "sqlite"

	_, _, err := openStore(context.Background(), cfg, mailqueue.NopLogger{})
	require.ErrorContains(t, err, "sqlite")
}

func TestOpenStoreMySQLRejectsMalformedDSN(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = config.DriverMySQL
	cfg.StoreDSN = "root@tcp(db:3306"

	_, _, err := openStore(context.Background(), cfg, mailqueue.NopLogger{})
	require.ErrorContains(t, err, "parse dsn")
}

func TestNewTransport(t *testing.T) {
	cfg := memoryConfig()
	tr, err := newTransport(cfg, mailqueue.NopLogger{})
	require.NoError(t, err)
	require.IsType(t, &transport.Log{}, tr)

	cfg.Transport = config.TransportSMTP
	cfg.SMTP = config.SMTP{Addr: "smtp.example.com:587", From: "noreply@example.com"}
	tr, err = newTransport(cfg, mailqueue.NopLogger{})
	require.NoError(t, err)
	require.IsType(t, &transport.SMTP{}, tr)

	cfg.SMTP.Addr = ""
	_, err = newTransport(cfg, mailqueue.NopLogger{})
	require.ErrorIs(t, err, transport.ErrSMTPAddrRequired)

	cfg.Transport = "pigeon"
	_, err = newTransport(cfg, mailqueue.NopLogger{})
	require.Error(t, err)
}

func TestDispatcherOptionsRateLimiter(t *testing.T) {
	cfg := memoryConfig()
	base := dispatcherOptions(cfg, mailqueue.NopLogger{}, mailqueue.NopMetrics{})

	cfg.SendRate = 5
	limited := dispatcherOptions(cfg, mailqueue.NopLogger{}, mailqueue.NopMetrics{})
	require.Len(t, limited, len(base)+1)
}

func TestDispatcherOptionsDeliver(t *testing.T) {
	ctx := context.Background()
	queue, err := mailqueue.NewQueue(memory.NewStore(), mailqueue.WithMaxRetries(2))
	require.NoError(t, err)

	logger, err := logging.New(io.Discard, "error", "text")
	require.NoError(t, err)

	_, err = queue.Enqueue(ctx, mailqueue.Payload{To: "a@example.com"})
	require.NoError(t, err)

	d := mailqueue.NewDispatcher(queue, mailqueue.TransportFunc(func(context.Context, mailqueue.Payload) error {
		return errors.New("rejected")
	}), dispatcherOptions(memoryConfig(), logger, mailqueue.NopMetrics{})...)

	res, err := d.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 1, res.Exhausted)
}

func TestRunStopsOnCancel(t *testing.T) {
	logger, err := logging.New(io.Discard, "error", "text")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, memoryConfig(), logger, io.Discard)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestMeterProviderStdoutExport(t *testing.T) {
	cfg := memoryConfig()
	cfg.MetricsExporter = config.MetricsStdout
	cfg.MetricsInterval = time.Hour

	var out bytes.Buffer
	provider, err := newMeterProvider(cfg, &out)
	require.NoError(t, err)

	metrics := otelmetrics.NewWithProvider(provider)
	metrics.AddEnqueued(2)
	metrics.AddSent(1)

	require.NoError(t, provider.ForceFlush(context.Background()))
	require.Contains(t, out.String(), "mailqueue.entries.enqueued")
	require.Contains(t, out.String(), "mailqueue.entries.sent")
	require.NoError(t, shutdownMeterProvider(context.Background(), provider))
}

func TestMeterProviderDisabled(t *testing.T) {
	var out bytes.Buffer
	provider, err := newMeterProvider(memoryConfig(), &out)
	require.NoError(t, err)

	otelmetrics.NewWithProvider(provider).AddEnqueued(1)
	require.NoError(t, provider.ForceFlush(context.Background()))
	require.NoError(t, shutdownMeterProvider(context.Background(), provider))
	require.Empty(t, out.String())

	cfg := memoryConfig()
	cfg.MetricsExporter = "statsd"
	_, err = newMeterProvider(cfg, &out)
	require.ErrorContains(t, err, "statsd")
}

func TestRunRejectsBadSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.SweepSchedule = "not a schedule"

	err := run(context.Background(), cfg, mailqueue.NopLogger{}, io.Discard)
	require.Error(t, err)
}
