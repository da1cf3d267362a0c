package main

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/AdewaleAdeniji/mailqueue/internal/config"
)

// newMeterProvider builds the provider behind otelmetrics. With no exporter
// configured the provider has no reader and recording is dropped.
func newMeterProvider(cfg config.Config, out io.Writer) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricsExporter {
	case "", config.MetricsNone:
		return sdkmetric.NewMeterProvider(), nil
	case config.MetricsStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricsInterval))

		return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
	}

	return nil, fmt.Errorf("unknown metrics exporter %q", cfg.MetricsExporter)
}

func shutdownMeterProvider(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}

	return nil
}
