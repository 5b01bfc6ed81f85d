// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for
// scmactivity.
//
// Traces go to stdout or an OTLP (gRPC) collector. OpenTelemetry metrics
// go to the default Prometheus registry or stdout. The Prometheus
// collectors registered with promauto by the activity package share the
// same registry, so MetricsHandler serves both.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext is returned when Init receives a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// Exporter names.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// Config selects exporters.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string

	// MetricExporter is "none", "stdout" or "prometheus".
	MetricExporter string

	// OTLPEndpoint is host:port of the OTLP gRPC receiver.
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the receiver.
	OTLPInsecure bool

	// Output receives stdout exporter data. Defaults to os.Stdout.
	Output io.Writer
}

// DefaultConfig exports nothing but Prometheus metrics.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "scmactivity",
		ServiceVersion: "dev",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterPrometheus,
		OTLPInsecure:   true,
	}
}

// Init installs the global tracer and meter providers.
//
// # Outputs
//
//   - shutdown: Flushes and stops the providers. Always non-nil on success.
//   - error: ErrNilContext, ErrUnknownExporter, or an exporter error.
//
// # Thread Safety
//
// Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var stops []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, stop := range stops {
			if err := stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.TraceExporter != "" && cfg.TraceExporter != ExporterNone {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		stops = append(stops, tp.Shutdown)
	}

	if cfg.MetricExporter != "" && cfg.MetricExporter != ExporterNone {
		mp, err := newMeterProvider(cfg, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		stops = append(stops, mp.Shutdown)
	}

	return shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		exporter, err = stdouttrace.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		reader, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
	case ExporterStdout:
		opts := []stdoutmetric.Option{stdoutmetric.WithPrettyPrint()}
		if cfg.Output != nil {
			opts = append(opts, stdoutmetric.WithWriter(cfg.Output))
		}
		exporter, err := stdoutmetric.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
