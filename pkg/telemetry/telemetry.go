// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry sets up OpenTelemetry tracing for the HTTP server.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/config"
)

const DefaultServiceName = "leaddesk"

// Options configures the TracerProvider
type Options struct {
	// Enabled installs a no-op provider when false
	Enabled bool

	ServiceName    string
	ServiceVersion string
	// Environment becomes the deployment.environment resource attribute
	Environment string

	// Exporter is "otlp" (default), "stdout" or "none"
	Exporter string

	// Endpoint is the OTLP gRPC collector, e.g. "otel-collector:4317"
	Endpoint string
	Insecure bool

	// Output receives spans from the stdout exporter, os.Stdout when nil
	Output io.Writer

	// SamplingRate is clamped to [0, 1]
	SamplingRate float64

	Logger *zap.SugaredLogger
}

// OptionsFromConfig maps the telemetry config section to Options
func OptionsFromConfig(cfg config.Telemetry, environment, version string, log *zap.SugaredLogger) Options {
	return Options{
		Enabled:        cfg.Enabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    environment,
		Exporter:       cfg.Exporter,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SamplingRate:   cfg.SamplingRate,
		Logger:         log,
	}
}

// ShutdownFunc flushes pending spans and stops the provider
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs the global TracerProvider and propagator. The returned
// ShutdownFunc must be called on shutdown; it is a no-op when tracing is off.
func Init(ctx context.Context, opts Options) (trace.TracerProvider, ShutdownFunc, error) {
	if !opts.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, noopShutdown, nil
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	if opts.SamplingRate < 0 || opts.SamplingRate > 1 {
		log.Warnw("Sampling rate out of range, sampling every trace", "samplingRate", opts.SamplingRate)
		opts.SamplingRate = 1
	}

	res, err := newResource(opts)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplingRate))),
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warnw("OpenTelemetry error", "error", err)
	}))

	log.Infow("Tracing enabled",
		"serviceName", opts.ServiceName,
		"environment", opts.Environment,
		"exporter", opts.Exporter,
		"endpoint", opts.Endpoint,
		"samplingRate", opts.SamplingRate,
	)

	return tp, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// newResource merges the service attributes into the SDK defaults. The
// schemaless resource keeps Merge from failing on a schema URL mismatch.
func newResource(opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
	}
	if opts.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", opts.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("creating OTel resource: %w", err)
	}
	return res, nil
}

// newExporter returns nil for "none": spans are sampled but not exported
func newExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Exporter {
	case "otlp", "":
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP gRPC exporter: %w", err)
		}
		return exp, nil
	case "stdout":
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		return exp, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown OTel exporter %q: supported values are otlp, stdout, none", opts.Exporter)
	}
}
