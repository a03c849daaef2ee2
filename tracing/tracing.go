// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package tracing wires an OpenTelemetry TracerProvider exporting over OTLP
// HTTP, for following a client request across Prepare/Commit/Reply the way
// an operator would when chasing a tail-latency complaint.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OTLP exporter, per the tracing_endpoint config
// option a replica reads at startup.
type Config struct {
	Endpoint    string
	ReplicaName string
	Insecure    bool
}

// Setup builds a TracerProvider exporting to cfg.Endpoint and installs it as
// the global provider, returning a shutdown func the daemon defers.
func Setup(ctx context.Context, cfg Config) (trace.Tracer, func(context.Context) error, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	client := otlptracehttp.NewClient(opts...)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("kimberlite"),
			attribute.String("replica", cfg.ReplicaName),
		),
	)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer("kimberlite/vsr"), tp.Shutdown, nil
}

// EndSpanFunc records err (if any) and ends the span.
type EndSpanFunc func(err error)

// StartSpan starts a child span named name under ctx's span, returning the
// derived context and an EndSpanFunc the caller defers.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, EndSpanFunc) {
	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return spanCtx, span, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// NoopTracer returns a Tracer that records nothing, for daemons started
// without a tracing_endpoint configured.
func NoopTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("noop")
}

// elapsedAttr is a convenience attribute for span duration logging outside
// of the span itself, e.g. when mirroring a duration into a metrics.Timer.
func elapsedAttr(start time.Time) attribute.KeyValue {
	return attribute.Int64("elapsed_ms", time.Since(start).Milliseconds())
}
