// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing sets up the tracer the engine's cursor, B+Tree, and
// flusher packages start spans on (cursor descent, node split/rebalance,
// flush-group finalize). Those packages call this package's Start,
// which uses otel's global tracer, so tracing stays off (a no-op
// tracer) until the mount command's --trace flag wires a real provider
// here.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies every span this engine starts, the way a
// component field tags a log line.
const TracerName = "github.com/hammerfs/hammer"

// ShutdownFn flushes and releases a tracer provider's resources.
type ShutdownFn func(ctx context.Context) error

// noopShutdown satisfies ShutdownFn for a provider that manages nothing.
func noopShutdown(context.Context) error { return nil }

// Tracer returns the engine-wide tracer. Before Init is called this is
// otel's global no-op tracer, so every Start call is free.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Init builds a tracer provider that writes spans as JSON to w (stdout in
// the common case) and installs it as otel's global provider, returning
// a ShutdownFn the caller must invoke on exit to flush pending spans.
func Init(w io.Writer, pretty bool) (ShutdownFn, error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return noopShutdown, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
