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

// Package metrics is the process-wide otel meter provider a mounted
// volume's ObservableGauges (free/total big blocks, the next TID, the
// read-only latch) register against. internal/flusher's own Counter and
// Histogram series (internal/flusher/metrics.go) stay on the plain
// client_golang handle it was built with; this package covers only the
// gauges a mount reports about its own standing state, where the
// callback shape of an otel ObservableGauge is the natural fit.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName identifies every instrument this package creates.
const MeterName = "github.com/hammerfs/hammer"

// ShutdownFn flushes and releases a meter provider's resources.
type ShutdownFn func(ctx context.Context) error

// noopShutdown satisfies ShutdownFn for a provider that manages nothing.
func noopShutdown(context.Context) error { return nil }

// Provider owns the otel meter provider backing this process's mount
// gauges and the prometheus registry it exports them through.
type Provider struct {
	reg   *prometheus.Registry
	meter metric.Meter
}

// Init builds a Provider whose instruments are scraped through the
// otel-to-prometheus bridge on its own registry (never the process
// default registerer, so a Provider can be constructed more than once
// in tests without a duplicate-registration panic), installs it as
// otel's global meter provider, and returns a ShutdownFn the caller
// must invoke on exit.
func Init() (*Provider, ShutdownFn, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, noopShutdown, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	return &Provider{reg: reg, meter: mp.Meter(MeterName)}, mp.Shutdown, nil
}

// Handler returns the HTTP handler that serves this Provider's
// registry in the Prometheus exposition format, for a CLI to mount
// under its debug/metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
