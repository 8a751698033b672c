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

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MountStats is the subset of *hammer.Mount this package observes.
// Declaring it here instead of importing internal/hammer keeps this
// package out of that package's dependency chain; internal/hammer's
// Mount already implements it with no changes, since both methods are
// already part of its exported surface (spec §9's Stats call).
type MountStats interface {
	Stats() (freeBigBlocks, totalBigBlocks int64, nextTID uint64)
	ReadOnly() bool
}

// RegisterMount installs ObservableGauges for one mounted volume,
// identified in every series by a "volume" attribute set to name. The
// callback re-reads stats on every collection, so there is nothing to
// unregister on unmount beyond dropping the returned registration.
func (p *Provider) RegisterMount(name string, stats MountStats) (metric.Registration, error) {
	attrs := attribute.NewSet(attribute.String("volume", name))
	set := metric.WithAttributeSet(attrs)

	freeBigBlocks, err := p.meter.Int64ObservableGauge(
		"hammer_free_big_blocks",
		metric.WithDescription("Big blocks not currently allocated to any layer2 entry."),
	)
	if err != nil {
		return nil, err
	}
	totalBigBlocks, err := p.meter.Int64ObservableGauge(
		"hammer_total_big_blocks",
		metric.WithDescription("Big blocks addressable by this volume's layer1/layer2 blockmap."),
	)
	if err != nil {
		return nil, err
	}
	nextTID, err := p.meter.Int64ObservableGauge(
		"hammer_next_transaction_id",
		metric.WithDescription("The transaction ID the next transit will be assigned."),
	)
	if err != nil {
		return nil, err
	}
	readOnly, err := p.meter.Int64ObservableGauge(
		"hammer_mount_read_only",
		metric.WithDescription("1 if the mount is read-only (by flag or a latched critical error), 0 otherwise."),
	)
	if err != nil {
		return nil, err
	}

	return p.meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			free, total, tid := stats.Stats()
			o.ObserveInt64(freeBigBlocks, free, set)
			o.ObserveInt64(totalBigBlocks, total, set)
			o.ObserveInt64(nextTID, int64(tid), set)
			ro := int64(0)
			if stats.ReadOnly() {
				ro = 1
			}
			o.ObserveInt64(readOnly, ro, set)
			return nil
		},
		freeBigBlocks, totalBigBlocks, nextTID, readOnly,
	)
}
