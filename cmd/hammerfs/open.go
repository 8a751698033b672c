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

package main

import (
	"context"
	"log/slog"

	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/flusher"
	"github.com/hammerfs/hammer/internal/hammer"
	"github.com/hammerfs/hammer/internal/hcfg"
	"github.com/prometheus/client_golang/prometheus"
)

// openMountForMaintenance opens path the way every maintenance
// subcommand needs: a live Mount with its flusher running, so a scan's
// writes actually reach durability instead of sitting in dirty
// buffers forever.
func openMountForMaintenance(ctx context.Context, cfg *hcfg.Config, log *slog.Logger, path string) (*hammer.Mount, error) {
	dev, err := device.Open(path, 0)
	if err != nil {
		return nil, err
	}
	mnt, err := hammer.Open(ctx, hammer.Config{
		Vol:              0,
		Dev:              dev,
		UndoSize:         cfg.Format.UndoSizeMB << 20,
		EntriesPerLayer1: cfg.Format.EntriesPerLayer1,
		SlaveWorkers:     cfg.Mount.SlaveWorkers,
		Metrics:          flusher.NewMetrics(prometheus.NewRegistry()),
		Log:              log,
	})
	if err != nil {
		dev.Close()
		return nil, err
	}
	return mnt, nil
}
