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
	"fmt"

	"github.com/hammerfs/hammer/internal/maint"
	"github.com/spf13/cobra"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance [volume-path]",
	Short: "Merge under-full B-Tree nodes and report the resulting leaf occupancy",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, factory, err := loadConfig()
		if err != nil {
			return err
		}
		path := string(cfg.VolumePath)
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("hammerfs rebalance: a volume path is required")
		}

		ctx := cmd.Context()
		mnt, err := openMountForMaintenance(ctx, cfg, factory.New("hammer"), path)
		if err != nil {
			return fmt.Errorf("hammerfs rebalance: %w", err)
		}
		defer mnt.Close(context.Background())

		stats, err := maint.NewRebalancer(mnt.Tree()).Run(ctx)
		if err != nil {
			return fmt.Errorf("hammerfs rebalance: %w", err)
		}

		fmt.Printf("%s: %d leaves, %d elements, %.1f%% occupancy\n", path, stats.Leaves, stats.Elements, stats.FillRatio()*100)
		return nil
	},
}
