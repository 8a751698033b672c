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

var reblockCmd = &cobra.Command{
	Use:   "reblock [volume-path]",
	Short: "Relocate live records out of fragmented big-blocks",
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
			return fmt.Errorf("hammerfs reblock: a volume path is required")
		}

		ctx := cmd.Context()
		mnt, err := openMountForMaintenance(ctx, cfg, factory.New("hammer"), path)
		if err != nil {
			return fmt.Errorf("hammerfs reblock: %w", err)
		}
		defer mnt.Close(context.Background())

		ringSize := cfg.Format.UndoSizeMB << 20
		reblocker := maint.NewReblocker(maint.ReblockConfig{
			Tree:      mnt.Tree(),
			Freemap:   mnt.Freemap(),
			Bufs:      mnt.Buffers(),
			Undo:      mnt.UndoRing(),
			Vol:       0,
			FreeLevel: cfg.Reblock.FreeLevel,
			ShouldYield: func() bool {
				return mnt.Flusher().ShouldYield(ringSize)
			},
		})
		relocated, err := reblocker.Run(ctx)
		if err != nil {
			return fmt.Errorf("hammerfs reblock: %w", err)
		}

		fmt.Printf("reblocked %s: %d records relocated\n", path, relocated)
		return nil
	},
}
