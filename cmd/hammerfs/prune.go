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

var pruneAll bool

var pruneCmd = &cobra.Command{
	Use:   "prune [volume-path]",
	Short: "Delete historical record versions a retention policy no longer requires",
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
			return fmt.Errorf("hammerfs prune: a volume path is required")
		}
		if !pruneAll {
			return fmt.Errorf("hammerfs prune: --all is the only retention policy this tool currently exposes")
		}

		ctx := cmd.Context()
		mnt, err := openMountForMaintenance(ctx, cfg, factory.New("hammer"), path)
		if err != nil {
			return fmt.Errorf("hammerfs prune: %w", err)
		}
		defer mnt.Close(context.Background())

		deleted, err := maint.NewPruner(mnt.Tree(), maint.PruneAll()).Run(ctx)
		if err != nil {
			return fmt.Errorf("hammerfs prune: %w", err)
		}

		fmt.Printf("pruned %s: %d historical records deleted\n", path, deleted)
		return nil
	},
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneAll, "all", false, "Delete every historical record version (the only policy currently exposed).")
}
