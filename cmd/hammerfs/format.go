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
	"fmt"

	"github.com/google/uuid"
	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hammer"
	"github.com/spf13/cobra"
)

var formatSizeMB int64

var formatCmd = &cobra.Command{
	Use:   "format [volume-path]",
	Short: "Lay out a fresh volume",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path := string(cfg.VolumePath)
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("hammerfs format: a volume path is required")
		}

		dev, err := device.Open(path, formatSizeMB<<20)
		if err != nil {
			return err
		}
		defer dev.Close()

		header, err := hammer.Format(cmd.Context(), hammer.FormatConfig{
			Vol:              0,
			Dev:              dev,
			FSID:             uuid.New(),
			UndoSize:         cfg.Format.UndoSizeMB << 20,
			EntriesPerLayer1: cfg.Format.EntriesPerLayer1,
		})
		if err != nil {
			return fmt.Errorf("hammerfs format: %w", err)
		}

		fmt.Printf("formatted %s: fsid=%s, %d big blocks free\n", path, header.FSID, header.Vol0StatFreeBigBlocks)
		return nil
	},
}

func init() {
	formatCmd.Flags().Int64Var(&formatSizeMB, "size-mb", 1024, "Size in MiB of the volume file to create (ignored if it already exists).")
}
