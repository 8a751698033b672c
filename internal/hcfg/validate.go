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

package hcfg

import "fmt"

// ValidateConfig returns a non-nil error if c cannot be acted on, after
// Rationalize has already filled in its zero-valued defaults.
func ValidateConfig(c *Config) error {
	if c.VolumePath == "" {
		return fmt.Errorf("volume-path is required")
	}
	if c.Format.UndoSizeMB <= 0 {
		return fmt.Errorf("format.undo-size-mb must be positive, got %d", c.Format.UndoSizeMB)
	}
	if c.Format.EntriesPerLayer1 <= 0 || c.Format.EntriesPerLayer1 > MaxEntriesPerLayer1 {
		return fmt.Errorf("format.entries-per-layer1 must be in (0, %d], got %d", MaxEntriesPerLayer1, c.Format.EntriesPerLayer1)
	}
	if c.Mount.SlaveWorkers == 0 {
		return fmt.Errorf("mount.slave-workers must be positive")
	}
	if c.Throttle.ThresholdPercent < 0 || c.Throttle.ThresholdPercent > 100 {
		return fmt.Errorf("throttle.threshold-percent must be in [0, 100], got %d", c.Throttle.ThresholdPercent)
	}
	if c.Throttle.RateHz <= 0 {
		return fmt.Errorf("throttle.rate-hz must be positive, got %f", c.Throttle.RateHz)
	}
	if c.Throttle.Burst <= 0 {
		return fmt.Errorf("throttle.burst must be positive, got %d", c.Throttle.Burst)
	}
	if c.Reblock.FreeLevel < 0 {
		return fmt.Errorf("reblock.free-level must be non-negative, got %d", c.Reblock.FreeLevel)
	}
	if c.Logging.MaxSizeMB <= 0 && c.Logging.File != "" {
		return fmt.Errorf("logging.max-size-mb must be positive when logging.file is set")
	}
	return nil
}
