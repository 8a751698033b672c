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

// Rationalize fills in fields left at their zero value with the defaults
// that value would otherwise be indistinguishable from an explicit zero,
// and clamps fields that accept a restricted range. Call it once after
// viper.Unmarshal and before ValidateConfig.
func Rationalize(c *Config) {
	if c.Format.UndoSizeMB == 0 {
		c.Format.UndoSizeMB = DefaultUndoSizeMB
	}
	if c.Format.EntriesPerLayer1 == 0 {
		c.Format.EntriesPerLayer1 = DefaultEntriesPerLayer1
	}
	if c.Mount.SlaveWorkers == 0 {
		c.Mount.SlaveWorkers = DefaultSlaveWorkers
	}
	if c.Throttle.RateHz == 0 {
		c.Throttle.RateHz = DefaultThrottleRateHz
	}
	if c.Throttle.Burst == 0 {
		c.Throttle.Burst = DefaultThrottleBurst
	}
	if c.Reblock.FreeLevel == 0 {
		c.Reblock.FreeLevel = DefaultReblockFreeLevel
	}
	if c.Throttle.ThresholdPercent < 0 {
		c.Throttle.ThresholdPercent = 0
	}
	if c.Throttle.ThresholdPercent > 100 {
		c.Throttle.ThresholdPercent = 100
	}
	if c.Logging.Severity == "" {
		c.Logging.Severity = LogInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}

	// A read-only mount has nothing to flush; pin slave workers to 1 so
	// Open doesn't spin up a pool that will never see work.
	if c.Mount.ReadOnly {
		c.Mount.SlaveWorkers = 1
	}
}
