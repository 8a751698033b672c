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

// Default returns the configuration used before any flag or config file
// has been parsed: the CLI's early startup logging, and a template
// callers otherwise populate from viper.Unmarshal.
func Default() *Config {
	return &Config{
		Format: FormatOptions{
			UndoSizeMB:       DefaultUndoSizeMB,
			EntriesPerLayer1: DefaultEntriesPerLayer1,
		},
		Mount: MountOptions{
			SlaveWorkers: DefaultSlaveWorkers,
		},
		Throttle: ThrottleOptions{
			ThresholdPercent: DefaultThrottleThresholdPercent,
			RateHz:           DefaultThrottleRateHz,
			Burst:            DefaultThrottleBurst,
		},
		Reblock: ReblockOptions{
			FreeLevel: DefaultReblockFreeLevel,
		},
		Logging: LoggingOptions{
			Severity:   LogInfo,
			Format:     LogFormatText,
			MaxSizeMB:  512,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}
