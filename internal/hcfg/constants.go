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

const (
	// DefaultUndoSizeMB is the UNDO FIFO's size when -undo-size-mb is
	// left at zero, wide enough to absorb several flush groups' worth
	// of dirty meta/data without forcing a sync flush mid-transaction.
	DefaultUndoSizeMB = 128

	// DefaultEntriesPerLayer1 caps how many big-blocks one layer1 span
	// describes by default; Rationalize applies it when the configured
	// value is zero and never widens it for large volumes.
	DefaultEntriesPerLayer1 = 4096

	// DefaultSlaveWorkers is the flusher's slave lane concurrency.
	DefaultSlaveWorkers = 4

	// DefaultReblockFreeLevel is the free-bytes-per-big-block threshold
	// above which the reblocker treats a record as a relocation
	// candidate.
	DefaultReblockFreeLevel = 4096

	// DefaultThrottleThresholdPercent is the UNDO FIFO occupancy, as a
	// percentage, above which front-end cursors are throttled.
	DefaultThrottleThresholdPercent = 50

	// DefaultThrottleRateHz and DefaultThrottleBurst size the token
	// bucket cursors wait on once throttling engages.
	DefaultThrottleRateHz = 200.0
	DefaultThrottleBurst  = 16

	// MaxEntriesPerLayer1 mirrors layout.Layer1Entries (BigBlockSize /
	// 16-byte layer2 entry); duplicated here as an int constant so this
	// package doesn't need to import layout just to validate a flag.
	MaxEntriesPerLayer1 = 524288
)

// Logging-severity name constants, matching hlog's vocabulary.
const (
	LogTrace   = "TRACE"
	LogDebug   = "DEBUG"
	LogInfo    = "INFO"
	LogWarning = "WARNING"
	LogError   = "ERROR"
	LogOff     = "OFF"
)

// Log-format name constants, matching hlog.Format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
