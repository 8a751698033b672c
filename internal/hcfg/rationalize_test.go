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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRationalizeFillsZeroValues(t *testing.T) {
	c := &Config{}
	Rationalize(c)

	assert.Equal(t, int64(DefaultUndoSizeMB), c.Format.UndoSizeMB)
	assert.Equal(t, DefaultEntriesPerLayer1, c.Format.EntriesPerLayer1)
	assert.Equal(t, uint32(DefaultSlaveWorkers), c.Mount.SlaveWorkers)
	assert.Equal(t, float64(DefaultThrottleRateHz), c.Throttle.RateHz)
	assert.Equal(t, DefaultThrottleBurst, c.Throttle.Burst)
	assert.Equal(t, DefaultReblockFreeLevel, c.Reblock.FreeLevel)
	assert.Equal(t, LogSeverity(LogInfo), c.Logging.Severity)
	assert.Equal(t, LogFormat(LogFormatText), c.Logging.Format)
}

func TestRationalizeClampsThrottleThreshold(t *testing.T) {
	c := Default()
	c.Throttle.ThresholdPercent = -5
	Rationalize(c)
	assert.Equal(t, 0, c.Throttle.ThresholdPercent)

	c.Throttle.ThresholdPercent = 500
	Rationalize(c)
	assert.Equal(t, 100, c.Throttle.ThresholdPercent)
}

func TestRationalizePinsSlaveWorkersForReadOnly(t *testing.T) {
	c := Default()
	c.Mount.ReadOnly = true
	c.Mount.SlaveWorkers = 8
	Rationalize(c)
	assert.Equal(t, uint32(1), c.Mount.SlaveWorkers)
}
