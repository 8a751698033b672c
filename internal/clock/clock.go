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

// Package clock provides the monotonic time source the storage engine
// consumes from its host (spec §1): wall-clock timestamps for mtime-ish
// bookkeeping and a source of timers for tick-based flusher waits (§5).
// The engine never calls time.Now or time.After directly; every component
// that needs either is handed a Clock at construction.
package clock

import "time"

// Clock is the host-supplied monotonic time source.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel on which the current time is sent after d has
	// elapsed, with time.After's semantics.
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = &SimulatedClock{}
	_ Clock = &FakeClock{}
)
