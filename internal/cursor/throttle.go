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

package cursor

import (
	"context"

	"golang.org/x/time/rate"
)

// Backlog reports the current reclaim backlog depth (e.g. the UNDO FIFO's
// occupied fraction, or a buffer-cache dirty count) that TDMThrottle
// compares against its threshold.
type Backlog func() int

// TDMThrottle is the time-domain-multiplexing throttle of §4.6: while the
// reclaim backlog reported by Backlog is above threshold, front-end
// cursor acquisition (Wait) is delayed so the flusher can make forward
// progress. Below threshold, Wait returns immediately.
type TDMThrottle struct {
	backlog   Backlog
	threshold int
	limiter   *rate.Limiter
}

// NewTDMThrottle returns a throttle that delays callers at rateHz once
// backlog() exceeds threshold. burst is the limiter's token bucket size
// (how many callers may proceed back-to-back before delay kicks in).
func NewTDMThrottle(backlog Backlog, threshold int, rateHz float64, burst int) *TDMThrottle {
	return &TDMThrottle{
		backlog:   backlog,
		threshold: threshold,
		limiter:   rate.NewLimiter(rate.Limit(rateHz), burst),
	}
}

// Wait returns immediately if the backlog is at or below threshold;
// otherwise it blocks until the rate limiter admits this caller. The
// backlog is checked once on entry, not re-checked while waiting. It
// returns the limiter's error if ctx is canceled first.
func (t *TDMThrottle) Wait(ctx context.Context) error {
	if t.backlog() <= t.threshold {
		return nil
	}
	return t.limiter.Wait(ctx)
}
