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

// Package hammererr defines the error kinds the storage engine surfaces
// across its control surface (spec §7). Every layer (cursor, operation,
// ioctl) wraps one of these sentinels with fmt.Errorf("...: %w", ...); code
// at a boundary tests for a kind with errors.Is, never by string-matching.
package hammererr

import "errors"

var (
	// ErrNotFound is returned by an iterator miss. Benign.
	ErrNotFound = errors.New("hammer: not found")

	// ErrDeadlock signals a retryable lock-ordering conflict. A caller must
	// release whatever it holds and redo the operation; it must never
	// propagate past cursor teardown.
	ErrDeadlock = errors.New("hammer: deadlock, retry")

	// ErrNoSpace is returned when the blockmap cannot satisfy an allocation.
	ErrNoSpace = errors.New("hammer: no space")

	// ErrRange signals an invariant violation. Fatal for the mount; the
	// caller must latch the mount critical-error flag.
	ErrRange = errors.New("hammer: range/invariant violation")

	// ErrIO is a device I/O error. Fatal for the mount; latches critical-error.
	ErrIO = errors.New("hammer: device I/O error")

	// ErrCRC is a CRC mismatch. On meta-data this is ErrRange-equivalent; on
	// data buffers it resolves to ErrCRC (tolerated) or ErrIO depending on
	// the transaction's CRCDOM flag.
	ErrCRC = errors.New("hammer: CRC mismatch")

	// ErrInterrupted is returned by a long-running scan (prune/reblock/
	// rebalance) when its cancellation token fires. Non-fatal; the caller's
	// cursor position is valid and the scan may resume from it.
	ErrInterrupted = errors.New("hammer: interrupted")

	// ErrCritical is returned by any mutating call once the mount has
	// latched its critical-error flag. Read operations still succeed.
	ErrCritical = errors.New("hammer: mount is in critical-error state")

	// ErrReadOnly is returned by any mutating call on a read-only mount.
	ErrReadOnly = errors.New("hammer: mount is read-only")
)

// RetryOnDeadlock runs fn, and if it fails with ErrDeadlock, runs it again
// up to n more times, returning the first result that is not ErrDeadlock
// or the last ErrDeadlock. No package in this module calls it.
func RetryOnDeadlock(n int, fn func() error) error {
	var err error
	for i := 0; i <= n; i++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrDeadlock) {
			return err
		}
	}
	return err
}
