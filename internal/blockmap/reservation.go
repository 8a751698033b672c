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

package blockmap

import "github.com/hammerfs/hammer/internal/layout"

// ReservationFlag is a bitmask of the flags spec §3 attaches to a
// Reservation.
type ReservationFlag uint8

const (
	// LAYER2FREE marks a reservation installed when a big-block's
	// bytes_free reached the big-block size: the block's layer2 entry
	// still names its prior owning zone, and must, until the
	// reservation is reaped, since nothing has reset it yet.
	LAYER2FREE ReservationFlag = 1 << iota
	// ONDELAY marks a reservation still sitting on the freemap's delay
	// list awaiting its reuse horizon, as opposed to one already reaped
	// by ReapDelayed.
	ONDELAY
)

// Reservation pins a big-block's append region (the front-end
// reserve/finalize path) or delays a freed big-block's reuse across a
// flush-group horizon (the free/reserve_complete path), per spec §3's
// entity of the same name.
type Reservation struct {
	refs       int32
	Zone       layout.Zone
	Flags      ReservationFlag
	FlushGroup uint64
	AppendOff  int32

	l1idx, bbIdx int
	nbytes       int
	base         layout.Offset
}

// Reusable reports whether doneSeq has advanced far enough past the
// reservation's recorded flush group for its big-block to be handed
// out again (spec §4.3's "free... until flush_group advances past its
// recorded value", §8's Reservation-safety property: "before the
// flusher has advanced done-seq past G+1").
func (r *Reservation) Reusable(doneSeq uint64) bool {
	return doneSeq > r.FlushGroup+1
}

// SeqSource supplies the flusher's current done-seq, the horizon
// ReapDelayed compares a delayed reservation's FlushGroup against.
// Freemap works without one wired (see nullSeqSource): tests and
// standalone use never reap, which is safe, just conservative.
type SeqSource interface {
	DoneSeq() uint64
}

// SetSeqSource wires the flusher's sequence counter into delayed-
// reservation reuse decisions. Mount wires its *flusher.Flusher here
// (it satisfies SeqSource via its own DoneSeq method) once both are
// constructed; blockmap never imports flusher directly, matching
// UndoWriter's decoupling of this package from internal/undo.
func (f *Freemap) SetSeqSource(s SeqSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq = s
}

type nullSeqSource struct{}

// DoneSeq reports no progress, so a Freemap with no SeqSource wired
// never reaps a delayed reservation rather than guessing wrong about
// how far the (nonexistent) flusher has advanced.
func (nullSeqSource) DoneSeq() uint64 { return 0 }

// blockKey identifies one big-block for the delay list, independent of
// which zone currently (or formerly) owns it.
type blockKey struct {
	l1idx, bbIdx int
}
