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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/layout"
)

// fakeSeqSource lets a test drive the flusher's done-seq directly rather
// than standing up a real Flusher.
type fakeSeqSource struct{ seq uint64 }

func (s *fakeSeqSource) DoneSeq() uint64 { return s.seq }

func TestReservePendingFinalizeMatchesReserve(t *testing.T) {
	fm, ctx, _ := newTestFreemap(t)
	undo := &fakeUndo{}

	resv, err := fm.ReservePending(ctx, undo, layout.ZoneLargeData, 100)
	require.NoError(t, err)
	assert.Equal(t, layout.ZoneLargeData, resv.Zone)
	assert.Equal(t, int32(0), resv.AppendOff)

	off, err := fm.Finalize(ctx, undo, resv)
	require.NoError(t, err)
	assert.Equal(t, uint64(5120), off.Local())

	resv2, err := fm.ReservePending(ctx, undo, layout.ZoneLargeData, 200)
	require.NoError(t, err)
	assert.Equal(t, int32(100), resv2.AppendOff)

	off2, err := fm.Finalize(ctx, undo, resv2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5120+100), off2.Local())
}

func TestReserveDedupDecrementsBytesFreeOnly(t *testing.T) {
	fm, ctx, _ := newTestFreemap(t)
	undo := &fakeUndo{}

	off, err := fm.Reserve(ctx, undo, layout.ZoneLargeData, 1000)
	require.NoError(t, err)

	require.NoError(t, fm.ReserveDedup(ctx, undo, off, 500))

	l1, l1buf, err := fm.readLayer1(ctx, 0)
	require.NoError(t, err)
	defer fm.bufs.Release(ctx, l1buf, false)
	l2, l2buf, _, err := fm.readLayer2(ctx, l1, 0)
	require.NoError(t, err)
	defer fm.bufs.Release(ctx, l2buf, false)

	assert.Equal(t, layout.BigBlockSize-1000-500, int(l2.BytesFree))
	assert.Equal(t, int32(1000), l2.AppendOff)
}

func TestReserveDedupRejectsBeyondDebtCap(t *testing.T) {
	fm, ctx, _ := newTestFreemap(t)
	undo := &fakeUndo{}

	off, err := fm.Reserve(ctx, undo, layout.ZoneLargeData, 100)
	require.NoError(t, err)

	err = fm.ReserveDedup(ctx, undo, off, 2*layout.BigBlockSize)
	assert.Error(t, err)
}

// TestFreeDelaysReuseUntilDoneSeqPassesFlushGroup checks the core
// Reservation-safety property (spec §8): a big-block freed in flush
// group G must not be handed back out by AllocBigBlock until done-seq
// has advanced past G+1, and ReapDelayed is what performs that reset.
func TestFreeDelaysReuseUntilDoneSeqPassesFlushGroup(t *testing.T) {
	fm, ctx, _ := newTestFreemap(t)
	undo := &fakeUndo{}
	seq := &fakeSeqSource{seq: 5}
	fm.SetSeqSource(seq)

	off1, err := fm.AllocBigBlock(ctx, undo, layout.ZoneBTree)
	require.NoError(t, err)
	_, err = fm.AllocBigBlock(ctx, undo, layout.ZoneBTree)
	require.NoError(t, err)

	require.NoError(t, fm.Free(ctx, undo, off1, layout.BigBlockSize))

	// The block is fully free but still gated by its delayed reservation:
	// every other big-block is already claimed, so a third alloc must
	// fail rather than reclaim off1 early.
	_, err = fm.AllocBigBlock(ctx, undo, layout.ZoneBTree)
	assert.Error(t, err)

	n, err := fm.ReapDelayed(ctx, undo)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "horizon has not passed yet")

	seq.seq = 7 // FlushGroup(5) + 1 == 6, done-seq 7 > 6 clears it
	n, err = fm.ReapDelayed(ctx, undo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	off3, err := fm.AllocBigBlock(ctx, undo, layout.ZoneBTree)
	require.NoError(t, err)
	assert.Equal(t, off1.Local(), off3.Local())
}
