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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/blockmap"
	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/hlog"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/undo"
)

// entrySlot mirrors internal/btree's own test harness constant: one
// marshaled layer1/layer2 entry is padded out to one 512-byte device
// sector.
const entrySlot = 512

func newTestCursor(t *testing.T) (*Cursor, context.Context) {
	t.Helper()
	ctx := context.Background()

	const undoBase = 0
	const undoSize = 64 * 1024
	const layer1Local = undoBase + undoSize
	const layer2Local = layer1Local + entrySlot
	const dataBaseLocal = layer2Local + entrySlot

	devSize := int64(dataBaseLocal) + int64(layout.BigBlockSize)
	dev := device.NewMemDevice(devSize)
	bufs := iobuf.NewManager(hlog.Default())
	bufs.AddVolume(0, dev)

	l1 := layout.Layer1Entry{PhysOffset: layout.NewOffset(layout.ZoneFreemap, layer2Local), BlocksFree: 1}
	enc, err := l1.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, dev.WriteAt(ctx, pad512(enc), layer1Local))

	l2 := layout.Layer2Entry{Zone: layout.ZoneUnavail, AppendOff: 0, BytesFree: layout.BigBlockSize}
	enc, err = l2.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, dev.WriteAt(ctx, pad512(enc), layer2Local))

	ring := undo.NewRing(0, layout.NewOffset(layout.ZoneUndo, undoBase), undoSize, bufs)

	freeBigBlocks := int64(1)
	alloc := blockmap.NewFreemap(0, bufs,
		layout.NewOffset(layout.ZoneFreemap, layer1Local), 1, 1,
		layout.NewOffset(layout.ZoneBTree, dataBaseLocal), &freeBigBlocks)

	tree, err := btree.NewEmptyTree(ctx, 0, bufs, ring, alloc)
	require.NoError(t, err)

	c := New(tree, NewLockCache(), NewTrackedList(), nil)
	return c, ctx
}

func pad512(b []byte) []byte {
	out := make([]byte, 512)
	copy(out, b)
	return out
}

func key(localization uint32, objID, elementKey, createTID uint64) layout.Key {
	return layout.Key{Localization: localization, ObjID: objID, RecType: 1, ElementKey: elementKey, CreateTID: createTID}
}

func TestCursorSeekFindsInsertedElement(t *testing.T) {
	c, ctx := newTestCursor(t)
	k := key(1, 100, 5, 10)
	require.NoError(t, c.tree.Insert(ctx, layout.LeafElem{Base: k}))

	got, err := c.Seek(ctx, k, false)
	require.NoError(t, err)
	assert.Equal(t, k, got.Base)
	assert.Equal(t, StateLocked, c.State())
}

func TestCursorSeekMissReturnsNotFound(t *testing.T) {
	c, ctx := newTestCursor(t)
	_, err := c.Seek(ctx, key(1, 1, 1, 1), false)
	assert.True(t, errors.Is(err, hammererr.ErrNotFound))
}

func TestCursorNextAdvancesInKeyOrder(t *testing.T) {
	c, ctx := newTestCursor(t)
	k1 := key(1, 100, 1, 10)
	k2 := key(1, 100, 2, 10)
	require.NoError(t, c.tree.Insert(ctx, layout.LeafElem{Base: k1}))
	require.NoError(t, c.tree.Insert(ctx, layout.LeafElem{Base: k2}))

	_, err := c.Seek(ctx, k1, false)
	require.NoError(t, err)

	got, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, k2, got.Base)
}

func TestCursorLockUnlockTransitions(t *testing.T) {
	c, ctx := newTestCursor(t)
	k := key(1, 100, 5, 10)
	require.NoError(t, c.tree.Insert(ctx, layout.LeafElem{Base: k}))
	_, err := c.Seek(ctx, k, false)
	require.NoError(t, err)

	c.UnlockCursor()
	assert.Equal(t, StateTracked, c.State())

	c.LockCursor()
	assert.Equal(t, StateLocked, c.State())
}

func TestCursorCloseFromTrackedRemovesFromList(t *testing.T) {
	c, ctx := newTestCursor(t)
	k := key(1, 100, 5, 10)
	require.NoError(t, c.tree.Insert(ctx, layout.LeafElem{Base: k}))
	_, err := c.Seek(ctx, k, false)
	require.NoError(t, err)

	c.mu.Lock()
	c.leafOff = layout.NewOffset(layout.ZoneBTree, 4096)
	c.index = 0
	c.mu.Unlock()

	c.UnlockCursor()
	assert.Len(t, c.tracked.byOff[c.leafOff], 1)

	c.Close()
	assert.Equal(t, StateDone, c.State())
	assert.Len(t, c.tracked.byOff[c.leafOff], 0)
}

func TestNodeLockTryUpgradeSucceedsForSoleReader(t *testing.T) {
	l := &nodeLock{}
	l.rlock()
	assert.True(t, l.tryUpgrade())
}

func TestNodeLockTryUpgradeFailsWithMultipleReaders(t *testing.T) {
	l := &nodeLock{}
	l.rlock()
	l.rlock()
	assert.False(t, l.tryUpgrade())
}

func TestNodeLockTryUpgradeFailsIfAlreadyWriter(t *testing.T) {
	l := &nodeLock{}
	l.lock()
	assert.False(t, l.tryUpgrade())
}

func TestCursorUpgradeLockReportsDeadlockOnFailure(t *testing.T) {
	c, _ := newTestCursor(t)
	off := layout.NewOffset(layout.ZoneBTree, 4096)

	l := c.locks.get(off)
	l.rlock()
	l.rlock()

	err := c.UpgradeLock(off)
	assert.True(t, errors.Is(err, hammererr.ErrDeadlock))
	assert.Equal(t, off, c.DeadlkNode())
}

func TestCursorUpgradeLockSucceedsForSoleHolder(t *testing.T) {
	c, _ := newTestCursor(t)
	off := layout.NewOffset(layout.ZoneBTree, 4096)

	l := c.locks.get(off)
	l.rlock()

	require.NoError(t, c.UpgradeLock(off))
}

func TestLockCacheReturnsSameLockForSameOffset(t *testing.T) {
	cache := NewLockCache()
	off := layout.NewOffset(layout.ZoneBTree, 8192)
	assert.Same(t, cache.get(off), cache.get(off))
}

func TestTrackedListOnInsertShiftsIndexAtOrAfter(t *testing.T) {
	tl := NewTrackedList()
	off := layout.NewOffset(layout.ZoneBTree, 4096)
	c := &Cursor{leafOff: off, index: 2}
	tl.Track(off, c)

	tl.OnInsert(off, 1)
	assert.Equal(t, 3, c.index)

	tl.OnInsert(off, 5)
	assert.Equal(t, 3, c.index)
}

func TestTrackedListOnDeleteMarksRipoutAtExactMatch(t *testing.T) {
	tl := NewTrackedList()
	off := layout.NewOffset(layout.ZoneBTree, 4096)
	c := &Cursor{leafOff: off, index: 2}
	tl.Track(off, c)

	tl.OnDelete(off, 2)
	assert.True(t, c.ripout)
	assert.True(t, c.retest)
}

func TestTrackedListOnDeleteShiftsIndexAbove(t *testing.T) {
	tl := NewTrackedList()
	off := layout.NewOffset(layout.ZoneBTree, 4096)
	c := &Cursor{leafOff: off, index: 5}
	tl.Track(off, c)

	tl.OnDelete(off, 2)
	assert.Equal(t, 4, c.index)
	assert.False(t, c.ripout)
}

func TestTrackedListOnSplitMovesCursorsPastSplitIndex(t *testing.T) {
	tl := NewTrackedList()
	oldOff := layout.NewOffset(layout.ZoneBTree, 4096)
	newOff := layout.NewOffset(layout.ZoneBTree, 8192)
	stay := &Cursor{leafOff: oldOff, index: 1}
	move := &Cursor{leafOff: oldOff, index: 4}
	tl.Track(oldOff, stay)
	tl.Track(oldOff, move)

	tl.OnSplit(oldOff, newOff, 3)

	assert.Equal(t, oldOff, stay.leafOff)
	assert.Equal(t, 1, stay.index)
	assert.Equal(t, newOff, move.leafOff)
	assert.Equal(t, 1, move.index)
	assert.Len(t, tl.byOff[oldOff], 1)
	assert.Len(t, tl.byOff[newOff], 1)
}

func TestTrackedListOnRemoveMigratesToParent(t *testing.T) {
	tl := NewTrackedList()
	childOff := layout.NewOffset(layout.ZoneBTree, 4096)
	parentOff := layout.NewOffset(layout.ZoneBTree, 8192)
	c := &Cursor{leafOff: childOff, index: 3}
	tl.Track(childOff, c)

	tl.OnRemove(childOff, parentOff)

	assert.Equal(t, parentOff, c.leafOff)
	assert.Equal(t, 0, c.index)
	assert.True(t, c.retest)
	assert.Len(t, tl.byOff[childOff], 0)
	assert.Len(t, tl.byOff[parentOff], 1)
}

func TestTDMThrottleSkipsWaitUnderThreshold(t *testing.T) {
	th := NewTDMThrottle(func() int { return 0 }, 10, 1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, th.Wait(ctx))
}

func TestTDMThrottleBlocksOverThreshold(t *testing.T) {
	th := NewTDMThrottle(func() int { return 100 }, 10, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := th.Wait(ctx)
	assert.Error(t, err)
}
