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

package undo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hlog"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
)

func newTestRing(t *testing.T) (*Ring, context.Context) {
	t.Helper()
	dev := device.NewMemDevice(256 * device.BlockSize)
	m := iobuf.NewManager(hlog.Default())
	m.AddVolume(0, dev)
	base := layout.NewOffset(layout.ZoneUndo, 0)
	r := NewRing(0, base, 256*device.BlockSize, m)
	return r, context.Background()
}

func TestWriteUndoAdvancesNextAndSeq(t *testing.T) {
	r, ctx := newTestRing(t)

	seq1, err := r.WriteUndo(ctx, layout.NewOffset(layout.ZoneMeta, 0x1000), []byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), seq1)

	seq2, err := r.WriteUndo(ctx, layout.NewOffset(layout.ZoneMeta, 0x2000), []byte("efgh"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), seq2)

	_, next := r.Bounds()
	assert.Greater(t, next, int64(0))
}

func TestOccupiedGrowsThenShrinksAfterAdvanceFirst(t *testing.T) {
	r, ctx := newTestRing(t)

	_, err := r.WriteUndo(ctx, layout.NewOffset(layout.ZoneMeta, 0), make([]byte, 64))
	require.NoError(t, err)
	before := r.Occupied()
	assert.Greater(t, before, int64(0))

	_, next := r.Bounds()
	r.AdvanceFirst(next)
	assert.Equal(t, int64(0), r.Occupied())
}

func TestStage1UndoAppliesInReverseOrder(t *testing.T) {
	r, ctx := newTestRing(t)

	target1 := layout.NewOffset(layout.ZoneMeta, 0x100)
	target2 := layout.NewOffset(layout.ZoneMeta, 0x200)
	_, err := r.WriteUndo(ctx, target1, []byte("first"))
	require.NoError(t, err)
	_, err = r.WriteUndo(ctx, target2, []byte("second"))
	require.NoError(t, err)

	var applied []layout.Offset
	err = r.Stage1Undo(ctx, func(off layout.Offset, before []byte) error {
		applied = append(applied, off)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, target2, applied[0])
	assert.Equal(t, target1, applied[1])
}

func TestStage2RedoSuppressesTerminatedWrites(t *testing.T) {
	r, ctx := newTestRing(t)

	_, err := r.RedoSync(ctx, layout.NewOffset(layout.ZoneUndo, 0))
	require.NoError(t, err)
	_, err = r.RedoWrite(ctx, 42, 1, 0, []byte("payload-a"))
	require.NoError(t, err)
	_, err = r.RedoWrite(ctx, 42, 1, 100, []byte("payload-b"))
	require.NoError(t, err)
	_, err = r.RedoTermWrite(ctx, 42, 1, 0, int64(len("payload-a")))
	require.NoError(t, err)

	var replayed []DecodedRedo
	err = r.Stage2Redo(ctx, func(d DecodedRedo) error {
		replayed = append(replayed, d)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, int64(100), replayed[0].FileOff)
}

func TestStage1UndoNoOpWhenRingEmpty(t *testing.T) {
	r, ctx := newTestRing(t)
	called := false
	err := r.Stage1Undo(ctx, func(off layout.Offset, before []byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
