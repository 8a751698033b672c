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

package maint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/blockmap"
	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hlog"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/undo"
)

const entrySlot = 512

// harness bundles one in-memory volume wired up with a two-big-block
// freemap, so reblock tests have somewhere to relocate data to.
type harness struct {
	tree  *btree.Tree
	alloc *blockmap.Freemap
	bufs  *iobuf.Manager
	ring  *undo.Ring
	vol   int32
}

func newHarness(t *testing.T) (*harness, context.Context) {
	t.Helper()
	ctx := context.Background()

	const undoBase = 0
	const undoSize = 64 * 1024
	const layer1Local = undoBase + undoSize
	const layer2Local = layer1Local + entrySlot
	const dataBaseLocal = layer2Local + 2*entrySlot

	devSize := int64(dataBaseLocal) + 2*int64(layout.BigBlockSize)
	dev := device.NewMemDevice(devSize)
	bufs := iobuf.NewManager(hlog.Default())
	bufs.AddVolume(0, dev)

	l1 := layout.Layer1Entry{PhysOffset: layout.NewOffset(layout.ZoneFreemap, layer2Local), BlocksFree: 2}
	enc, err := l1.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, dev.WriteAt(ctx, pad(enc), layer1Local))

	for i := 0; i < 2; i++ {
		l2 := layout.Layer2Entry{Zone: layout.ZoneUnavail, AppendOff: 0, BytesFree: layout.BigBlockSize}
		enc, err := l2.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, dev.WriteAt(ctx, pad(enc), layer2Local+int64(i)*entrySlot))
	}

	ring := undo.NewRing(0, layout.NewOffset(layout.ZoneUndo, undoBase), undoSize, bufs)

	freeBigBlocks := int64(2)
	alloc := blockmap.NewFreemap(0, bufs,
		layout.NewOffset(layout.ZoneFreemap, layer1Local), 1, 2,
		layout.NewOffset(layout.ZoneBTree, dataBaseLocal), &freeBigBlocks)

	tree, err := btree.NewEmptyTree(ctx, 0, bufs, ring, alloc)
	require.NoError(t, err)

	return &harness{tree: tree, alloc: alloc, bufs: bufs, ring: ring, vol: 0}, ctx
}

func pad(b []byte) []byte {
	out := make([]byte, entrySlot)
	copy(out, b)
	return out
}

func key(objID, elementKey, createTID uint64) layout.Key {
	return layout.Key{Localization: 1, ObjID: objID, RecType: 1, ElementKey: elementKey, CreateTID: createTID}
}

// putData writes data into a freshly reserved zone of the given size
// directly through the freemap, returning the element ready to insert.
func putData(t *testing.T, h *harness, ctx context.Context, k layout.Key, data []byte) layout.LeafElem {
	t.Helper()
	off, err := h.alloc.Reserve(ctx, h.ring, layout.ZoneSmallData, len(data))
	require.NoError(t, err)

	buf, err := h.bufs.New(h.vol, off, len(data), iobuf.KindData)
	require.NoError(t, err)
	copy(buf.Bytes(), data)
	require.NoError(t, h.bufs.Release(ctx, buf, false))

	return layout.LeafElem{
		Base:       k,
		DataOffset: off,
		DataLen:    uint32(len(data)),
		DataCRC:    layout.CRC32(data),
	}
}
