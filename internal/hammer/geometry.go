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

package hammer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hammerfs/hammer/internal/blockmap"
	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/undo"
)

// entrySlot is the on-disk stride blockmap.Freemap reserves for each
// layer1 and layer2 record. blockmap doesn't export its own copy (its
// callers address entries by index, never by byte offset), but it is
// pinned to device.BlockSize: every metadata record occupies exactly one
// device block so it stays independently addressable without a
// sub-block read path. Format and Open both need to reconstruct the
// region boundaries before a Freemap exists to ask.
const entrySlot = device.BlockSize

// headerSlot is the fixed, block-aligned region reserved for the volume
// header at the start of every member.
const headerSlot = 8 * entrySlot

// deriveDataBase computes the first byte address available to big-block
// data given a layer1 span's base and width, rounded up to a big-block
// boundary so the data region's own big-block indexing never straddles
// the metadata region. nLayer1 is fixed at 1 throughout this package —
// see FormatConfig's doc comment.
func deriveDataBase(layer1Base int64, entriesPerLayer1 int) int64 {
	metaEnd := layer1Base + entrySlot + int64(entriesPerLayer1)*entrySlot
	if rem := metaEnd % layout.BigBlockSize; rem != 0 {
		metaEnd += layout.BigBlockSize - rem
	}
	return metaEnd
}

// FormatConfig carries the geometry a new volume is built with.
// UndoSize and EntriesPerLayer1 aren't part of layout.VolumeHeader's
// wire format (fixed by the rest of this engine) and must be supplied
// identically on every later Open of the same volume — the reference
// design keeps this in the volume's own on-disk blockmap roots, which
// this port derives instead from caller-supplied constants a real
// mkfs/mount pairing is expected to agree on (DESIGN.md's C9 entry).
// nLayer1 is fixed at 1: a single layer1 span addresses up to
// Layer1Entries big-blocks, tens of terabytes at production entry
// counts, ample for the single-member volumes this port builds.
type FormatConfig struct {
	Vol              int32
	Dev              device.Device
	FSID             uuid.UUID
	UndoSize         int64
	EntriesPerLayer1 int
	Log              *slog.Logger
}

// Format lays out a fresh volume on cfg.Dev: a header slot, an UNDO
// ring, a zeroed layer1/layer2 blockmap spanning the rest of the
// device, and an empty B+Tree, then writes and returns the resulting
// header.
func Format(ctx context.Context, cfg FormatConfig) (*layout.VolumeHeader, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.EntriesPerLayer1 <= 0 || cfg.EntriesPerLayer1 > layout.Layer1Entries {
		return nil, fmt.Errorf("hammer: entries-per-layer1 %d out of range (max %d)", cfg.EntriesPerLayer1, layout.Layer1Entries)
	}
	if cfg.UndoSize <= 0 {
		return nil, fmt.Errorf("hammer: undo size must be positive")
	}

	undoBase := int64(headerSlot)
	layer1Base := undoBase + cfg.UndoSize
	dataBase := deriveDataBase(layer1Base, cfg.EntriesPerLayer1)

	devSize := cfg.Dev.Size()
	if devSize < dataBase+layout.BigBlockSize {
		return nil, fmt.Errorf("hammer: device of %d bytes too small for the requested geometry (needs at least %d)", devSize, dataBase+layout.BigBlockSize)
	}

	bufs := iobuf.NewManager(cfg.Log)
	bufs.AddVolume(cfg.Vol, cfg.Dev)

	layer1Off := layout.NewOffset(layout.ZoneFreemap, uint64(layer1Base))
	layer2Base := layout.NewOffset(layout.ZoneFreemap, uint64(layer1Base+entrySlot))
	freeBigBlocks := (devSize - dataBase) / layout.BigBlockSize

	l1 := layout.Layer1Entry{PhysOffset: layer2Base, BlocksFree: int32(freeBigBlocks)}
	if err := writeMetaRecord(ctx, bufs, cfg.Vol, layer1Off, &l1); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.EntriesPerLayer1; i++ {
		l2 := layout.Layer2Entry{Zone: layout.ZoneUnavail, BytesFree: layout.BigBlockSize}
		off := layer2Base + layout.Offset(uint64(i)*entrySlot)
		if err := writeMetaRecord(ctx, bufs, cfg.Vol, off, &l2); err != nil {
			return nil, err
		}
	}

	undoOff := layout.NewOffset(layout.ZoneUndo, uint64(undoBase))
	ring := undo.NewRing(cfg.Vol, undoOff, cfg.UndoSize, bufs)

	header := &layout.VolumeHeader{
		Magic:                 layout.VolumeMagic,
		Version:               layout.FSVersion,
		VolNo:                 cfg.Vol,
		NVols:                 1,
		FSID:                  cfg.FSID,
		Vol0NextTID:           1,
		Vol0StatBigBlocks:     freeBigBlocks,
		Vol0StatFreeBigBlocks: freeBigBlocks,
	}
	header.BlockmapRoots[layout.ZoneFreemap] = layer1Off
	header.BlockmapRoots[layout.ZoneUndo] = undoOff

	alloc := blockmap.NewFreemap(cfg.Vol, bufs, layer1Off, 1, cfg.EntriesPerLayer1,
		layout.NewOffset(layout.ZoneBTree, uint64(dataBase)), &header.Vol0StatFreeBigBlocks)

	tree, err := btree.NewEmptyTree(ctx, cfg.Vol, bufs, ring, alloc)
	if err != nil {
		return nil, err
	}
	header.RootBTree = tree.Root()

	if err := bufs.Flush(ctx, cfg.Vol, iobuf.KindMeta); err != nil {
		return nil, err
	}
	if err := writeHeader(ctx, cfg.Dev, header); err != nil {
		return nil, err
	}
	return header, nil
}

func writeMetaRecord(ctx context.Context, bufs *iobuf.Manager, vol int32, off layout.Offset, enc interface{ MarshalBinary() ([]byte, error) }) error {
	data, err := enc.MarshalBinary()
	if err != nil {
		return err
	}
	buf, err := bufs.New(vol, off, entrySlot, iobuf.KindMeta)
	if err != nil {
		return err
	}
	copy(buf.Bytes(), data)
	return bufs.Release(ctx, buf, false)
}

// writeHeader serializes h and writes it to the fixed header slot at
// the start of the volume. The header isn't routed through the buffer
// manager: it is written once at format time and thereafter only by the
// flusher's own HeaderWriter hook under sync_lock, never through a
// cached Buffer another reader might concurrently acquire.
func writeHeader(ctx context.Context, dev device.Device, h *layout.VolumeHeader) error {
	enc, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	if len(enc) > headerSlot {
		return fmt.Errorf("hammer: volume header %d bytes exceeds header slot %d", len(enc), headerSlot)
	}
	buf := make([]byte, headerSlot)
	copy(buf, enc)
	if err := dev.WriteAt(ctx, buf, 0); err != nil {
		return err
	}
	return dev.Sync(ctx)
}

func readHeader(ctx context.Context, dev device.Device) (*layout.VolumeHeader, error) {
	buf := make([]byte, headerSlot)
	if err := dev.ReadAt(ctx, buf, 0); err != nil {
		return nil, err
	}
	var h layout.VolumeHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return &h, nil
}
