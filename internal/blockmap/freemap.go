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

// Package blockmap is the two-layer zoned freemap (spec §4.3): a layer1
// table of blocks_free counters addressing pages of layer2 entries, each
// describing the allocation state of exactly one big-block.
package blockmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
)

// Freemap is the in-memory front for one volume's two-layer blockmap. It
// holds no durable state of its own beyond what iobuf.Manager caches;
// every mutation goes through an UNDO record before the in-memory
// layer1/layer2 tables are updated, per the backend contract in §4.3.
type Freemap struct {
	vol  int32
	bufs *iobuf.Manager

	mu sync.Mutex // free_lock: serializes allocation scans and layer updates

	layer1Base layout.Offset // offset of the layer1 table
	nLayer1    int

	// dataBase is the first byte address available for big-block data.
	// Device addressing ignores the zone tag (it is a pure byte offset
	// into the volume), so the metadata region spanning layer1Base
	// through the last layer2 page must not overlap the address space
	// bigBlockOffset hands out; dataBase is that boundary.
	dataBase layout.Offset

	// entriesPerLayer1 is how many layer2 entries (big-blocks) one layer1
	// span addresses. Production volumes use layout.Layer1Entries, sized
	// to fill one big-block's worth of layer2 page; tests use a small
	// value so a scan doesn't have to touch hundreds of thousands of
	// entries to find a free one.
	entriesPerLayer1 int

	// nextOffset is the per-zone scan cursor (blockmap->next_offset),
	// indexed by zone, so successive allocations don't rescan from zero.
	nextOffset map[layout.Zone]layout.Offset

	// open is the big-block each zone is currently appending into, so a
	// run of small reserve() calls for the same zone shares one big-block
	// until it fills rather than claiming a fresh one per call.
	open map[layout.Zone]*openBigBlock

	freeBigBlocks *int64 // pointer into the volume header's live counter

	// delayed holds one Reservation per big-block that reached
	// bytes_free==BigBlockSize via Free but has not yet cleared its
	// flush-group horizon (spec §3/§4.3's LAYER2FREE reservation).
	delayed map[blockKey]*Reservation

	// seq supplies the flusher's done-seq for ReapDelayed's horizon
	// check. Defaults to nullSeqSource until SetSeqSource is called.
	seq SeqSource
}

// openBigBlock is the append cursor for one zone's current big-block.
type openBigBlock struct {
	l1idx  int
	bbIdx  int
	offset layout.Offset // big-block's base offset, zoned
}

// UndoWriter is the subset of undo.Ring a Freemap needs, named to avoid
// an import cycle (undo already imports iobuf; blockmap must not import
// undo just to get this one method).
type UndoWriter interface {
	WriteUndo(ctx context.Context, zoneOff layout.Offset, before []byte) (uint32, error)
}

// NewFreemap returns a Freemap over nLayer1 layer1 entries starting at
// layer1Base, tracking freeBigBlocks as the volume's live counter. Pass
// layout.Layer1Entries for entriesPerLayer1 on a production volume.
// dataBase must be at or beyond the end of the layer1/layer2 metadata
// region (layer1Base plus nLayer1 layer1 slots plus nLayer1*entriesPerLayer1
// layer2 slots); big-block data is never placed below it.
func NewFreemap(vol int32, bufs *iobuf.Manager, layer1Base layout.Offset, nLayer1, entriesPerLayer1 int, dataBase layout.Offset, freeBigBlocks *int64) *Freemap {
	return &Freemap{
		vol:              vol,
		bufs:             bufs,
		layer1Base:       layer1Base,
		nLayer1:          nLayer1,
		entriesPerLayer1: entriesPerLayer1,
		dataBase:         dataBase,
		nextOffset:       make(map[layout.Zone]layout.Offset),
		open:             make(map[layout.Zone]*openBigBlock),
		freeBigBlocks:    freeBigBlocks,
		delayed:          make(map[blockKey]*Reservation),
		seq:              nullSeqSource{},
	}
}

// entrySlot is the on-disk stride reserved per layer1/layer2 entry: one
// full device block per entry, trading freemap density for every entry
// being independently addressable and block-aligned without a
// sub-block read path through iobuf.
const entrySlot = 512

func (f *Freemap) layer1Offset(idx int) layout.Offset {
	return layout.NewOffset(layout.ZoneFreemap, f.layer1Base.Local()+uint64(idx)*entrySlot)
}

func (f *Freemap) readLayer1(ctx context.Context, idx int) (*layout.Layer1Entry, *iobuf.Buffer, error) {
	off := f.layer1Offset(idx)
	buf, err := f.bufs.Acquire(ctx, f.vol, off, entrySlot, iobuf.KindMeta)
	if err != nil {
		return nil, nil, err
	}
	var e layout.Layer1Entry
	if err := e.UnmarshalBinary(buf.Bytes()[:20]); err != nil {
		f.bufs.Release(ctx, buf, false)
		return nil, nil, fmt.Errorf("%w: layer1[%d]: %v", hammererr.ErrCRC, idx, err)
	}
	return &e, buf, nil
}

func (f *Freemap) layer2Offset(l1 *layout.Layer1Entry, bigBlockIdx int) layout.Offset {
	base := l1.PhysOffset.WithZone(layout.ZoneFreemap)
	return base + layout.Offset(uint64(bigBlockIdx)*entrySlot)
}

// bigBlockOffset computes the physical address of the big-block described
// by layer1 span l1idx's bbIdx'th layer2 entry. This is independent of
// where that layer2 entry's own metadata page (l1.PhysOffset) lives: each
// layer1 span owns a fixed, disjoint entriesPerLayer1-big-blocks-wide
// region of the volume, addressed purely by its index, so this must agree
// with locate's reverse mapping.
func (f *Freemap) bigBlockOffset(zone layout.Zone, l1idx, bbIdx int) layout.Offset {
	spanBytes := uint64(f.entriesPerLayer1) * uint64(layout.BigBlockSize)
	local := f.dataBase.Local() + uint64(l1idx)*spanBytes + uint64(bbIdx)*uint64(layout.BigBlockSize)
	return layout.NewOffset(zone, local)
}

func (f *Freemap) readLayer2(ctx context.Context, l1 *layout.Layer1Entry, bigBlockIdx int) (*layout.Layer2Entry, *iobuf.Buffer, layout.Offset, error) {
	off := f.layer2Offset(l1, bigBlockIdx)
	buf, err := f.bufs.Acquire(ctx, f.vol, off, entrySlot, iobuf.KindMeta)
	if err != nil {
		return nil, nil, 0, err
	}
	var e layout.Layer2Entry
	if err := e.UnmarshalBinary(buf.Bytes()[:16]); err != nil {
		f.bufs.Release(ctx, buf, false)
		return nil, nil, 0, fmt.Errorf("%w: layer2 at %s: %v", hammererr.ErrCRC, off, err)
	}
	return &e, buf, off, nil
}

// AllocBigBlock implements the allocation scan of §4.3 step 1-3: it walks
// layer1 spans skipping any with blocks_free==0, then within a span skips
// big-blocks already owned by another zone, and on a free big-block
// commits the claim under an UNDO record and returns its offset.
func (f *Freemap) AllocBigBlock(ctx context.Context, undo UndoWriter, zone layout.Zone) (layout.Offset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, _, _, err := f.allocBigBlockLocked(ctx, undo, zone)
	return off, err
}

func (f *Freemap) allocBigBlockLocked(ctx context.Context, undo UndoWriter, zone layout.Zone) (layout.Offset, int, int, error) {
	startL1 := 0
	if prev, ok := f.nextOffset[zone]; ok {
		if l1idx, _, err := f.locate(ctx, prev); err == nil {
			startL1 = l1idx
		}
	}
	loops := 0
	for loops < 2 {
		for l1idx := startL1; l1idx < f.nLayer1; l1idx++ {
			l1, l1buf, err := f.readLayer1(ctx, l1idx)
			if err != nil {
				return 0, 0, 0, err
			}
			if l1.BlocksFree == 0 || !l1.Provisioned() {
				f.bufs.Release(ctx, l1buf, false)
				continue
			}

			for bbIdx := 0; bbIdx < f.entriesPerLayer1; bbIdx++ {
				l2, l2buf, l2off, err := f.readLayer2(ctx, l1, bbIdx)
				if err != nil {
					f.bufs.Release(ctx, l1buf, false)
					return 0, 0, 0, err
				}
				if !l2.Free() {
					f.bufs.Release(ctx, l2buf, false)
					continue
				}

				if err := f.commitClaim(ctx, undo, l1idx, l1, l1buf, l2, l2buf, l2off, zone); err != nil {
					return 0, 0, 0, err
				}

				bigBlockOff := f.bigBlockOffset(zone, l1idx, bbIdx)
				f.nextOffset[zone] = bigBlockOff
				return bigBlockOff, l1idx, bbIdx, nil
			}
			f.bufs.Release(ctx, l1buf, false)
		}
		startL1 = 0
		loops++
	}
	return 0, 0, 0, hammererr.ErrNoSpace
}

func (f *Freemap) commitClaim(ctx context.Context, undo UndoWriter, l1idx int, l1 *layout.Layer1Entry, l1buf *iobuf.Buffer, l2 *layout.Layer2Entry, l2buf *iobuf.Buffer, l2off layout.Offset, zone layout.Zone) error {
	before1, _ := l1.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, f.layer1Offset(l1idx), before1); err != nil {
		f.bufs.Release(ctx, l1buf, false)
		f.bufs.Release(ctx, l2buf, false)
		return err
	}
	before2, _ := l2.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, l2off, before2); err != nil {
		f.bufs.Release(ctx, l1buf, false)
		f.bufs.Release(ctx, l2buf, false)
		return err
	}

	l1.BlocksFree--
	l2.Zone = zone
	l2.AppendOff = 0
	l2.BytesFree = layout.BigBlockSize

	if err := f.bufs.Modify(l1buf); err != nil {
		return err
	}
	enc1, _ := l1.MarshalBinary()
	copy(l1buf.Bytes(), enc1)
	f.bufs.ModifyDone(l1buf)

	if err := f.bufs.Modify(l2buf); err != nil {
		return err
	}
	enc2, _ := l2.MarshalBinary()
	copy(l2buf.Bytes(), enc2)
	f.bufs.ModifyDone(l2buf)

	*f.freeBigBlocks--

	f.bufs.Release(ctx, l1buf, false)
	f.bufs.Release(ctx, l2buf, false)
	return nil
}

// Reserve implements the strict-append allocation of §4.3: it hands out
// nbytes from the zone's currently open big-block, opening a new one via
// AllocBigBlock whenever the current one lacks room, and commits the
// append immediately. It is reserve(zone, bytes) and finalize(resv, ...)
// (§3's two-phase lifecycle) run back to back under one lock, kept as a
// single call for every existing caller that never needed the two-phase
// form; ReservePending/Finalize expose the phases separately.
func (f *Freemap) Reserve(ctx context.Context, undo UndoWriter, zone layout.Zone, nbytes int) (layout.Offset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resv, err := f.reserveLocked(ctx, undo, zone, nbytes)
	if err != nil {
		return 0, err
	}
	return f.finalizeLocked(ctx, undo, resv, nbytes)
}

// ReservePending pins nbytes of room in zone's currently open big-block
// without touching its layer2 entry (spec §3's reserve(zone, bytes):
// "pins without modifying layer2"), opening a fresh big-block first if
// the open one lacks room. The caller must eventually call Finalize with
// the returned Reservation to commit it, or the pinned room is simply
// lost when the Reservation is discarded (there is nothing on disk to
// undo, since nothing was written).
func (f *Freemap) ReservePending(ctx context.Context, undo UndoWriter, zone layout.Zone, nbytes int) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserveLocked(ctx, undo, zone, nbytes)
}

func (f *Freemap) reserveLocked(ctx context.Context, undo UndoWriter, zone layout.Zone, nbytes int) (*Reservation, error) {
	if nbytes <= 0 || nbytes > layout.BigBlockSize {
		return nil, fmt.Errorf("%w: reserve size %d out of range", hammererr.ErrRange, nbytes)
	}

	ob := f.open[zone]
	if ob == nil {
		if err := f.openNewBigBlockLocked(ctx, undo, zone); err != nil {
			return nil, err
		}
		ob = f.open[zone]
	}

	l1, l1buf, err := f.readLayer1(ctx, ob.l1idx)
	if err != nil {
		return nil, err
	}
	l2, l2buf, _, err := f.readLayer2(ctx, l1, ob.bbIdx)
	f.bufs.Release(ctx, l1buf, false)
	if err != nil {
		return nil, err
	}
	appendOff := l2.AppendOff
	f.bufs.Release(ctx, l2buf, false)

	if int(appendOff)+nbytes > layout.BigBlockSize {
		if err := f.openNewBigBlockLocked(ctx, undo, zone); err != nil {
			return nil, err
		}
		ob = f.open[zone]
		appendOff = 0
	}

	return &Reservation{
		refs:      1,
		Zone:      zone,
		AppendOff: appendOff,
		nbytes:    nbytes,
		l1idx:     ob.l1idx,
		bbIdx:     ob.bbIdx,
		base:      ob.offset,
	}, nil
}

// Finalize commits a Reservation returned by ReservePending: it writes
// the owning layer2 entry's before-image to undo, advances append_off to
// at least resv.AppendOff+nbytes, and returns the offset the reservation
// pinned (spec §3's finalize(resv, zone_off, bytes)).
func (f *Freemap) Finalize(ctx context.Context, undo UndoWriter, resv *Reservation) (layout.Offset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalizeLocked(ctx, undo, resv, resv.nbytes)
}

func (f *Freemap) finalizeLocked(ctx context.Context, undo UndoWriter, resv *Reservation, nbytes int) (layout.Offset, error) {
	l1, l1buf, err := f.readLayer1(ctx, resv.l1idx)
	if err != nil {
		return 0, err
	}
	defer f.bufs.Release(ctx, l1buf, false)

	l2, l2buf, l2off, err := f.readLayer2(ctx, l1, resv.bbIdx)
	if err != nil {
		return 0, err
	}
	defer f.bufs.Release(ctx, l2buf, false)

	before, _ := l2.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, l2off, before); err != nil {
		return 0, err
	}

	result := resv.base + layout.Offset(uint64(resv.AppendOff))
	if want := resv.AppendOff + int32(nbytes); want > l2.AppendOff {
		l2.AppendOff = want
	}
	l2.BytesFree -= int32(nbytes)

	if err := f.bufs.Modify(l2buf); err != nil {
		return 0, err
	}
	enc, _ := l2.MarshalBinary()
	copy(l2buf.Bytes(), enc)
	f.bufs.ModifyDone(l2buf)

	return result, nil
}

// ReserveDedup decrements the big-block containing zoneOff's bytes_free
// by nbytes without touching append_off (spec §3's reserve_dedup(zone,
// zone_off, bytes)): it charges a dedup reference against a range
// already committed by some earlier finalize. bytes_free is allowed to
// go negative, floored at minus one big-block's worth (the 2x dedup
// debt cap spec §3 allows), since a big-block's contents can be
// referenced once per live dedup pointer in addition to its own append.
func (f *Freemap) ReserveDedup(ctx context.Context, undo UndoWriter, zoneOff layout.Offset, nbytes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	l1idx, bbIdx, err := f.locate(ctx, zoneOff)
	if err != nil {
		return err
	}
	l1, l1buf, err := f.readLayer1(ctx, l1idx)
	if err != nil {
		return err
	}
	defer f.bufs.Release(ctx, l1buf, false)

	l2, l2buf, l2off, err := f.readLayer2(ctx, l1, bbIdx)
	if err != nil {
		return err
	}
	defer f.bufs.Release(ctx, l2buf, false)

	if int(l2.BytesFree)-nbytes < -layout.BigBlockSize {
		return fmt.Errorf("%w: dedup reserve of %d exceeds debt cap at %s", hammererr.ErrRange, nbytes, zoneOff)
	}

	before, _ := l2.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, l2off, before); err != nil {
		return err
	}

	l2.BytesFree -= int32(nbytes)

	if err := f.bufs.Modify(l2buf); err != nil {
		return err
	}
	enc, _ := l2.MarshalBinary()
	copy(l2buf.Bytes(), enc)
	f.bufs.ModifyDone(l2buf)

	return nil
}

func (f *Freemap) openNewBigBlockLocked(ctx context.Context, undo UndoWriter, zone layout.Zone) error {
	off, l1idx, bbIdx, err := f.allocBigBlockLocked(ctx, undo, zone)
	if err != nil {
		return err
	}
	f.open[zone] = &openBigBlock{l1idx: l1idx, bbIdx: bbIdx, offset: off}
	return nil
}

// Free returns nbytes at zoneOff to the owning big-block's free count,
// restoring it via an UNDO record before releasing the bytes. bytes_free
// is capped at one big-block's worth: it can have gone negative under
// ReserveDedup's debt, and freeing clears that debt before it starts
// counting as actual free space.
//
// When this brings the big-block to fully free, spec §3/§4.3 do not let
// it go straight back into circulation: this installs a delayed
// LAYER2FREE Reservation recording the current flush group, and leaves
// the layer2 entry's Zone/AppendOff exactly as they were. AllocBigBlock's
// existing !l2.Free() skip-check already treats a nonzero Zone as owned,
// so that alone keeps the block out of the scan until ReapDelayed
// actually resets it once the flusher's done-seq clears the horizon.
func (f *Freemap) Free(ctx context.Context, undo UndoWriter, zoneOff layout.Offset, nbytes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	l1idx, bbIdx, err := f.locate(ctx, zoneOff)
	if err != nil {
		return err
	}

	l1, l1buf, err := f.readLayer1(ctx, l1idx)
	if err != nil {
		return err
	}
	defer f.bufs.Release(ctx, l1buf, false)

	l2, l2buf, l2off, err := f.readLayer2(ctx, l1, bbIdx)
	if err != nil {
		return err
	}
	defer f.bufs.Release(ctx, l2buf, false)

	before, _ := l2.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, l2off, before); err != nil {
		return err
	}

	l2.BytesFree += int32(nbytes)
	if l2.BytesFree > layout.BigBlockSize {
		l2.BytesFree = layout.BigBlockSize
	}
	fullyFree := l2.BytesFree == layout.BigBlockSize
	zone := l2.Zone

	if err := f.bufs.Modify(l2buf); err != nil {
		return err
	}
	enc, _ := l2.MarshalBinary()
	copy(l2buf.Bytes(), enc)
	f.bufs.ModifyDone(l2buf)

	if fullyFree {
		key := blockKey{l1idx: l1idx, bbIdx: bbIdx}
		if _, ok := f.delayed[key]; !ok {
			f.delayed[key] = &Reservation{
				refs:       1,
				Zone:       zone,
				Flags:      LAYER2FREE | ONDELAY,
				FlushGroup: f.seq.DoneSeq(),
				l1idx:      l1idx,
				bbIdx:      bbIdx,
			}
		}
	}

	return nil
}

// ReapDelayed reclaims every delayed LAYER2FREE reservation whose
// recorded flush group the flusher's done-seq has advanced past
// (Reusable), resetting its big-block's layer2 entry to unowned and
// bumping layer1/volume free counters (spec §3's reserve_complete()).
// It returns how many big-blocks were reclaimed.
func (f *Freemap) ReapDelayed(ctx context.Context, undo UndoWriter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	done := f.seq.DoneSeq()
	reclaimed := 0
	for key, resv := range f.delayed {
		if !resv.Reusable(done) {
			continue
		}
		if err := f.commitReclaim(ctx, undo, key.l1idx, key.bbIdx); err != nil {
			return reclaimed, err
		}
		delete(f.delayed, key)
		reclaimed++
	}
	return reclaimed, nil
}

// commitReclaim is AllocBigBlock's commitClaim run in reverse: it resets
// a fully-free big-block's layer2 entry to unowned and gives its slot
// back to layer1/the volume's live counter, under UNDO.
func (f *Freemap) commitReclaim(ctx context.Context, undo UndoWriter, l1idx, bbIdx int) error {
	l1, l1buf, err := f.readLayer1(ctx, l1idx)
	if err != nil {
		return err
	}
	l2, l2buf, l2off, err := f.readLayer2(ctx, l1, bbIdx)
	if err != nil {
		f.bufs.Release(ctx, l1buf, false)
		return err
	}

	before1, _ := l1.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, f.layer1Offset(l1idx), before1); err != nil {
		f.bufs.Release(ctx, l1buf, false)
		f.bufs.Release(ctx, l2buf, false)
		return err
	}
	before2, _ := l2.MarshalBinary()
	if _, err := undo.WriteUndo(ctx, l2off, before2); err != nil {
		f.bufs.Release(ctx, l1buf, false)
		f.bufs.Release(ctx, l2buf, false)
		return err
	}

	l1.BlocksFree++
	l2.Zone = layout.ZoneUnavail
	l2.AppendOff = 0
	l2.BytesFree = layout.BigBlockSize

	if err := f.bufs.Modify(l1buf); err != nil {
		return err
	}
	enc1, _ := l1.MarshalBinary()
	copy(l1buf.Bytes(), enc1)
	f.bufs.ModifyDone(l1buf)

	if err := f.bufs.Modify(l2buf); err != nil {
		return err
	}
	enc2, _ := l2.MarshalBinary()
	copy(l2buf.Bytes(), enc2)
	f.bufs.ModifyDone(l2buf)

	*f.freeBigBlocks++

	f.bufs.Release(ctx, l1buf, false)
	f.bufs.Release(ctx, l2buf, false)
	return nil
}

// locate resolves a zoned offset back to its (layer1 index, big-block
// index) pair by dividing its local offset by the big-block and layer1
// span sizes. It does not validate ownership; callers that need that
// guarantee must compare the resolved layer2 entry's Zone themselves.
func (f *Freemap) locate(ctx context.Context, zoneOff layout.Offset) (l1idx, bbIdx int, err error) {
	if zoneOff.Local() < f.dataBase.Local() {
		return 0, 0, fmt.Errorf("%w: offset %s below data region", hammererr.ErrRange, zoneOff)
	}
	local := zoneOff.Local() - f.dataBase.Local()
	spanBytes := uint64(f.entriesPerLayer1) * uint64(layout.BigBlockSize)
	l1idx = int(local / spanBytes)
	if l1idx < 0 || l1idx >= f.nLayer1 {
		return 0, 0, fmt.Errorf("%w: offset %s out of layer1 range", hammererr.ErrRange, zoneOff)
	}
	bbIdx = int((local % spanBytes) / uint64(layout.BigBlockSize))
	return l1idx, bbIdx, nil
}

// FreeBytesAt returns the big-block containing zoneOff's current
// bytes_free, for the reblocker's free_level test (spec §4.8): a
// big-block with more free space than the caller's threshold is a
// reblock candidate.
func (f *Freemap) FreeBytesAt(ctx context.Context, zoneOff layout.Offset) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l1idx, bbIdx, err := f.locate(ctx, zoneOff)
	if err != nil {
		return 0, err
	}
	l1, l1buf, err := f.readLayer1(ctx, l1idx)
	if err != nil {
		return 0, err
	}
	defer f.bufs.Release(ctx, l1buf, false)

	l2, l2buf, _, err := f.readLayer2(ctx, l1, bbIdx)
	if err != nil {
		return 0, err
	}
	defer f.bufs.Release(ctx, l2buf, false)
	return int(l2.BytesFree), nil
}
