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

// Package undo is the UNDO/REDO FIFO ring (spec §4.2): the append-only
// log of before/after images that makes a multi-buffer modification
// atomic and gives the engine bounded crash recovery.
package undo

import (
	"context"
	"fmt"
	"sync"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
)

// Ring manages one volume's UNDO/REDO FIFO: a circular byte range
// described by (first, next), where [first, next) holds every record
// needed to roll back any meta-data buffer currently modified but not
// yet durable.
type Ring struct {
	vol  int32
	base layout.Offset // start of the reserved FIFO zone
	size int64         // total ring byte length

	bufs *iobuf.Manager

	mu    sync.Mutex // undo_lock: exclusive around head advancement and seq assignment
	first int64       // byte offset within the ring, relative to base
	next  int64
	seq   uint32
}

// NewRing returns a Ring over [base, base+size) of the given volume. The
// caller is responsible for having reserved that span from the blockmap
// (C4) under ZoneUndo.
func NewRing(vol int32, base layout.Offset, size int64, bufs *iobuf.Manager) *Ring {
	return &Ring{vol: vol, base: base, size: size, bufs: bufs}
}

// Bounds returns the ring's current (first, next) offsets, relative to
// its base, for the flusher's finalize snapshot (§4.4).
func (r *Ring) Bounds() (first, next int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first, r.next
}

// Occupied returns the number of bytes currently spanned by [first, next)
// in ring-circular terms, used by the flusher's "dummy cycle" throttle
// (more than 3/4 full forces a non-final finalize before admitting a new
// group).
func (r *Ring) Occupied() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= r.first {
		return r.next - r.first
	}
	return r.size - r.first + r.next
}

// AdvanceFirst moves the ring's first offset forward to newFirst once the
// flusher has durably applied every UNDO record up to that point. It is
// the only way first ever moves; Append never touches it.
func (r *Ring) AdvanceFirst(newFirst int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.first = newFirst
}

func (r *Ring) offset(rel int64) layout.Offset {
	return layout.NewOffset(layout.ZoneUndo, r.base.Local()+uint64(rel))
}

// remaining returns the bytes left before the ring wraps into r.first,
// used to detect the "ring would wrap into first_offset" bug condition.
func (r *Ring) remaining(from int64) int64 {
	if from < r.first {
		return r.first - from
	}
	return r.size - from + r.first
}

// alignGap returns the bytes between off and the next FIFOAlignment
// boundary, 0 if off is already aligned.
func alignGap(off int64) int64 {
	rem := off % layout.FIFOAlignment
	if rem == 0 {
		return 0
	}
	return layout.FIFOAlignment - rem
}

// appendLocked writes one record (header, payload, tail) at r.next,
// laying down a PAD first if the record would cross an alignment
// boundary, and advances r.next. Caller holds r.mu.
func (r *Ring) appendLocked(ctx context.Context, typ layout.RecType, payload []byte) (uint32, error) {
	recSize := align16(layout.RecHeaderSize + len(payload) + layout.RecTailSize)

	if gap := alignGap(r.next); gap != 0 && int64(recSize) > gap {
		if err := r.writePadLocked(ctx, gap); err != nil {
			return 0, err
		}
	}

	if r.remaining(r.next) <= int64(recSize) {
		return 0, fmt.Errorf("undo: ring would wrap into first_offset (bug: flusher did not advance first in time)")
	}

	r.seq++
	seq := r.seq
	if typ == layout.RecPAD {
		seq = 0
	}

	hdr := layout.RecHeader{Signature: layout.RecSignature, Type: typ, Size: uint32(recSize), Seq: seq}
	hdr.CRC = layout.RecordCRC(hdr, payload)

	buf := make([]byte, recSize)
	layout.PutHeader(buf, hdr)
	copy(buf[layout.RecHeaderSize:], payload)
	tailOff := recSize - layout.RecTailSize
	layout.PutTail(buf[tailOff:], layout.RecTail{Signature: layout.RecSignature, Type: typ, Size: uint32(recSize)})

	if err := r.writeAtLocked(ctx, buf, r.next); err != nil {
		return 0, err
	}

	r.next = (r.next + int64(recSize)) % r.size
	return seq, nil
}

func (r *Ring) writePadLocked(ctx context.Context, gap int64) error {
	if _, err := layout.PadRecordSize(int(gap)); err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	buf := make([]byte, gap)
	hdr := layout.RecHeader{Signature: layout.RecSignature, Type: layout.RecPAD, Size: uint32(gap)}
	layout.PutHeader(buf, hdr)
	tailOff := int(gap) - layout.RecTailSize
	layout.PutTail(buf[tailOff:], layout.RecTail{Signature: layout.RecSignature, Type: layout.RecPAD, Size: uint32(gap)})

	if err := r.writeAtLocked(ctx, buf, r.next); err != nil {
		return err
	}
	r.next = (r.next + gap) % r.size
	return nil
}

// writeAtLocked issues the physical write for one record's bytes,
// straddling no buffer boundary since callers size records to fit
// within FIFOAlignment-multiple spans.
func (r *Ring) writeAtLocked(ctx context.Context, data []byte, rel int64) error {
	off := r.offset(rel)
	buf, err := r.bufs.New(r.vol, off, len(data), iobuf.KindUndo)
	if err != nil {
		// Buffer already live (e.g. re-appending into a partially used
		// block): acquire and overwrite within its modify window instead.
		buf, err = r.bufs.Acquire(ctx, r.vol, off, len(data), iobuf.KindUndo)
		if err != nil {
			return fmt.Errorf("%w: undo ring write: %v", hammererr.ErrIO, err)
		}
		if err := r.bufs.Modify(buf); err != nil {
			return err
		}
		copy(buf.Bytes(), data)
		r.bufs.ModifyDone(buf)
		return r.bufs.Release(ctx, buf, false)
	}
	copy(buf.Bytes(), data)
	return r.bufs.Release(ctx, buf, false)
}

func align16(n int) int {
	if rem := n % 16; rem != 0 {
		n += 16 - rem
	}
	return n
}
