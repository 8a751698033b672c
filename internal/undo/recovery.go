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
	"fmt"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
)

// readRecordAt decodes the record whose header starts at rel, returning
// its header, payload, and total size. It does not advance any ring
// state; it is used by both stage1 (reading backward via tails) and
// stage2 (reading forward via headers).
func (r *Ring) readRecordAt(ctx context.Context, rel int64) (header []byte, payload []byte, err error) {
	const maxRecordWindow = 64 * 1024 // block-size multiple, generous for any single record
	alignedRel, offInBlock := blockAlign(rel, layout.FIFOAlignment)

	window := int64(maxRecordWindow)
	if remain := r.size - alignedRel; remain < window {
		window = (remain / layout.FIFOAlignment) * layout.FIFOAlignment
	}

	off := r.offset(alignedRel)
	buf, err := r.bufs.Acquire(ctx, r.vol, off, int(window), iobuf.KindUndo)
	if err != nil {
		return nil, nil, err
	}
	defer r.bufs.Release(ctx, buf, false)

	hdrBuf := append([]byte(nil), buf.Bytes()[offInBlock:offInBlock+layout.RecHeaderSize]...)
	hdr, err := layout.GetHeader(hdrBuf)
	if err != nil {
		return nil, nil, err
	}
	payloadLen := int(hdr.Size) - layout.RecHeaderSize - layout.RecTailSize
	if payloadLen < 0 {
		return nil, nil, fmt.Errorf("undo: record at %s has negative payload length", off)
	}
	payloadStart := offInBlock + layout.RecHeaderSize
	return hdrBuf, append([]byte(nil), buf.Bytes()[payloadStart:payloadStart+int64(payloadLen)]...), nil
}

// Stage1Undo walks the ring backward from next to first, applying UNDO
// records to restore the filesystem to its last consistent point. It
// stops at a PAD/sequence discontinuity, matching the reference
// recovery's treatment of a broken sequence as "nothing further is
// trustworthy".
func (r *Ring) Stage1Undo(ctx context.Context, apply func(off layout.Offset, before []byte) error) error {
	first, next := r.Bounds()
	if first == next {
		return nil
	}

	pos := next
	var wantSeq uint32 // 0 means "no expectation yet"
	for pos != first {
		tailPos := pos - layout.RecTailSize
		if tailPos < 0 {
			tailPos += r.size
		}
		tailBuf, err := r.readTailAt(ctx, tailPos)
		if err != nil {
			return err
		}
		recStart := pos - int64(tailBuf.Size)
		if recStart < 0 {
			recStart += r.size
		}

		hdrBuf, payload, err := r.readRecordAt(ctx, recStart)
		if err != nil {
			return err
		}
		hdr, err := layout.GetHeader(hdrBuf)
		if err != nil {
			return err
		}

		if hdr.Type == layout.RecPAD {
			pos = recStart
			continue
		}

		if wantSeq != 0 && hdr.Seq != wantSeq-1 {
			// Sequence discontinuity: stop, the remainder of the span is
			// not trustworthy.
			break
		}
		wantSeq = hdr.Seq

		d := decodeUndoPayload(hdr.Seq, payload)
		if err := apply(d.Offset, d.Before); err != nil {
			return fmt.Errorf("undo: stage1 apply at %s: %w", d.Offset, err)
		}

		pos = recStart
	}
	return nil
}

// blockAlign returns the block-aligned offset containing rel and rel's
// byte offset within that block, so a tail (or any sub-block read) can
// be satisfied from a block-sized buffer the device will accept.
func blockAlign(rel int64, blockSize int64) (alignedRel, offInBlock int64) {
	alignedRel = (rel / blockSize) * blockSize
	return alignedRel, rel - alignedRel
}

func (r *Ring) readTailAt(ctx context.Context, rel int64) (layout.RecTail, error) {
	const blockSize = 512
	alignedRel, offInBlock := blockAlign(rel, blockSize)
	need := offInBlock + layout.RecTailSize
	blocks := ((need + blockSize - 1) / blockSize) * blockSize

	off := r.offset(alignedRel)
	buf, err := r.bufs.Acquire(ctx, r.vol, off, int(blocks), iobuf.KindUndo)
	if err != nil {
		return layout.RecTail{}, err
	}
	defer r.bufs.Release(ctx, buf, false)
	return layout.GetTail(buf.Bytes()[offInBlock : offInBlock+layout.RecTailSize])
}

// Stage2Redo walks forward from the latest RedoSync within [first, next),
// replaying REDO_WRITE records, suppressing any whose matching
// TERM_WRITE or TERM_TRUNC has also been observed. It is optional for read-only
// mounts.
func (r *Ring) Stage2Redo(ctx context.Context, apply func(d DecodedRedo) error) error {
	first, next := r.Bounds()
	if first == next {
		return nil
	}

	// Find the latest RedoSync by a first forward pass.
	syncPos := int64(-1)
	pos := first
	for pos != next {
		hdrBuf, payload, err := r.readRecordAt(ctx, pos)
		if err != nil {
			return err
		}
		hdr, err := layout.GetHeader(hdrBuf)
		if err != nil {
			return err
		}
		if hdr.Type == layout.RecRedoSync {
			syncPos = pos
			_ = payload
		}
		pos = (pos + int64(hdr.Size)) % r.size
	}
	if syncPos < 0 {
		return nil
	}

	terminated := make(map[string]bool)
	pending := make([]DecodedRedo, 0)

	pos = syncPos
	for pos != next {
		hdrBuf, payload, err := r.readRecordAt(ctx, pos)
		if err != nil {
			return err
		}
		hdr, err := layout.GetHeader(hdrBuf)
		if err != nil {
			return err
		}

		switch hdr.Type {
		case layout.RecRedoTermWrite, layout.RecRedoTermTrunc:
			d := decodeRedoPayload(hdr.Seq, hdr.Type, payload)
			terminated[redoKey(d.ObjID, d.Localization, d.FileOff)] = true
		case layout.RecRedoWrite:
			d := decodeRedoPayload(hdr.Seq, hdr.Type, payload)
			pending = append(pending, d)
		}

		pos = (pos + int64(hdr.Size)) % r.size
	}

	for _, d := range pending {
		if terminated[redoKey(d.ObjID, d.Localization, d.FileOff)] {
			continue
		}
		if err := apply(d); err != nil {
			return fmt.Errorf("%w: stage2 redo apply obj=%d off=%d: %v", hammererr.ErrIO, d.ObjID, d.FileOff, err)
		}
	}
	return nil
}

func redoKey(objID uint64, localization uint32, fileOff int64) string {
	return fmt.Sprintf("%d:%d:%d", objID, localization, fileOff)
}
