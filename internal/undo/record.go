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
	"encoding/binary"

	"github.com/hammerfs/hammer/internal/layout"
)

// WriteUndo appends an UNDO record recording the "before" image of
// length len(before) at zoneOff, as emitted transparently by a buffer's
// Modify call (§4.1).
func (r *Ring) WriteUndo(ctx context.Context, zoneOff layout.Offset, before []byte) (uint32, error) {
	payload := make([]byte, 8+len(before))
	binary.LittleEndian.PutUint64(payload[0:8], uint64(zoneOff))
	copy(payload[8:], before)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, layout.RecUndo, payload)
}

// RedoWrite appends a REDO_WRITE record: the "after" image of regular
// file data, replayed during stage2 recovery so fsync need not wait for
// a full meta-data flush.
func (r *Ring) RedoWrite(ctx context.Context, objID uint64, localization uint32, fileOff int64, data []byte) (uint32, error) {
	payload := make([]byte, 8+4+8+len(data))
	binary.LittleEndian.PutUint64(payload[0:8], objID)
	binary.LittleEndian.PutUint32(payload[8:12], localization)
	binary.LittleEndian.PutUint64(payload[12:20], uint64(fileOff))
	copy(payload[20:], data)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, layout.RecRedoWrite, payload)
}

// RedoTermWrite appends a tombstone for earlier REDO_WRITEs covering
// [fileOff, fileOff+length) of the given object, written as the
// corresponding B-Tree entry is durably synced.
func (r *Ring) RedoTermWrite(ctx context.Context, objID uint64, localization uint32, fileOff int64, length int64) (uint32, error) {
	payload := make([]byte, 8+4+8+8)
	binary.LittleEndian.PutUint64(payload[0:8], objID)
	binary.LittleEndian.PutUint32(payload[8:12], localization)
	binary.LittleEndian.PutUint64(payload[12:20], uint64(fileOff))
	binary.LittleEndian.PutUint64(payload[20:28], uint64(length))

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, layout.RecRedoTermWrite, payload)
}

// RedoTermTrunc appends the truncation equivalent of RedoTermWrite.
func (r *Ring) RedoTermTrunc(ctx context.Context, objID uint64, localization uint32, fileOff int64) (uint32, error) {
	payload := make([]byte, 8+4+8)
	binary.LittleEndian.PutUint64(payload[0:8], objID)
	binary.LittleEndian.PutUint32(payload[8:12], localization)
	binary.LittleEndian.PutUint64(payload[12:20], uint64(fileOff))

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, layout.RecRedoTermTrunc, payload)
}

// RedoSync appends a placemark record; stage2 recovery replays only from
// the latest RedoSync onward. The flusher emits one at least once per
// flush group (§4.4).
func (r *Ring) RedoSync(ctx context.Context, offset layout.Offset) (uint32, error) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload[0:8], uint64(offset))

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, layout.RecRedoSync, payload)
}

// DecodedUndo is a parsed UNDO record: the zone offset and before-image
// bytes to restore during stage1 recovery.
type DecodedUndo struct {
	Seq    uint32
	Offset layout.Offset
	Before []byte
}

func decodeUndoPayload(seq uint32, payload []byte) DecodedUndo {
	return DecodedUndo{
		Seq:    seq,
		Offset: layout.Offset(binary.LittleEndian.Uint64(payload[0:8])),
		Before: append([]byte(nil), payload[8:]...),
	}
}

// DecodedRedo is a parsed REDO record of any subtype.
type DecodedRedo struct {
	Seq          uint32
	Type         layout.RecType
	ObjID        uint64
	Localization uint32
	FileOff      int64
	Length       int64
	Data         []byte
	SyncOffset   layout.Offset
}

func decodeRedoPayload(seq uint32, typ layout.RecType, payload []byte) DecodedRedo {
	d := DecodedRedo{Seq: seq, Type: typ}
	switch typ {
	case layout.RecRedoSync:
		d.SyncOffset = layout.Offset(binary.LittleEndian.Uint64(payload[0:8]))
	case layout.RecRedoTermTrunc:
		d.ObjID = binary.LittleEndian.Uint64(payload[0:8])
		d.Localization = binary.LittleEndian.Uint32(payload[8:12])
		d.FileOff = int64(binary.LittleEndian.Uint64(payload[12:20]))
	case layout.RecRedoTermWrite:
		d.ObjID = binary.LittleEndian.Uint64(payload[0:8])
		d.Localization = binary.LittleEndian.Uint32(payload[8:12])
		d.FileOff = int64(binary.LittleEndian.Uint64(payload[12:20]))
		d.Length = int64(binary.LittleEndian.Uint64(payload[20:28]))
	case layout.RecRedoWrite:
		d.ObjID = binary.LittleEndian.Uint64(payload[0:8])
		d.Localization = binary.LittleEndian.Uint32(payload[8:12])
		d.FileOff = int64(binary.LittleEndian.Uint64(payload[12:20]))
		d.Data = append([]byte(nil), payload[20:]...)
	}
	return d
}
