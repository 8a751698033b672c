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

// Package iobuf is the buffer manager (spec §4.1): it pairs a physical
// device offset with a passively-associated kernel buffer-cache buffer
// and a reference count, and exposes the acquire/new/release/modify
// lifecycle every higher layer (blockmap, B-Tree, UNDO FIFO) reads and
// writes through instead of touching a Device directly.
package iobuf

import (
	"github.com/jacobsa/syncutil"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

// Kind classifies a buffer's contents for the bioops checkwrite rule:
// VOLUME and META buffers may only be written by the flusher; DATA and
// UNDO buffers may be written by their owning transaction.
type Kind uint8

const (
	KindVolume Kind = iota
	KindMeta
	KindData
	KindUndo
)

// Buffer is one cached, fixed-size region of a volume. Every field below
// Mu is guarded by it; Buffer must only be constructed by a Manager.
type Buffer struct {
	Mu syncutil.InvariantMutex

	vol    int32
	offset layout.Offset
	size   int

	// GUARDED_BY(Mu)
	kind Kind
	// GUARDED_BY(Mu)
	data []byte
	// GUARDED_BY(Mu)
	refs int
	// GUARDED_BY(Mu)
	modifying bool
	// GUARDED_BY(Mu)
	modified bool
	// GUARDED_BY(Mu)
	running bool // an I/O is in flight against this buffer (bioops running-write accounting)
}

func newBuffer(vol int32, off layout.Offset, size int, kind Kind) *Buffer {
	b := &Buffer{vol: vol, offset: off, size: size, kind: kind, data: make([]byte, size)}
	b.Mu = syncutil.NewInvariantMutex(b.checkInvariants)
	return b
}

func (b *Buffer) checkInvariants() {
	if b.refs < 0 {
		panic("iobuf: negative ref count")
	}
	if b.modifying && b.running {
		panic("iobuf: buffer both under modification and under I/O")
	}
}

// Offset returns the buffer's device offset.
func (b *Buffer) Offset() layout.Offset { return b.offset }

// Size returns the buffer's byte length.
func (b *Buffer) Size() int { return b.size }

// Kind returns the buffer's content classification.
func (b *Buffer) Kind() Kind { return b.kind }

// Bytes returns the buffer's backing slice. Callers must hold Mu for
// read, or have opened a modification window via Modify for write.
func (b *Buffer) Bytes() []byte { return b.data }

// Modified reports whether the buffer has unflushed writes.
func (b *Buffer) Modified() bool {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	return b.modified
}

// refCount reports the buffer's current reference count; exported for the
// manager's tests.
func (b *Buffer) refCount() int {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	return b.refs
}

// checkDeallocate reports hammererr.ErrIO-class refusal when the kernel
// cache's deallocate callback must be refused because the buffer still
// has an active reference or an open modification window.
func (b *Buffer) checkDeallocate() error {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	if b.refs > 0 || b.modifying {
		return hammererr.ErrIO
	}
	return nil
}
