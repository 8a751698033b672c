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

package iobuf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

// key identifies a buffer by its volume number and device offset.
type key struct {
	vol int32
	off layout.Offset
}

// Manager is the per-mount cache of live Buffer objects. It owns the
// association between a device offset and its in-memory Buffer, and
// implements the bioops callback contract (bioops.go) the kernel buffer
// cache would invoke on complete/deallocate/checkwrite/checkread.
type Manager struct {
	log *slog.Logger

	mu      sync.Mutex
	devices map[int32]device.Device
	bufs    map[key]*Buffer
}

// NewManager returns a Manager with no devices registered yet; call
// AddVolume for each member before acquiring buffers against it.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		log:     log,
		devices: make(map[int32]device.Device),
		bufs:    make(map[key]*Buffer),
	}
}

// AddVolume registers dev as volume number vol.
func (m *Manager) AddVolume(vol int32, dev device.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[vol] = dev
}

func (m *Manager) device(vol int32) (device.Device, error) {
	m.mu.Lock()
	dev, ok := m.devices[vol]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("iobuf: no device registered for volume %d", vol)
	}
	return dev, nil
}

// Acquire locates or reads the buffer at (vol, off, size), CRC-verifying
// its contents are the caller's responsibility (the layout codec does
// this on decode). An existing association has its ref count bumped and
// is returned without touching the device.
func (m *Manager) Acquire(ctx context.Context, vol int32, off layout.Offset, size int, kind Kind) (*Buffer, error) {
	k := key{vol, off}

	m.mu.Lock()
	if b, ok := m.bufs[k]; ok {
		m.mu.Unlock()
		b.Mu.Lock()
		b.refs++
		b.Mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()

	dev, err := m.device(vol)
	if err != nil {
		return nil, err
	}

	b := newBuffer(vol, off, size, kind)
	if err := dev.ReadAt(ctx, b.data, int64(off.Local())); err != nil {
		return nil, fmt.Errorf("%w: acquire %s: %v", hammererr.ErrIO, off, err)
	}

	m.mu.Lock()
	if existing, ok := m.bufs[k]; ok {
		// Lost a race with a concurrent Acquire; use its winner instead of
		// keeping two live Buffers over one offset.
		m.mu.Unlock()
		existing.Mu.Lock()
		existing.refs++
		existing.Mu.Unlock()
		return existing, nil
	}
	m.bufs[k] = b
	m.mu.Unlock()

	b.Mu.Lock()
	b.refs = 1
	b.Mu.Unlock()
	return b, nil
}

// New installs a zero-filled buffer at (vol, off, size) without reading
// the device, marked modified so the flusher will write it out. Used
// when a caller is about to overwrite the entire region (e.g. claiming a
// fresh big-block) and a read-for-write would be wasted I/O.
func (m *Manager) New(vol int32, off layout.Offset, size int, kind Kind) (*Buffer, error) {
	k := key{vol, off}
	b := newBuffer(vol, off, size, kind)
	b.refs = 1
	b.modified = true

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bufs[k]; ok {
		return nil, fmt.Errorf("iobuf: buffer already live at vol=%d off=%s", vol, off)
	}
	m.bufs[k] = b
	return b, nil
}

// Release decrements buf's ref count. If flushNow and the ref count
// reaches zero, the buffer is written back immediately; otherwise a
// zero-ref modified buffer simply waits for the flusher.
func (m *Manager) Release(ctx context.Context, buf *Buffer, flushNow bool) error {
	buf.Mu.Lock()
	buf.refs--
	if buf.refs < 0 {
		buf.Mu.Unlock()
		return fmt.Errorf("iobuf: release of buffer with no outstanding ref")
	}
	shouldFlush := flushNow && buf.refs == 0 && buf.modified
	buf.Mu.Unlock()

	if shouldFlush {
		return m.writeBack(ctx, buf)
	}
	return nil
}

func (m *Manager) writeBack(ctx context.Context, buf *Buffer) error {
	dev, err := m.device(buf.vol)
	if err != nil {
		return err
	}

	buf.Mu.Lock()
	data := append([]byte(nil), buf.data...)
	buf.running = true
	buf.Mu.Unlock()

	err = dev.WriteAt(ctx, data, int64(buf.offset.Local()))

	buf.Mu.Lock()
	buf.running = false
	if err == nil {
		buf.modified = false
	}
	buf.Mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: write back %s: %v", hammererr.ErrIO, buf.offset, err)
	}
	return nil
}

// Modify opens a modification window on buf. The caller must have
// already emitted the corresponding UNDO record (§4.3) before writing
// into buf.Bytes(); Manager does not emit UNDO itself, since UNDO
// framing needs the transaction's sequence allocator (internal/undo),
// layered above iobuf to avoid an import cycle.
func (m *Manager) Modify(buf *Buffer) error {
	buf.Mu.Lock()
	defer buf.Mu.Unlock()
	if buf.running {
		return fmt.Errorf("iobuf: cannot modify buffer %s while I/O is running", buf.offset)
	}
	buf.modifying = true
	buf.modified = true
	return nil
}

// ModifyDone closes the modification window opened by Modify.
func (m *Manager) ModifyDone(buf *Buffer) {
	buf.Mu.Lock()
	buf.modifying = false
	buf.Mu.Unlock()
}

// Invalidate drops any live buffer whose offset falls in [beg, end),
// used when big-block ownership changes underneath cached content
// (reservation free, reblock). It refuses with hammererr.ErrIO if any
// matching buffer is still referenced or under modification.
func (m *Manager) Invalidate(vol int32, beg, end layout.Offset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var toDrop []key
	for k, b := range m.bufs {
		if k.vol != vol {
			continue
		}
		if k.off < beg || k.off >= end {
			continue
		}
		if err := b.checkDeallocate(); err != nil {
			return fmt.Errorf("iobuf: invalidate %s: %w", k.off, err)
		}
		toDrop = append(toDrop, k)
	}
	for _, k := range toDrop {
		delete(m.bufs, k)
	}
	return nil
}

// Flush writes back every modified buffer of the given volume whose kind
// is in kinds, used by the flusher's ordered DATA→UNDO→META stages
// (§4.4).
func (m *Manager) Flush(ctx context.Context, vol int32, kinds ...Kind) error {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	m.mu.Lock()
	var pending []*Buffer
	for k, b := range m.bufs {
		if k.vol != vol {
			continue
		}
		if !want[b.Kind()] {
			continue
		}
		if b.Modified() {
			pending = append(pending, b)
		}
	}
	m.mu.Unlock()

	for _, b := range pending {
		if err := m.writeBack(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
