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

	"github.com/hammerfs/hammer/internal/hammererr"
)

// BioOps is the callback contract the passively-associated kernel buffer
// cache invokes against a buffer the engine owns (spec §4.1, §6): the
// core never polls the cache, it reacts to these calls.
type BioOps interface {
	// Start marks an I/O as in flight against buf.
	Start(buf *Buffer)

	// Complete updates running-write accounting and unblocks any waiter
	// for buf's modification window to reopen.
	Complete(buf *Buffer)

	// Deallocate asks to drop the association entirely. Refused with
	// hammererr.ErrIO if buf still has an active reference or open
	// modification window.
	Deallocate(buf *Buffer) error

	// CheckWrite reports whether the cache may write buf back on its own
	// initiative (e.g. under host memory pressure). VOLUME and META
	// buffers refuse: only the flusher may write those. DATA and UNDO
	// buffers permit, marking running=true first.
	CheckWrite(buf *Buffer) error

	// CheckRead reports whether the cache may satisfy a read of buf from
	// its own cached copy rather than calling back into the device.
	CheckRead(buf *Buffer) error

	// Fsync forces buf's volume to a durability barrier.
	Fsync(ctx context.Context, buf *Buffer) error

	// Sync forces every buffer of buf's volume to a durability barrier.
	Sync(ctx context.Context, vol int32) error

	// MoveDeps transfers dependency bookkeeping from one in-flight I/O
	// generation to the next, used when a buffer is rewritten before its
	// previous write has completed.
	MoveDeps(from, to *Buffer)

	// CountDeps reports 1 if buf holds modifications not yet written
	// back and 0 otherwise; individual dependent buffers are not tracked.
	CountDeps(buf *Buffer) int
}

// managerBioOps adapts Manager to BioOps. It is the concrete
// implementation installed on every Buffer this Manager produces.
type managerBioOps struct {
	m *Manager
}

// BioOps returns the bioops-contract view of m.
func (m *Manager) BioOps() BioOps { return managerBioOps{m: m} }

func (o managerBioOps) Start(buf *Buffer) {
	buf.Mu.Lock()
	buf.running = true
	buf.Mu.Unlock()
}

func (o managerBioOps) Complete(buf *Buffer) {
	buf.Mu.Lock()
	buf.running = false
	buf.Mu.Unlock()
}

func (o managerBioOps) Deallocate(buf *Buffer) error {
	return buf.checkDeallocate()
}

func (o managerBioOps) CheckWrite(buf *Buffer) error {
	buf.Mu.Lock()
	defer buf.Mu.Unlock()
	switch buf.kind {
	case KindVolume, KindMeta:
		return hammererr.ErrReadOnly
	default:
		buf.running = true
		return nil
	}
}

func (o managerBioOps) CheckRead(buf *Buffer) error {
	buf.Mu.Lock()
	defer buf.Mu.Unlock()
	if buf.running {
		return hammererr.ErrDeadlock
	}
	return nil
}

func (o managerBioOps) Fsync(ctx context.Context, buf *Buffer) error {
	if err := o.m.writeBack(ctx, buf); err != nil {
		return err
	}
	dev, err := o.m.device(buf.vol)
	if err != nil {
		return err
	}
	return dev.Sync(ctx)
}

func (o managerBioOps) Sync(ctx context.Context, vol int32) error {
	dev, err := o.m.device(vol)
	if err != nil {
		return err
	}
	if err := o.m.Flush(ctx, vol, KindVolume, KindMeta, KindData, KindUndo); err != nil {
		return err
	}
	return dev.Sync(ctx)
}

func (o managerBioOps) MoveDeps(from, to *Buffer) {
	from.Mu.Lock()
	to.Mu.Lock()
	to.modified = to.modified || from.modified
	to.Mu.Unlock()
	from.Mu.Unlock()
}

func (o managerBioOps) CountDeps(buf *Buffer) int {
	buf.Mu.Lock()
	defer buf.Mu.Unlock()
	if buf.modified {
		return 1
	}
	return 0
}
