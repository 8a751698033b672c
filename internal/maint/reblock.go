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
	"errors"
	"fmt"

	"github.com/hammerfs/hammer/internal/blockmap"
	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
)

// ReblockConfig bundles a Reblocker's construction parameters.
type ReblockConfig struct {
	Tree    *btree.Tree
	Freemap *blockmap.Freemap
	Bufs    *iobuf.Manager
	Undo    blockmap.UndoWriter
	Vol     int32

	// FreeLevel is the free_level threshold (spec §4.8): a live
	// record sitting in a big-block with more than this many free
	// bytes is a reblock candidate.
	FreeLevel int

	// ShouldYield, if set, is polled between records so a caller can
	// back the scan off under UNDO-FIFO or memory pressure instead of
	// running it to completion in one breath.
	ShouldYield func() bool
}

// Reblocker relocates live records out of big-blocks that have more
// than FreeLevel bytes free, packing live data into fewer, fuller
// big-blocks so the freed ones can eventually be reclaimed whole.
type Reblocker struct {
	cfg ReblockConfig
}

// NewReblocker returns a Reblocker over cfg.
func NewReblocker(cfg ReblockConfig) *Reblocker {
	return &Reblocker{cfg: cfg}
}

// Run forward-scans every live record and relocates the ones whose
// owning big-block is fragmented past cfg.FreeLevel, returning the
// count moved. It stops early, returning hammererr.ErrInterrupted,
// the moment ctx is canceled or ShouldYield reports true. Every call
// starts again from the first key and checks each record against
// FreeLevel afresh.
func (r *Reblocker) Run(ctx context.Context) (int, error) {
	moved := 0
	key := layout.Key{CreateTID: 1}
	for {
		if err := ctx.Err(); err != nil {
			return moved, hammererr.ErrInterrupted
		}
		if r.cfg.ShouldYield != nil && r.cfg.ShouldYield() {
			return moved, hammererr.ErrInterrupted
		}

		e, err := r.cfg.Tree.Next(ctx, key)
		if errors.Is(err, hammererr.ErrNotFound) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		key = e.Base

		if e.DeleteTID != 0 || e.DataLen == 0 {
			continue // historical record or inline-embedded: nothing out-of-line to relocate
		}

		relocated, err := r.maybeRelocate(ctx, e)
		if err != nil {
			return moved, err
		}
		if relocated {
			moved++
		}
	}
}

func (r *Reblocker) maybeRelocate(ctx context.Context, e layout.LeafElem) (bool, error) {
	free, err := r.cfg.Freemap.FreeBytesAt(ctx, e.DataOffset)
	if err != nil {
		return false, err
	}
	if free <= r.cfg.FreeLevel {
		return false, nil
	}

	oldBuf, err := r.cfg.Bufs.Acquire(ctx, r.cfg.Vol, e.DataOffset, int(e.DataLen), iobuf.KindData)
	if err != nil {
		return false, err
	}
	old := append([]byte(nil), oldBuf.Bytes()...)
	if err := r.cfg.Bufs.Release(ctx, oldBuf, false); err != nil {
		return false, err
	}

	newOff, err := r.cfg.Freemap.Reserve(ctx, r.cfg.Undo, e.DataOffset.Zone(), int(e.DataLen))
	if err != nil {
		return false, err
	}

	newBuf, err := r.cfg.Bufs.New(r.cfg.Vol, newOff, int(e.DataLen), iobuf.KindData)
	if err != nil {
		return false, err
	}
	copy(newBuf.Bytes(), old)
	if err := r.cfg.Bufs.Release(ctx, newBuf, false); err != nil {
		return false, err
	}

	if err := r.cfg.Tree.UpdateLeafData(ctx, e.Base, newOff, e.DataLen, e.DataCRC); err != nil {
		return false, fmt.Errorf("maint: reblock %+v: %w", e.Base, err)
	}

	if err := r.cfg.Freemap.Free(ctx, r.cfg.Undo, e.DataOffset, int(e.DataLen)); err != nil {
		return false, err
	}
	return true, nil
}
