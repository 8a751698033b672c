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

// Package btree is the modified B+Tree index (spec §4.4): a fixed-radix
// tree keyed by (localization, obj_id, rec_type, element_key, create_tid)
// with inclusive-left/exclusive-right node boundaries and an as-of lookup
// mode for historical reads.
//
// The reference design's child-lock discipline (§4.5) coordinates
// concurrent splits/rebalances by exclusively locking every node a
// structural operation touches, via a pre-allocated lock cache so lock
// acquisition never itself needs memory under pressure. This port instead
// serializes all structural mutation behind Tree.mu: a single process-wide
// writer lock rather than a per-node lock set. hammererr.ErrDeadlock is
// still the error a cursor sees on upgrade contention (internal/cursor),
// preserving the retry-at-the-edge API shape even though a single mutex
// cannot itself deadlock.
package btree

import (
	"context"
	"fmt"
	"sync"

	"github.com/hammerfs/hammer/internal/blockmap"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/undo"
)

// NodeSlotSize is the on-disk allocation granularity for every node,
// comfortably larger than either encoded node shape (see
// layout.EncodedSizeForType) and block-aligned for iobuf.
const NodeSlotSize = 512

// Tree is one volume's live B+Tree index.
type Tree struct {
	vol   int32
	bufs  *iobuf.Manager
	ring  *undo.Ring
	alloc *blockmap.Freemap

	mu      sync.RWMutex
	rootOff layout.Offset
}

// NewTree returns a Tree rooted at rootOff. rootOff must already name a
// valid (possibly empty) leaf node; NewEmptyTree creates one.
func NewTree(vol int32, bufs *iobuf.Manager, ring *undo.Ring, alloc *blockmap.Freemap, rootOff layout.Offset) *Tree {
	return &Tree{vol: vol, bufs: bufs, ring: ring, alloc: alloc, rootOff: rootOff}
}

// Root returns the tree's current root offset, e.g. for persisting into
// the volume header after a root-replacing split.
func (t *Tree) Root() layout.Offset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootOff
}

// NewEmptyTree allocates a single empty leaf node and returns a Tree
// rooted at it.
func NewEmptyTree(ctx context.Context, vol int32, bufs *iobuf.Manager, ring *undo.Ring, alloc *blockmap.Freemap) (*Tree, error) {
	t := &Tree{vol: vol, bufs: bufs, ring: ring, alloc: alloc}
	off, err := t.allocNode(ctx)
	if err != nil {
		return nil, err
	}
	root := &layout.Node{Type: layout.NodeLeaf}
	if err := t.writeNewNode(ctx, off, root); err != nil {
		return nil, err
	}
	t.rootOff = off
	return t, nil
}

func (t *Tree) allocNode(ctx context.Context) (layout.Offset, error) {
	return t.alloc.Reserve(ctx, t.ring, layout.ZoneBTree, NodeSlotSize)
}

// readNode acquires the buffer at off and decodes it. The caller must
// Release the returned buffer.
func (t *Tree) readNode(ctx context.Context, off layout.Offset) (*layout.Node, *iobuf.Buffer, error) {
	buf, err := t.bufs.Acquire(ctx, t.vol, off, NodeSlotSize, iobuf.KindMeta)
	if err != nil {
		return nil, nil, err
	}
	n := &layout.Node{}
	typeByte := buf.Bytes()[0]
	want := layout.EncodedSizeForType(layout.NodeType(typeByte))
	if err := n.UnmarshalBinary(buf.Bytes()[:want]); err != nil {
		t.bufs.Release(ctx, buf, false)
		return nil, nil, fmt.Errorf("%w: node at %s: %v", hammererr.ErrCRC, off, err)
	}
	return n, buf, nil
}

// writeNode records an UNDO for buf's current contents, then marshals n
// into it. The caller still owns buf's ref and must Release it.
func (t *Tree) writeNode(ctx context.Context, off layout.Offset, buf *iobuf.Buffer, n *layout.Node) error {
	before := append([]byte(nil), buf.Bytes()...)
	if _, err := t.ring.WriteUndo(ctx, off, before); err != nil {
		return err
	}
	enc, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	if len(enc) > NodeSlotSize {
		return fmt.Errorf("%w: encoded node %d bytes exceeds slot %d", hammererr.ErrRange, len(enc), NodeSlotSize)
	}
	if err := t.bufs.Modify(buf); err != nil {
		return err
	}
	copy(buf.Bytes(), enc)
	t.bufs.ModifyDone(buf)
	return nil
}

// writeNewNode installs n at off via iobuf.Manager.New (no UNDO needed:
// the slot held no prior committed content).
func (t *Tree) writeNewNode(ctx context.Context, off layout.Offset, n *layout.Node) error {
	buf, err := t.bufs.New(t.vol, off, NodeSlotSize, iobuf.KindMeta)
	if err != nil {
		return err
	}
	enc, err := n.MarshalBinary()
	if err != nil {
		t.bufs.Release(ctx, buf, false)
		return err
	}
	copy(buf.Bytes(), enc)
	return t.bufs.Release(ctx, buf, false)
}

// bumpMirror updates n.Mirror to max(n.Mirror, tid) if tid is newer,
// reporting whether it changed so callers know whether n must be
// rewritten (§4.4 "mirror-TID propagation").
func bumpMirror(n *layout.Node, tid uint64) bool {
	if tid > n.Mirror {
		n.Mirror = tid
		return true
	}
	return false
}
