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

package btree

import (
	"context"
	"fmt"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
)

// ancestor is one step of the descent path from root to leaf, kept so an
// insert that triggers a split can walk back up without re-descending.
type ancestor struct {
	off  layout.Offset
	node *layout.Node
	buf  *iobuf.Buffer
	// childIdx is which of node's Internal boundary elements led to the
	// next step down.
	childIdx int
}

// releasePath releases every buffer collected in path.
func releasePath(ctx context.Context, bufs *iobuf.Manager, path []ancestor) {
	for _, a := range path {
		bufs.Release(ctx, a.buf, false)
	}
}

// findChildIndex returns the largest i in [0, node.Count] such that
// node.Internal[i].Base <= key, i.e. the boundary element whose subtree
// key may live in (inclusive-left, exclusive-right per §4.4).
func findChildIndex(node *layout.Node, key layout.Key) int {
	lo, hi := 0, node.Count
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if node.Internal[mid].Base.Compare(key) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// findLeafIndex returns the smallest i in [0, node.Count] such that
// node.Leaf[i].Base >= key, i.e. the exact-match slot or insertion point.
func findLeafIndex(node *layout.Node, key layout.Key) int {
	lo, hi := 0, node.Count
	for lo < hi {
		mid := (lo + hi) / 2
		if node.Leaf[mid].Base.Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// descend walks from root to the leaf that must contain key, returning
// the full ancestor path (root first) and the leaf itself. The caller
// must release every buffer in the returned path and the leaf's buffer.
func (t *Tree) descend(ctx context.Context, key layout.Key) (path []ancestor, leaf *layout.Node, leafOff layout.Offset, leafBuf *iobuf.Buffer, err error) {
	off := t.rootOff
	for {
		n, buf, rerr := t.readNode(ctx, off)
		if rerr != nil {
			releasePath(ctx, t.bufs, path)
			return nil, nil, 0, nil, rerr
		}
		if n.Type == layout.NodeLeaf {
			return path, n, off, buf, nil
		}
		idx := findChildIndex(n, key)
		path = append(path, ancestor{off: off, node: n, buf: buf, childIdx: idx})
		off = n.Internal[idx].SubtreeOffset
	}
}

// Lookup returns the live (delete_tid==0) or, if asOf, the as-of-key.CreateTID
// visible version of the record at key. A miss returns hammererr.ErrNotFound.
func (t *Tree) Lookup(ctx context.Context, key layout.Key, asOf bool) (layout.LeafElem, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	path, leaf, _, leafBuf, err := t.descend(ctx, key)
	defer releasePath(ctx, t.bufs, path)
	if err != nil {
		return layout.LeafElem{}, err
	}
	defer t.bufs.Release(ctx, leafBuf, false)

	idx := findLeafIndex(leaf, key)
	if idx < leaf.Count && leaf.Leaf[idx].Base.Compare(key) == 0 {
		return leaf.Leaf[idx], nil
	}
	if !asOf {
		return layout.LeafElem{}, hammererr.ErrNotFound
	}

	// CREATE_CHECK retry (§4.4 as-of handling): the element immediately
	// before the miss may be the historical version visible as of
	// key.CreateTID, if it shares every field but CreateTID/DeleteTID and
	// was live at that TID.
	if idx == 0 {
		return layout.LeafElem{}, hammererr.ErrNotFound
	}
	cand := leaf.Leaf[idx-1]
	if cand.Base.Localization != key.Localization || cand.Base.ObjID != key.ObjID ||
		cand.Base.RecType != key.RecType || cand.Base.ElementKey != key.ElementKey {
		return layout.LeafElem{}, hammererr.ErrNotFound
	}
	asOfTID := key.CreateTID
	if asOfTID == 0 {
		asOfTID = ^uint64(0)
	}
	if cand.Base.CreateTID > asOfTID {
		return layout.LeafElem{}, hammererr.ErrNotFound
	}
	if cand.DeleteTID != 0 && cand.DeleteTID <= asOfTID {
		return layout.LeafElem{}, hammererr.ErrNotFound
	}
	return cand, nil
}

// Next returns the smallest element with a key strictly greater than
// after, for forward iteration (internal/cursor's ITERATE step). A miss
// (after is the tree's last element) returns hammererr.ErrNotFound.
func (t *Tree) Next(ctx context.Context, after layout.Key) (layout.LeafElem, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	path, leaf, leafOff, leafBuf, err := t.descend(ctx, after)
	if err != nil {
		return layout.LeafElem{}, err
	}
	releasePath(ctx, t.bufs, path)
	defer t.bufs.Release(ctx, leafBuf, false)

	idx := findLeafIndex(leaf, after)
	if idx < leaf.Count && leaf.Leaf[idx].Base.Compare(after) == 0 {
		idx++
	}
	if idx < leaf.Count {
		return leaf.Leaf[idx], nil
	}

	nextOff, err := t.successorLeaf(ctx, leafOff)
	if err != nil {
		return layout.LeafElem{}, err
	}
	nextLeaf, nbuf, err := t.readNode(ctx, nextOff)
	if err != nil {
		return layout.LeafElem{}, err
	}
	defer t.bufs.Release(ctx, nbuf, false)
	if nextLeaf.Count == 0 {
		return layout.LeafElem{}, hammererr.ErrNotFound
	}
	return nextLeaf.Leaf[0], nil
}

// successorLeaf returns the offset of the leaf immediately to the right
// of childOff in key order, climbing via ParentOffset until it finds an
// ancestor where childOff's subtree is not the rightmost, then descending
// leftmost from the next boundary.
func (t *Tree) successorLeaf(ctx context.Context, childOff layout.Offset) (layout.Offset, error) {
	child, buf, err := t.readNode(ctx, childOff)
	if err != nil {
		return 0, err
	}
	parentOff := child.ParentOffset
	t.bufs.Release(ctx, buf, false)
	if parentOff.IsZero() {
		return 0, hammererr.ErrNotFound
	}

	parent, pbuf, err := t.readNode(ctx, parentOff)
	if err != nil {
		return 0, err
	}
	idx := -1
	for i := 0; i <= parent.Count; i++ {
		if parent.Internal[i].SubtreeOffset == childOff {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.bufs.Release(ctx, pbuf, false)
		return 0, fmt.Errorf("%w: child %s not found under its own parent", hammererr.ErrRange, childOff)
	}
	if idx < parent.Count {
		next := parent.Internal[idx+1].SubtreeOffset
		t.bufs.Release(ctx, pbuf, false)
		return t.leftmostLeaf(ctx, next)
	}
	t.bufs.Release(ctx, pbuf, false)
	return t.successorLeaf(ctx, parentOff)
}

// leftmostLeaf descends from off always taking the first child until it
// reaches a leaf.
func (t *Tree) leftmostLeaf(ctx context.Context, off layout.Offset) (layout.Offset, error) {
	for {
		n, buf, err := t.readNode(ctx, off)
		if err != nil {
			return 0, err
		}
		if n.Type == layout.NodeLeaf {
			t.bufs.Release(ctx, buf, false)
			return off, nil
		}
		next := n.Internal[0].SubtreeOffset
		t.bufs.Release(ctx, buf, false)
		off = next
	}
}
