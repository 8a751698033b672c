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

	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/tracing"
)

// Rebalance performs the bottom-up node-merge pass (§4.4 merge, the
// pass §4.8's rebalancer drives): every pair of adjacent siblings whose
// combined element count still fits in a single node's radix is
// collapsed into the left one, the right one's boundary is spliced out
// of their shared parent, and its node slot is returned to the
// freemap. It recurses leaves-first, so a subtree a leaf merge shrinks
// becomes a merge candidate with its own siblings one level up, and
// finally collapses the root down by a level at a time while it has
// only a single child left.
//
// One such pass can leave newly-adjacent-but-different-parent siblings
// unmerged, since a pair only becomes comparable once both sides of it
// have already been lifted into the same parent; Rebalance repeats the
// pass until one makes no further change, so a deeply sparse tree
// still converges to a fully packed one. It returns the resulting
// leaf-occupancy report.
func (t *Tree) Rebalance(ctx context.Context) (stats Stats, err error) {
	ctx, span := tracing.Start(ctx, "btree.Rebalance")
	defer func() { tracing.End(span, err) }()

	t.mu.Lock()
	rerr := t.rebalanceUntilStable(ctx)
	t.mu.Unlock()
	if rerr != nil {
		err = rerr
		return Stats{}, err
	}
	stats, err = t.Stats(ctx)
	return stats, err
}

func (t *Tree) rebalanceUntilStable(ctx context.Context) error {
	for {
		changed, err := t.rebalanceLocked(ctx)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

func (t *Tree) rebalanceLocked(ctx context.Context) (bool, error) {
	_, buf, changed, err := t.rebalanceSubtree(ctx, t.rootOff)
	if err != nil {
		return false, err
	}
	t.bufs.Release(ctx, buf, false)

	rootChanged, err := t.collapseRoot(ctx)
	if err != nil {
		return false, err
	}
	return changed || rootChanged, nil
}

// collapseRoot replaces the root with its sole child, one level at a
// time, for as long as the root is an internal node holding only one
// child (Count==0 means one child: Count tracks separator count, not
// child count).
func (t *Tree) collapseRoot(ctx context.Context) (bool, error) {
	changed := false
	for {
		root, buf, err := t.readNode(ctx, t.rootOff)
		if err != nil {
			return changed, err
		}
		if root.Type != layout.NodeInternal || root.Count != 0 {
			t.bufs.Release(ctx, buf, false)
			return changed, nil
		}

		oldRootOff := t.rootOff
		childOff := root.Internal[0].SubtreeOffset
		t.bufs.Release(ctx, buf, false)

		if err := t.fixupParent(ctx, childOff, 0); err != nil {
			return changed, err
		}
		t.rootOff = childOff
		if err := t.alloc.Free(ctx, t.ring, oldRootOff, NodeSlotSize); err != nil {
			return changed, err
		}
		changed = true
	}
}

// rebalanceSubtree packs off's children (if it has any) and returns
// off's own, possibly-updated, node and the buffer backing it, plus
// whether any merge occurred anywhere in the subtree. The caller owns
// the returned buffer and must release it.
func (t *Tree) rebalanceSubtree(ctx context.Context, off layout.Offset) (*layout.Node, *iobuf.Buffer, bool, error) {
	node, buf, err := t.readNode(ctx, off)
	if err != nil {
		return nil, nil, false, err
	}
	if node.Type == layout.NodeLeaf {
		return node, buf, false, nil
	}

	subtreeChanged := false
	localChanged := false
	i := 0
	for i < node.Count {
		leftOff := node.Internal[i].SubtreeOffset
		rightOff := node.Internal[i+1].SubtreeOffset

		left, leftBuf, leftChanged, err := t.rebalanceSubtree(ctx, leftOff)
		if err != nil {
			t.bufs.Release(ctx, buf, false)
			return nil, nil, false, err
		}
		right, rightBuf, rightChanged, err := t.rebalanceSubtree(ctx, rightOff)
		if err != nil {
			t.bufs.Release(ctx, leftBuf, false)
			t.bufs.Release(ctx, buf, false)
			return nil, nil, false, err
		}
		subtreeChanged = subtreeChanged || leftChanged || rightChanged

		merged, mirror, err := t.tryMergeSiblings(ctx, leftOff, left, leftBuf, rightOff, right, rightBuf)
		if err != nil {
			t.bufs.Release(ctx, buf, false)
			return nil, nil, false, err
		}
		if !merged {
			i++
			continue
		}
		localChanged = true

		node.Internal[i].SubtreeMirror = mirror
		for j := i + 1; j < node.Count; j++ {
			node.Internal[j] = node.Internal[j+1]
		}
		node.Internal[node.Count] = layout.InternalElem{}
		node.Count--
	}

	if !localChanged {
		return node, buf, subtreeChanged, nil
	}
	if err := t.writeNode(ctx, off, buf, node); err != nil {
		t.bufs.Release(ctx, buf, false)
		return nil, nil, false, err
	}
	return node, buf, true, nil
}

// tryMergeSiblings merges right into left if they are the same node
// type and their combined element count fits within one node's radix.
// It always consumes leftBuf and rightBuf before returning: on success
// leftBuf is rewritten with the merged contents and released, rightBuf
// is released and rightOff is returned to the freemap; on a no-op it
// releases both unchanged. The returned mirror is left's post-merge
// Mirror, for the caller to thread into the parent's SubtreeMirror.
func (t *Tree) tryMergeSiblings(ctx context.Context, leftOff layout.Offset, left *layout.Node, leftBuf *iobuf.Buffer, rightOff layout.Offset, right *layout.Node, rightBuf *iobuf.Buffer) (bool, uint64, error) {
	if left.Type != right.Type {
		t.bufs.Release(ctx, leftBuf, false)
		t.bufs.Release(ctx, rightBuf, false)
		return false, 0, nil
	}

	var grafted []layout.Offset
	if left.Type == layout.NodeLeaf {
		if left.Count+right.Count > layout.NodeRadix {
			t.bufs.Release(ctx, leftBuf, false)
			t.bufs.Release(ctx, rightBuf, false)
			return false, 0, nil
		}
		for i := 0; i < right.Count; i++ {
			left.Leaf[left.Count+i] = right.Leaf[i]
		}
		left.Count += right.Count
	} else {
		total := (left.Count + 1) + (right.Count + 1)
		if total > layout.NodeRadix {
			t.bufs.Release(ctx, leftBuf, false)
			t.bufs.Release(ctx, rightBuf, false)
			return false, 0, nil
		}
		base := left.Count + 1
		for i := 0; i <= right.Count; i++ {
			left.Internal[base+i] = right.Internal[i]
			grafted = append(grafted, right.Internal[i].SubtreeOffset)
		}
		left.Count = total - 1
	}
	bumpMirror(left, right.Mirror)

	if err := t.writeNode(ctx, leftOff, leftBuf, left); err != nil {
		t.bufs.Release(ctx, leftBuf, false)
		t.bufs.Release(ctx, rightBuf, false)
		return false, 0, err
	}
	t.bufs.Release(ctx, leftBuf, false)
	t.bufs.Release(ctx, rightBuf, false)

	for _, childOff := range grafted {
		if err := t.fixupParent(ctx, childOff, leftOff); err != nil {
			return false, 0, err
		}
	}

	if err := t.alloc.Free(ctx, t.ring, rightOff, NodeSlotSize); err != nil {
		return false, 0, err
	}
	return true, left.Mirror, nil
}
