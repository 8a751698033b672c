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
	"github.com/hammerfs/hammer/internal/layout"
)

// Insert adds elem to the tree. It returns hammererr.ErrRange if an
// element with the identical five-tuple key already exists (§4.4 insert
// requires the cursor to already be positioned at a miss).
func (t *Tree) Insert(ctx context.Context, elem layout.LeafElem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leaf, leafOff, leafBuf, err := t.descend(ctx, elem.Base)
	if err != nil {
		return err
	}
	releasePath(ctx, t.bufs, path)

	idx := findLeafIndex(leaf, elem.Base)
	if idx < leaf.Count && leaf.Leaf[idx].Base.Compare(elem.Base) == 0 {
		t.bufs.Release(ctx, leafBuf, false)
		return fmt.Errorf("%w: duplicate key %+v", hammererr.ErrRange, elem.Base)
	}

	if leaf.Count == layout.NodeRadix {
		newOff, newLeaf, serr := t.splitLeaf(ctx, leafOff, leaf, leafBuf)
		if serr != nil {
			return serr
		}
		target := leafOff
		if elem.Base.Compare(newLeaf.Leaf[0].Base) >= 0 {
			target = newOff
		}
		leaf, leafBuf, err = t.readNode(ctx, target)
		if err != nil {
			return err
		}
		leafOff = target
		idx = findLeafIndex(leaf, elem.Base)
	}

	for i := leaf.Count; i > idx; i-- {
		leaf.Leaf[i] = leaf.Leaf[i-1]
	}
	leaf.Leaf[idx] = elem
	leaf.Count++
	tid := elem.Base.CreateTID
	if elem.DeleteTID > tid {
		tid = elem.DeleteTID
	}
	bumpMirror(leaf, tid)

	if err := t.writeNode(ctx, leafOff, leafBuf, leaf); err != nil {
		t.bufs.Release(ctx, leafBuf, false)
		return err
	}
	t.bufs.Release(ctx, leafBuf, false)

	return t.propagateMirror(ctx, elem.Base, tid)
}

// propagateMirror re-descends from the root along key's path, raising
// every internal node's aggregate Mirror and the InternalElem.SubtreeMirror
// of the child it descends into to at least tid (§4.4 "mirror-TID
// propagation"). It visits every internal node down to key's leaf, since
// an ancestor that is already current says nothing about the nodes below
// it.
func (t *Tree) propagateMirror(ctx context.Context, key layout.Key, tid uint64) error {
	off := t.rootOff
	for {
		n, buf, err := t.readNode(ctx, off)
		if err != nil {
			return err
		}
		if n.Type == layout.NodeLeaf {
			t.bufs.Release(ctx, buf, false)
			return nil
		}
		idx := findChildIndex(n, key)
		childOff := n.Internal[idx].SubtreeOffset

		changed := false
		if tid > n.Internal[idx].SubtreeMirror {
			n.Internal[idx].SubtreeMirror = tid
			changed = true
		}
		if bumpMirror(n, tid) {
			changed = true
		}
		if changed {
			if err := t.writeNode(ctx, off, buf, n); err != nil {
				t.bufs.Release(ctx, buf, false)
				return err
			}
		}
		t.bufs.Release(ctx, buf, false)
		off = childOff
	}
}

