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

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

// Delete removes the element exactly matching key (all five fields,
// including create_tid) from the tree. If the containing leaf becomes
// empty it is detached from its parent, collapsing one boundary element,
// except at the root: an empty root leaf is left in place for the pruner
// to find later rather than ever leaving the tree without a root (§4.4
// delete).
func (t *Tree) Delete(ctx context.Context, key layout.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leaf, leafOff, leafBuf, err := t.descend(ctx, key)
	if err != nil {
		return err
	}
	releasePath(ctx, t.bufs, path)

	idx := findLeafIndex(leaf, key)
	if idx >= leaf.Count || leaf.Leaf[idx].Base.Compare(key) != 0 {
		t.bufs.Release(ctx, leafBuf, false)
		return hammererr.ErrNotFound
	}

	for i := idx; i < leaf.Count-1; i++ {
		leaf.Leaf[i] = leaf.Leaf[i+1]
	}
	leaf.Leaf[leaf.Count-1] = layout.LeafElem{}
	leaf.Count--
	parentOff := leaf.ParentOffset

	if err := t.writeNode(ctx, leafOff, leafBuf, leaf); err != nil {
		t.bufs.Release(ctx, leafBuf, false)
		return err
	}
	t.bufs.Release(ctx, leafBuf, false)

	if leaf.Count > 0 || parentOff.IsZero() {
		return nil
	}
	return t.detachChild(ctx, leafOff, parentOff)
}

// detachChild removes childOff from parentOff's boundary list. If that
// would leave parentOff with zero children, parentOff itself is detached
// from its own parent instead (recursing upward), since an internal node
// may never hold zero children; only a root leaf may be empty. A root
// internal node about to lose its last child is left untouched instead,
// since the root can never become an empty internal node either: the
// dangling empty leaf waits for the pruner, matching the deadlock-abort
// case described in §4.4.
func (t *Tree) detachChild(ctx context.Context, childOff, parentOff layout.Offset) error {
	parent, parentBuf, err := t.readNode(ctx, parentOff)
	if err != nil {
		return err
	}

	if parent.Count == 0 {
		t.bufs.Release(ctx, parentBuf, false)
		if parent.ParentOffset.IsZero() {
			return nil
		}
		return t.detachChild(ctx, parentOff, parent.ParentOffset)
	}

	idx := -1
	for i := 0; i <= parent.Count; i++ {
		if parent.Internal[i].SubtreeOffset == childOff {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.bufs.Release(ctx, parentBuf, false)
		return nil
	}

	for i := idx; i < parent.Count; i++ {
		parent.Internal[i] = parent.Internal[i+1]
	}
	parent.Internal[parent.Count] = layout.InternalElem{}
	parent.Count--

	if err := t.writeNode(ctx, parentOff, parentBuf, parent); err != nil {
		t.bufs.Release(ctx, parentBuf, false)
		return err
	}
	return t.bufs.Release(ctx, parentBuf, false)
}
