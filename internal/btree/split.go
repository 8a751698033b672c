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

// splitLeaf splits a full leaf node in two at the midpoint (§4.4 split:
// "choose split index = (count+1)/2"), links the new leaf into the parent
// chain, and releases leafBuf. It returns the new leaf's offset and
// decoded contents.
func (t *Tree) splitLeaf(ctx context.Context, leafOff layout.Offset, leaf *layout.Node, leafBuf *iobuf.Buffer) (newOff layout.Offset, newLeaf *layout.Node, err error) {
	ctx, span := tracing.Start(ctx, "btree.splitLeaf")
	defer func() { tracing.End(span, err) }()

	splitIdx := (leaf.Count + 1) / 2

	newLeaf = &layout.Node{Type: layout.NodeLeaf, ParentOffset: leaf.ParentOffset}
	moved := leaf.Count - splitIdx
	for i := 0; i < moved; i++ {
		newLeaf.Leaf[i] = leaf.Leaf[splitIdx+i]
		if newLeaf.Leaf[i].Base.CreateTID > newLeaf.Mirror {
			newLeaf.Mirror = newLeaf.Leaf[i].Base.CreateTID
		}
	}
	newLeaf.Count = moved
	leaf.Count = splitIdx

	newOff, err = t.allocNode(ctx)
	if err != nil {
		t.bufs.Release(ctx, leafBuf, false)
		return 0, nil, err
	}
	if err := t.writeNewNode(ctx, newOff, newLeaf); err != nil {
		t.bufs.Release(ctx, leafBuf, false)
		return 0, nil, err
	}
	if err := t.writeNode(ctx, leafOff, leafBuf, leaf); err != nil {
		t.bufs.Release(ctx, leafBuf, false)
		return 0, nil, err
	}
	t.bufs.Release(ctx, leafBuf, false)

	sep := newLeaf.Leaf[0].Base
	if err := t.insertIntoParent(ctx, leaf.ParentOffset, newOff, sep, layout.NodeLeaf); err != nil {
		return 0, nil, err
	}
	return newOff, newLeaf, nil
}

// splitInternal splits a full internal node's Count+1 boundary elements
// in two, repoints the moved children's ParentOffset, and links the new
// node into the grandparent chain.
func (t *Tree) splitInternal(ctx context.Context, off layout.Offset, node *layout.Node, buf *iobuf.Buffer) (layout.Offset, *layout.Node, error) {
	total := node.Count + 1
	splitIdx := total / 2

	newNode := &layout.Node{Type: layout.NodeInternal, ParentOffset: node.ParentOffset}
	moved := total - splitIdx
	for i := 0; i < moved; i++ {
		newNode.Internal[i] = node.Internal[splitIdx+i]
		if newNode.Internal[i].SubtreeMirror > newNode.Mirror {
			newNode.Mirror = newNode.Internal[i].SubtreeMirror
		}
	}
	newNode.Count = moved - 1
	node.Count = splitIdx - 1

	newOff, err := t.allocNode(ctx)
	if err != nil {
		t.bufs.Release(ctx, buf, false)
		return 0, nil, err
	}
	if err := t.writeNewNode(ctx, newOff, newNode); err != nil {
		t.bufs.Release(ctx, buf, false)
		return 0, nil, err
	}
	if err := t.writeNode(ctx, off, buf, node); err != nil {
		t.bufs.Release(ctx, buf, false)
		return 0, nil, err
	}
	t.bufs.Release(ctx, buf, false)

	for i := 0; i < moved; i++ {
		if err := t.fixupParent(ctx, newNode.Internal[i].SubtreeOffset, newOff); err != nil {
			return 0, nil, err
		}
	}

	sep := newNode.Internal[0].Base
	if err := t.insertIntoParent(ctx, node.ParentOffset, newOff, sep, layout.NodeInternal); err != nil {
		return 0, nil, err
	}
	return newOff, newNode, nil
}

// insertIntoParent links newChildOff (whose first/leftmost boundary key
// is sep) into the parent at parentOff. If parentOff is zero, the caller
// was the root and a new root is created above it.
func (t *Tree) insertIntoParent(ctx context.Context, parentOff, newChildOff layout.Offset, sep layout.Key, childType layout.NodeType) error {
	if parentOff.IsZero() {
		return t.makeNewRoot(ctx, newChildOff, sep, childType)
	}

	parent, parentBuf, err := t.readNode(ctx, parentOff)
	if err != nil {
		return err
	}

	if parent.Count+1 >= layout.NodeRadix {
		newParentOff, newParent, serr := t.splitInternal(ctx, parentOff, parent, parentBuf)
		if serr != nil {
			return serr
		}
		target := parentOff
		if sep.Compare(newParent.Internal[0].Base) >= 0 {
			target = newParentOff
		}
		targetNode, targetBuf, rerr := t.readNode(ctx, target)
		if rerr != nil {
			return rerr
		}
		return t.insertBoundary(ctx, target, targetNode, targetBuf, newChildOff, sep, childType)
	}

	return t.insertBoundary(ctx, parentOff, parent, parentBuf, newChildOff, sep, childType)
}

// insertBoundary shifts parent's boundary elements right and installs a
// new one for newChildOff, then repoints newChildOff's ParentOffset at
// parent if it does not already agree (it may not, if a grandparent split
// chose the other half).
func (t *Tree) insertBoundary(ctx context.Context, parentOff layout.Offset, parent *layout.Node, parentBuf *iobuf.Buffer, newChildOff layout.Offset, sep layout.Key, childType layout.NodeType) error {
	idx := findChildIndex(parent, sep)
	insertAt := idx + 1
	for i := parent.Count + 1; i > insertAt; i-- {
		parent.Internal[i] = parent.Internal[i-1]
	}
	parent.Internal[insertAt] = layout.InternalElem{Base: sep, SubtreeOffset: newChildOff, SubtreeType: childType}
	parent.Count++

	if err := t.writeNode(ctx, parentOff, parentBuf, parent); err != nil {
		t.bufs.Release(ctx, parentBuf, false)
		return err
	}
	t.bufs.Release(ctx, parentBuf, false)

	return t.fixupParent(ctx, newChildOff, parentOff)
}

// fixupParent rewrites childOff's ParentOffset field to newParentOff, if
// it differs.
func (t *Tree) fixupParent(ctx context.Context, childOff, newParentOff layout.Offset) error {
	child, buf, err := t.readNode(ctx, childOff)
	if err != nil {
		return err
	}
	if child.ParentOffset == newParentOff {
		t.bufs.Release(ctx, buf, false)
		return nil
	}
	child.ParentOffset = newParentOff
	if err := t.writeNode(ctx, childOff, buf, child); err != nil {
		t.bufs.Release(ctx, buf, false)
		return err
	}
	t.bufs.Release(ctx, buf, false)
	return nil
}

// makeNewRoot builds a fresh two-child root above a node that just split
// at the top of the tree, and updates t.rootOff.
func (t *Tree) makeNewRoot(ctx context.Context, newChildOff layout.Offset, sep layout.Key, childType layout.NodeType) error {
	oldRootOff := t.rootOff

	newRoot := &layout.Node{Type: layout.NodeInternal, Count: 1}
	newRoot.Internal[0] = layout.InternalElem{Base: layout.Key{CreateTID: 1}, SubtreeOffset: oldRootOff, SubtreeType: childType}
	newRoot.Internal[1] = layout.InternalElem{Base: sep, SubtreeOffset: newChildOff, SubtreeType: childType}

	rootOff, err := t.allocNode(ctx)
	if err != nil {
		return err
	}
	if err := t.writeNewNode(ctx, rootOff, newRoot); err != nil {
		return err
	}
	if err := t.fixupParent(ctx, oldRootOff, rootOff); err != nil {
		return err
	}
	if err := t.fixupParent(ctx, newChildOff, rootOff); err != nil {
		return err
	}
	t.rootOff = rootOff
	return nil
}
