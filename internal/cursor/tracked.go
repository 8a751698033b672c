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

package cursor

import (
	"sync"

	"github.com/hammerfs/hammer/internal/layout"
)

// TrackedList is the per-node cursor_list of §4.6: while a cursor is
// unlocked+tracked, it is linked here so a structural operation on that
// node can relocate it instead of leaving it pointing at stale data.
// internal/fifo's Queue is strict FIFO (push/pop only, no removal by
// identity or iteration), which a relocation list needs; this is the
// "adapted to a per-node slice of live cursors" variant of that same
// intrusive-list idea instead.
type TrackedList struct {
	mu    sync.Mutex
	byOff map[layout.Offset][]*Cursor
}

// NewTrackedList returns an empty TrackedList.
func NewTrackedList() *TrackedList {
	return &TrackedList{byOff: make(map[layout.Offset][]*Cursor)}
}

// Track links c onto off's cursor list.
func (t *TrackedList) Track(off layout.Offset, c *Cursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byOff[off] = append(t.byOff[off], c)
}

// Untrack removes c from off's cursor list, if present.
func (t *TrackedList) Untrack(off layout.Offset, c *Cursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(off, c)
}

func (t *TrackedList) removeLocked(off layout.Offset, c *Cursor) {
	list := t.byOff[off]
	for i, v := range list {
		if v == c {
			t.byOff[off] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// OnInsert walks off's tracked cursors and bumps the index of any cursor
// positioned at or after idx, since elements at and above idx just
// shifted right by one.
func (t *TrackedList) OnInsert(off layout.Offset, idx int) {
	t.mu.Lock()
	list := append([]*Cursor(nil), t.byOff[off]...)
	t.mu.Unlock()

	for _, c := range list {
		c.mu.Lock()
		if c.leafOff == off && c.index >= idx {
			c.index++
		}
		c.mu.Unlock()
	}
}

// OnDelete walks off's tracked cursors and adjusts any cursor positioned
// at or after idx: one at idx itself is marked ripout (its element is
// gone; relock must RETEST), others above idx shift left.
func (t *TrackedList) OnDelete(off layout.Offset, idx int) {
	t.mu.Lock()
	list := append([]*Cursor(nil), t.byOff[off]...)
	t.mu.Unlock()

	for _, c := range list {
		c.mu.Lock()
		if c.leafOff == off {
			switch {
			case c.index == idx:
				c.ripout = true
				c.retest = true
			case c.index > idx:
				c.index--
			}
		}
		c.mu.Unlock()
	}
}

// OnSplit moves every cursor on oldOff with index >= splitIdx onto
// newOff, with its index reduced by splitIdx, matching §4.6: "on node
// split, cursors with index >= split are moved to the new node with
// index -= split".
func (t *TrackedList) OnSplit(oldOff, newOff layout.Offset, splitIdx int) {
	t.mu.Lock()
	list := append([]*Cursor(nil), t.byOff[oldOff]...)
	t.mu.Unlock()

	var moved []*Cursor
	for _, c := range list {
		c.mu.Lock()
		if c.leafOff == oldOff && c.index >= splitIdx {
			c.leafOff = newOff
			c.index -= splitIdx
			moved = append(moved, c)
		}
		c.mu.Unlock()
	}

	if len(moved) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range moved {
		t.removeLocked(oldOff, c)
		t.byOff[newOff] = append(t.byOff[newOff], c)
	}
}

// OnRemove migrates every cursor on childOff to parentOff and sets
// RETEST, matching §4.6: "on node removal, cursors are migrated to the
// parent with ITERATE_CHECK set".
func (t *TrackedList) OnRemove(childOff, parentOff layout.Offset) {
	t.mu.Lock()
	list := append([]*Cursor(nil), t.byOff[childOff]...)
	t.mu.Unlock()

	for _, c := range list {
		c.mu.Lock()
		if c.leafOff == childOff {
			c.leafOff = parentOff
			c.index = 0
			c.retest = true
		}
		c.mu.Unlock()
	}

	if len(list) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range list {
		t.removeLocked(childOff, c)
		t.byOff[parentOff] = append(t.byOff[parentOff], c)
	}
}
