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

// Package cursor is the cursor engine (spec §4.6): a per-caller iteration
// handle over a btree.Tree that tracks its meta-state (locked,
// unlocked+tracked, done), supports lock upgrade/downgrade with an
// EDEADLK-shaped failure mode, and relocates itself when the node it is
// positioned on is mutated out from under it.
//
// internal/btree.Tree already serializes every structural mutation
// behind one coarse mutex (see its package doc comment) rather than the
// reference design's per-node lock set, so this package's LockCache and
// TrackedList are independent, separately testable implementations of
// §4.5/§4.6's algorithms rather than mechanisms internal/btree itself
// consults mid-split. A cursor that wants relocation semantics enforced
// against a live split must call TrackedList's On* hooks itself around
// the mutating call, as Insert/Delete below do for their own cursor.
package cursor

import (
	"context"
	"sync"

	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/tracing"
)

// State is a cursor's position in the locked / tracked / done state
// machine of §4.6.
type State int

const (
	// StateLocked holds a lock (shared or exclusive) on its current node.
	StateLocked State = iota
	// StateTracked has released its lock and is linked on its node's
	// TrackedList so a structural op can relocate it.
	StateTracked
	// StateDone has been torn down and must not be used again.
	StateDone
)

// Cursor is one iteration/mutation handle over a Tree.
type Cursor struct {
	tree     *btree.Tree
	locks    *LockCache
	tracked  *TrackedList
	throttle *TDMThrottle

	mu sync.Mutex
	// GUARDED_BY(mu)
	state State
	// GUARDED_BY(mu)
	exclusive bool
	// GUARDED_BY(mu)
	key layout.Key
	// GUARDED_BY(mu)
	leafOff layout.Offset
	// GUARDED_BY(mu)
	index int
	// GUARDED_BY(mu)
	deadlkNode layout.Offset
	// GUARDED_BY(mu)
	retest bool
	// GUARDED_BY(mu)
	ripout bool
}

// New returns a cursor over tree. locks and tracked should be shared
// across every cursor in one engine so concurrent cursors can relocate
// each other on structural mutation; throttle may be nil to disable TDM
// throttling.
func New(tree *btree.Tree, locks *LockCache, tracked *TrackedList, throttle *TDMThrottle) *Cursor {
	return &Cursor{tree: tree, locks: locks, tracked: tracked, throttle: throttle}
}

// State returns the cursor's current meta-state.
func (c *Cursor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Retest reports whether the cursor's position may be stale and must be
// re-examined before continuing an iteration (§4.6's ITERATE_CHECK/RETEST
// flag), clearing the flag as it is read.
func (c *Cursor) Retest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.retest
	c.retest = false
	return r
}

// Seek positions the cursor at key, applying the TDM throttle first (§4.6
// "initialization ... A TDM throttle delays cursor acquisition"). On
// success the cursor is StateLocked holding a shared position on key.
func (c *Cursor) Seek(ctx context.Context, key layout.Key, asOf bool) (elem layout.LeafElem, err error) {
	ctx, span := tracing.Start(ctx, "cursor.Seek")
	defer func() { tracing.End(span, err) }()

	if c.throttle != nil {
		if err = c.throttle.Wait(ctx); err != nil {
			return layout.LeafElem{}, err
		}
	}
	elem, err = c.tree.Lookup(ctx, key, asOf)
	if err != nil {
		return layout.LeafElem{}, err
	}
	c.mu.Lock()
	c.state = StateLocked
	c.key = elem.Base
	c.retest = false
	c.ripout = false
	c.mu.Unlock()
	return elem, nil
}

// Next advances the cursor to the next element in key order. If the
// cursor's underlying element was ripped out by a concurrent delete
// (Retest would report true), the caller should re-Seek at the cursor's
// last known key instead of calling Next, per §4.6's relock contract.
func (c *Cursor) Next(ctx context.Context) (layout.LeafElem, error) {
	c.mu.Lock()
	cur := c.key
	c.mu.Unlock()

	elem, err := c.tree.Next(ctx, cur)
	if err != nil {
		return layout.LeafElem{}, err
	}
	c.mu.Lock()
	c.key = elem.Base
	c.mu.Unlock()
	return elem, nil
}

// LockCursor transitions StateTracked back to StateLocked, removing the
// cursor from its tracked node's list.
func (c *Cursor) LockCursor() {
	c.mu.Lock()
	off, state := c.leafOff, c.state
	c.state = StateLocked
	c.mu.Unlock()
	if state == StateTracked && c.tracked != nil {
		c.tracked.Untrack(off, c)
	}
}

// UnlockCursor transitions StateLocked to StateTracked, linking the
// cursor onto its node's TrackedList so a concurrent structural op can
// relocate it.
func (c *Cursor) UnlockCursor() {
	c.mu.Lock()
	off := c.leafOff
	c.state = StateTracked
	c.mu.Unlock()
	if c.tracked != nil {
		c.tracked.Track(off, c)
	}
}

// UpgradeLock attempts to promote the cursor's hold on off from shared to
// exclusive without blocking. On failure it records off as deadlkNode and
// returns hammererr.ErrDeadlock, per §4.5: the caller must unwind and
// retry, with a brief wait on off's lock at cursor teardown to serialize
// the retry against whoever holds it exclusive.
func (c *Cursor) UpgradeLock(off layout.Offset) error {
	l := c.locks.get(off)
	if !l.tryUpgrade() {
		c.mu.Lock()
		c.deadlkNode = off
		c.mu.Unlock()
		return hammererr.ErrDeadlock
	}
	c.mu.Lock()
	c.exclusive = true
	c.mu.Unlock()
	return nil
}

// DowngradeLock demotes an exclusive hold on off back to shared.
func (c *Cursor) DowngradeLock(off layout.Offset) {
	l := c.locks.get(off)
	l.unlock()
	l.rlock()
	c.mu.Lock()
	c.exclusive = false
	c.mu.Unlock()
}

// DeadlkNode returns the node the last UpgradeLock failure was recorded
// against, per §4.5's deadlk_node field.
func (c *Cursor) DeadlkNode() layout.Offset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadlkNode
}

// Insert adds elem to the tree, notifying this cursor's own TrackedList
// peers on the target node that an element was inserted so their indexes
// stay correct. leafOff identifies the leaf elem lands in, for relocation
// bookkeeping by callers that already know it from a prior descent.
func (c *Cursor) Insert(ctx context.Context, leafOff layout.Offset, idx int, elem layout.LeafElem) error {
	if err := c.tree.Insert(ctx, elem); err != nil {
		return err
	}
	if c.tracked != nil {
		c.tracked.OnInsert(leafOff, idx)
	}
	return nil
}

// Delete removes key from the tree, notifying TrackedList peers on
// leafOff that the element at idx was removed.
func (c *Cursor) Delete(ctx context.Context, leafOff layout.Offset, idx int, key layout.Key) error {
	if err := c.tree.Delete(ctx, key); err != nil {
		return err
	}
	if c.tracked != nil {
		c.tracked.OnDelete(leafOff, idx)
	}
	return nil
}

// Close transitions the cursor to StateDone, removing it from any
// tracked list it is still linked on.
func (c *Cursor) Close() {
	c.mu.Lock()
	off, state := c.leafOff, c.state
	c.state = StateDone
	c.mu.Unlock()
	if state == StateTracked && c.tracked != nil {
		c.tracked.Untrack(off, c)
	}
}
