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

package flusher

import (
	"sync"
)

// InodeRef is the on-disk object ID a flush group tracks. The flusher is
// the only consumer of an inode-layer concept this low in the stack
// (attribute, permission, and directory-entry semantics stay out of
// scope); internal/hammer's Mount reuses this same type rather than
// defining its own and forcing a back-import from flusher to hammer.
type InodeRef uint64

// Group is a flush group (spec §4.7): an ordered, numbered container of
// inodes dirtied between two consecutive close points. A front-end
// transaction appends to the mount's current fill group; the flusher
// only ever pulls a closed group off the front.
type Group struct {
	mu sync.Mutex

	Seq    uint64
	closed bool
	// GUARDED_BY(mu)
	running bool
	// GUARDED_BY(mu)
	refs int
	// GUARDED_BY(mu)
	inodes []InodeRef
}

// NewGroup returns an open, empty group numbered seq.
func NewGroup(seq uint64) *Group {
	return &Group{Seq: seq}
}

// Add appends ino to the group. It panics if the group is already
// closed: a closed group's inode set is frozen by construction, callers
// must route new dirty inodes to the mount's next fill group instead.
func (g *Group) Add(ino InodeRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		panic("flusher: add to closed flush group")
	}
	g.refs++
	g.inodes = append(g.inodes, ino)
}

// Close freezes the group's inode set so the flusher may claim it.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// Closed reports whether Close has been called.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Inodes returns a snapshot of the group's inode set.
func (g *Group) Inodes() []InodeRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]InodeRef(nil), g.inodes...)
}

// Done decrements the group's ref count as each queued inode finishes
// flushing, reporting whether it has reached zero.
func (g *Group) Done() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs--
	return g.refs <= 0
}
