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

package hammer

import (
	"fmt"

	"github.com/jacobsa/syncutil"

	"github.com/hammerfs/hammer/internal/flusher"
)

// inodeTable is the mount's rb_inos: which on-disk object ids the
// currently open flush group has outstanding dirty references to. The
// flusher has no inode-layer model of its own (it takes a SyncFn hook
// this port doesn't wire, since nothing above the B+Tree/cursor layer
// exists yet to need syncing back); inodeTable exists purely so Dirty
// and CloseGroup can answer "is this object already part of the current
// group" without walking the group's slice.
type inodeTable struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	dirty map[flusher.InodeRef]int
}

func newInodeTable() *inodeTable {
	t := &inodeTable{dirty: make(map[flusher.InodeRef]int)}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *inodeTable) checkInvariants() {
	for ino, n := range t.dirty {
		if n < 0 {
			panic(fmt.Sprintf("hammer: negative dirty refcount for inode %d", ino))
		}
	}
}

func (t *inodeTable) markDirty(ino flusher.InodeRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty[ino]++
}

func (t *inodeTable) clear(ino flusher.InodeRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dirty, ino)
}

func (t *inodeTable) isDirty(ino flusher.InodeRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty[ino] > 0
}

func (t *inodeTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirty)
}
