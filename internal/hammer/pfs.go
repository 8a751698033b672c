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

	"github.com/hammerfs/hammer/internal/hammererr"
)

// PFS is one pseudo-filesystem's root metadata (spec §4.9): a
// localization domain sharing the volume's single B+Tree and blockmap
// but rooted at its own inode, letting prune/mirror/snapshot operate
// independently per domain instead of whole-volume.
type PFS struct {
	Localization uint32
	RootInode    uint64
	SyncBegTID   uint64
	SyncEndTID   uint64
}

// pfsTable is the mount's rb_pfsm: the set of PFS roots currently
// mounted, keyed by localization domain.
type pfsTable struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	byLocalization map[uint32]*PFS
}

func newPFSTable() *pfsTable {
	t := &pfsTable{byLocalization: make(map[uint32]*PFS)}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *pfsTable) checkInvariants() {
	for loc, p := range t.byLocalization {
		if p.Localization != loc {
			panic(fmt.Sprintf("hammer: pfs table key %d does not match entry localization %d", loc, p.Localization))
		}
	}
}

func (t *pfsTable) add(p *PFS) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byLocalization[p.Localization]; ok {
		return fmt.Errorf("hammer: pfs %d already mounted", p.Localization)
	}
	t.byLocalization[p.Localization] = p
	return nil
}

func (t *pfsTable) get(localization uint32) (*PFS, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byLocalization[localization]
	if !ok {
		return nil, hammererr.ErrNotFound
	}
	return p, nil
}

func (t *pfsTable) remove(localization uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byLocalization, localization)
}

func (t *pfsTable) list() []*PFS {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*PFS, 0, len(t.byLocalization))
	for _, p := range t.byLocalization {
		out = append(out, p)
	}
	return out
}
