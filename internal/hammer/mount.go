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

// Package hammer is the mount and transaction layer (spec §4.9): it owns
// one volume's buffer manager, freemap, B+Tree, UNDO ring, and flusher,
// allocates transaction IDs out of the volume header's live counter, and
// tracks the handful of mount-wide collections the reference design
// keeps as intrusive red-black trees off struct hammer_mount.
//
// Most of those collections — rb_bufs, rb_nodes, rb_undo, rb_resv — are
// already owned by the lower layers this package wires together
// (internal/iobuf's Manager, internal/undo's Ring, internal/blockmap's
// Freemap) and aren't duplicated here; see DESIGN.md's C9 entry for why.
// Mount itself only adds the two collections with no existing owner: a
// pseudo-filesystem table (rb_pfsm, pfs.go) and a flush-group dirty-inode
// tracker (rb_inos, inodes.go).
package hammer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hammerfs/hammer/internal/blockmap"
	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/flusher"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/undo"
)

// Config carries the parameters Open needs to reattach to a volume a
// prior Format call laid out. UndoSize and EntriesPerLayer1 must match
// the FormatConfig that volume was created with.
type Config struct {
	Vol              int32
	Dev              device.Device
	UndoSize         int64
	EntriesPerLayer1 int

	ReadOnly     bool
	SlaveWorkers uint32

	Metrics *flusher.Metrics
	Log     *slog.Logger
}

// Mount is one open volume: the live B+Tree, blockmap, UNDO ring, and
// buffer manager, the flusher draining their flush groups, and the
// mount-wide bookkeeping transactions allocate TIDs and dirty inodes
// against.
type Mount struct {
	cfg Config
	log *slog.Logger

	bufs  *iobuf.Manager
	ring  *undo.Ring
	alloc *blockmap.Freemap
	tree  *btree.Tree
	flush *flusher.Flusher

	// hdrMu guards header, the in-memory image of the volume header the
	// flusher's HeaderWriter hook serializes on every finalize. Reference
	// design: hmp->vol0, protected by hmp->vol_lock.
	hdrMu  sync.Mutex
	header *layout.VolumeHeader

	readOnly  atomic.Bool
	readOnly2 atomic.Bool // latched once the flusher reports a critical error

	pfs    *pfsTable
	inodes *inodeTable

	groupMu  sync.Mutex
	curGroup *flusher.Group // GUARDED_BY(groupMu)
}

// Open reattaches to a volume previously initialized by Format. If
// !cfg.ReadOnly it also starts the flusher's master loop; callers must
// call Close to stop it.
func Open(ctx context.Context, cfg Config) (*Mount, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.EntriesPerLayer1 <= 0 || cfg.EntriesPerLayer1 > layout.Layer1Entries {
		return nil, fmt.Errorf("hammer: entries-per-layer1 %d out of range (max %d)", cfg.EntriesPerLayer1, layout.Layer1Entries)
	}

	header, err := readHeader(ctx, cfg.Dev)
	if err != nil {
		return nil, fmt.Errorf("hammer: reading volume header: %w", err)
	}
	if header.VolNo != cfg.Vol {
		return nil, fmt.Errorf("hammer: volume header is for vol %d, not requested vol %d", header.VolNo, cfg.Vol)
	}

	bufs := iobuf.NewManager(cfg.Log)
	bufs.AddVolume(cfg.Vol, cfg.Dev)

	layer1Off := header.BlockmapRoots[layout.ZoneFreemap]
	undoOff := header.BlockmapRoots[layout.ZoneUndo]
	dataBase := deriveDataBase(int64(layer1Off.Local()), cfg.EntriesPerLayer1)

	ring := undo.NewRing(cfg.Vol, undoOff, cfg.UndoSize, bufs)
	alloc := blockmap.NewFreemap(cfg.Vol, bufs, layer1Off, 1, cfg.EntriesPerLayer1,
		layout.NewOffset(layout.ZoneBTree, uint64(dataBase)), &header.Vol0StatFreeBigBlocks)
	tree := btree.NewTree(cfg.Vol, bufs, ring, alloc, header.RootBTree)

	m := &Mount{
		cfg:    cfg,
		log:    cfg.Log,
		bufs:   bufs,
		ring:   ring,
		alloc:  alloc,
		tree:   tree,
		header: header,
		pfs:    newPFSTable(),
		inodes: newInodeTable(),
	}
	m.readOnly.Store(cfg.ReadOnly)

	fl, err := flusher.New(flusher.Config{
		Vol:          cfg.Vol,
		Bufs:         bufs,
		Ring:         ring,
		WriteHeader:  m.writeHeader,
		FSVersion:    layout.FSVersion,
		SlaveWorkers: cfg.SlaveWorkers,
		Metrics:      cfg.Metrics,
		Log:          cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	m.flush = fl
	m.curGroup = fl.NewGroup()
	alloc.SetSeqSource(fl)

	if !cfg.ReadOnly {
		fl.Run(ctx)
	}
	return m, nil
}

// Close stops the flusher's master loop and closes the underlying
// device. Callers must have quiesced all transactions first.
func (m *Mount) Close(ctx context.Context) error {
	m.flush.Stop()
	return m.cfg.Dev.Close()
}

// Tree returns the mount's B+Tree, for cursor construction.
func (m *Mount) Tree() *btree.Tree { return m.tree }

// Freemap returns the mount's blockmap front end.
func (m *Mount) Freemap() *blockmap.Freemap { return m.alloc }

// UndoRing returns the mount's UNDO FIFO.
func (m *Mount) UndoRing() *undo.Ring { return m.ring }

// Buffers returns the mount's buffer manager.
func (m *Mount) Buffers() *iobuf.Manager { return m.bufs }

// Flusher returns the mount's flush-group engine.
func (m *Mount) Flusher() *flusher.Flusher { return m.flush }

// ReadOnly reports whether the mount currently rejects mutating calls,
// either because it was opened read-only or because a flush I/O error
// has latched it into the critical-error state (spec §4.7's
// read-only-2).
func (m *Mount) ReadOnly() bool {
	return m.readOnly.Load() || m.criticalLatched()
}

// criticalLatched checks the flusher's critical flag and mirrors it onto
// the mount's own read-only-2 flag the first time it's observed set, so
// every subsequent check is a plain atomic load instead of reaching
// through to the flusher again.
func (m *Mount) criticalLatched() bool {
	if m.readOnly2.Load() {
		return true
	}
	if m.flush.Critical() {
		m.readOnly2.Store(true)
		return true
	}
	return false
}

// checkWritable returns the reason a mutating call must be refused, or
// nil if the mount currently accepts them.
func (m *Mount) checkWritable() error {
	if m.criticalLatched() {
		return hammererr.ErrCritical
	}
	if m.readOnly.Load() {
		return hammererr.ErrReadOnly
	}
	return nil
}

// NextTID allocates and returns the next transaction id, bumping the
// in-memory header image the next finalize will persist. Monotonic for
// the life of the mount; never reused even across a transaction that
// later aborts (spec §2's append-only versioning relies on this).
func (m *Mount) NextTID() (uint64, error) {
	if err := m.checkWritable(); err != nil {
		return 0, err
	}
	m.hdrMu.Lock()
	defer m.hdrMu.Unlock()
	tid := m.header.Vol0NextTID
	m.header.Vol0NextTID++
	return tid, nil
}

// Stats returns a snapshot of the volume header's live space and
// transaction-id counters.
func (m *Mount) Stats() (freeBigBlocks, totalBigBlocks int64, nextTID uint64) {
	m.hdrMu.Lock()
	defer m.hdrMu.Unlock()
	return m.header.Vol0StatFreeBigBlocks, m.header.Vol0StatBigBlocks, m.header.Vol0NextTID
}

// Dirty marks ino as touched by the current transaction, adding it to
// the mount's open flush group.
func (m *Mount) Dirty(ino flusher.InodeRef) error {
	if err := m.checkWritable(); err != nil {
		return err
	}
	m.inodes.markDirty(ino)
	m.groupMu.Lock()
	defer m.groupMu.Unlock()
	m.curGroup.Add(ino)
	return nil
}

// CloseGroup closes the mount's current fill group and hands it to the
// flusher for finalize, replacing it with a fresh one so subsequent
// transactions have somewhere to record their dirty inodes.
func (m *Mount) CloseGroup() {
	m.groupMu.Lock()
	g := m.curGroup
	m.curGroup = m.flush.NewGroup()
	m.groupMu.Unlock()

	for _, ino := range g.Inodes() {
		m.inodes.clear(ino)
	}
	m.flush.Enqueue(g)
}

// writeHeader is the flusher's HeaderWriter hook: it snapshots the
// mount's header image under hdrMu, refreshes its B+Tree root (the one
// field that changes on every insert-triggered split rather than only
// at transaction boundaries), and writes it to the volume.
func (m *Mount) writeHeader(ctx context.Context) error {
	m.hdrMu.Lock()
	h := *m.header
	m.hdrMu.Unlock()
	h.RootBTree = m.tree.Root()
	return writeHeader(ctx, m.cfg.Dev, &h)
}

// MountPFS registers a new pseudo-filesystem rooted at rootInode under
// localization.
func (m *Mount) MountPFS(localization uint32, rootInode uint64) (*PFS, error) {
	if err := m.checkWritable(); err != nil {
		return nil, err
	}
	p := &PFS{Localization: localization, RootInode: rootInode}
	if err := m.pfs.add(p); err != nil {
		return nil, err
	}
	return p, nil
}

// PFS looks up a mounted pseudo-filesystem by localization domain.
func (m *Mount) PFS(localization uint32) (*PFS, error) { return m.pfs.get(localization) }

// UnmountPFS removes a pseudo-filesystem from the mount's table. It does
// not touch anything on disk; the caller is responsible for having
// already pruned or preserved the PFS's records as it intends.
func (m *Mount) UnmountPFS(localization uint32) { m.pfs.remove(localization) }

// PFSList returns every pseudo-filesystem currently mounted.
func (m *Mount) PFSList() []*PFS { return m.pfs.list() }
