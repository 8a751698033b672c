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

// Package flusher is the flush-group engine (spec §4.7): it serializes
// modifications into numbered groups and drives the UNDO/DATA/volume
// header/META write-out in the order crash recovery depends on. A
// master goroutine claims closed groups off a FIFO and fans each one's
// inodes out across a bounded slave pool before finalizing it.
package flusher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hammerfs/hammer/internal/clock"
	"github.com/hammerfs/hammer/internal/fifo"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/tracing"
	"github.com/hammerfs/hammer/internal/undo"
)

// masterPollInterval is how often the master loop polls the group FIFO
// for a closed group to finalize.
const masterPollInterval = 10 * time.Millisecond

// SyncFn flushes one inode's dirty records to its backing buffers ahead
// of finalize. The flusher has no inode-layer model of its own (spec
// §1's scope note); the caller supplies this hook at construction.
type SyncFn func(ctx context.Context, ino InodeRef) error

// HeaderWriter persists the volume header under sync_lock, the one
// write only the flusher transaction may issue (spec §4.8).
type HeaderWriter func(ctx context.Context) error

// Config bundles a Flusher's fixed construction parameters.
type Config struct {
	Vol int32

	Bufs *iobuf.Manager
	Ring *undo.Ring

	SyncInode    SyncFn
	WriteHeader  HeaderWriter
	FSVersion    uint32
	MetaLimit    int64 // dirty-meta byte cap that forces a non-final finalize
	SlaveWorkers uint32

	// Clock is the time source for the master loop's poll wait and
	// finalize's latency sample. Defaults to clock.RealClock{}; tests
	// substitute clock.FakeClock or clock.SimulatedClock to drive the
	// loop without sleeping.
	Clock clock.Clock

	Metrics *Metrics
	Log     *slog.Logger
}

// Flusher drives one mount's flush groups to durability.
type Flusher struct {
	cfg  Config
	pool *Pool

	mu       sync.Mutex
	groups   fifo.Queue[*Group] // FIFO of closed groups awaiting or under finalize
	nextSeq  uint64
	tid1     uint64 // fully-durable flush TID
	tid2     uint64 // async-durable flush TID
	critical atomic.Bool

	sem *semaphore.Weighted
}

// New returns a Flusher. Run must be called to start its master loop.
func New(cfg Config) (*Flusher, error) {
	if cfg.SlaveWorkers == 0 {
		cfg.SlaveWorkers = 1
	}
	pool, err := NewStaticWorkerPool(1, cfg.SlaveWorkers)
	if err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Flusher{
		cfg:    cfg,
		pool:   pool,
		groups: fifo.NewLinkedListQueue[*Group](),
		sem:    semaphore.NewWeighted(int64(cfg.SlaveWorkers)),
	}, nil
}

// NewGroup allocates the next-numbered, open flush group for front-end
// transactions to append inodes to.
func (f *Flusher) NewGroup() *Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	return NewGroup(f.nextSeq)
}

// Enqueue closes g and appends it to the flusher's FIFO. The caller must
// not touch g again.
func (f *Flusher) Enqueue(g *Group) {
	g.Close()
	f.mu.Lock()
	f.groups.Push(g)
	f.mu.Unlock()
}

// Critical reports whether a prior flush I/O error has latched the
// mount into its critical-error state (spec §4.7: "forces the mount to
// read-only-2"). Once true it never clears within this Flusher's life.
func (f *Flusher) Critical() bool {
	return f.critical.Load()
}

// FlushTIDs returns the two-tier flush TID: tid1 is fully durable
// (everything through the last final finalize), tid2 is async-durable
// (everything through the last finalize of any kind).
func (f *Flusher) FlushTIDs() (tid1, tid2 uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tid1, f.tid2
}

// DoneSeq reports tid2, the async-durable flush TID, as the monotonic
// sequence number blockmap.SeqSource needs to decide when a delayed
// LAYER2FREE reservation has cleared its horizon. *Flusher satisfies
// blockmap.SeqSource structurally; neither package imports the other.
func (f *Flusher) DoneSeq() uint64 {
	_, tid2 := f.FlushTIDs()
	return tid2
}

// Run starts the master loop on the priority worker, pulling a closed
// group off the FIFO every poll and finalizing it. The loop returns when
// ctx is canceled or Stop is called.
func (f *Flusher) Run(ctx context.Context) {
	f.pool.Schedule(true, func() { f.masterLoop(ctx) })
}

// Stop tears down the worker pool. Callers must have already stopped
// feeding Enqueue.
func (f *Flusher) Stop() {
	f.pool.Stop()
}

func (f *Flusher) masterLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.pool.stop:
			return
		case <-f.cfg.Clock.After(masterPollInterval):
			g := f.claimGroup()
			if g == nil {
				continue
			}
			if err := f.flushGroup(ctx, g); err != nil {
				f.cfg.Log.Error("flush group failed", "seq", g.Seq, "err", err)
			}
		}
	}
}

func (f *Flusher) claimGroup() *Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups.IsEmpty() {
		return nil
	}
	return f.groups.Pop()
}

// flushGroup fans g's inodes out across errgroup goroutines, at most
// SlaveWorkers at a time (f.sem), joins them, then runs a final finalize.
func (f *Flusher) flushGroup(ctx context.Context, g *Group) error {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.groupSize.Observe(float64(len(g.Inodes())))
	}
	if f.cfg.SyncInode != nil {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, ino := range g.Inodes() {
			ino := ino
			if err := f.sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			eg.Go(func() error {
				defer f.sem.Release(1)
				return f.cfg.SyncInode(egCtx, ino)
			})
		}
		if err := eg.Wait(); err != nil {
			return fmt.Errorf("flusher: syncing group %d: %w", g.Seq, err)
		}
	}
	return f.finalize(ctx, true)
}

// finalize runs one durability cycle in the order spec §4.8 mandates:
// DATA buffers, a pre-UNDO volume header write (FSVersion<4 only), a
// snapshot of the UNDO ring's next_offset, the UNDO buffers themselves,
// a volume header write (always for FSVersion<4; for FSVersion>=4 only
// when final), then META buffers. No header write follows META. On
// device error it latches the mount critical-error flag and returns
// hammererr.ErrIO.
func (f *Flusher) finalize(ctx context.Context, final bool) (err error) {
	ctx, span := tracing.Start(ctx, "flusher.finalize")
	defer func() { tracing.End(span, err) }()

	start := f.cfg.Clock.Now()
	if err := f.cfg.Bufs.Flush(ctx, f.cfg.Vol, iobuf.KindData); err != nil {
		return f.fail(err)
	}

	if f.cfg.WriteHeader != nil && f.cfg.FSVersion < 4 {
		if err := f.cfg.WriteHeader(ctx); err != nil {
			return f.fail(err)
		}
	}

	_, next := f.cfg.Ring.Bounds()

	if err := f.cfg.Bufs.Flush(ctx, f.cfg.Vol, iobuf.KindUndo); err != nil {
		return f.fail(err)
	}

	if f.cfg.WriteHeader != nil && (f.cfg.FSVersion < 4 || final) {
		if err := f.cfg.WriteHeader(ctx); err != nil {
			return f.fail(err)
		}
	}

	if err := f.cfg.Bufs.Flush(ctx, f.cfg.Vol, iobuf.KindMeta); err != nil {
		return f.fail(err)
	}

	f.cfg.Ring.AdvanceFirst(next)

	f.mu.Lock()
	f.tid2++
	if final {
		f.tid1 = f.tid2
	}
	f.mu.Unlock()

	if f.cfg.Metrics != nil {
		f.cfg.Metrics.groupsFinalized.Inc()
		f.cfg.Metrics.finalizeLatency.Observe(f.cfg.Clock.Now().Sub(start).Seconds())
		f.cfg.Metrics.undoOccupancy.Set(float64(f.cfg.Ring.Occupied()))
	}
	return nil
}

func (f *Flusher) fail(err error) error {
	f.critical.Store(true)
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.criticalErrors.Inc()
	}
	return fmt.Errorf("%w: %v", hammererr.ErrIO, err)
}

// ShouldYield reports whether the UNDO FIFO has crossed its three-
// quarters-full mark (spec §4.8's "yield-on-UNDO-half-exhausted", widened
// here to the reference implementation's actual 3/4 dummy-cycle
// threshold), signaling that a front-end cursor should back off and let
// the flusher drain instead of admitting more modifications.
func (f *Flusher) ShouldYield(ringSize int64) bool {
	return f.cfg.Ring.Occupied()*4 >= ringSize*3
}

// CheckErrors returns hammererr.ErrCritical if the flusher has latched a
// critical error, otherwise nil. Call sites that mutate should check
// this before proceeding, per spec §7's "no mutating call admitted once
// critical" rule.
func CheckErrors(f *Flusher) error {
	if f.Critical() {
		return hammererr.ErrCritical
	}
	return nil
}

// VolumeHeaderZone returns the zone tag a header write for this flusher's
// volume should use, exported for callers (internal/hammer's Mount)
// composing the HeaderWriter closure.
func VolumeHeaderZone() layout.Zone { return layout.ZoneRawVolume }
