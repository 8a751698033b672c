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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/clock"
	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hlog"
	"github.com/hammerfs/hammer/internal/iobuf"
	"github.com/hammerfs/hammer/internal/layout"
	"github.com/hammerfs/hammer/internal/undo"
)

func newTestFlusher(t *testing.T) (*Flusher, *iobuf.Manager, context.Context) {
	t.Helper()
	ctx := context.Background()

	dev := device.NewMemDevice(64 * 1024)
	bufs := iobuf.NewManager(hlog.Default())
	bufs.AddVolume(0, dev)

	ring := undo.NewRing(0, layout.NewOffset(layout.ZoneUndo, 0), 32*1024, bufs)

	var headerWrites int
	f, err := New(Config{
		Vol:          0,
		Bufs:         bufs,
		Ring:         ring,
		FSVersion:    layout.FSVersion,
		SlaveWorkers: 2,
		Metrics:      NewMetrics(prometheus.NewRegistry()),
		WriteHeader: func(ctx context.Context) error {
			headerWrites++
			return nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(f.Stop)
	return f, bufs, ctx
}

func TestFinalizeFlushesEachKindAndAdvancesFlushTID(t *testing.T) {
	f, bufs, ctx := newTestFlusher(t)

	buf, err := bufs.New(0, layout.NewOffset(layout.ZoneBTree, 40*1024), 512, iobuf.KindMeta)
	require.NoError(t, err)
	require.NoError(t, bufs.Modify(buf))
	copy(buf.Bytes(), []byte("meta"))
	bufs.ModifyDone(buf)

	require.NoError(t, f.finalize(ctx, true))

	assert.False(t, buf.Modified())
	tid1, tid2 := f.FlushTIDs()
	assert.Equal(t, uint64(1), tid1)
	assert.Equal(t, uint64(1), tid2)
	assert.False(t, f.Critical())
}

func TestFinalizeNonFinalAdvancesTID2Only(t *testing.T) {
	f, _, ctx := newTestFlusher(t)
	f.cfg.FSVersion = 3

	require.NoError(t, f.finalize(ctx, false))

	tid1, tid2 := f.FlushTIDs()
	assert.Equal(t, uint64(0), tid1)
	assert.Equal(t, uint64(1), tid2)
}

func TestFlushGroupRunsSyncInodeForEveryMember(t *testing.T) {
	f, _, ctx := newTestFlusher(t)

	var seen sync.Map
	f.cfg.SyncInode = func(ctx context.Context, ino InodeRef) error {
		seen.Store(ino, true)
		return nil
	}

	g := f.NewGroup()
	g.Add(InodeRef(1))
	g.Add(InodeRef(2))
	g.Close()

	require.NoError(t, f.flushGroup(ctx, g))

	_, ok1 := seen.Load(InodeRef(1))
	_, ok2 := seen.Load(InodeRef(2))
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestShouldYieldFalseOnEmptyRing(t *testing.T) {
	f, _, _ := newTestFlusher(t)
	assert.False(t, f.ShouldYield(32*1024))
}

func TestCheckErrorsReportsCriticalAfterFailure(t *testing.T) {
	f, _, _ := newTestFlusher(t)
	f.critical.Store(true)
	assert.Error(t, CheckErrors(f))
}

// TestRunDrainsQueuedGroupOnFakeClockTick proves the master loop is
// actually paced off cfg.Clock rather than a package-level ticker: a
// FakeClock with a near-zero wait lets this run without sleeping for
// masterPollInterval in real time.
func TestRunDrainsQueuedGroupOnFakeClockTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := device.NewMemDevice(64 * 1024)
	bufs := iobuf.NewManager(hlog.Default())
	bufs.AddVolume(0, dev)
	ring := undo.NewRing(0, layout.NewOffset(layout.ZoneUndo, 0), 32*1024, bufs)

	f, err := New(Config{
		Vol:          0,
		Bufs:         bufs,
		Ring:         ring,
		FSVersion:    layout.FSVersion,
		SlaveWorkers: 1,
		Clock:        &clock.FakeClock{WaitTime: time.Microsecond},
	})
	require.NoError(t, err)
	t.Cleanup(f.Stop)

	f.Run(ctx)

	g := f.NewGroup()
	g.Add(InodeRef(1))
	f.Enqueue(g)

	require.Eventually(t, func() bool {
		tid1, _ := f.FlushTIDs()
		return tid1 > 0
	}, time.Second, time.Millisecond)
}
