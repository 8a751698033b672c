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
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/flusher"
	"github.com/hammerfs/hammer/internal/hammererr"
)

// flakyDevice wraps a device.Device and, once armed, fails every
// WriteAt — used to exercise the flusher's critical-error latch without
// reaching into its unexported state.
type flakyDevice struct {
	device.Device
	failing atomic.Bool
}

func (d *flakyDevice) WriteAt(ctx context.Context, p []byte, off int64) error {
	if d.failing.Load() {
		return fmt.Errorf("flakyDevice: simulated write failure")
	}
	return d.Device.WriteAt(ctx, p, off)
}

func formatTestVolume(t *testing.T, ctx context.Context) device.Device {
	t.Helper()
	dev := device.NewMemDevice(testDeviceSize())
	_, err := Format(ctx, FormatConfig{
		Vol:              0,
		Dev:              dev,
		FSID:             uuid.New(),
		UndoSize:         testUndoSize,
		EntriesPerLayer1: testEntriesPerLayer1,
	})
	require.NoError(t, err)
	return dev
}

func openTestMount(t *testing.T, ctx context.Context, readOnly bool) *Mount {
	t.Helper()
	dev := formatTestVolume(t, ctx)
	m, err := Open(ctx, Config{
		Vol:              0,
		Dev:              dev,
		UndoSize:         testUndoSize,
		EntriesPerLayer1: testEntriesPerLayer1,
		ReadOnly:         readOnly,
	})
	require.NoError(t, err)
	return m
}

func TestOpenReattachesToFormattedVolume(t *testing.T) {
	ctx := context.Background()
	m := openTestMount(t, ctx, true)

	assert.NotNil(t, m.Tree())
	assert.NotNil(t, m.Freemap())
	assert.NotNil(t, m.UndoRing())
	assert.NotNil(t, m.Buffers())
	assert.NotNil(t, m.Flusher())

	free, total, nextTID := m.Stats()
	assert.Equal(t, int64(1), free)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, uint64(1), nextTID)
}

func TestOpenRejectsWrongVolumeNumber(t *testing.T) {
	ctx := context.Background()
	dev := formatTestVolume(t, ctx)

	_, err := Open(ctx, Config{
		Vol:              1,
		Dev:              dev,
		UndoSize:         testUndoSize,
		EntriesPerLayer1: testEntriesPerLayer1,
		ReadOnly:         true,
	})
	assert.Error(t, err)
}

func TestNextTIDIsMonotonic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := openTestMount(t, ctx, false)

	a, err := m.NextTID()
	require.NoError(t, err)
	b, err := m.NextTID()
	require.NoError(t, err)
	c, err := m.NextTID()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(2), b)
	assert.Equal(t, uint64(3), c)
}

func TestReadOnlyMountRejectsMutatingCalls(t *testing.T) {
	ctx := context.Background()
	m := openTestMount(t, ctx, true)

	assert.True(t, m.ReadOnly())
	_, err := m.NextTID()
	assert.ErrorIs(t, err, hammererr.ErrReadOnly)
	err = m.Dirty(flusher.InodeRef(1))
	assert.ErrorIs(t, err, hammererr.ErrReadOnly)
	_, err = m.MountPFS(1, 100)
	assert.ErrorIs(t, err, hammererr.ErrReadOnly)
}

func TestCriticalFlusherLatchesMountReadOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dev := formatTestVolume(t, ctx)
	flaky := &flakyDevice{Device: dev}
	m, err := Open(ctx, Config{
		Vol:              0,
		Dev:              flaky,
		UndoSize:         testUndoSize,
		EntriesPerLayer1: testEntriesPerLayer1,
	})
	require.NoError(t, err)

	assert.False(t, m.ReadOnly())

	flaky.failing.Store(true)
	require.NoError(t, m.Dirty(flusher.InodeRef(1)))
	m.CloseGroup()

	require.Eventually(t, m.ReadOnly, time.Second, 5*time.Millisecond)

	_, err = m.NextTID()
	assert.ErrorIs(t, err, hammererr.ErrCritical)
}

func TestDirtyAddsToCurrentGroupAndCloseGroupClearsIt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := openTestMount(t, ctx, false)

	ino := flusher.InodeRef(42)
	require.NoError(t, m.Dirty(ino))
	assert.True(t, m.inodes.isDirty(ino))

	m.groupMu.Lock()
	g := m.curGroup
	m.groupMu.Unlock()
	assert.Contains(t, g.Inodes(), ino)

	m.CloseGroup()
	assert.False(t, m.inodes.isDirty(ino))

	m.groupMu.Lock()
	newG := m.curGroup
	m.groupMu.Unlock()
	assert.NotSame(t, g, newG)
}

func TestMountPFSRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := openTestMount(t, ctx, false)

	p, err := m.MountPFS(7, 128)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), p.Localization)
	assert.Equal(t, uint64(128), p.RootInode)

	got, err := m.PFS(7)
	require.NoError(t, err)
	assert.Same(t, p, got)

	assert.Len(t, m.PFSList(), 1)

	_, err = m.MountPFS(7, 999)
	assert.Error(t, err)

	m.UnmountPFS(7)
	_, err = m.PFS(7)
	assert.ErrorIs(t, err, hammererr.ErrNotFound)
}
