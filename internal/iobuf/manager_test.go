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

package iobuf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/hlog"
	"github.com/hammerfs/hammer/internal/layout"
)

func newTestManager() (*Manager, *device.MemDevice) {
	dev := device.NewMemDevice(64 * device.BlockSize)
	m := NewManager(hlog.Default())
	m.AddVolume(0, dev)
	return m, dev
}

func TestAcquireReadsThroughOnFirstMiss(t *testing.T) {
	m, dev := newTestManager()
	ctx := context.Background()

	payload := make([]byte, device.BlockSize)
	payload[0] = 0x42
	require.NoError(t, dev.WriteAt(ctx, payload, device.BlockSize))

	off := layout.NewOffset(layout.ZoneSmallData, device.BlockSize)
	buf, err := m.Acquire(ctx, 0, off, device.BlockSize, KindData)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), buf.Bytes()[0])
}

func TestAcquireSameOffsetSharesBuffer(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	off := layout.NewOffset(layout.ZoneSmallData, 0)

	b1, err := m.Acquire(ctx, 0, off, device.BlockSize, KindData)
	require.NoError(t, err)
	b2, err := m.Acquire(ctx, 0, off, device.BlockSize, KindData)
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.Equal(t, 2, b1.refCount())
}

func TestNewSkipsDeviceReadAndMarksModified(t *testing.T) {
	m, _ := newTestManager()
	off := layout.NewOffset(layout.ZoneSmallData, device.BlockSize*2)

	buf, err := m.New(0, off, device.BlockSize, KindData)
	require.NoError(t, err)
	assert.True(t, buf.Modified())
	for _, b := range buf.Bytes() {
		assert.Equal(t, byte(0), b)
	}
}

func TestReleaseFlushNowWritesBack(t *testing.T) {
	m, dev := newTestManager()
	ctx := context.Background()
	off := layout.NewOffset(layout.ZoneSmallData, device.BlockSize*3)

	buf, err := m.New(0, off, device.BlockSize, KindData)
	require.NoError(t, err)
	require.NoError(t, m.Modify(buf))
	buf.Bytes()[0] = 0x7

	require.NoError(t, m.Release(ctx, buf, true))
	assert.False(t, buf.Modified())

	got := make([]byte, device.BlockSize)
	require.NoError(t, dev.ReadAt(ctx, got, device.BlockSize*3))
	assert.Equal(t, byte(0x7), got[0])
}

func TestInvalidateRefusesReferencedBuffer(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	off := layout.NewOffset(layout.ZoneSmallData, 0)

	_, err := m.Acquire(ctx, 0, off, device.BlockSize, KindData)
	require.NoError(t, err)

	err = m.Invalidate(0, off, off+device.BlockSize)
	assert.Error(t, err)
}

func TestInvalidateDropsUnreferencedBuffer(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	off := layout.NewOffset(layout.ZoneSmallData, 0)

	buf, err := m.Acquire(ctx, 0, off, device.BlockSize, KindData)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, buf, false))

	err = m.Invalidate(0, off, off+device.BlockSize)
	assert.NoError(t, err)
}

func TestBioOpsCheckWriteRefusesMetaAndVolume(t *testing.T) {
	m, _ := newTestManager()
	ops := m.BioOps()

	volBuf, err := m.New(0, layout.NewOffset(layout.ZoneRawVolume, 0), device.BlockSize, KindVolume)
	require.NoError(t, err)
	err = ops.CheckWrite(volBuf)
	assert.True(t, errors.Is(err, hammererr.ErrReadOnly))

	dataBuf, err := m.New(0, layout.NewOffset(layout.ZoneSmallData, device.BlockSize), device.BlockSize, KindData)
	require.NoError(t, err)
	assert.NoError(t, ops.CheckWrite(dataBuf))
}

func TestBioOpsDeallocateRefusesActiveRef(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	ops := m.BioOps()

	buf, err := m.Acquire(ctx, 0, layout.NewOffset(layout.ZoneSmallData, 0), device.BlockSize, KindData)
	require.NoError(t, err)

	err = ops.Deallocate(buf)
	assert.True(t, errors.Is(err, hammererr.ErrIO))

	require.NoError(t, m.Release(ctx, buf, false))
	assert.NoError(t, ops.Deallocate(buf))
}

func TestFlushWritesOnlyRequestedKinds(t *testing.T) {
	m, dev := newTestManager()
	ctx := context.Background()

	dataOff := layout.NewOffset(layout.ZoneSmallData, device.BlockSize)
	metaOff := layout.NewOffset(layout.ZoneMeta, device.BlockSize*2)

	dataBuf, err := m.New(0, dataOff, device.BlockSize, KindData)
	require.NoError(t, err)
	dataBuf.Bytes()[0] = 1

	metaBuf, err := m.New(0, metaOff, device.BlockSize, KindMeta)
	require.NoError(t, err)
	metaBuf.Bytes()[0] = 2

	require.NoError(t, m.Flush(ctx, 0, KindData))
	assert.False(t, dataBuf.Modified())
	assert.True(t, metaBuf.Modified())

	got := make([]byte, device.BlockSize)
	require.NoError(t, dev.ReadAt(ctx, got, int64(metaOff.Local())))
	assert.Equal(t, byte(0), got[0], "meta buffer must not have been written by a data-only flush")
}
