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

package maint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

func TestPrunerRunKeepsLiveRecord(t *testing.T) {
	h, ctx := newHarness(t)

	e := layout.LeafElem{Base: key(1, 1, 10)}
	require.NoError(t, h.tree.Insert(ctx, e))

	p := NewPruner(h.tree, PruneAll())
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = h.tree.Lookup(ctx, e.Base, false)
	assert.NoError(t, err)
}

func TestPrunerRunPruneAllDeletesEveryHistoricalVersion(t *testing.T) {
	h, ctx := newHarness(t)

	older := layout.LeafElem{Base: key(1, 1, 10), DeleteTID: 20}
	newer := layout.LeafElem{Base: key(1, 1, 20), DeleteTID: 30}
	live := layout.LeafElem{Base: key(1, 1, 30)}
	require.NoError(t, h.tree.Insert(ctx, older))
	require.NoError(t, h.tree.Insert(ctx, newer))
	require.NoError(t, h.tree.Insert(ctx, live))

	p := NewPruner(h.tree, PruneAll())
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = h.tree.Lookup(ctx, older.Base, false)
	assert.ErrorIs(t, err, hammererr.ErrNotFound)
	_, err = h.tree.Lookup(ctx, newer.Base, false)
	assert.ErrorIs(t, err, hammererr.ErrNotFound)
	got, err := h.tree.Lookup(ctx, live.Base, false)
	require.NoError(t, err)
	assert.Equal(t, live.Base, got.Base)
}

func TestPrunerRunBucketKeepsNewestPerBucket(t *testing.T) {
	h, ctx := newHarness(t)

	// Three historical versions fall in the same [100,110) bucket under
	// ModTID=10; only the newest of the three (tid 108) should survive,
	// since it's the one whose state spans the retained bucket boundary.
	v1 := layout.LeafElem{Base: key(1, 1, 101), DeleteTID: 105}
	v2 := layout.LeafElem{Base: key(1, 1, 105), DeleteTID: 108}
	v3 := layout.LeafElem{Base: key(1, 1, 108), DeleteTID: 200}
	live := layout.LeafElem{Base: key(1, 1, 200)}
	require.NoError(t, h.tree.Insert(ctx, v1))
	require.NoError(t, h.tree.Insert(ctx, v2))
	require.NoError(t, h.tree.Insert(ctx, v3))
	require.NoError(t, h.tree.Insert(ctx, live))

	p := NewPruner(h.tree, PolicyList{{BegTID: 0, EndTID: 1000, ModTID: 10}})
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = h.tree.Lookup(ctx, v1.Base, false)
	assert.ErrorIs(t, err, hammererr.ErrNotFound)
	_, err = h.tree.Lookup(ctx, v2.Base, false)
	assert.ErrorIs(t, err, hammererr.ErrNotFound)
	got, err := h.tree.Lookup(ctx, v3.Base, false)
	require.NoError(t, err)
	assert.Equal(t, v3.Base, got.Base)
}

func TestPrunerRunOutsidePolicyRangeIsKept(t *testing.T) {
	h, ctx := newHarness(t)

	historical := layout.LeafElem{Base: key(1, 1, 5000), DeleteTID: 6000}
	live := layout.LeafElem{Base: key(1, 1, 6000)}
	require.NoError(t, h.tree.Insert(ctx, historical))
	require.NoError(t, h.tree.Insert(ctx, live))

	p := NewPruner(h.tree, PolicyList{{BegTID: 0, EndTID: 1000, ModTID: 0}})
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
