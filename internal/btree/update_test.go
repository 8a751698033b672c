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

package btree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

func TestUpdateLeafDataRewritesInPlace(t *testing.T) {
	tree, ctx := newTestTree(t)

	e := elem(1, 100, 5, 10)
	e.DataOffset = layout.NewOffset(layout.ZoneSmallData, 4096)
	e.DataLen = 64
	e.DataCRC = 0xdead
	require.NoError(t, tree.Insert(ctx, e))

	newOff := layout.NewOffset(layout.ZoneSmallData, 8192)
	require.NoError(t, tree.UpdateLeafData(ctx, e.Base, newOff, 128, 0xbeef))

	got, err := tree.Lookup(ctx, e.Base, false)
	require.NoError(t, err)
	assert.Equal(t, newOff, got.DataOffset)
	assert.Equal(t, uint32(128), got.DataLen)
	assert.Equal(t, uint32(0xbeef), got.DataCRC)
}

func TestUpdateLeafDataMissingReturnsNotFound(t *testing.T) {
	tree, ctx := newTestTree(t)
	err := tree.UpdateLeafData(ctx, layout.Key{Localization: 1, ObjID: 1, RecType: 1, ElementKey: 1, CreateTID: 1}, 0, 0, 0)
	assert.True(t, errors.Is(err, hammererr.ErrNotFound))
}
