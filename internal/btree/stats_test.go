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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerfs/hammer/internal/layout"
)

func TestStatsSingleLeaf(t *testing.T) {
	tree, ctx := newTestTree(t)

	require.NoError(t, tree.Insert(ctx, elem(1, 1, 1, 10)))
	require.NoError(t, tree.Insert(ctx, elem(1, 2, 1, 10)))

	s, err := tree.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Leaves)
	assert.Equal(t, 2, s.Elements)
	assert.Equal(t, layout.NodeRadix, s.Capacity)
}

func TestStatsEmptyTreeFillRatioIsZero(t *testing.T) {
	tree, ctx := newTestTree(t)

	s, err := tree.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Leaves)
	assert.Equal(t, 0, s.Elements)
	assert.Equal(t, 0.0, s.FillRatio())
}
