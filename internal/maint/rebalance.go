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
	"context"

	"github.com/hammerfs/hammer/internal/btree"
)

// Rebalancer drives the reference design's bottom-up node-merge pass
// (§4.4/§4.8): it walks the tree leaves-first, collapsing every pair of
// adjacent siblings whose combined contents still fit in one node,
// splicing the emptied sibling's boundary out of their parent and
// returning its slot to the freemap, then collapsing the root down a
// level at a time while only one child remains.
type Rebalancer struct {
	tree *btree.Tree
}

// NewRebalancer returns a Rebalancer over tree.
func NewRebalancer(tree *btree.Tree) *Rebalancer {
	return &Rebalancer{tree: tree}
}

// Run packs tree and returns its post-pack leaf occupancy statistics.
func (r *Rebalancer) Run(ctx context.Context) (btree.Stats, error) {
	return r.tree.Rebalance(ctx)
}
