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
	"context"
	"errors"

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

// Stats summarizes leaf occupancy across the whole tree, for the
// rebalancer's (§4.8) fill-ratio report.
type Stats struct {
	Leaves   int
	Elements int
	// Capacity is Leaves*layout.NodeRadix, the element count the
	// scanned leaves could hold if every one were full.
	Capacity int
}

// FillRatio returns Elements/Capacity, or 1 when Capacity is 0 (no
// leaves scanned). An empty tree still has its root leaf, so it reports 0.
func (s Stats) FillRatio() float64 {
	if s.Capacity == 0 {
		return 1
	}
	return float64(s.Elements) / float64(s.Capacity)
}

// Stats walks every leaf left to right and reports its occupancy.
func (t *Tree) Stats(ctx context.Context) (Stats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	off, err := t.leftmostLeaf(ctx, t.rootOff)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	for {
		n, buf, err := t.readNode(ctx, off)
		if err != nil {
			return Stats{}, err
		}
		s.Leaves++
		s.Elements += n.Count
		s.Capacity += layout.NodeRadix
		next, err := t.successorLeaf(ctx, off)
		t.bufs.Release(ctx, buf, false)
		if err != nil {
			if errors.Is(err, hammererr.ErrNotFound) {
				return s, nil
			}
			return s, err
		}
		off = next
	}
}
