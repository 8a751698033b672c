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

	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

// UpdateLeafData rewrites the data_offset/data_len/data_crc fields of the
// element exactly matching key, in place, without touching its position
// in the tree. This is the reblocker's (§4.8) "rewrite the leaf's
// data_offset" step after it has copied the record's bytes to a newly
// allocated location; it never changes key order so it needs none of
// Insert/Delete's structural machinery.
func (t *Tree) UpdateLeafData(ctx context.Context, key layout.Key, newOff layout.Offset, newLen, newCRC uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leaf, leafOff, leafBuf, err := t.descend(ctx, key)
	if err != nil {
		return err
	}
	releasePath(ctx, t.bufs, path)
	defer t.bufs.Release(ctx, leafBuf, false)

	idx := findLeafIndex(leaf, key)
	if idx >= leaf.Count || leaf.Leaf[idx].Base.Compare(key) != 0 {
		return hammererr.ErrNotFound
	}

	leaf.Leaf[idx].DataOffset = newOff
	leaf.Leaf[idx].DataLen = newLen
	leaf.Leaf[idx].DataCRC = newCRC

	return t.writeNode(ctx, leafOff, leafBuf, leaf)
}
