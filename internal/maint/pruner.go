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
	"errors"

	"github.com/hammerfs/hammer/internal/btree"
	"github.com/hammerfs/hammer/internal/hammererr"
	"github.com/hammerfs/hammer/internal/layout"
)

// Pruner deletes historical record versions no policy in its list
// requires retained.
type Pruner struct {
	tree     *btree.Tree
	policies PolicyList
}

// NewPruner returns a Pruner applying policies to tree.
func NewPruner(tree *btree.Tree, policies PolicyList) *Pruner {
	return &Pruner{tree: tree, policies: policies}
}

// chainKey identifies one record's version chain: every element
// sharing a chainKey is a successive state of the same logical
// record, ordered by CreateTID.
type chainKey struct {
	Localization uint32
	ObjID        uint64
	RecType      uint16
	ElementKey   uint64
}

func identity(k layout.Key) chainKey {
	return chainKey{k.Localization, k.ObjID, k.RecType, k.ElementKey}
}

// Run scans the whole tree once and deletes every record its policies
// mark deletable, returning the count removed.
//
// Tree exposes forward iteration only (Next), not a Prev; the engine
// this was ported from iterates in reverse so alignment decisions for
// an older bucket never depend on one made after it this same pass.
// This Run buffers the forward scan into a slice and decides every
// chain against that fixed snapshot, so no decision depends on a
// delete made earlier in the same pass, then issues the deletes back
// to front, at the cost of holding the scanned key set in memory for
// the duration of one run.
func (p *Pruner) Run(ctx context.Context) (int, error) {
	all, err := p.candidates(ctx)
	if err != nil {
		return 0, err
	}

	var toDelete []layout.Key
	for _, group := range groupByIdentity(all) {
		toDelete = append(toDelete, p.deletableInGroup(group)...)
	}

	deleted := 0
	for i := len(toDelete) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return deleted, hammererr.ErrInterrupted
		}
		if err := p.tree.Delete(ctx, toDelete[i]); err != nil {
			if errors.Is(err, hammererr.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// candidates forward-scans every element in the tree starting below
// the smallest possible key.
func (p *Pruner) candidates(ctx context.Context) ([]layout.LeafElem, error) {
	var all []layout.LeafElem
	key := layout.Key{CreateTID: 1}
	for {
		e, err := p.tree.Next(ctx, key)
		if errors.Is(err, hammererr.ErrNotFound) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, e)
		key = e.Base
	}
}

func groupByIdentity(all []layout.LeafElem) [][]layout.LeafElem {
	var groups [][]layout.LeafElem
	var cur []layout.LeafElem
	var curID chainKey
	for i, e := range all {
		id := identity(e.Base)
		if i == 0 || id != curID {
			if len(cur) > 0 {
				groups = append(groups, cur)
			}
			cur = nil
			curID = id
		}
		cur = append(cur, e)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// deletableInGroup applies p.policies to one version chain, oldest
// first. The chain's last element is the live head (DeleteTID==0) and
// is never deletable.
func (p *Pruner) deletableInGroup(group []layout.LeafElem) []layout.Key {
	n := len(group)
	var out []layout.Key
	for i := 0; i < n; i++ {
		e := group[i]
		if i == n-1 && e.DeleteTID == 0 {
			continue
		}
		pol, ok := matchPolicy(p.policies, e.Base.CreateTID)
		if !ok {
			continue
		}
		if pol.ModTID == 0 {
			out = append(out, e.Base)
			continue
		}
		bucket := bucketOf(e.Base.CreateTID, pol.ModTID)
		if hasNewerInBucket(p.policies, group, i, bucket) {
			out = append(out, e.Base)
		}
	}
	return out
}

// hasNewerInBucket reports whether some element after i in group
// falls in the same retention bucket, meaning group[i] is a
// superseded duplicate of it and can be dropped.
func hasNewerInBucket(policies PolicyList, group []layout.LeafElem, i int, bucket uint64) bool {
	n := len(group)
	for j := i + 1; j < n; j++ {
		if j == n-1 && group[j].DeleteTID == 0 {
			break
		}
		jp, ok := matchPolicy(policies, group[j].Base.CreateTID)
		if ok && jp.ModTID != 0 && bucketOf(group[j].Base.CreateTID, jp.ModTID) == bucket {
			return true
		}
	}
	return false
}
