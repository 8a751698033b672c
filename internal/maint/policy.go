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

// Package maint holds the three background scans that reclaim and
// compact space the live tree no longer strictly needs (spec §4.8):
// Pruner deletes historical record versions a retention policy no
// longer requires, Reblocker relocates live records out of
// fragmented big-blocks, and Rebalancer merges under-full sibling
// nodes and reports the resulting leaf occupancy.
package maint

// Policy is one retention rule applied to historical (superseded)
// records whose CreateTID falls in [BegTID, EndTID). ModTID buckets
// that range into spans of that width; within a span, only the
// newest historical version is retained and earlier ones in the same
// span are deletable. ModTID==0 is a sentinel disabling bucketing
// entirely: every historical record the range covers is deletable,
// which is what PruneAll needs and what a real bucket width of zero
// cannot express without dividing by zero.
type Policy struct {
	BegTID uint64
	EndTID uint64
	ModTID uint64
}

// PolicyList is searched in order; the first Policy whose range
// contains a candidate's CreateTID applies to it.
type PolicyList []Policy

// PruneAll returns the policy that deletes every historical record in
// the tree, the "prune everything" convenience spec §4.8 calls out.
func PruneAll() PolicyList {
	return PolicyList{{BegTID: 0, EndTID: ^uint64(0), ModTID: 0}}
}

func matchPolicy(policies PolicyList, tid uint64) (Policy, bool) {
	for _, p := range policies {
		if tid >= p.BegTID && tid < p.EndTID {
			return p, true
		}
	}
	return Policy{}, false
}

// bucketOf rounds tid down to its ModTID-wide retention bucket. mod==0
// returns tid itself, making every tid its own bucket (see Policy's
// ModTID doc).
func bucketOf(tid, mod uint64) uint64 {
	if mod == 0 {
		return tid
	}
	return tid - (tid % mod)
}
