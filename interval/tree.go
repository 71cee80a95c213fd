// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package interval implements the per-contig interval index the range
// operators query against: a static interval index built once from a
// materialized set of intervals and queried read-only afterward. The
// endpoint-sweep shape used by the sorted sweep operators
// (merge/cluster/complement/subtract) is grounded on
// grailbio-bio/interval/endpoint_index.go's half-open endpoint-array
// design; the indexed query structure itself is a slice sorted by start
// plus a prefix-max-end column ("lapper" family), not a cache-oblivious
// tree layout. A query's backward scan stops only once the prefix-max-end
// drops below the query start, so a long interval early in the slice can
// make it visit many intervals that do not overlap the query.
package interval

import "sort"

// Interval is a half-open-or-closed [Start,End] range (closedness is a
// caller convention, not enforced here) carrying a back-reference Slot
// into whatever batch/row it was built from.
type Interval struct {
	Start int64
	End   int64
	Slot  uint32
}

// Tree is a static, query-only interval index over one contig's worth of
// intervals. Zero value is not usable; build with BuildTree.
type Tree struct {
	ivs     []Interval // sorted by Start
	maxEnd  []int64    // maxEnd[i] = max(ivs[0..i].End)
}

// BuildTree constructs a Tree from ivs. ivs is sorted in place by Start;
// the caller's slice is consumed.
func BuildTree(ivs []Interval) *Tree {
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
	maxEnd := make([]int64, len(ivs))
	running := int64(minInt64)
	for i, iv := range ivs {
		if iv.End > running {
			running = iv.End
		}
		maxEnd[i] = running
	}
	return &Tree{ivs: ivs, maxEnd: maxEnd}
}

const minInt64 = -1 << 63

// Len returns the number of intervals in the tree.
func (t *Tree) Len() int { return len(t.ivs) }

// Query calls visit for every interval in t overlapping [start,end]
// (inclusive both ends; callers wanting half-open semantics pass
// end-1, and callers implementing the Weak/Strict filter-op widen or
// narrow the query window by one before calling, per spec.md §4.6).
// Iteration order is by descending Start. Returning a non-nil error from
// visit stops iteration early and Query returns that error.
func (t *Tree) Query(start, end int64, visit func(Interval) error) error {
	// All overlapping intervals have Start <= end (since Start <= End
	// always holds for a well-formed interval). Binary search for the
	// exclusive upper bound on Start, then scan backward pruning on the
	// prefix-max-end column: once maxEnd[i] < start, no interval at or
	// before i can reach into [start,end].
	hi := sort.Search(len(t.ivs), func(i int) bool { return t.ivs[i].Start > end })
	for i := hi - 1; i >= 0; i-- {
		if t.maxEnd[i] < start {
			break
		}
		iv := t.ivs[i]
		if iv.End >= start {
			if err := visit(iv); err != nil {
				return err
			}
		}
	}
	return nil
}

// All returns the tree's intervals in ascending Start order. Nearest-k
// queries have no prefix-max-end pruning to exploit (the nearest interval
// to a point may be arbitrarily far past the binary-search cursor in
// either direction), so they scan this whole slice rather than going
// through Query.
func (t *Tree) All() []Interval { return t.ivs }

// StartSearch returns the index of the first interval with Start >= x,
// i.e. sort.Search(len(ivs), func(i) bool { return ivs[i].Start >= x }).
func (t *Tree) StartSearch(x int64) int {
	return sort.Search(len(t.ivs), func(i int) bool { return t.ivs[i].Start >= x })
}

// QueryCount returns the number of intervals overlapping [start,end],
// without materializing them.
func (t *Tree) QueryCount(start, end int64) int {
	n := 0
	// visit never returns an error, so this call cannot fail.
	_ = t.Query(start, end, func(Interval) error {
		n++
		return nil
	})
	return n
}
