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

package interval

import (
	"fmt"

	"github.com/biodatageeks/bioquery/engine"
)

// Ref locates the row an interval was built from: Batch indexes into the
// slice of batches the Index was built from, Row is the row within it.
type Ref struct {
	Batch int
	Row   int
}

// Columns names the three coordinate columns an Index is built against.
type Columns struct {
	Contig string
	Start  string
	End    string
}

// DefaultColumns is the conventional (contig,start,end) triple used when
// a caller doesn't configure column names per spec.md §6.
var DefaultColumns = Columns{Contig: "contig", Start: "start", End: "end"}

// Index is a Map<Contig,Tree> built once from a materialized set of
// batches (spec.md §4.6). Each interval carries a 32-bit Slot that is an
// index into Index.Refs, which in turn locates the originating
// (batch,row); payload columns are read back through Batches[ref.Batch].
type Index struct {
	Trees   map[string]*Tree
	Refs    []Ref
	Batches []*engine.RecordBatch
}

// Build materializes batches into a per-contig Index using cols to find
// the coordinate columns. Empty contigs are absent from the resulting
// map, per spec.md §4.6.
func Build(batches []*engine.RecordBatch, cols Columns) (*Index, error) {
	idx := &Index{
		Trees:   make(map[string]*Tree),
		Batches: batches,
	}
	perContig := make(map[string][]Interval)
	for bi, b := range batches {
		contigCol := b.ColumnByName(cols.Contig)
		startCol := b.ColumnByName(cols.Start)
		endCol := b.ColumnByName(cols.End)
		if contigCol == nil || startCol == nil || endCol == nil {
			return nil, fmt.Errorf("interval.Build: batch missing one of (%s,%s,%s)", cols.Contig, cols.Start, cols.End)
		}
		for row := 0; row < b.NumRows(); row++ {
			contig := engine.StringAt(contigCol, row)
			slot := uint32(len(idx.Refs))
			idx.Refs = append(idx.Refs, Ref{Batch: bi, Row: row})
			perContig[contig] = append(perContig[contig], Interval{
				Start: engine.Int64At(startCol, row),
				End:   engine.Int64At(endCol, row),
				Slot:  slot,
			})
		}
	}
	for contig, ivs := range perContig {
		idx.Trees[contig] = BuildTree(ivs)
	}
	return idx, nil
}

// Tree returns the tree for contig, or nil if the contig has no intervals.
func (idx *Index) Tree(contig string) *Tree {
	return idx.Trees[contig]
}

// Row returns the source batch and row index for an interval's Slot.
func (idx *Index) Row(slot uint32) (*engine.RecordBatch, int) {
	ref := idx.Refs[slot]
	return idx.Batches[ref.Batch], ref.Row
}

// Len returns the total number of intervals indexed across all contigs.
func (idx *Index) Len() int { return len(idx.Refs) }
