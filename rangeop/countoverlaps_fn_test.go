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

package rangeop

import (
	"testing"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

// spec.md §4.4: count_overlaps(left, right, ...) returns the right table
// augmented with a count of overlapping left-table intervals — one row
// per right-table interval, not per left-table interval.
func TestCountOverlapsFunctionParity(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", newFixedProvider(intervalSchema(), intervalBatch(
		[3]any{"chr1", 10, 20},
		[3]any{"chr1", 30, 40},
	)))
	sess.RegisterTable("regions", newFixedProvider(intervalSchema(), intervalBatch(
		[3]any{"chr1", 15, 25},
	)))

	res, err := CountOverlaps(sess, "reads", "regions", session.DefaultColumns, session.DefaultColumns)
	if err != nil {
		t.Fatal(err)
	}
	var rows int
	var counts []uint64
	for _, b := range res.Batches {
		rows += b.NumRows()
		cc := b.ColumnByName("count").(*engine.Uint64Column)
		counts = append(counts, cc.Values...)
	}
	if rows != 1 {
		t.Fatalf("got %d rows, want 1 (one per right-table interval)", rows)
	}
	if counts[0] != 1 {
		t.Fatalf("got count %d, want 1", counts[0])
	}
}
