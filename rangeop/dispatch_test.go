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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

func TestDispatchOverlapRegistersResult(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", newFixedProvider(intervalSchema(), intervalBatch([3]any{"chr1", 10, 20})))
	sess.RegisterTable("regions", newFixedProvider(intervalSchema(), intervalBatch([3]any{"chr1", 15, 25})))

	res, err := Dispatch(context.Background(), sess, "reads", "regions", session.RangeOptions{Op: session.Overlap})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Name, "overlap_result_") {
		t.Fatalf("unexpected generated name %q", res.Name)
	}
	if _, err := sess.Table(res.Name); err != nil {
		t.Fatalf("result table not registered: %v", err)
	}
	if sess.Config.GetAlgorithm() != session.AlgCoitrees {
		t.Fatalf("expected algorithm tag %q, got %q", session.AlgCoitrees, sess.Config.GetAlgorithm())
	}
}

func TestDispatchNearestSetsAlgorithmTag(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("probe", newFixedProvider(intervalSchema(), intervalBatch([3]any{"chr1", 100, 110})))
	sess.RegisterTable("idx", newFixedProvider(intervalSchema(), intervalBatch([3]any{"chr1", 50, 60})))

	_, err := Dispatch(context.Background(), sess, "probe", "idx", session.RangeOptions{Op: session.Nearest})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Config.GetAlgorithm() != session.AlgCoitreesNearest {
		t.Fatalf("expected algorithm tag %q, got %q", session.AlgCoitreesNearest, sess.Config.GetAlgorithm())
	}
}

func TestDispatchRejectsDirectNearestAlgorithmRequest(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("a", newFixedProvider(intervalSchema(), intervalBatch()))
	sess.RegisterTable("b", newFixedProvider(intervalSchema(), intervalBatch()))

	_, err := Dispatch(context.Background(), sess, "a", "b", session.RangeOptions{Op: session.Overlap, OverlapAlg: session.AlgCoitreesNearest})
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("got err %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestDispatchComplementRequiresViewTable(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", newFixedProvider(intervalSchema(), intervalBatch([3]any{"chr1", 0, 10})))

	_, err := Dispatch(context.Background(), sess, "reads", "", session.RangeOptions{Op: session.Complement})
	if err == nil {
		t.Fatal("expected an error when opts.ViewTable is unset")
	}
}

func TestDispatchComplementUsesViewTable(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", newFixedProvider(intervalSchema(), intervalBatch(
		[3]any{"chr1", 0, 10},
		[3]any{"chr1", 20, 30},
	)))
	sess.RegisterTable("chrom_sizes", newFixedProvider(intervalSchema(), intervalBatch([3]any{"chr1", 0, 30})))

	res, err := Dispatch(context.Background(), sess, "reads", "", session.RangeOptions{Op: session.Complement, ViewTable: "chrom_sizes"})
	if err != nil {
		t.Fatal(err)
	}
	var rows int
	for _, b := range res.Batches {
		rows += b.NumRows()
	}
	if rows != 1 {
		t.Fatalf("got %d gaps, want 1 (the internal gap 11-19; view bounds leave no edge gaps)", rows)
	}
}

func TestDispatchUnknownTable(t *testing.T) {
	sess := session.New()
	_, err := Dispatch(context.Background(), sess, "missing", "", session.RangeOptions{Op: session.Merge})
	if err == nil {
		t.Fatal("expected error for unregistered table")
	}
}

// spec.md §4.4 scenario 3, driven through the public Dispatch path: the
// right table ("regions") is augmented with a count column holding how
// many left-table ("reads") intervals overlap each of its rows.
func TestDispatchCountOverlapsAugmentsRightTable(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", newFixedProvider(intervalSchema(), intervalBatch(
		[3]any{"chr1", 10, 20},
		[3]any{"chr1", 15, 25},
	)))
	sess.RegisterTable("regions", newFixedProvider(intervalSchema(), intervalBatch(
		[3]any{"chr1", 12, 18},
		[3]any{"chr1", 30, 40},
	)))

	res, err := Dispatch(context.Background(), sess, "reads", "regions", session.RangeOptions{Op: session.CountOverlapsNaive, FilterOp: session.Weak})
	if err != nil {
		t.Fatal(err)
	}
	var counts []uint64
	var rows int
	for _, b := range res.Batches {
		rows += b.NumRows()
		cc := b.ColumnByName("count").(*engine.Uint64Column)
		counts = append(counts, cc.Values...)
	}
	if rows != 2 {
		t.Fatalf("got %d rows, want 2 (one per right-table interval)", rows)
	}
	if counts[0] != 2 || counts[1] != 0 {
		t.Fatalf("got counts %v, want [2 0]", counts)
	}
}

func TestDispatchMergeIsUnary(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", newFixedProvider(intervalSchema(), intervalBatch(
		[3]any{"chr1", 0, 10},
		[3]any{"chr1", 10, 20},
	)))
	res, err := Dispatch(context.Background(), sess, "reads", "", session.RangeOptions{Op: session.Merge})
	if err != nil {
		t.Fatal(err)
	}
	rows := 0
	for _, b := range res.Batches {
		rows += b.NumRows()
	}
	if rows != 1 {
		t.Fatalf("got %d merged rows, want 1", rows)
	}
}
