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

package quality

import (
	"context"
	"testing"

	"github.com/biodatageeks/bioquery/engine"
)

type fixedProvider struct {
	schema *engine.Schema
	batch  *engine.RecordBatch
}

func (f *fixedProvider) Schema() *engine.Schema { return f.schema }

func (f *fixedProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	return engine.NewSinglePartitionPlan(f.schema, func(ctx context.Context) (engine.BatchStream, error) {
		return engine.NewSliceStream([]*engine.RecordBatch{f.batch}), nil
	}), nil
}

// Scenario 5: a single 10-base read whose quality string is five '!'
// (score 0) followed by five 'I' (score 40), with no separator between
// them.
func TestScenario5QualityQuartiles(t *testing.T) {
	quality := "!!!!!IIIII"
	schema := &engine.Schema{Fields: []engine.Field{{Name: "quality_scores", Type: engine.String}}}
	batch := &engine.RecordBatch{
		Schema:  schema,
		Columns: []engine.Column{&engine.StringColumn{Values: []string{quality}}},
	}
	provider := &fixedProvider{schema: schema, batch: batch}

	hp := NewHistogramProvider(provider, "quality_scores", 1)
	plan, err := hp.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, 1)
	if err != nil {
		t.Fatal(err)
	}

	states := make(map[uint64]*HistogramState)
	for _, b := range rows {
		posCol := b.ColumnByName("pos").(*engine.Uint64Column)
		scoreCol := b.ColumnByName("score").(*engine.Uint8Column)
		countCol := b.ColumnByName("count").(*engine.Uint64Column)
		for i := range posCol.Values {
			pos := posCol.Values[i]
			st, ok := states[pos]
			if !ok {
				st = &HistogramState{}
				states[pos] = st
			}
			st.Add(scoreCol.Values[i], countCol.Values[i])
		}
	}

	if len(states) != 10 {
		t.Fatalf("got %d positions, want 10", len(states))
	}
	for pos := uint64(0); pos < 5; pos++ {
		stats, ok := states[pos].Evaluate()
		if !ok {
			t.Fatalf("position %d: expected a row", pos)
		}
		if stats.Avg != 0 || stats.Median != 0 || stats.Q1 != 0 || stats.Q3 != 0 || stats.Warn != Fail {
			t.Fatalf("position %d: got %+v, want all-zero/fail", pos, stats)
		}
	}
	for pos := uint64(5); pos < 10; pos++ {
		stats, ok := states[pos].Evaluate()
		if !ok {
			t.Fatalf("position %d: expected a row", pos)
		}
		if stats.Avg != 40 || stats.Median != 40 || stats.Warn != Pass {
			t.Fatalf("position %d: got %+v, want avg/median=40/pass", pos, stats)
		}
	}
}

func TestHistogramStateMergeCommutativeAssociative(t *testing.T) {
	a := &HistogramState{}
	a.Add(10, 3)
	a.Add(20, 1)
	b := &HistogramState{}
	b.Add(10, 2)
	b.Add(30, 4)
	c := &HistogramState{}
	c.Add(5, 7)

	ab := &HistogramState{}
	ab.Merge(a)
	ab.Merge(b)
	ba := &HistogramState{}
	ba.Merge(b)
	ba.Merge(a)
	if ab.Counts != ba.Counts {
		t.Fatalf("merge is not commutative: %v vs %v", ab.Counts, ba.Counts)
	}

	left := &HistogramState{}
	left.Merge(ab)
	left.Merge(c)

	bc := &HistogramState{}
	bc.Merge(b)
	bc.Merge(c)
	right := &HistogramState{}
	right.Merge(a)
	right.Merge(bc)

	if left.Counts != right.Counts {
		t.Fatalf("merge is not associative: %v vs %v", left.Counts, right.Counts)
	}
}

func TestHistogramStateMarshalRoundTrip(t *testing.T) {
	s := &HistogramState{}
	s.Add(0, 5)
	s.Add(40, 2)
	buf := s.Marshal()
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Counts != s.Counts {
		t.Fatalf("round trip mismatch: got %v, want %v", got.Counts, s.Counts)
	}
}

func TestQuartileInterpolation(t *testing.T) {
	s := &HistogramState{}
	s.Add(0, 2)
	s.Add(10, 2)
	stats, ok := s.Evaluate()
	if !ok {
		t.Fatal("expected a row")
	}
	if stats.Median != 5 {
		t.Fatalf("median = %v, want 5", stats.Median)
	}
}

func TestEmptyHistogramSkipped(t *testing.T) {
	s := &HistogramState{}
	if _, ok := s.Evaluate(); ok {
		t.Fatal("expected no row for an empty histogram")
	}
}
