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

package pileup

import (
	"context"
	"testing"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
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

func alignmentSchema() *engine.Schema {
	return &engine.Schema{Fields: []engine.Field{
		{Name: "chrom", Type: engine.String},
		{Name: "start", Type: engine.Int64},
		{Name: "flags", Type: engine.Int64},
		{Name: "cigar", Type: engine.String},
		{Name: "mapping_quality", Type: engine.Int64},
	}}
}

// alignment is (chrom, start, flags, cigar, mapq).
type alignment struct {
	chrom string
	start int64
	flags int64
	cigar string
	mapq  int64
}

func alignmentBatch(reads ...alignment) *engine.RecordBatch {
	chrom := &engine.StringColumn{}
	start := &engine.Int64Column{}
	flags := &engine.Int64Column{}
	cigar := &engine.StringColumn{}
	mapq := &engine.Int64Column{}
	for _, r := range reads {
		chrom.Values = append(chrom.Values, r.chrom)
		start.Values = append(start.Values, r.start)
		flags.Values = append(flags.Values, r.flags)
		cigar.Values = append(cigar.Values, r.cigar)
		mapq.Values = append(mapq.Values, r.mapq)
	}
	return &engine.RecordBatch{
		Schema:  alignmentSchema(),
		Columns: []engine.Column{chrom, start, flags, cigar, mapq},
	}
}

func TestReferenceSpan(t *testing.T) {
	cases := []struct {
		cigar string
		want  int64
	}{
		{"10M", 10},
		{"5M2I5M", 10},
		{"5M2D5M", 12},
		{"3S10M3S", 10},
		{"*", 0},
		{"", 0},
		{"10M2N10M", 22},
	}
	for _, c := range cases {
		if got := referenceSpan(c.cigar); got != c.want {
			t.Errorf("referenceSpan(%q) = %d, want %d", c.cigar, got, c.want)
		}
	}
}

func TestDepthTableProviderRLE(t *testing.T) {
	src := &fixedProvider{schema: alignmentSchema(), batch: alignmentBatch(
		alignment{"chr1", 0, 0, "10M", 60},
		alignment{"chr1", 5, 0, "10M", 60},
	)}
	opts := session.DefaultPileupOptions()
	opts.ZeroBased = true
	p := NewDepthTableProvider(src, opts)

	plan, err := p.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, plan.OutputPartitions())
	if err != nil {
		t.Fatal(err)
	}

	type block struct {
		start, end int64
		depth      uint64
	}
	var blocks []block
	for _, b := range rows {
		startCol := b.ColumnByName("start").(*engine.Int64Column)
		endCol := b.ColumnByName("end").(*engine.Int64Column)
		depthCol := b.ColumnByName("depth").(*engine.Uint64Column)
		for i := range startCol.Values {
			blocks = append(blocks, block{startCol.Values[i], endCol.Values[i], depthCol.Values[i]})
		}
	}

	// read1 covers [0,9], read2 covers [5,14]: depth 1 on [0,4], depth 2
	// on [5,9], depth 1 on [10,14].
	want := []block{{0, 4, 1}, {5, 9, 2}, {10, 14, 1}}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks %+v, want %d", len(blocks), blocks, len(want))
	}
	for i, w := range want {
		if blocks[i] != w {
			t.Fatalf("block %d = %+v, want %+v", i, blocks[i], w)
		}
	}
}

func TestDepthTableProviderPerBase(t *testing.T) {
	src := &fixedProvider{schema: alignmentSchema(), batch: alignmentBatch(
		alignment{"chr1", 0, 0, "3M", 60},
	)}
	opts := session.DefaultPileupOptions()
	opts.PerBase = true
	opts.ZeroBased = false
	p := NewDepthTableProvider(src, opts)

	plan, err := p.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, plan.OutputPartitions())
	if err != nil {
		t.Fatal(err)
	}

	var positions []int64
	for _, b := range rows {
		posCol := b.ColumnByName("pos").(*engine.Int64Column)
		positions = append(positions, posCol.Values...)
	}
	// one-based output: positions 1,2,3
	want := []int64{1, 2, 3}
	if len(positions) != len(want) {
		t.Fatalf("got %v, want %v", positions, want)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Fatalf("got %v, want %v", positions, want)
		}
	}
}

func TestDepthTableProviderFiltersUnmappedAndDuplicates(t *testing.T) {
	src := &fixedProvider{schema: alignmentSchema(), batch: alignmentBatch(
		alignment{"chr1", 0, 4, "10M", 60},    // unmapped, filtered
		alignment{"chr1", 0, 1024, "10M", 60}, // duplicate, filtered
		alignment{"chr1", 0, 0, "10M", 60},    // kept
	)}
	opts := session.DefaultPileupOptions()
	opts.ZeroBased = true
	p := NewDepthTableProvider(src, opts)

	plan, err := p.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, plan.OutputPartitions())
	if err != nil {
		t.Fatal(err)
	}
	var maxDepth uint64
	for _, b := range rows {
		depthCol := b.ColumnByName("depth").(*engine.Uint64Column)
		for _, d := range depthCol.Values {
			if d > maxDepth {
				maxDepth = d
			}
		}
	}
	if maxDepth != 1 {
		t.Fatalf("max depth = %d, want 1 (only one read should survive flag filtering)", maxDepth)
	}
}

func TestDepthTableProviderMinMappingQuality(t *testing.T) {
	src := &fixedProvider{schema: alignmentSchema(), batch: alignmentBatch(
		alignment{"chr1", 0, 0, "10M", 5},
		alignment{"chr1", 0, 0, "10M", 40},
	)}
	opts := session.DefaultPileupOptions()
	opts.ZeroBased = true
	opts.MinMappingQuality = 20
	p := NewDepthTableProvider(src, opts)

	plan, err := p.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, plan.OutputPartitions())
	if err != nil {
		t.Fatal(err)
	}
	var maxDepth uint64
	for _, b := range rows {
		depthCol := b.ColumnByName("depth").(*engine.Uint64Column)
		for _, d := range depthCol.Values {
			if d > maxDepth {
				maxDepth = d
			}
		}
	}
	if maxDepth != 1 {
		t.Fatalf("max depth = %d, want 1 (low-MAPQ read should be dropped)", maxDepth)
	}
}

func TestDepthTableProviderMultiContig(t *testing.T) {
	src := &fixedProvider{schema: alignmentSchema(), batch: alignmentBatch(
		alignment{"chr1", 0, 0, "5M", 60},
		alignment{"chr2", 0, 0, "5M", 60},
	)}
	opts := session.DefaultPileupOptions()
	opts.ZeroBased = true
	p := NewDepthTableProvider(src, opts)

	plan, err := p.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, plan.OutputPartitions())
	if err != nil {
		t.Fatal(err)
	}
	contigs := map[string]bool{}
	for _, b := range rows {
		contigCol := b.ColumnByName("contig").(*engine.StringColumn)
		for _, c := range contigCol.Values {
			contigs[c] = true
		}
	}
	if !contigs["chr1"] || !contigs["chr2"] {
		t.Fatalf("expected blocks on both contigs, got %v", contigs)
	}
}
