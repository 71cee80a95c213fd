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

// Package rangeop implements the range-operation operator layer: overlap,
// nearest-k, count-overlaps, coverage, merge, cluster, complement, and
// subtract, each as an engine.TableProvider + engine.ExecutionPlan pair
// whose physical strategy is chosen from session configuration, mirroring
// the teacher's plan.TableHandle / ExecutionPlan split (plan/plan.go,
// plan/exec.go) and its vm.Table/vm.QuerySink streaming contract.
package rangeop

import (
	"context"
	"fmt"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/interval"
	"github.com/biodatageeks/bioquery/session"
)

// materialize fully scans and collects a TableProvider into memory. It is
// what every binary operator's "indexed side" needs before a tree can be
// built over it (spec.md §4.6: "collect all batches of the indexed side
// into memory").
func materialize(ctx context.Context, p engine.TableProvider) ([]*engine.RecordBatch, error) {
	plan, err := p.Scan(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	return engine.Collect(ctx, plan, plan.OutputPartitions())
}

// nonJoinColumns returns the fields of schema excluding the three named
// coordinate columns, mirroring operation.rs's get_non_join_columns.
func nonJoinColumns(schema *engine.Schema, cols session.Columns) []engine.Field {
	skip := map[string]bool{cols.Contig: true, cols.Start: true, cols.End: true}
	var out []engine.Field
	for _, f := range schema.Fields {
		if !skip[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// buildIntervalIndex materializes p and builds a per-contig interval.Index
// over it using cols.
func buildIntervalIndex(ctx context.Context, p engine.TableProvider, cols session.Columns) (*interval.Index, error) {
	batches, err := materialize(ctx, p)
	if err != nil {
		return nil, err
	}
	return interval.Build(batches, interval.Columns{Contig: cols.Contig, Start: cols.Start, End: cols.End})
}

// queryWindow widens or narrows [start,end] so that interval.Tree's
// inclusive-both-ends Query implements the requested FilterOp. Tree.Query
// treats touching endpoints (iv.End == start or iv.Start == end) as a
// match, which is exactly Weak semantics; Strict must exclude touching
// endpoints, which we get by shrinking the query window by one on each
// side.
func queryWindow(filter session.FilterOp, start, end int64) (int64, int64) {
	if filter.Resolve() == session.Strict {
		return start + 1, end - 1
	}
	return start, end
}

// appendColumn copies src's value at row i onto dst, used when building
// output batches row-by-row from two heterogeneous input schemas.
func appendColumn(dst engine.Column, src engine.Column, i int) engine.Column {
	switch d := dst.(type) {
	case *engine.Int64Column:
		d.Values = append(d.Values, engine.Int64At(src, i))
		return d
	case *engine.Uint64Column:
		d.Values = append(d.Values, uint64(engine.Int64At(src, i)))
		return d
	case *engine.StringColumn:
		d.Values = append(d.Values, engine.StringAt(src, i))
		return d
	default:
		panic(fmt.Sprintf("appendColumn: unsupported column type %T", dst))
	}
}

// newColumnLike returns a zero-length column of the same concrete type as c.
func newColumnLike(c engine.Column) engine.Column {
	switch c.(type) {
	case *engine.Int64Column:
		return &engine.Int64Column{}
	case *engine.Uint64Column:
		return &engine.Uint64Column{}
	case *engine.Uint8Column:
		return &engine.Uint8Column{}
	case *engine.Float64Column:
		return &engine.Float64Column{}
	case *engine.StringColumn:
		return &engine.StringColumn{}
	case *engine.BoolColumn:
		return &engine.BoolColumn{}
	default:
		panic(fmt.Sprintf("newColumnLike: unsupported column type %T", c))
	}
}

// renamedSchema returns a copy of schema with every field renamed by adding suffix.
func renamedSchema(schema *engine.Schema, suffix string) *engine.Schema {
	out := &engine.Schema{Fields: make([]engine.Field, len(schema.Fields))}
	for i, f := range schema.Fields {
		f.Name = f.Name + suffix
		out.Fields[i] = f
	}
	return out
}

// concatSchema concatenates two schemas' fields.
func concatSchema(a, b *engine.Schema) *engine.Schema {
	out := &engine.Schema{Fields: make([]engine.Field, 0, len(a.Fields)+len(b.Fields))}
	out.Fields = append(out.Fields, a.Fields...)
	out.Fields = append(out.Fields, b.Fields...)
	return out
}
