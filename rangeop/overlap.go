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

	"github.com/dchest/siphash"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/interval"
	"github.com/biodatageeks/bioquery/session"
)

// OverlapProvider emits every pair (l,r) with matching contig and a
// satisfied FilterOp predicate (spec.md §4.2).
type OverlapProvider struct {
	left, right engine.TableProvider
	opts        session.RangeOptions
	lowMemory   bool
	partitions  int
	schema      *engine.Schema
}

// NewOverlapProvider builds an OverlapProvider. lowMemory and partitions
// come from the session config at dispatch time (spec.md §5 requires this
// snapshot to happen before concurrent plan construction begins).
func NewOverlapProvider(left, right engine.TableProvider, opts session.RangeOptions, lowMemory bool, partitions int) *OverlapProvider {
	suf := opts.Suffixes.Resolve()
	schema := concatSchema(renamedSchema(left.Schema(), suf.Left), renamedSchema(right.Schema(), suf.Right))
	return &OverlapProvider{
		left:       left,
		right:      right,
		opts:       opts,
		lowMemory:  lowMemory,
		partitions: partitions,
		schema:     schema,
	}
}

func (p *OverlapProvider) Schema() *engine.Schema { return p.schema }

func (p *OverlapProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	leftBatches, err := materialize(ctx, p.left)
	if err != nil {
		return nil, err
	}
	rightBatches, err := materialize(ctx, p.right)
	if err != nil {
		return nil, err
	}
	if p.lowMemory {
		return p.shardedPlan(leftBatches, rightBatches, limit), nil
	}
	return p.indexedPlan(leftBatches, rightBatches, limit), nil
}

// indexedPlan builds an interval.Index over whichever side has fewer
// total rows and streams the other side as probe, preserving the probe
// side's row order (spec.md §4.2's default, non-low-memory strategy).
func (p *OverlapProvider) indexedPlan(leftBatches, rightBatches []*engine.RecordBatch, limit int) engine.ExecutionPlan {
	cols1 := p.opts.Columns1.Resolve()
	cols2 := p.opts.Columns2.Resolve()

	leftRows := countRows(leftBatches)
	rightRows := countRows(rightBatches)

	indexLeft := leftRows <= rightRows

	mk := func(ctx context.Context) (engine.BatchStream, error) {
		var idx *interval.Index
		var err error
		var probeBatches []*engine.RecordBatch
		var probeCols session.Columns
		var indexIsLeft bool
		if indexLeft {
			idx, err = interval.Build(leftBatches, interval.Columns(cols1))
			probeBatches = rightBatches
			probeCols = cols2
			indexIsLeft = true
		} else {
			idx, err = interval.Build(rightBatches, interval.Columns(cols2))
			probeBatches = leftBatches
			probeCols = cols1
			indexIsLeft = false
		}
		if err != nil {
			return nil, err
		}

		var out []*engine.RecordBatch
		n := 0
		for _, pb := range probeBatches {
			contigCol := pb.ColumnByName(probeCols.Contig)
			startCol := pb.ColumnByName(probeCols.Start)
			endCol := pb.ColumnByName(probeCols.End)
			for row := 0; row < pb.NumRows(); row++ {
				if limit > 0 && n >= limit {
					break
				}
				contig := engine.StringAt(contigCol, row)
				tree := idx.Tree(contig)
				if tree == nil {
					continue
				}
				qs, qe := queryWindow(p.opts.FilterOp, engine.Int64At(startCol, row), engine.Int64At(endCol, row))
				tree.Query(qs, qe, func(iv interval.Interval) error {
					if limit > 0 && n >= limit {
						return errLimitReached
					}
					idxBatch, idxRow := idx.Row(iv.Slot)
					var leftBatch, rightBatch *engine.RecordBatch
					var leftRow, rightRow int
					if indexIsLeft {
						leftBatch, leftRow = idxBatch, idxRow
						rightBatch, rightRow = pb, row
					} else {
						leftBatch, leftRow = pb, row
						rightBatch, rightRow = idxBatch, idxRow
					}
					out = appendJoinedRow(out, p.schema, leftBatch, leftRow, rightBatch, rightRow)
					n++
					return nil
				})
			}
			if limit > 0 && n >= limit {
				break
			}
		}
		return engine.NewSliceStream(out), nil
	}
	return engine.NewSinglePartitionPlan(p.schema, mk)
}

var errLimitReached = errLimit{}

type errLimit struct{}

func (errLimit) Error() string { return "row limit reached" }

// shardedPlan partitions both sides by a siphash of the contig name into
// target_partitions shards, then runs the same indexed join independently
// per shard (spec.md §4.2's "low-memory" toggle): each partition's interval
// index covers one contig-shard rather than one whole side. Scan still
// collects both inputs whole before sharding them.
func (p *OverlapProvider) shardedPlan(leftBatches, rightBatches []*engine.RecordBatch, limit int) engine.ExecutionPlan {
	cols1 := p.opts.Columns1.Resolve()
	cols2 := p.opts.Columns2.Resolve()
	n := p.partitions
	if n <= 0 {
		n = 1
	}

	mk := func(ctx context.Context, partition int) (engine.BatchStream, error) {
		leftShard := filterByShard(leftBatches, cols1.Contig, partition, n)
		rightShard := filterByShard(rightBatches, cols2.Contig, partition, n)
		idx, err := interval.Build(leftShard, interval.Columns(cols1))
		if err != nil {
			return nil, err
		}
		var out []*engine.RecordBatch
		cnt := 0
		for _, pb := range rightShard {
			contigCol := pb.ColumnByName(cols2.Contig)
			startCol := pb.ColumnByName(cols2.Start)
			endCol := pb.ColumnByName(cols2.End)
			for row := 0; row < pb.NumRows(); row++ {
				contig := engine.StringAt(contigCol, row)
				tree := idx.Tree(contig)
				if tree == nil {
					continue
				}
				qs, qe := queryWindow(p.opts.FilterOp, engine.Int64At(startCol, row), engine.Int64At(endCol, row))
				tree.Query(qs, qe, func(iv interval.Interval) error {
					if limit > 0 && cnt >= limit {
						return errLimitReached
					}
					leftBatch, leftRow := idx.Row(iv.Slot)
					out = appendJoinedRow(out, p.schema, leftBatch, leftRow, pb, row)
					cnt++
					return nil
				})
			}
		}
		return engine.NewSliceStream(out), nil
	}
	return engine.NewMultiPartitionPlan(p.schema, n, mk)
}

func countRows(batches []*engine.RecordBatch) int {
	n := 0
	for _, b := range batches {
		n += b.NumRows()
	}
	return n
}

// shardOf hashes contig with siphash (as the teacher's vm/interphash.go
// and splitter.go do for routing values to shards) and reduces it mod n.
func shardOf(contig string, n int) int {
	lo, _ := siphash.Hash128(0, 0, []byte(contig))
	return int(lo % uint64(n))
}

// filterByShard returns new batches containing only the rows of src whose
// contig column hashes to partition.
func filterByShard(src []*engine.RecordBatch, contigCol string, partition, n int) []*engine.RecordBatch {
	var out []*engine.RecordBatch
	for _, b := range src {
		cc := b.ColumnByName(contigCol)
		if cc == nil {
			continue
		}
		var rows []int
		for row := 0; row < b.NumRows(); row++ {
			if shardOf(engine.StringAt(cc, row), n) == partition {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}
		out = append(out, selectRows(b, rows))
	}
	return out
}

// selectRows builds a new batch containing only the named rows of src, in order.
func selectRows(src *engine.RecordBatch, rows []int) *engine.RecordBatch {
	cols := make([]engine.Column, len(src.Columns))
	for i, c := range src.Columns {
		nc := newColumnLike(c)
		for _, r := range rows {
			nc = appendColumn(nc, c, r)
		}
		cols[i] = nc
	}
	return &engine.RecordBatch{Schema: src.Schema, Columns: cols}
}

// appendJoinedRow appends one output row built from (leftBatch,leftRow)
// and (rightBatch,rightRow) onto out's last batch (or a new one).
func appendJoinedRow(out []*engine.RecordBatch, schema *engine.Schema, leftBatch *engine.RecordBatch, leftRow int, rightBatch *engine.RecordBatch, rightRow int) []*engine.RecordBatch {
	var dst *engine.RecordBatch
	if len(out) == 0 {
		dst = newOutputBatch(schema)
		out = append(out, dst)
	} else {
		dst = out[len(out)-1]
	}
	nLeft := len(leftBatch.Columns)
	for i := 0; i < nLeft; i++ {
		dst.Columns[i] = appendColumn(dst.Columns[i], leftBatch.Columns[i], leftRow)
	}
	for i := 0; i < len(rightBatch.Columns); i++ {
		dst.Columns[nLeft+i] = appendColumn(dst.Columns[nLeft+i], rightBatch.Columns[i], rightRow)
	}
	return out
}

func newOutputBatch(schema *engine.Schema) *engine.RecordBatch {
	cols := make([]engine.Column, len(schema.Fields))
	for i, f := range schema.Fields {
		switch f.Type {
		case engine.Int64:
			cols[i] = &engine.Int64Column{}
		case engine.Uint64:
			cols[i] = &engine.Uint64Column{}
		case engine.Uint8:
			cols[i] = &engine.Uint8Column{}
		case engine.Float64:
			cols[i] = &engine.Float64Column{}
		case engine.String:
			cols[i] = &engine.StringColumn{}
		case engine.Bool:
			cols[i] = &engine.BoolColumn{}
		}
	}
	return &engine.RecordBatch{Schema: schema, Columns: cols}
}
