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
	"sort"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

// NearestProvider emits, for every row of left (df1), its k nearest rows
// of right (df2) by genomic distance, breaking ties by ascending Start
// (spec.md §4.3). The algorithm tag session.AlgCoitreesNearest is forced
// for this operator regardless of what the caller requested.
type NearestProvider struct {
	left, right engine.TableProvider
	opts        session.RangeOptions
	schema      *engine.Schema
	distCol     bool
}

// NewNearestProvider builds a NearestProvider.
func NewNearestProvider(left, right engine.TableProvider, opts session.RangeOptions) *NearestProvider {
	suf := opts.Suffixes.Resolve()
	schema := concatSchema(renamedSchema(left.Schema(), suf.Left), renamedSchema(right.Schema(), suf.Right))
	distCol := opts.ComputeDistanceOrDefault()
	if distCol {
		schema = &engine.Schema{Fields: append(append([]engine.Field{}, schema.Fields...), engine.Field{Name: "distance", Type: engine.Int64})}
	}
	return &NearestProvider{left: left, right: right, opts: opts, schema: schema, distCol: distCol}
}

func (p *NearestProvider) Schema() *engine.Schema { return p.schema }

// nearestCandidate holds one right-side candidate row plus its distance
// to the left-side query row, used only to rank candidates before
// materializing output rows.
type nearestCandidate struct {
	batch    *engine.RecordBatch
	row      int
	start    int64
	distance int64
}

// distanceBetween returns the genomic distance between [aStart,aEnd] and
// [bStart,bEnd]: 0 when they overlap (Weak sense), otherwise the gap
// between the nearer pair of edges.
func distanceBetween(aStart, aEnd, bStart, bEnd int64) int64 {
	if aEnd >= bStart && aStart <= bEnd {
		return 0
	}
	if bStart > aEnd {
		return bStart - aEnd
	}
	return aStart - bEnd
}

func (p *NearestProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	cols1 := p.opts.Columns1.Resolve()
	cols2 := p.opts.Columns2.Resolve()

	leftBatches, err := materialize(ctx, p.left)
	if err != nil {
		return nil, err
	}
	idx, err := buildIntervalIndex(ctx, p.right, cols2)
	if err != nil {
		return nil, err
	}

	k := p.opts.NearestKOrDefault()
	includeOverlaps := p.opts.IncludeOverlapsOrDefault()
	minDist := int64(p.opts.MinDist)

	mk := func(ctx context.Context) (engine.BatchStream, error) {
		var out []*engine.RecordBatch
		n := 0
		for _, lb := range leftBatches {
			contigCol := lb.ColumnByName(cols1.Contig)
			startCol := lb.ColumnByName(cols1.Start)
			endCol := lb.ColumnByName(cols1.End)
			for row := 0; row < lb.NumRows(); row++ {
				if limit > 0 && n >= limit {
					break
				}
				contig := engine.StringAt(contigCol, row)
				tree := idx.Tree(contig)
				if tree == nil {
					continue
				}
				qStart := engine.Int64At(startCol, row)
				qEnd := engine.Int64At(endCol, row)

				var cands []nearestCandidate
				for _, iv := range tree.All() {
					d := distanceBetween(qStart, qEnd, iv.Start, iv.End)
					if !includeOverlaps && d == 0 {
						continue
					}
					if d < minDist {
						continue
					}
					rb, rr := idx.Row(iv.Slot)
					cands = append(cands, nearestCandidate{batch: rb, row: rr, start: iv.Start, distance: d})
				}
				sort.Slice(cands, func(i, j int) bool {
					if cands[i].distance != cands[j].distance {
						return cands[i].distance < cands[j].distance
					}
					return cands[i].start < cands[j].start
				})
				if len(cands) > k {
					cands = cands[:k]
				}
				for _, c := range cands {
					if limit > 0 && n >= limit {
						break
					}
					out = appendNearestRow(out, p.schema, lb, row, c)
					n++
				}
			}
			if limit > 0 && n >= limit {
				break
			}
		}
		return engine.NewSliceStream(out), nil
	}
	return engine.NewSinglePartitionPlan(p.schema, mk), nil
}

func appendNearestRow(out []*engine.RecordBatch, schema *engine.Schema, leftBatch *engine.RecordBatch, leftRow int, c nearestCandidate) []*engine.RecordBatch {
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
	nRight := len(c.batch.Columns)
	for i := 0; i < nRight; i++ {
		dst.Columns[nLeft+i] = appendColumn(dst.Columns[nLeft+i], c.batch.Columns[i], c.row)
	}
	if len(dst.Columns) > nLeft+nRight {
		dc := dst.Columns[nLeft+nRight].(*engine.Int64Column)
		dc.Values = append(dc.Values, c.distance)
	}
	return out
}
