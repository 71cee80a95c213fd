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

// mergedRun is one run of merged input intervals on a single contig.
type mergedRun struct {
	contig string
	start  int64
	end    int64
	count  uint64
}

// mergeRuns groups ivs (already loaded with their contig) into maximal
// runs of overlapping or touching intervals per contig, following the
// same per-contig sweep shape the count/coverage path uses but walking
// intervals in start order rather than querying a tree, since merge has
// no probe side to index against. clusterOf, if non-nil, is filled with
// the run index each input interval (in its original order) was
// assigned to.
func mergeRuns(ivs []queryIv, filter session.FilterOp, clusterOf []int) []mergedRun {
	byContig := map[string][]int{}
	for i, iv := range ivs {
		byContig[iv.contig] = append(byContig[iv.contig], i)
	}

	var runs []mergedRun
	contigs := make([]string, 0, len(byContig))
	for c := range byContig {
		contigs = append(contigs, c)
	}
	sort.Strings(contigs)

	for _, contig := range contigs {
		idxs := byContig[contig]
		sort.Slice(idxs, func(a, b int) bool {
			if ivs[idxs[a]].start != ivs[idxs[b]].start {
				return ivs[idxs[a]].start < ivs[idxs[b]].start
			}
			return ivs[idxs[a]].end < ivs[idxs[b]].end
		})

		var cur *mergedRun
		for _, i := range idxs {
			iv := ivs[i]
			if cur != nil && mergeable(filter, cur.end, iv.start) {
				if iv.end > cur.end {
					cur.end = iv.end
				}
				cur.count++
			} else {
				if cur != nil {
					runs = append(runs, *cur)
				}
				cur = &mergedRun{contig: contig, start: iv.start, end: iv.end, count: 1}
			}
			if clusterOf != nil {
				clusterOf[i] = len(runs)
			}
		}
		if cur != nil {
			runs = append(runs, *cur)
		}
	}
	return runs
}

// mergeable reports whether an interval starting at nextStart should be
// folded into a run whose current end is runEnd: under Weak, touching
// counts as mergeable (runEnd+1 >= nextStart); under Strict, only a true
// overlap does (runEnd >= nextStart).
func mergeable(filter session.FilterOp, runEnd, nextStart int64) bool {
	if filter.Resolve() == session.Strict {
		return runEnd >= nextStart
	}
	return runEnd+1 >= nextStart
}

func loadQueryIvs(batches []*engine.RecordBatch, cols session.Columns) []queryIv {
	var out []queryIv
	for _, b := range batches {
		cc := b.ColumnByName(cols.Contig)
		sc := b.ColumnByName(cols.Start)
		ec := b.ColumnByName(cols.End)
		for row := 0; row < b.NumRows(); row++ {
			out = append(out, queryIv{
				contig: engine.StringAt(cc, row),
				start:  engine.Int64At(sc, row),
				end:    engine.Int64At(ec, row),
			})
		}
	}
	return out
}

func runsSchema() *engine.Schema {
	return &engine.Schema{Fields: []engine.Field{
		{Name: "contig", Type: engine.String},
		{Name: "start", Type: engine.Int64},
		{Name: "end", Type: engine.Int64},
		{Name: "n_intervals", Type: engine.Uint64},
	}}
}

func runsToBatch(schema *engine.Schema, runs []mergedRun) *engine.RecordBatch {
	b := newOutputBatch(schema)
	contigCol := b.Columns[0].(*engine.StringColumn)
	startCol := b.Columns[1].(*engine.Int64Column)
	endCol := b.Columns[2].(*engine.Int64Column)
	cntCol := b.Columns[3].(*engine.Uint64Column)
	for _, r := range runs {
		contigCol.Values = append(contigCol.Values, r.contig)
		startCol.Values = append(startCol.Values, r.start)
		endCol.Values = append(endCol.Values, r.end)
		cntCol.Values = append(cntCol.Values, r.count)
	}
	return b
}

// MergeProvider collapses overlapping/touching same-contig intervals of
// a single table into maximal runs (spec.md §4.5).
type MergeProvider struct {
	src    engine.TableProvider
	opts   session.RangeOptions
	schema *engine.Schema
}

func NewMergeProvider(src engine.TableProvider, opts session.RangeOptions) *MergeProvider {
	return &MergeProvider{src: src, opts: opts, schema: runsSchema()}
}

func (p *MergeProvider) Schema() *engine.Schema { return p.schema }

func (p *MergeProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	batches, err := materialize(ctx, p.src)
	if err != nil {
		return nil, err
	}
	cols := p.opts.Columns1.Resolve()
	ivs := loadQueryIvs(batches, cols)
	mk := func(ctx context.Context) (engine.BatchStream, error) {
		runs := mergeRuns(ivs, p.opts.FilterOp, nil)
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		return engine.NewSliceStream([]*engine.RecordBatch{runsToBatch(p.schema, runs)}), nil
	}
	return engine.NewSinglePartitionPlan(p.schema, mk), nil
}

// ClusterProvider annotates every input row with the index of the
// overlap-run it belongs to, without collapsing rows (spec.md §4.5).
type ClusterProvider struct {
	src    engine.TableProvider
	opts   session.RangeOptions
	schema *engine.Schema
}

func NewClusterProvider(src engine.TableProvider, opts session.RangeOptions) *ClusterProvider {
	schema := &engine.Schema{Fields: append(append([]engine.Field{}, src.Schema().Fields...), engine.Field{Name: "cluster", Type: engine.Uint64})}
	return &ClusterProvider{src: src, opts: opts, schema: schema}
}

func (p *ClusterProvider) Schema() *engine.Schema { return p.schema }

func (p *ClusterProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	batches, err := materialize(ctx, p.src)
	if err != nil {
		return nil, err
	}
	cols := p.opts.Columns1.Resolve()
	ivs := loadQueryIvs(batches, cols)
	clusterOf := make([]int, len(ivs))

	mk := func(ctx context.Context) (engine.BatchStream, error) {
		mergeRuns(ivs, p.opts.FilterOp, clusterOf)
		var out []*engine.RecordBatch
		i := 0
		n := 0
		for _, b := range batches {
			dst := newOutputBatch(p.schema)
			nSrc := len(b.Columns)
			for row := 0; row < b.NumRows(); row++ {
				if limit > 0 && n >= limit {
					break
				}
				for c := 0; c < nSrc; c++ {
					dst.Columns[c] = appendColumn(dst.Columns[c], b.Columns[c], row)
				}
				clusterCol := dst.Columns[nSrc].(*engine.Uint64Column)
				clusterCol.Values = append(clusterCol.Values, uint64(clusterOf[i]))
				i++
				n++
			}
			out = append(out, dst)
			if limit > 0 && n >= limit {
				break
			}
		}
		return engine.NewSliceStream(out), nil
	}
	return engine.NewSinglePartitionPlan(p.schema, mk), nil
}

// ComplementProvider emits the per-contig gaps not covered by src, bounded
// by view: "given a view table defining the total genomic extent per
// contig ..., emit the per-contig gaps not covered by the input. The
// sweep is merge-then-subtract-from-view" (spec.md §4.5). view supplies
// one (contig,start,end) row per contig naming that contig's full
// extent, so the gap before the first run and after the last run of a
// contig are produced along with the internal gaps — required for the
// merge/complement/complement round-trip invariant (spec.md §8) to hold.
type ComplementProvider struct {
	src, view engine.TableProvider
	opts      session.RangeOptions
	schema    *engine.Schema
}

func NewComplementProvider(src, view engine.TableProvider, opts session.RangeOptions) *ComplementProvider {
	return &ComplementProvider{src: src, view: view, opts: opts, schema: &engine.Schema{Fields: []engine.Field{
		{Name: "contig", Type: engine.String},
		{Name: "start", Type: engine.Int64},
		{Name: "end", Type: engine.Int64},
	}}}
}

func (p *ComplementProvider) Schema() *engine.Schema { return p.schema }

func (p *ComplementProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	batches, err := materialize(ctx, p.src)
	if err != nil {
		return nil, err
	}
	cols := p.opts.Columns1.Resolve()
	ivs := loadQueryIvs(batches, cols)

	viewBatches, err := materialize(ctx, p.view)
	if err != nil {
		return nil, err
	}
	viewCols := p.opts.ViewColumns.Resolve()
	viewIvs := loadQueryIvs(viewBatches, viewCols)

	mk := func(ctx context.Context) (engine.BatchStream, error) {
		runs := mergeRuns(ivs, session.Weak, nil)
		runsByContig := map[string][]mergedRun{}
		for _, r := range runs {
			runsByContig[r.contig] = append(runsByContig[r.contig], r)
		}

		b := newOutputBatch(p.schema)
		contigCol := b.Columns[0].(*engine.StringColumn)
		startCol := b.Columns[1].(*engine.Int64Column)
		endCol := b.Columns[2].(*engine.Int64Column)
		n := 0
		emit := func(contig string, start, end int64) bool {
			if end < start {
				return true
			}
			if limit > 0 && n >= limit {
				return false
			}
			contigCol.Values = append(contigCol.Values, contig)
			startCol.Values = append(startCol.Values, start)
			endCol.Values = append(endCol.Values, end)
			n++
			return true
		}

		for _, v := range viewIvs {
			cursor := v.start
			for _, r := range runsByContig[v.contig] {
				if limit > 0 && n >= limit {
					break
				}
				if !emit(v.contig, cursor, r.start-1) {
					break
				}
				if r.end+1 > cursor {
					cursor = r.end + 1
				}
			}
			if limit > 0 && n >= limit {
				break
			}
			emit(v.contig, cursor, v.end)
		}
		return engine.NewSliceStream([]*engine.RecordBatch{b}), nil
	}
	return engine.NewSinglePartitionPlan(p.schema, mk), nil
}

// SubtractProvider emits the portions of each left interval not covered
// by any right-side interval on the same contig (spec.md §4.5).
type SubtractProvider struct {
	left, right engine.TableProvider
	opts        session.RangeOptions
	schema      *engine.Schema
}

func NewSubtractProvider(left, right engine.TableProvider, opts session.RangeOptions) *SubtractProvider {
	return &SubtractProvider{left: left, right: right, opts: opts, schema: &engine.Schema{Fields: []engine.Field{
		{Name: "contig", Type: engine.String},
		{Name: "start", Type: engine.Int64},
		{Name: "end", Type: engine.Int64},
	}}}
}

func (p *SubtractProvider) Schema() *engine.Schema { return p.schema }

func (p *SubtractProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	cols1 := p.opts.Columns1.Resolve()
	cols2 := p.opts.Columns2.Resolve()

	leftBatches, err := materialize(ctx, p.left)
	if err != nil {
		return nil, err
	}
	rightBatches, err := materialize(ctx, p.right)
	if err != nil {
		return nil, err
	}
	leftIvs := loadQueryIvs(leftBatches, cols1)
	rightIvs := loadQueryIvs(rightBatches, cols2)
	rightRuns := mergeRuns(rightIvs, session.Weak, nil)

	rightByContig := map[string][]mergedRun{}
	for _, r := range rightRuns {
		rightByContig[r.contig] = append(rightByContig[r.contig], r)
	}

	mk := func(ctx context.Context) (engine.BatchStream, error) {
		b := newOutputBatch(p.schema)
		contigCol := b.Columns[0].(*engine.StringColumn)
		startCol := b.Columns[1].(*engine.Int64Column)
		endCol := b.Columns[2].(*engine.Int64Column)
		n := 0
		for _, l := range leftIvs {
			if limit > 0 && n >= limit {
				break
			}
			covering := rightByContig[l.contig]
			cursor := l.start
			for _, r := range covering {
				if r.end < l.start || r.start > l.end {
					continue
				}
				if r.start > cursor {
					hi := r.start - 1
					if hi > l.end {
						hi = l.end
					}
					contigCol.Values = append(contigCol.Values, l.contig)
					startCol.Values = append(startCol.Values, cursor)
					endCol.Values = append(endCol.Values, hi)
					n++
				}
				if r.end+1 > cursor {
					cursor = r.end + 1
				}
			}
			if cursor <= l.end {
				contigCol.Values = append(contigCol.Values, l.contig)
				startCol.Values = append(startCol.Values, cursor)
				endCol.Values = append(endCol.Values, l.end)
				n++
			}
		}
		return engine.NewSliceStream([]*engine.RecordBatch{b}), nil
	}
	return engine.NewSinglePartitionPlan(p.schema, mk), nil
}
