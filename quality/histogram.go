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

// Package quality implements the base-quality histogram explode and the
// quartile accumulator it feeds, grounded on the source's
// quality_udaf.rs / quantile_stats.rs (reachable from
// _examples/original_source/) for exact algorithm semantics, and on the
// teacher's plan/vm split for the provider/plan shape.
package quality

import (
	"context"
	"sort"

	"github.com/biodatageeks/bioquery/engine"
)

// NumScores is the number of ASCII-Phred+33 score slots (0..93) a position's
// quality byte can decode to.
const NumScores = 94

// HistogramSchema is the output schema of HistogramProvider: one row per
// observed (position,score) pair with its count.
func HistogramSchema() *engine.Schema {
	return &engine.Schema{Fields: []engine.Field{
		{Name: "pos", Type: engine.Uint64},
		{Name: "score", Type: engine.Uint8},
		{Name: "count", Type: engine.Uint64},
	}}
}

// HistogramProvider explodes a table's quality-string column into
// (pos,score,count) rows, round-robin partitioned across target
// partitions so that HistogramProvider.Scan's output can be consumed by
// a partitioned quartile aggregation downstream (spec.md §4.7).
type HistogramProvider struct {
	src        engine.TableProvider
	column     string
	partitions int
}

// NewHistogramProvider builds a HistogramProvider reading column from
// src, fanning its batches round-robin across partitions partitions.
func NewHistogramProvider(src engine.TableProvider, column string, partitions int) *HistogramProvider {
	if partitions <= 0 {
		partitions = 1
	}
	return &HistogramProvider{src: src, column: column, partitions: partitions}
}

func (p *HistogramProvider) Schema() *engine.Schema { return HistogramSchema() }

func (p *HistogramProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	batches, err := collectSource(ctx, p.src)
	if err != nil {
		return nil, err
	}

	schema := HistogramSchema()
	n := p.partitions
	mk := func(ctx context.Context, partition int) (engine.BatchStream, error) {
		counts := make(map[uint64]*[NumScores]uint64)
		emitted := 0
		for bi := partition; bi < len(batches); bi += n {
			col := batches[bi].ColumnByName(p.column)
			if col == nil {
				continue
			}
			sc, ok := col.(*engine.StringColumn)
			if !ok {
				continue
			}
			for row, s := range sc.Values {
				if sc.Valids != nil && !sc.Valids[row] {
					continue
				}
				for pos := 0; pos < len(s); pos++ {
					b := s[pos]
					if b < 33 {
						continue
					}
					score := uint64(b) - 33
					if score >= NumScores {
						continue
					}
					h, ok := counts[uint64(pos)]
					if !ok {
						h = &[NumScores]uint64{}
						counts[uint64(pos)] = h
					}
					h[score]++
				}
			}
		}

		positions := make([]uint64, 0, len(counts))
		for pos := range counts {
			positions = append(positions, pos)
		}
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

		out := newHistogramBatch(schema)
		posCol := out.Columns[0].(*engine.Uint64Column)
		scoreCol := out.Columns[1].(*engine.Uint8Column)
		countCol := out.Columns[2].(*engine.Uint64Column)
	emit:
		for _, pos := range positions {
			h := counts[pos]
			for score := 0; score < NumScores; score++ {
				if h[score] == 0 {
					continue
				}
				if limit > 0 && emitted >= limit {
					break emit
				}
				posCol.Values = append(posCol.Values, pos)
				scoreCol.Values = append(scoreCol.Values, uint8(score))
				countCol.Values = append(countCol.Values, h[score])
				emitted++
			}
		}
		return engine.NewSliceStream([]*engine.RecordBatch{out}), nil
	}
	return engine.NewMultiPartitionPlan(schema, n, mk), nil
}

func newHistogramBatch(schema *engine.Schema) *engine.RecordBatch {
	return &engine.RecordBatch{
		Schema: schema,
		Columns: []engine.Column{
			&engine.Uint64Column{},
			&engine.Uint8Column{},
			&engine.Uint64Column{},
		},
	}
}

func collectSource(ctx context.Context, p engine.TableProvider) ([]*engine.RecordBatch, error) {
	plan, err := p.Scan(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	return engine.Collect(ctx, plan, plan.OutputPartitions())
}
