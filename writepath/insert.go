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

package writepath

import (
	"context"
	"log"

	"github.com/biodatageeks/bioquery/engine"
)

// Writer is what every format adapter (VCFWriter, samFamilyWriter,
// FASTQWriter) implements: consume a BatchStream to completion and
// report how many rows were written, the insert_into row-count contract
// (spec.md §4.10/§6).
type Writer interface {
	WriteBatches(stream engine.BatchStream) (int64, error)
}

// SchemaOverrider is implemented by writers (VCFWriter, samFamilyWriter)
// that stamp format-specific metadata (vcf.field.*, bio.bam.*) onto the
// schema they expect to see, so InsertInto can run the upstream plan
// through a SchemaOverrideExec before handing it to the writer.
type SchemaOverrider interface {
	OverrideSchema(schema *engine.Schema) *engine.Schema
}

// InsertInto drives src's full output, partition by partition, into w,
// summing each partition's reported row count. When w also implements
// SchemaOverrider, src's plan is wrapped in a SchemaOverrideExec first,
// so the writer's header/tag logic sees its own declared metadata
// (vcf.field.number/type/description, bio.bam.tag_type/tag_name)
// instead of src's bare schema.
func InsertInto(ctx context.Context, src engine.TableProvider, w Writer) (int64, error) {
	plan, err := src.Scan(ctx, nil, 0)
	if err != nil {
		return 0, err
	}
	if so, ok := w.(SchemaOverrider); ok {
		override := so.OverrideSchema(plan.Schema())
		plan = NewSchemaOverrideExec(plan, override, log.Default())
	}
	var total int64
	for i := 0; i < plan.OutputPartitions(); i++ {
		stream, err := plan.Execute(ctx, i)
		if err != nil {
			return total, err
		}
		n, err := w.WriteBatches(stream)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// LogicalRowCount returns b's reported row count: the sum of its "count"
// column when present (a batch of pre-aggregated rows, like a quality
// histogram's (pos,score,count) triples, represents more logical rows
// than engine.RecordBatch.NumRows() reports), falling back to NumRows()
// otherwise.
func LogicalRowCount(b *engine.RecordBatch) int64 {
	col := b.ColumnByName("count")
	if col == nil {
		return int64(b.NumRows())
	}
	uc, ok := col.(*engine.Uint64Column)
	if !ok {
		return int64(b.NumRows())
	}
	var total int64
	for _, v := range uc.Values {
		total += int64(v)
	}
	return total
}

// WriteTable streams t's contents through dst via an in-memory
// single-partition bridge (engine.CollectorSink) and returns dst's
// reported row count, for callers driving an engine.Table (rather than
// a raw ExecutionPlan partition) into the write path.
func WriteTable(t engine.Table, dst Writer) (int64, error) {
	sink := &engine.CollectorSink{}
	if err := t.WriteChunks(sink, 1); err != nil {
		return 0, err
	}
	stream := engine.NewSliceStream(sink.Batches)
	return dst.WriteBatches(stream)
}
