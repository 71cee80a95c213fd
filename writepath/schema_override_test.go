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
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/biodatageeks/bioquery/engine"
)

func plainSchema() *engine.Schema {
	return &engine.Schema{Fields: []engine.Field{
		{Name: "chrom", Type: engine.String},
		{Name: "DP", Type: engine.Int64},
	}}
}

func plainBatch() *engine.RecordBatch {
	return &engine.RecordBatch{
		Schema: plainSchema(),
		Columns: []engine.Column{
			&engine.StringColumn{Values: []string{"chr1"}},
			&engine.Int64Column{Values: []int64{5}},
		},
	}
}

type fixedPlan struct {
	schema  *engine.Schema
	batches []*engine.RecordBatch
}

func (p *fixedPlan) Schema() *engine.Schema    { return p.schema }
func (p *fixedPlan) OutputPartitions() int     { return 1 }
func (p *fixedPlan) Execute(ctx context.Context, partition int) (engine.BatchStream, error) {
	return engine.NewSliceStream(p.batches), nil
}

func TestSchemaOverrideExecInjectsMetadata(t *testing.T) {
	upstream := &fixedPlan{schema: plainSchema(), batches: []*engine.RecordBatch{plainBatch()}}
	override := &engine.Schema{Fields: []engine.Field{
		{Name: "chrom", Type: engine.String},
		{Name: "DP", Type: engine.Int64, Metadata: map[string]string{"vcf.field.type": "Integer"}},
	}}
	exec := NewSchemaOverrideExec(upstream, override, nil)
	if exec.Schema().Fields[1].Metadata["vcf.field.type"] != "Integer" {
		t.Fatal("override schema missing injected metadata")
	}

	rows, err := engine.Collect(context.Background(), exec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d batches, want 1", len(rows))
	}
	if rows[0].Schema.Fields[1].Metadata["vcf.field.type"] != "Integer" {
		t.Fatal("batch not re-stamped with override schema")
	}
}

func TestSchemaOverrideExecFallsBackOnMismatch(t *testing.T) {
	upstream := &fixedPlan{schema: plainSchema(), batches: []*engine.RecordBatch{plainBatch()}}
	override := &engine.Schema{Fields: []engine.Field{
		{Name: "chrom", Type: engine.String},
	}}
	var logBuf bytes.Buffer
	exec := NewSchemaOverrideExec(upstream, override, log.New(&logBuf, "", 0))

	rows, err := engine.Collect(context.Background(), exec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Schema != plainSchema() && len(rows[0].Schema.Fields) != 2 {
		t.Fatalf("expected original 2-field schema on mismatch, got %d fields", len(rows[0].Schema.Fields))
	}
	if logBuf.Len() == 0 {
		t.Fatal("expected a debug log line on schema mismatch")
	}
}
