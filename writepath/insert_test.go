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
	"strings"
	"testing"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

type fixedTableProvider struct {
	schema *engine.Schema
	plan   engine.ExecutionPlan
}

func (p *fixedTableProvider) Schema() *engine.Schema { return p.schema }
func (p *fixedTableProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	return p.plan, nil
}

func TestInsertIntoSumsRowCounts(t *testing.T) {
	schema := &engine.Schema{Fields: []engine.Field{
		{Name: "name", Type: engine.String},
		{Name: "description", Type: engine.String},
		{Name: "sequence", Type: engine.String},
		{Name: "quality_scores", Type: engine.String},
	}}
	batch := &engine.RecordBatch{
		Schema: schema,
		Columns: []engine.Column{
			&engine.StringColumn{Values: []string{"a", "b", "c"}},
			&engine.StringColumn{Values: []string{"", "", ""}},
			&engine.StringColumn{Values: []string{"A", "C", "G"}},
			&engine.StringColumn{Values: []string{"I", "I", "I"}},
		},
	}
	plan := &fixedPlan{schema: schema, batches: []*engine.RecordBatch{batch}}
	src := &fixedTableProvider{schema: schema, plan: plan}

	var buf bytes.Buffer
	fw := NewFASTQWriter(&buf)
	n, err := InsertInto(context.Background(), src, fw)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("InsertInto returned %d, want 3", n)
	}
}

func TestLogicalRowCountSumsCountColumn(t *testing.T) {
	schema := &engine.Schema{Fields: []engine.Field{
		{Name: "pos", Type: engine.Uint64},
		{Name: "count", Type: engine.Uint64},
	}}
	b := &engine.RecordBatch{
		Schema: schema,
		Columns: []engine.Column{
			&engine.Uint64Column{Values: []uint64{0, 1}},
			&engine.Uint64Column{Values: []uint64{5, 7}},
		},
	}
	if got := LogicalRowCount(b); got != 12 {
		t.Fatalf("LogicalRowCount = %d, want 12", got)
	}
}

func TestLogicalRowCountFallsBackToNumRows(t *testing.T) {
	b := &engine.RecordBatch{
		Schema:  plainSchema(),
		Columns: []engine.Column{&engine.StringColumn{Values: []string{"a", "b"}}, &engine.Int64Column{Values: []int64{1, 2}}},
	}
	if got := LogicalRowCount(b); got != 2 {
		t.Fatalf("LogicalRowCount = %d, want 2 (NumRows fallback)", got)
	}
}

func TestWriteTableViaCollectorSink(t *testing.T) {
	schema := &engine.Schema{Fields: []engine.Field{
		{Name: "name", Type: engine.String},
		{Name: "description", Type: engine.String},
		{Name: "sequence", Type: engine.String},
		{Name: "quality_scores", Type: engine.String},
	}}
	batch := &engine.RecordBatch{
		Schema: schema,
		Columns: []engine.Column{
			&engine.StringColumn{Values: []string{"r1"}},
			&engine.StringColumn{Values: []string{""}},
			&engine.StringColumn{Values: []string{"ACGT"}},
			&engine.StringColumn{Values: []string{"IIII"}},
		},
	}
	table := engine.NewMemTable([]*engine.RecordBatch{batch})
	var buf bytes.Buffer
	fw := NewFASTQWriter(&buf)
	n, err := WriteTable(table, fw)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("WriteTable returned %d, want 1", n)
	}
}

func TestInsertIntoAppliesWriterSchemaOverride(t *testing.T) {
	schema := &engine.Schema{Fields: []engine.Field{
		{Name: "chrom", Type: engine.String},
		{Name: "pos", Type: engine.Int64},
		{Name: "ref", Type: engine.String},
		{Name: "alt", Type: engine.String},
		{Name: "DP", Type: engine.Int64},
	}}
	batch := &engine.RecordBatch{
		Schema: schema,
		Columns: []engine.Column{
			&engine.StringColumn{Values: []string{"chr1"}},
			&engine.Int64Column{Values: []int64{9}},
			&engine.StringColumn{Values: []string{"A"}},
			&engine.StringColumn{Values: []string{"T"}},
			&engine.Int64Column{Values: []int64{12}},
		},
	}
	plan := &fixedPlan{schema: schema, batches: []*engine.RecordBatch{batch}}
	src := &fixedTableProvider{schema: schema, plan: plan}

	opts := session.WriteOptions{
		Format:           session.FormatVCF,
		InfoMetadataJSON: `{"DP":{"number":"1","type":"Integer","description":"depth"}}`,
	}
	var buf bytes.Buffer
	vw, err := NewVCFWriter(&buf, opts)
	if err != nil {
		t.Fatal(err)
	}

	n, err := InsertInto(context.Background(), src, vw)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("InsertInto returned %d, want 1", n)
	}
	if !strings.Contains(buf.String(), "DP=12") {
		t.Fatalf("expected INFO DP=12 in output:\n%s", buf.String())
	}
}

var _ = session.WriteOptions{}
