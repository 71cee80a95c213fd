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

package engine

import "testing"

func TestSchemaSelect(t *testing.T) {
	s := &Schema{Fields: []Field{
		{Name: "contig", Type: String},
		{Name: "start", Type: Int64},
		{Name: "end", Type: Int64},
	}}
	sub, err := s.Select([]string{"end", "contig"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Fields) != 2 || sub.Fields[0].Name != "end" || sub.Fields[1].Name != "contig" {
		t.Fatalf("unexpected selection: %+v", sub.Fields)
	}
	if _, err := s.Select([]string{"nope"}); err == nil {
		t.Fatal("expected error for missing column")
	}
}

func TestRecordBatchAccessors(t *testing.T) {
	b := &RecordBatch{
		Schema: &Schema{Fields: []Field{
			{Name: "contig", Type: String},
			{Name: "start", Type: Int64},
		}},
		Columns: []Column{
			&StringColumn{Values: []string{"chr1", "chr2"}},
			&Int64Column{Values: []int64{10, 20}},
		},
	}
	if b.NumRows() != 2 {
		t.Fatalf("NumRows = %d, want 2", b.NumRows())
	}
	c := b.ColumnByName("start")
	if Int64At(c, 1) != 20 {
		t.Fatalf("Int64At = %d, want 20", Int64At(c, 1))
	}
	if StringAt(b.ColumnByName("contig"), 0) != "chr1" {
		t.Fatal("StringAt mismatch")
	}
	if b.ColumnByName("missing") != nil {
		t.Fatal("expected nil for missing column")
	}
}

func TestFieldWithMetadata(t *testing.T) {
	f := Field{Name: "DP", Type: Int64, Metadata: map[string]string{"vcf.field.number": "1"}}
	f2 := f.WithMetadata(map[string]string{"vcf.field.type": "Integer"})
	if f2.Metadata["vcf.field.number"] != "1" || f2.Metadata["vcf.field.type"] != "Integer" {
		t.Fatalf("merged metadata missing keys: %+v", f2.Metadata)
	}
	if len(f.Metadata) != 1 {
		t.Fatal("original field metadata mutated")
	}
}
