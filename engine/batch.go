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

// Package engine is the small columnar query core that the domain
// operators in rangeop, quality, pileup, and writepath are built on top
// of. It plays the role the spec treats as an external, already-available
// generic execution framework: record batches, a table/sink streaming
// contract, and a TableProvider/ExecutionPlan split for plugging in custom
// operators.
package engine

import "fmt"

// ColumnType is the set of scalar and nested types a Column can hold.
type ColumnType int

const (
	Int64 ColumnType = iota
	Uint64
	Uint8
	Float64
	String
	Bool
	// Struct and List are nested types (engine/batch.go's Arrow-flavored
	// layout): Struct holds one child column per declared field, List
	// holds a flattened Child column sliced per row by Offsets. A
	// genotypes column (spec.md §4.10's nested multi-sample VCF layout)
	// is a List whose element is a Struct of (sample_id, values), where
	// values is itself a Struct of FORMAT fields.
	Struct
	List
)

func (t ColumnType) String() string {
	switch t {
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Uint8:
		return "uint8"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Struct:
		return "struct"
	case List:
		return "list"
	default:
		return "unknown"
	}
}

// Field describes one column of a Schema, including the string-keyed
// metadata plumbing (vcf.field.*, bio.bam.*) that downstream writers rely
// on to materialize format-specific headers. Children describes the
// nested shape for Struct (one entry per struct field, in order) and
// List (a single entry describing the element type) columns; it is nil
// for scalar columns.
type Field struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Metadata map[string]string
	Children []Field
}

// WithMetadata returns a copy of f with md merged into f.Metadata.
func (f Field) WithMetadata(md map[string]string) Field {
	merged := make(map[string]string, len(f.Metadata)+len(md))
	for k, v := range f.Metadata {
		merged[k] = v
	}
	for k, v := range md {
		merged[k] = v
	}
	f.Metadata = merged
	return f
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field
}

// IndexOf returns the index of the named field, or -1.
func (s *Schema) IndexOf(name string) int {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Select returns a new schema containing only the named fields, in the
// order requested.
func (s *Schema) Select(names []string) (*Schema, error) {
	out := &Schema{Fields: make([]Field, 0, len(names))}
	for _, n := range names {
		i := s.IndexOf(n)
		if i < 0 {
			return nil, fmt.Errorf("column %q not found in schema", n)
		}
		out.Fields = append(out.Fields, s.Fields[i])
	}
	return out, nil
}

// Column is a single typed, nullable vector of values.
type Column interface {
	Len() int
	Type() ColumnType
	// Valid reports whether the value at row i is non-null.
	Valid(i int) bool
}

type Int64Column struct {
	Values []int64
	Valids []bool // nil means all-valid
}

func (c *Int64Column) Len() int          { return len(c.Values) }
func (c *Int64Column) Type() ColumnType  { return Int64 }
func (c *Int64Column) Valid(i int) bool  { return c.Valids == nil || c.Valids[i] }

type Uint64Column struct {
	Values []uint64
	Valids []bool
}

func (c *Uint64Column) Len() int         { return len(c.Values) }
func (c *Uint64Column) Type() ColumnType { return Uint64 }
func (c *Uint64Column) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

type Uint8Column struct {
	Values []uint8
	Valids []bool
}

func (c *Uint8Column) Len() int         { return len(c.Values) }
func (c *Uint8Column) Type() ColumnType { return Uint8 }
func (c *Uint8Column) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

type Float64Column struct {
	Values []float64
	Valids []bool
}

func (c *Float64Column) Len() int         { return len(c.Values) }
func (c *Float64Column) Type() ColumnType { return Float64 }
func (c *Float64Column) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

type StringColumn struct {
	Values []string
	Valids []bool
}

func (c *StringColumn) Len() int         { return len(c.Values) }
func (c *StringColumn) Type() ColumnType { return String }
func (c *StringColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

type BoolColumn struct {
	Values []bool
	Valids []bool
}

func (c *BoolColumn) Len() int         { return len(c.Values) }
func (c *BoolColumn) Type() ColumnType { return Bool }
func (c *BoolColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

// StructColumn is a row-aligned group of named child columns: Columns[i]
// holds the value of Fields[i] for every row, each child the same
// length as the struct itself.
type StructColumn struct {
	Fields  []Field
	Columns []Column
	Valids  []bool
}

func (c *StructColumn) Len() int {
	if len(c.Columns) == 0 {
		return 0
	}
	return c.Columns[0].Len()
}
func (c *StructColumn) Type() ColumnType { return Struct }
func (c *StructColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

// ColumnByName returns the named child column, or nil.
func (c *StructColumn) ColumnByName(name string) Column {
	for i, f := range c.Fields {
		if f.Name == name {
			return c.Columns[i]
		}
	}
	return nil
}

// ListColumn is a variable-length list per row, stored flattened: row i's
// elements are Child[Offsets[i]:Offsets[i+1]]. len(Offsets) == Len()+1.
type ListColumn struct {
	Child   Column
	Offsets []int
	Valids  []bool
}

func (c *ListColumn) Len() int {
	if len(c.Offsets) == 0 {
		return 0
	}
	return len(c.Offsets) - 1
}
func (c *ListColumn) Type() ColumnType { return List }
func (c *ListColumn) Valid(i int) bool { return c.Valids == nil || c.Valids[i] }

// Range returns the [start, end) slice of Child belonging to row i.
func (c *ListColumn) Range(i int) (start, end int) {
	return c.Offsets[i], c.Offsets[i+1]
}

// RecordBatch is a schema plus one equal-length Column per field.
type RecordBatch struct {
	Schema  *Schema
	Columns []Column
}

// NumRows returns the row count of the batch, or 0 if it has no columns.
func (b *RecordBatch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// ColumnByName returns the named column, or nil.
func (b *RecordBatch) ColumnByName(name string) Column {
	i := b.Schema.IndexOf(name)
	if i < 0 {
		return nil
	}
	return b.Columns[i]
}

// Int64At returns the int64 value at (col, row), coercing from any
// integer-typed column. It panics on a type mismatch, mirroring the
// teacher's downcast-and-panic access pattern for internal invariants.
func Int64At(c Column, i int) int64 {
	switch v := c.(type) {
	case *Int64Column:
		return v.Values[i]
	case *Uint64Column:
		return int64(v.Values[i])
	case *Uint8Column:
		return int64(v.Values[i])
	default:
		panic(fmt.Sprintf("Int64At: unsupported column type %s", c.Type()))
	}
}

// StringAt returns the string value at (col, row).
func StringAt(c Column, i int) string {
	sc, ok := c.(*StringColumn)
	if !ok {
		panic(fmt.Sprintf("StringAt: unsupported column type %s", c.Type()))
	}
	return sc.Values[i]
}
