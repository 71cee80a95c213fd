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
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

const (
	samQName = "qname"
	samFlags = "flags"
	samChrom = "chrom"
	samStart = "start"
	samMapQ  = "mapping_quality"
	samCigar = "cigar"
	samSeq   = "seq"
	samQual  = "quality_scores"
)

// samFamilyWriter is the shared SAM-text serializer behind BAMWriter,
// SAMWriter, and CRAMWriter: bioquery has no bgzip/BAI-capable BAM
// encoder dependency in the retrieval pack (biogo/hts is wired only for
// its SAM flag constants, not as an encoder), so all three formats emit
// the same plain SAM text; the only difference is that a CRAM header
// also records opts.ReferencePath when it is set.
type samFamilyWriter struct {
	w        io.Writer
	opts     session.WriteOptions
	format   session.OutputFormat
	pgID     string
	tagOrder []string

	headerWritten bool
	rowsWritten   int64
}

func newSAMFamilyWriter(w io.Writer, opts session.WriteOptions, format session.OutputFormat) *samFamilyWriter {
	tagOrder := make([]string, 0, len(opts.TagFields))
	for tag := range opts.TagFields {
		tagOrder = append(tagOrder, tag)
	}
	sort.Strings(tagOrder)
	return &samFamilyWriter{w: w, opts: opts, format: format, pgID: uuid.New().String(), tagOrder: tagOrder}
}

// NewBAMWriter wraps w as a BAM-format writer adapter.
func NewBAMWriter(w io.Writer, opts session.WriteOptions) *samFamilyWriter {
	return newSAMFamilyWriter(w, opts, session.FormatBAM)
}

// NewSAMWriter wraps w as a SAM-format writer adapter.
func NewSAMWriter(w io.Writer, opts session.WriteOptions) *samFamilyWriter {
	return newSAMFamilyWriter(w, opts, session.FormatSAM)
}

// NewCRAMWriter wraps w as a CRAM-format writer adapter. opts.ReferencePath,
// when set, is recorded in the header; bioquery does not do reference-based
// CRAM compression (no CRAM codec dependency in the pack), so CRAM output
// is the same SAM text as BAMWriter/SAMWriter produce.
func NewCRAMWriter(w io.Writer, opts session.WriteOptions) *samFamilyWriter {
	return newSAMFamilyWriter(w, opts, session.FormatCRAM)
}

// OverrideSchema returns schema with bio.bam.tag_type/bio.bam.tag_name
// metadata injected on every column opts.TagFields declares as a tag.
func (sw *samFamilyWriter) OverrideSchema(schema *engine.Schema) *engine.Schema {
	out := &engine.Schema{Fields: make([]engine.Field, len(schema.Fields))}
	for i, f := range schema.Fields {
		if tagType, ok := sw.opts.TagFields[f.Name]; ok {
			f = f.WithMetadata(map[string]string{
				"bio.bam.tag_type": tagType,
				"bio.bam.tag_name": f.Name,
			})
		}
		out.Fields[i] = f
	}
	return out
}

func (sw *samFamilyWriter) writeHeader() error {
	if _, err := fmt.Fprintf(sw.w, "@HD\tVN:1.6\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "@PG\tID:%s\tPN:bioquery\n", sw.pgID); err != nil {
		return err
	}
	for key, val := range parseHeaderMetadata(sw.opts.HeaderMetadataJSON) {
		if _, err := fmt.Fprintf(sw.w, "@CO\tbio.bam.%s:%s\n", key, val); err != nil {
			return err
		}
	}
	if sw.format == session.FormatCRAM && sw.opts.ReferencePath != "" {
		if _, err := fmt.Fprintf(sw.w, "@CO\tbio.bam.reference_path:%s\n", sw.opts.ReferencePath); err != nil {
			return err
		}
	}
	sw.headerWritten = true
	return nil
}

// WriteBatches consumes stream to completion, writing one SAM text
// record per row, and returns the total row count written. When
// opts.SortOnWrite is set, all rows are buffered and sorted by
// (chrom,start) before being written.
func (sw *samFamilyWriter) WriteBatches(stream engine.BatchStream) (int64, error) {
	if !sw.headerWritten {
		if err := sw.writeHeader(); err != nil {
			return 0, err
		}
	}

	var batches []*engine.RecordBatch
	for {
		b, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sw.rowsWritten, err
		}
		batches = append(batches, b)
	}

	if sw.opts.SortOnWrite {
		batches = sortBatchesByChromStart(batches)
	}
	for _, b := range batches {
		if err := sw.writeBatch(b); err != nil {
			return sw.rowsWritten, err
		}
	}
	return sw.rowsWritten, nil
}

func (sw *samFamilyWriter) writeBatch(b *engine.RecordBatch) error {
	chromCol := b.ColumnByName(samChrom)
	startCol := b.ColumnByName(samStart)
	if chromCol == nil || startCol == nil {
		return fmt.Errorf("writepath: sam-family batch missing chrom/start columns")
	}
	qnameCol := b.ColumnByName(samQName)
	flagsCol := b.ColumnByName(samFlags)
	mapqCol := b.ColumnByName(samMapQ)
	cigarCol := b.ColumnByName(samCigar)
	seqCol := b.ColumnByName(samSeq)
	qualCol := b.ColumnByName(samQual)

	for row := 0; row < b.NumRows(); row++ {
		qname, flags, mapq, cigar, seq, qual := "*", int64(0), int64(0), "*", "*", "*"
		if qnameCol != nil {
			qname = engine.StringAt(qnameCol, row)
		}
		if flagsCol != nil {
			flags = engine.Int64At(flagsCol, row)
		}
		if mapqCol != nil {
			mapq = engine.Int64At(mapqCol, row)
		}
		if cigarCol != nil {
			cigar = engine.StringAt(cigarCol, row)
		}
		if seqCol != nil {
			seq = engine.StringAt(seqCol, row)
		}
		if qualCol != nil {
			qual = engine.StringAt(qualCol, row)
		}

		fields := []string{
			qname,
			strconv.FormatInt(flags, 10),
			engine.StringAt(chromCol, row),
			strconv.FormatInt(engine.Int64At(startCol, row)+1, 10),
			strconv.FormatInt(mapq, 10),
			cigar,
			"*",
			"0",
			"0",
			seq,
			qual,
		}
		for _, tag := range sw.tagOrder {
			col := b.ColumnByName(tag)
			if col == nil {
				continue
			}
			fields = append(fields, fmt.Sprintf("%s:%s:%s", tag, sw.opts.TagFields[tag], valueAsString(col, row)))
		}

		if _, err := fmt.Fprintf(sw.w, "%s\n", strings.Join(fields, "\t")); err != nil {
			return err
		}
		sw.rowsWritten++
	}
	return nil
}

func parseHeaderMetadata(js string) map[string]string {
	m, _ := parseStringMap(js)
	return m
}

func sortBatchesByChromStart(batches []*engine.RecordBatch) []*engine.RecordBatch {
	type rowRef struct {
		chrom string
		start int64
		batch *engine.RecordBatch
		row   int
	}
	var rows []rowRef
	for _, b := range batches {
		chromCol := b.ColumnByName(samChrom)
		startCol := b.ColumnByName(samStart)
		if chromCol == nil || startCol == nil {
			continue
		}
		for row := 0; row < b.NumRows(); row++ {
			rows = append(rows, rowRef{engine.StringAt(chromCol, row), engine.Int64At(startCol, row), b, row})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].chrom != rows[j].chrom {
			return rows[i].chrom < rows[j].chrom
		}
		return rows[i].start < rows[j].start
	})

	out := make([]*engine.RecordBatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, singleRowBatch(r.batch, r.row))
	}
	return out
}

// singleRowBatch slices one row of src out into its own one-row batch,
// preserving column types.
func singleRowBatch(src *engine.RecordBatch, row int) *engine.RecordBatch {
	cols := make([]engine.Column, len(src.Columns))
	for i, c := range src.Columns {
		cols[i] = sliceColumn(c, row)
	}
	return &engine.RecordBatch{Schema: src.Schema, Columns: cols}
}

func sliceColumn(c engine.Column, row int) engine.Column {
	switch v := c.(type) {
	case *engine.Int64Column:
		return &engine.Int64Column{Values: []int64{v.Values[row]}}
	case *engine.Uint64Column:
		return &engine.Uint64Column{Values: []uint64{v.Values[row]}}
	case *engine.Uint8Column:
		return &engine.Uint8Column{Values: []uint8{v.Values[row]}}
	case *engine.Float64Column:
		return &engine.Float64Column{Values: []float64{v.Values[row]}}
	case *engine.StringColumn:
		return &engine.StringColumn{Values: []string{v.Values[row]}}
	case *engine.BoolColumn:
		return &engine.BoolColumn{Values: []bool{v.Values[row]}}
	default:
		panic(fmt.Sprintf("writepath: sliceColumn: unsupported column type %s", c.Type()))
	}
}
