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

	"github.com/biodatageeks/bioquery/engine"
)

// fixed FASTQ columns, matching grailbio-bio/encoding/fastq.Read's
// (ID,Seq,Unk,Qual) four lines, renamed to bioquery's schema convention.
const (
	fastqName        = "name"
	fastqDescription = "description"
	fastqSequence    = "sequence"
	fastqQuality     = "quality_scores"
)

// FASTQWriter serializes record batches as FASTQ text, one read per row,
// grounded on grailbio-bio/encoding/fastq.Writer's four-line-per-read
// shape (name/description as the "@id description" header line,
// sequence, a "+" separator, quality_scores).
type FASTQWriter struct {
	w           io.Writer
	rowsWritten int64
}

// NewFASTQWriter wraps w as a FASTQWriter.
func NewFASTQWriter(w io.Writer) *FASTQWriter {
	return &FASTQWriter{w: w}
}

// OverrideSchema is a no-op for FASTQ: its four columns carry no
// format-specific field metadata the way VCF/BAM do.
func (fw *FASTQWriter) OverrideSchema(schema *engine.Schema) *engine.Schema { return schema }

// WriteBatches consumes stream to completion, writing one FASTQ record
// per row, and returns the total row count written.
func (fw *FASTQWriter) WriteBatches(stream engine.BatchStream) (int64, error) {
	for {
		b, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fw.rowsWritten, err
		}
		if err := fw.writeBatch(b); err != nil {
			return fw.rowsWritten, err
		}
	}
	return fw.rowsWritten, nil
}

func (fw *FASTQWriter) writeBatch(b *engine.RecordBatch) error {
	nameCol := b.ColumnByName(fastqName)
	seqCol := b.ColumnByName(fastqSequence)
	qualCol := b.ColumnByName(fastqQuality)
	if nameCol == nil || seqCol == nil || qualCol == nil {
		return fmt.Errorf("writepath: fastq batch missing name/sequence/quality_scores columns")
	}
	descCol := b.ColumnByName(fastqDescription)

	for row := 0; row < b.NumRows(); row++ {
		header := "@" + engine.StringAt(nameCol, row)
		if descCol != nil {
			if desc := engine.StringAt(descCol, row); desc != "" {
				header += " " + desc
			}
		}
		if _, err := fmt.Fprintf(fw.w, "%s\n%s\n+\n%s\n", header, engine.StringAt(seqCol, row), engine.StringAt(qualCol, row)); err != nil {
			return err
		}
		fw.rowsWritten++
	}
	return nil
}
