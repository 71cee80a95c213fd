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

// Package pileup implements the depth/pileup operator: a DepthTableProvider
// wrapping an alignment table and a PileupExec that spreads each
// alignment's CIGAR-consumed reference span into per-contig coverage,
// grounded on grailbio-bio/pileup/common.go's use of
// github.com/biogo/hts/sam for flag and strand handling (spec.md §4.9).
package pileup

import (
	"context"
	"sort"

	"github.com/biogo/hts/sam"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

// DefaultFilterFlag mirrors session.DefaultFilterFlag: unmapped,
// secondary, qcfail, duplicate excluded by default.
const DefaultFilterFlag = sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate

// alignmentColumns names the five columns DepthTableProvider projects
// from its source (spec.md §4.9): chrom, start, flags, cigar, mapping_quality.
type alignmentColumns struct {
	Chrom  string
	Start  string
	Flags  string
	Cigar  string
	MapQ   string
}

var defaultAlignmentColumns = alignmentColumns{
	Chrom: "chrom", Start: "start", Flags: "flags", Cigar: "cigar", MapQ: "mapping_quality",
}

// BlockSchema is the RLE coverage-block output schema.
func BlockSchema() *engine.Schema {
	return &engine.Schema{Fields: []engine.Field{
		{Name: "contig", Type: engine.String},
		{Name: "start", Type: engine.Int64},
		{Name: "end", Type: engine.Int64},
		{Name: "depth", Type: engine.Uint64},
	}}
}

// PerBaseSchema is the per-base depth output schema.
func PerBaseSchema() *engine.Schema {
	return &engine.Schema{Fields: []engine.Field{
		{Name: "contig", Type: engine.String},
		{Name: "pos", Type: engine.Int64},
		{Name: "depth", Type: engine.Uint64},
	}}
}

// DepthTableProvider wraps an alignment table (BAM/SAM/CRAM, already
// decoded into the five-column projection an upstream reader provides)
// and produces coverage rows per session.PileupOptions.
type DepthTableProvider struct {
	src  engine.TableProvider
	opts session.PileupOptions
	cols alignmentColumns
}

// NewDepthTableProvider builds a DepthTableProvider over src using the
// default alignment column names.
func NewDepthTableProvider(src engine.TableProvider, opts session.PileupOptions) *DepthTableProvider {
	return &DepthTableProvider{src: src, opts: opts, cols: defaultAlignmentColumns}
}

func (p *DepthTableProvider) Schema() *engine.Schema {
	if p.opts.PerBase {
		return PerBaseSchema()
	}
	return BlockSchema()
}

func (p *DepthTableProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	plan, err := p.src.Scan(ctx, []string{p.cols.Chrom, p.cols.Start, p.cols.Flags, p.cols.Cigar, p.cols.MapQ}, 0)
	if err != nil {
		return nil, err
	}
	batches, err := engine.Collect(ctx, plan, plan.OutputPartitions())
	if err != nil {
		return nil, err
	}
	schema := p.Schema()
	exec := &PileupExec{
		batches: batches,
		cols:    p.cols,
		opts:    p.opts,
		schema:  schema,
		limit:   limit,
	}
	return engine.NewSinglePartitionPlan(schema, exec.run), nil
}

// PileupExec parses each alignment's CIGAR, filters by flag mask and
// minimum mapping quality, and spreads the surviving reads' reference
// span into a per-contig depth accumulator.
type PileupExec struct {
	batches []*engine.RecordBatch
	cols    alignmentColumns
	opts    session.PileupOptions
	schema  *engine.Schema
	limit   int
}

// span is one alignment's reference-consuming interval on one contig.
type span struct {
	contig     string
	start, end int64 // inclusive, 0-based
}

func (e *PileupExec) run(ctx context.Context) (engine.BatchStream, error) {
	filterFlag := e.opts.FilterFlag
	if filterFlag == 0 {
		filterFlag = uint16(DefaultFilterFlag)
	}
	minMapQ := e.opts.MinMappingQuality

	var spans []span
	for _, b := range e.batches {
		chromCol := b.ColumnByName(e.cols.Chrom)
		startCol := b.ColumnByName(e.cols.Start)
		flagsCol := b.ColumnByName(e.cols.Flags)
		cigarCol := b.ColumnByName(e.cols.Cigar)
		mapqCol := b.ColumnByName(e.cols.MapQ)
		if chromCol == nil || startCol == nil || flagsCol == nil || cigarCol == nil {
			continue
		}
		for row := 0; row < b.NumRows(); row++ {
			flags := uint16(engine.Int64At(flagsCol, row))
			if flags&filterFlag != 0 {
				continue
			}
			if mapqCol != nil && uint8(engine.Int64At(mapqCol, row)) < minMapQ {
				continue
			}
			start := engine.Int64At(startCol, row)
			cigar := engine.StringAt(cigarCol, row)
			refLen := referenceSpan(cigar)
			if refLen <= 0 {
				continue
			}
			spans = append(spans, span{
				contig: engine.StringAt(chromCol, row),
				start:  start,
				end:    start + refLen - 1,
			})
		}
	}

	var out []*engine.RecordBatch
	if e.opts.PerBase {
		out = perBaseBatches(e.schema, spans, e.opts.ZeroBased, e.limit)
	} else {
		out = rleBatches(e.schema, spans, e.opts.ZeroBased, e.limit)
	}
	return engine.NewSliceStream(out), nil
}

// referenceSpan returns the number of reference bases a CIGAR string
// consumes: M, D, N, =, and X operations advance the reference; I, S, H,
// and P do not (standard SAM CIGAR semantics; sam.CigarOpType names the
// same operation set biogo/hts/sam decodes from a binary BAM record).
func referenceSpan(cigar string) int64 {
	if cigar == "" || cigar == "*" {
		return 0
	}
	var span int64
	var n int64
	for _, r := range cigar {
		if r >= '0' && r <= '9' {
			n = n*10 + int64(r-'0')
			continue
		}
		switch r {
		case 'M', 'D', 'N', '=', 'X':
			span += n
		case 'I', 'S', 'H', 'P':
			// consumes query only, not reference
		}
		n = 0
	}
	return span
}

func perBaseBatches(schema *engine.Schema, spans []span, zeroBased bool, limit int) []*engine.RecordBatch {
	depth := map[string]map[int64]uint64{}
	for _, s := range spans {
		m, ok := depth[s.contig]
		if !ok {
			m = map[int64]uint64{}
			depth[s.contig] = m
		}
		for pos := s.start; pos <= s.end; pos++ {
			m[pos]++
		}
	}

	contigs := sortedKeys(depth)
	b := &engine.RecordBatch{Schema: schema, Columns: []engine.Column{
		&engine.StringColumn{}, &engine.Int64Column{}, &engine.Uint64Column{},
	}}
	contigCol := b.Columns[0].(*engine.StringColumn)
	posCol := b.Columns[1].(*engine.Int64Column)
	depthCol := b.Columns[2].(*engine.Uint64Column)
	n := 0
	for _, contig := range contigs {
		positions := sortedInt64Keys(depth[contig])
		for _, pos := range positions {
			if limit > 0 && n >= limit {
				return []*engine.RecordBatch{b}
			}
			out := pos
			if !zeroBased {
				out = pos + 1
			}
			contigCol.Values = append(contigCol.Values, contig)
			posCol.Values = append(posCol.Values, out)
			depthCol.Values = append(depthCol.Values, depth[contig][pos])
			n++
		}
	}
	return []*engine.RecordBatch{b}
}

func rleBatches(schema *engine.Schema, spans []span, zeroBased bool, limit int) []*engine.RecordBatch {
	depth := map[string]map[int64]uint64{}
	for _, s := range spans {
		m, ok := depth[s.contig]
		if !ok {
			m = map[int64]uint64{}
			depth[s.contig] = m
		}
		for pos := s.start; pos <= s.end; pos++ {
			m[pos]++
		}
	}

	contigs := sortedKeys(depth)
	b := &engine.RecordBatch{Schema: schema, Columns: []engine.Column{
		&engine.StringColumn{}, &engine.Int64Column{}, &engine.Int64Column{}, &engine.Uint64Column{},
	}}
	contigCol := b.Columns[0].(*engine.StringColumn)
	startCol := b.Columns[1].(*engine.Int64Column)
	endCol := b.Columns[2].(*engine.Int64Column)
	depthCol := b.Columns[3].(*engine.Uint64Column)

	n := 0
	for _, contig := range contigs {
		positions := sortedInt64Keys(depth[contig])
		var curStart, curEnd int64
		var curDepth uint64
		haveRun := false
		flush := func() {
			if !haveRun || (limit > 0 && n >= limit) {
				return
			}
			s, e := curStart, curEnd
			if !zeroBased {
				s, e = s+1, e+1
			}
			contigCol.Values = append(contigCol.Values, contig)
			startCol.Values = append(startCol.Values, s)
			endCol.Values = append(endCol.Values, e)
			depthCol.Values = append(depthCol.Values, curDepth)
			n++
		}
		for _, pos := range positions {
			d := depth[contig][pos]
			if haveRun && pos == curEnd+1 && d == curDepth {
				curEnd = pos
				continue
			}
			flush()
			curStart, curEnd, curDepth, haveRun = pos, pos, d, true
		}
		flush()
	}
	return []*engine.RecordBatch{b}
}

func sortedKeys(m map[string]map[int64]uint64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInt64Keys(m map[int64]uint64) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
