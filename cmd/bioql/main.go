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

// Command bioql reads two BED-like interval fixtures, runs one range
// operator over them, and dumps the resulting batch as tab-separated
// text. It exists to exercise rangeop.Dispatch end to end the way
// cmd/dump exercises ion.ToJSON: a thin flag-driven wrapper around a
// library call, not a query planner.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/rangeop"
	"github.com/biodatageeks/bioquery/session"
)

func main() {
	op := flag.String("op", "overlap", "range operator: overlap, nearest, count_overlaps_naive, coverage, merge, cluster, complement, subtract")
	left := flag.String("left", "", "path to the left-hand BED-like fixture (contig\\tstart\\tend per line)")
	right := flag.String("right", "", "path to the right-hand BED-like fixture, required for binary operators")
	filterOp := flag.String("filter", "weak", "weak or strict")
	flag.Parse()

	if *left == "" {
		fmt.Fprintln(os.Stderr, "bioql: -left is required")
		os.Exit(1)
	}

	leftBatch, err := readBED(*left)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bioql: %s\n", err)
		os.Exit(1)
	}

	sess := session.New()
	sess.RegisterTable("left", memProvider(leftBatch))

	rightName := ""
	if *right != "" {
		rightBatch, err := readBED(*right)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bioql: %s\n", err)
			os.Exit(1)
		}
		rightName = "right"
		sess.RegisterTable(rightName, memProvider(rightBatch))
	}

	opts := session.RangeOptions{
		Op:       session.RangeOp(*op),
		FilterOp: session.FilterOp(*filterOp),
		Columns1: session.DefaultColumns,
		Columns2: session.DefaultColumns,
	}

	result, err := rangeop.Dispatch(context.Background(), sess, "left", rightName, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bioql: %s\n", err)
		os.Exit(1)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	dump(w, result)
}

// readBED parses a minimal 3-column BED-like fixture into a RecordBatch
// with the default contig/start/end schema.
func readBED(path string) (*engine.RecordBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open %q: %w", path, err)
	}
	defer f.Close()

	var contigs []string
	var starts, ends []int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%s: malformed line %q", path, line)
		}
		start, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad start in %q: %w", path, line, err)
		}
		end, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad end in %q: %w", path, line, err)
		}
		contigs = append(contigs, fields[0])
		starts = append(starts, start)
		ends = append(ends, end)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	schema := &engine.Schema{Fields: []engine.Field{
		{Name: "contig", Type: engine.String},
		{Name: "start", Type: engine.Int64},
		{Name: "end", Type: engine.Int64},
	}}
	return &engine.RecordBatch{
		Schema: schema,
		Columns: []engine.Column{
			&engine.StringColumn{Values: contigs},
			&engine.Int64Column{Values: starts},
			&engine.Int64Column{Values: ends},
		},
	}, nil
}

type fixedProvider struct {
	schema *engine.Schema
	batch  *engine.RecordBatch
}

func memProvider(b *engine.RecordBatch) engine.TableProvider {
	return &fixedProvider{schema: b.Schema, batch: b}
}

func (p *fixedProvider) Schema() *engine.Schema { return p.schema }

func (p *fixedProvider) Scan(ctx context.Context, projection []string, limit int) (engine.ExecutionPlan, error) {
	return engine.NewSinglePartitionPlan(p.schema, func(ctx context.Context) (engine.BatchStream, error) {
		return engine.NewSliceStream([]*engine.RecordBatch{p.batch}), nil
	}), nil
}

// dump writes result as a header line followed by tab-separated rows,
// the same shape cmd/dump uses for its JSON-per-line output.
func dump(w *bufio.Writer, result *rangeop.Result) {
	fmt.Fprintf(w, "# %s (%d rows across %d batches)\n", result.Name, countRows(result.Batches), len(result.Batches))

	names := make([]string, len(result.Schema.Fields))
	for i, f := range result.Schema.Fields {
		names[i] = f.Name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for _, b := range result.Batches {
		for row := 0; row < b.NumRows(); row++ {
			vals := make([]string, len(b.Columns))
			for c, col := range b.Columns {
				vals[c] = cellString(col, row)
			}
			fmt.Fprintln(w, strings.Join(vals, "\t"))
		}
	}
}

func countRows(batches []*engine.RecordBatch) int {
	n := 0
	for _, b := range batches {
		n += b.NumRows()
	}
	return n
}

func cellString(col engine.Column, row int) string {
	if !col.Valid(row) {
		return "."
	}
	switch c := col.(type) {
	case *engine.Int64Column:
		return strconv.FormatInt(c.Values[row], 10)
	case *engine.Uint64Column:
		return strconv.FormatUint(c.Values[row], 10)
	case *engine.Uint8Column:
		return strconv.FormatUint(uint64(c.Values[row]), 10)
	case *engine.Float64Column:
		return strconv.FormatFloat(c.Values[row], 'g', -1, 64)
	case *engine.StringColumn:
		return c.Values[row]
	case *engine.BoolColumn:
		return strconv.FormatBool(c.Values[row])
	default:
		return "?"
	}
}
