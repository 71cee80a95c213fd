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

package pileup

import (
	"context"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

// Result is what Dispatch returns: the generated catalog name the depth
// provider was registered under, plus its fully collected output, mirroring
// rangeop.Dispatch so the `depth(alignments)` table function (spec.md
// §4.9) behaves like any other generated-result operator.
type Result struct {
	Name    string
	Schema  *engine.Schema
	Batches []*engine.RecordBatch
}

// Dispatch resolves the depth/pileup table function against sess's
// catalog: table names an already-registered alignment table (typically
// a BAM/SAM/CRAM reader's output), opts controls flag filtering, MAPQ
// filtering, coordinate convention, and RLE-vs-per-base output shape.
func Dispatch(ctx context.Context, sess *session.Session, table string, opts session.PileupOptions) (*Result, error) {
	src, err := sess.Table(table)
	if err != nil {
		return nil, err
	}

	provider := NewDepthTableProvider(src, opts)
	name := sess.NextPileupName()
	sess.RegisterTable(name, provider)

	plan, err := provider.Scan(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	batches, err := engine.Collect(ctx, plan, plan.OutputPartitions())
	if err != nil {
		return nil, err
	}
	return &Result{Name: name, Schema: provider.Schema(), Batches: batches}, nil
}
