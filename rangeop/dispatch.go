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

package rangeop

import (
	"context"
	"errors"
	"fmt"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

// ErrUnsupportedAlgorithm is returned when a caller asks for the
// dispatch-internal nearest algorithm tag directly (spec.md §4.1): only
// Dispatch itself may set session.AlgCoitreesNearest, in response to a
// Nearest operation.
var ErrUnsupportedAlgorithm = errors.New("rangeop: session.AlgCoitreesNearest may not be requested directly")

// Result is what Dispatch returns: the generated catalog name the new
// provider was registered under, plus its batches collected by scanning
// its own plan end to end (spec.md §4.1(d)-(e): "issues a SELECT * FROM
// <generated>").
type Result struct {
	Name    string
	Schema  *engine.Schema
	Batches []*engine.RecordBatch
}

// Dispatch resolves opts.Op against sess and the named left/right
// tables, building whichever provider the operator needs, registering it
// in the catalog under a generated name, and fully collecting its
// output. left is always required; right is required for every binary
// operator (Overlap, Nearest, CountOverlapsNaive, Coverage, Subtract) and
// ignored for the unary sweep operators (Merge, Cluster, Complement).
func Dispatch(ctx context.Context, sess *session.Session, left, right string, opts session.RangeOptions) (*Result, error) {
	if opts.OverlapAlg == session.AlgCoitreesNearest {
		return nil, ErrUnsupportedAlgorithm
	}

	leftProvider, err := sess.Table(left)
	if err != nil {
		return nil, err
	}

	var rightProvider engine.TableProvider
	if binaryOp(opts.Op) {
		rightProvider, err = sess.Table(right)
		if err != nil {
			return nil, err
		}
	}

	lowMemory := sess.Config.GetLowMemory()
	partitions := sess.Config.Partitions()

	var provider engine.TableProvider
	var name string

	switch opts.Op {
	case session.Overlap:
		sess.Config.SetAlgorithm(session.AlgCoitrees)
		provider = NewOverlapProvider(leftProvider, rightProvider, opts, lowMemory, partitions)
		name = sess.NextOverlapName()

	case session.Nearest:
		sess.Config.SetAlgorithm(session.AlgCoitreesNearest)
		provider = NewNearestProvider(leftProvider, rightProvider, opts)
		name = sess.NextNearestName()

	case session.CountOverlapsNaive, session.Coverage:
		sess.Config.SetAlgorithm(session.AlgCoitrees)
		// spec.md §4.4: the right table is augmented with a count of how
		// many left-table intervals overlap each of its rows.
		provider = NewCountOverlapsProvider(rightProvider, leftProvider, opts.Columns2, opts.Columns1, opts)
		name = sess.NextCountOverlapsName()

	case session.Merge:
		provider = NewMergeProvider(leftProvider, opts)
		name = sess.NextSweepName()

	case session.Cluster:
		provider = NewClusterProvider(leftProvider, opts)
		name = sess.NextSweepName()

	case session.Complement:
		if opts.ViewTable == "" {
			return nil, fmt.Errorf("rangeop: complement requires opts.ViewTable (spec.md §4.5)")
		}
		viewProvider, err := sess.Table(opts.ViewTable)
		if err != nil {
			return nil, err
		}
		provider = NewComplementProvider(leftProvider, viewProvider, opts)
		name = sess.NextSweepName()

	case session.Subtract:
		provider = NewSubtractProvider(leftProvider, rightProvider, opts)
		name = sess.NextSweepName()

	default:
		return nil, fmt.Errorf("rangeop: unknown operation %q", opts.Op)
	}

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

func binaryOp(op session.RangeOp) bool {
	switch op {
	case session.Overlap, session.Nearest, session.CountOverlapsNaive, session.Coverage, session.Subtract:
		return true
	default:
		return false
	}
}
