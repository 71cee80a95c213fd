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

	"github.com/biodatageeks/bioquery/session"
)

// CountOverlaps is the count_overlaps('left','right',...) table function
// parity shim (original_source/src/udtf.rs, count_overlaps.rs): it lets a
// caller invoke the count-overlaps operator directly by table name
// without going through Dispatch's full RangeOptions bundle.
func CountOverlaps(sess *session.Session, left, right string, lcols, rcols session.Columns) (*Result, error) {
	opts := session.RangeOptions{
		Op:       session.CountOverlapsNaive,
		Columns1: lcols,
		Columns2: rcols,
	}
	return Dispatch(context.Background(), sess, left, right, opts)
}
