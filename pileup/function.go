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
	"fmt"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

// Arg is one positional argument to a TableFunction call.
type Arg struct {
	Str  string
	Bool bool
	IsBool bool
}

// TableFunction is the small interface a SQL front end's table-function
// dispatcher would call into. depth('path'[, zero_based]) (original_source's
// pileup.rs) is the only such function bioquery defines.
type TableFunction interface {
	Call(args []Arg) (engine.TableProvider, error)
}

// DepthFunction implements TableFunction for depth(alignments[, zero_based]):
// args[0] names a table already registered in sess, args[1] (optional bool)
// overrides ZeroBased.
type DepthFunction struct {
	Sess *session.Session
}

func (f *DepthFunction) Call(args []Arg) (engine.TableProvider, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("pileup: depth() requires a table name argument")
	}
	src, err := f.Sess.Table(args[0].Str)
	if err != nil {
		return nil, err
	}
	opts := session.DefaultPileupOptions()
	if len(args) > 1 && args[1].IsBool {
		opts.ZeroBased = args[1].Bool
	}
	return NewDepthTableProvider(src, opts), nil
}
