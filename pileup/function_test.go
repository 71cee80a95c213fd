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
	"testing"

	"github.com/biodatageeks/bioquery/engine"
	"github.com/biodatageeks/bioquery/session"
)

func TestDepthFunctionCall(t *testing.T) {
	sess := session.New()
	sess.RegisterTable("reads", &fixedProvider{schema: alignmentSchema(), batch: alignmentBatch(
		alignment{"chr1", 0, 0, "10M", 60},
	)})

	fn := &DepthFunction{Sess: sess}
	provider, err := fn.Call([]Arg{{Str: "reads"}, {Bool: true, IsBool: true}})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := provider.Scan(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := engine.Collect(context.Background(), plan, plan.OutputPartitions())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) == 0 {
		t.Fatal("expected output rows")
	}
}

func TestDepthFunctionRequiresArgument(t *testing.T) {
	fn := &DepthFunction{Sess: session.New()}
	if _, err := fn.Call(nil); err == nil {
		t.Fatal("expected error for missing table-name argument")
	}
}
