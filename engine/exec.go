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

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

func errInvalidPartition(got, n int) error {
	return fmt.Errorf("partition %d not in [0,%d)", got, n)
}

// sliceStream is a BatchStream over a pre-built slice of batches; it is
// what most bioquery ExecutionPlan.Execute implementations return once
// they've computed their output for a partition in one shot.
type sliceStream struct {
	batches []*RecordBatch
	i       int
}

// NewSliceStream returns a BatchStream over batches.
func NewSliceStream(batches []*RecordBatch) BatchStream {
	return &sliceStream{batches: batches}
}

func (s *sliceStream) Next() (*RecordBatch, error) {
	if s.i >= len(s.batches) {
		return nil, io.EOF
	}
	b := s.batches[s.i]
	s.i++
	return b, nil
}

func (s *sliceStream) Close() error { return nil }

// Collect runs every partition of plan to completion and concatenates
// the resulting batches in partition order. It is the engine-level
// analogue of the teacher's plan.exec/executor machinery (plan/exec.go),
// sized down to what a library caller (rather than a full SQL host) needs:
// run all partitions of one plan, in parallel, and gather the output.
func Collect(ctx context.Context, plan ExecutionPlan, parallel int) ([]*RecordBatch, error) {
	n := plan.OutputPartitions()
	if n <= 0 {
		return nil, nil
	}
	if parallel <= 0 {
		parallel = n
	}
	if parallel > n {
		parallel = n
	}

	results := make([][]*RecordBatch, n)
	errs := make([]error, n)

	p := mkpool(parallel)
	defer close(p)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.do(i, func(i int) {
			defer wg.Done()
			stream, err := plan.Execute(ctx, i)
			if err != nil {
				errs[i] = err
				return
			}
			defer stream.Close()
			for {
				b, err := stream.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					errs[i] = err
					return
				}
				results[i] = append(results[i], b)
			}
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	var out []*RecordBatch
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// pool is a work queue for a fixed goroutine pool, lifted directly from
// the teacher's plan/exec.go: closing the pool cleans up its goroutines.
type pool chan poolTask

type poolTask struct {
	i int
	f func(int)
}

func mkpool(parallel int) pool {
	if parallel <= 0 {
		panic("mkpool: size out of range")
	}
	ch := make(pool, parallel)
	for i := 0; i < parallel; i++ {
		go func() {
			for t := range ch {
				t.f(t.i)
			}
		}()
	}
	return ch
}

func (p pool) do(i int, f func(int)) {
	p <- poolTask{i, f}
}
