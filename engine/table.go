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
	"io"
)

// BatchStream produces a sequence of record batches. Next returns io.EOF
// once exhausted. Implementations are not required to be safe for
// concurrent use.
type BatchStream interface {
	Next() (*RecordBatch, error)
	io.Closer
}

// BatchWriter consumes a sequence of record batches written to a single
// output stream opened from a QuerySink.
type BatchWriter interface {
	WriteBatch(b *RecordBatch) error
	io.Closer
}

// QuerySink represents a sink for query outputs, mirroring vm.QuerySink
// in the teacher: every execution plan writes into one of these, and
// multiple output streams may be opened for concurrent partitions.
type QuerySink interface {
	// Open opens a new output stream. Each stream is only safe to use
	// from a single goroutine; callers wanting concurrent output must
	// call Open once per goroutine.
	Open() (BatchWriter, error)
	io.Closer
}

// Table represents a collection of record batches that can be streamed
// into a QuerySink with a parallelism hint, mirroring vm.Table.
type Table interface {
	// Chunks returns the number of batches present, or -1 if unknown.
	Chunks() int
	// WriteChunks streams the table's contents into dst, opening at most
	// parallel concurrent output streams.
	WriteChunks(dst QuerySink, parallel int) error
}

// memTable is a Table backed by a fixed, already-materialized slice of
// batches. It is the engine-level equivalent of vm's in-memory table
// helpers.
type memTable struct {
	batches []*RecordBatch
}

// NewMemTable returns a Table that streams the given batches in order
// through a single partition.
func NewMemTable(batches []*RecordBatch) Table {
	return &memTable{batches: batches}
}

func (m *memTable) Chunks() int { return len(m.batches) }

func (m *memTable) WriteChunks(dst QuerySink, parallel int) error {
	w, err := dst.Open()
	if err != nil {
		return err
	}
	for _, b := range m.batches {
		if err := w.WriteBatch(b); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// streamTable adapts a BatchStream (the output of an ExecutionPlan
// partition) into a Table so it can be fed back into another QuerySink,
// e.g. by the write path's insert_into driver.
type streamTable struct {
	ctx context.Context
	mk  func(ctx context.Context) (BatchStream, error)
}

// NewStreamTable wraps a BatchStream constructor as a single-partition Table.
func NewStreamTable(ctx context.Context, mk func(ctx context.Context) (BatchStream, error)) Table {
	return &streamTable{ctx: ctx, mk: mk}
}

func (s *streamTable) Chunks() int { return -1 }

func (s *streamTable) WriteChunks(dst QuerySink, parallel int) error {
	stream, err := s.mk(s.ctx)
	if err != nil {
		return err
	}
	defer stream.Close()
	w, err := dst.Open()
	if err != nil {
		return err
	}
	for {
		b, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Close()
			return err
		}
		if err := w.WriteBatch(b); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
