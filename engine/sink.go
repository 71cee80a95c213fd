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

import "sync"

// CollectorSink is a QuerySink that appends every written batch into an
// in-memory slice, guarded by a mutex since multiple partitions may open
// concurrent streams against it. Used by callers (and tests) that just
// want "all the output batches" without standing up a real writer.
type CollectorSink struct {
	mu      sync.Mutex
	Batches []*RecordBatch
}

func (c *CollectorSink) Open() (BatchWriter, error) {
	return &collectorWriter{sink: c}, nil
}

func (c *CollectorSink) Close() error { return nil }

type collectorWriter struct {
	sink *CollectorSink
}

func (w *collectorWriter) WriteBatch(b *RecordBatch) error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.Batches = append(w.sink.Batches, b)
	return nil
}

func (w *collectorWriter) Close() error { return nil }
