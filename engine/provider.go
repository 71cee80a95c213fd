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

import "context"

// TableProvider describes a logical table and constructs the physical
// plan that reads it. This is the first of the two interface roles the
// spec's design notes call for (§9): a TableProvider owns the output
// schema, and Scan turns it into an ExecutionPlan.
//
// projection, when non-nil, names the subset of output columns the
// caller actually needs; providers that can push the projection down to
// their source should do so, but returning all columns is always
// correct. limit, when > 0, is an advisory row cap.
type TableProvider interface {
	Schema() *Schema
	Scan(ctx context.Context, projection []string, limit int) (ExecutionPlan, error)
}

// ExecutionPlan is the second interface role: a physical plan node that
// knows how many partitions it can produce and can execute any one of
// them independently, mirroring plan.Op + the teacher's per-partition
// vm.Table.WriteChunks contract, but pull-based (BatchStream.Next)
// instead of push-based, since bioquery operators are simple enough to
// not need the teacher's SIMD bytecode interpreter loop.
type ExecutionPlan interface {
	Schema() *Schema
	// OutputPartitions returns the number of partitions Execute can be
	// called with, numbered [0, OutputPartitions()).
	OutputPartitions() int
	Execute(ctx context.Context, partition int) (BatchStream, error)
}

// singlePartitionPlan adapts a single BatchStream constructor into a
// one-partition ExecutionPlan; most bioquery operators that materialize
// their indexed side up front and stream the probe side use this.
type singlePartitionPlan struct {
	schema *Schema
	mk     func(ctx context.Context) (BatchStream, error)
}

// NewSinglePartitionPlan returns an ExecutionPlan with exactly one
// partition, constructed lazily by mk on Execute.
func NewSinglePartitionPlan(schema *Schema, mk func(ctx context.Context) (BatchStream, error)) ExecutionPlan {
	return &singlePartitionPlan{schema: schema, mk: mk}
}

func (p *singlePartitionPlan) Schema() *Schema          { return p.schema }
func (p *singlePartitionPlan) OutputPartitions() int    { return 1 }
func (p *singlePartitionPlan) Execute(ctx context.Context, partition int) (BatchStream, error) {
	if partition != 0 {
		return nil, errInvalidPartition(partition, 1)
	}
	return p.mk(ctx)
}

// multiPartitionPlan adapts N independent BatchStream constructors, one
// per partition, used by operators that fan out across target_partitions
// (the quality histogram provider's round-robin partitioning, and the
// low-memory hash-shard range-join strategy).
type multiPartitionPlan struct {
	schema *Schema
	mk     func(ctx context.Context, partition int) (BatchStream, error)
	n      int
}

// NewMultiPartitionPlan returns an ExecutionPlan with n partitions.
func NewMultiPartitionPlan(schema *Schema, n int, mk func(ctx context.Context, partition int) (BatchStream, error)) ExecutionPlan {
	return &multiPartitionPlan{schema: schema, mk: mk, n: n}
}

func (p *multiPartitionPlan) Schema() *Schema       { return p.schema }
func (p *multiPartitionPlan) OutputPartitions() int { return p.n }
func (p *multiPartitionPlan) Execute(ctx context.Context, partition int) (BatchStream, error) {
	if partition < 0 || partition >= p.n {
		return nil, errInvalidPartition(partition, p.n)
	}
	return p.mk(ctx, partition)
}
