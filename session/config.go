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

// Package session provides the process-local session configuration and
// table catalog the range/quality/pileup/write operators are dispatched
// against, mirroring the teacher's filesystem Environment (env.go,
// fsenv.go) generalized into a mutable, in-memory table catalog plus a
// mutex-guarded option bag standing in for DataFusion's session config
// extensions in the original system.
package session

import "sync"

// Algorithm is the interval-join physical strategy tag written into the
// session before a binary range operator's plan is constructed.
type Algorithm string

const (
	AlgCoitrees        Algorithm = "coitrees"
	AlgCoitreesNearest Algorithm = "coitrees-nearest" // internal-only, see rangeop.ErrUnsupportedAlgorithm
)

// Config is the mutable, process-local session configuration: target
// partition count, interval-join algorithm tag, and the low-memory
// toggle. The setters and getters take a plain sync.Mutex (not RWMutex)
// because spec.md §5 requires option changes to never race plan
// construction, and both readers and writers of the algorithm
// tag need to observe a consistent value across that race window.
type Config struct {
	mu sync.Mutex

	TargetPartitions int
	Algorithm        Algorithm
	LowMemory        bool
}

// NewConfig returns a Config with the spec's documented defaults.
func NewConfig() *Config {
	return &Config{
		TargetPartitions: 4,
		Algorithm:        AlgCoitrees,
		LowMemory:        false,
	}
}

// SetAlgorithm sets the interval-join algorithm tag. Range-op dispatch
// calls this before constructing a provider (spec.md §4.1); callers must
// not call Dispatch concurrently on the same Session from multiple
// goroutines (spec.md §5).
func (c *Config) SetAlgorithm(a Algorithm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Algorithm = a
}

// GetAlgorithm returns the current interval-join algorithm tag.
func (c *Config) GetAlgorithm() Algorithm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Algorithm
}

// SetLowMemory sets the hash-shard toggle.
func (c *Config) SetLowMemory(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LowMemory = v
}

// GetLowMemory returns the hash-shard toggle.
func (c *Config) GetLowMemory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LowMemory
}

// Partitions returns the configured target partition count, defaulting
// to 1 if never set (a zero-value Config is otherwise usable).
func (c *Config) Partitions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TargetPartitions <= 0 {
		return 1
	}
	return c.TargetPartitions
}
