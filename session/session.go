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

package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/biodatageeks/bioquery/engine"
)

// Session bundles a table catalog and a Config. Providers are
// constructed per call, registered under a generated unique name, and
// scanned exactly once; the catalog exists so that registration side
// effect is observable, matching spec.md §4.1(c)-(d).
type Session struct {
	Config *Config

	mu      sync.RWMutex
	tables  map[string]engine.TableProvider

	counters nameCounters
}

type nameCounters struct {
	overlap  atomic.Uint64
	nearest  atomic.Uint64
	count    atomic.Uint64
	sweep    atomic.Uint64
	quality  atomic.Uint64
	pileup   atomic.Uint64
}

// New returns a Session with default configuration and an empty catalog.
func New() *Session {
	return &Session{
		Config: NewConfig(),
		tables: make(map[string]engine.TableProvider),
	}
}

// RegisterTable registers a provider under name, overwriting any
// previous registration, mirroring the teacher's Environment registry.
func (s *Session) RegisterTable(name string, p engine.TableProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = p
}

// Table returns the provider registered under name, or an error if none
// is registered, the "unknown column/table name" caller-error class
// from spec.md §7.
func (s *Session) Table(name string) (engine.TableProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q is not registered", name)
	}
	return p, nil
}

// Deregister removes name from the catalog, if present.
func (s *Session) Deregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
}

// nextName returns a monotonically increasing, operator-kind-scoped
// generated table name, e.g. "overlap_result_3". One counter per
// operator kind (rather than one global counter) means dispatching two
// different operator kinds concurrently on the same session can never
// collide on a name even though spec.md only requires non-collision
// within an operator kind.
func (s *Session) nextName(kind string, counter *atomic.Uint64) string {
	n := counter.Add(1) - 1
	return fmt.Sprintf("%s_result_%d", kind, n)
}

// NextOverlapName returns the next generated name for an overlap provider.
func (s *Session) NextOverlapName() string { return s.nextName("overlap", &s.counters.overlap) }

// NextNearestName returns the next generated name for a nearest provider.
func (s *Session) NextNearestName() string { return s.nextName("nearest", &s.counters.nearest) }

// NextCountOverlapsName returns the next generated name for a count/coverage provider.
func (s *Session) NextCountOverlapsName() string {
	return s.nextName("count_overlaps", &s.counters.count)
}

// NextSweepName returns the next generated name for a merge/cluster/complement/subtract provider.
func (s *Session) NextSweepName() string { return s.nextName("sweep", &s.counters.sweep) }

// NextQualityName returns the next generated name for a quality histogram provider.
func (s *Session) NextQualityName() string { return s.nextName("quality", &s.counters.quality) }

// NextPileupName returns the next generated name for a pileup/depth provider.
func (s *Session) NextPileupName() string { return s.nextName("pileup", &s.counters.pileup) }
