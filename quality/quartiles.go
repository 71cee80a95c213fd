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

package quality

import "encoding/binary"

// Warn is the base_quality_warn tag a Stats value carries.
type Warn string

const (
	Pass Warn = "pass"
	WarnLevel Warn = "warn"
	Fail Warn = "fail"
)

// HistogramState is the quartile accumulator's mergeable state: a
// 94-slot score histogram, a fixed-size commutative monoid under
// pointwise addition (spec.md §4.8's partial-aggregate merge).
type HistogramState struct {
	Counts [NumScores]uint64
}

// Add folds one (score,count) histogram row into the state.
func (s *HistogramState) Add(score uint8, count uint64) {
	if int(score) < NumScores {
		s.Counts[score] += count
	}
}

// Merge folds other into s by pointwise addition. Merge is commutative
// and associative because addition is, so merging partial states in any
// order yields the same total histogram.
func (s *HistogramState) Merge(other *HistogramState) {
	for i := range s.Counts {
		s.Counts[i] += other.Counts[i]
	}
}

// Total returns the total observation count N.
func (s *HistogramState) Total() uint64 {
	var n uint64
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Marshal serializes the state as two parallel fixed-width arrays: 94
// little-endian uint8 score values (0..93) followed by 94 little-endian
// uint64 counts. This shape, not a JSON map of string keys, is the
// documented wire format (spec.md §9's design note).
func (s *HistogramState) Marshal() []byte {
	buf := make([]byte, NumScores+NumScores*8)
	for i := 0; i < NumScores; i++ {
		buf[i] = byte(i)
	}
	for i, c := range s.Counts {
		binary.LittleEndian.PutUint64(buf[NumScores+i*8:], c)
	}
	return buf
}

// Unmarshal decodes a buffer produced by Marshal into a new HistogramState.
func Unmarshal(buf []byte) (*HistogramState, error) {
	want := NumScores + NumScores*8
	if len(buf) != want {
		return nil, errHistogramLen{got: len(buf), want: want}
	}
	s := &HistogramState{}
	for i := 0; i < NumScores; i++ {
		score := buf[i]
		count := binary.LittleEndian.Uint64(buf[NumScores+i*8:])
		s.Counts[score] = count
	}
	return s, nil
}

type errHistogramLen struct{ got, want int }

func (e errHistogramLen) Error() string {
	return "quality: malformed histogram state buffer"
}

// Stats is the per-position quartile evaluation, per spec.md §4.8.
type Stats struct {
	Avg    float64
	Lower  float64
	Q1     float64
	Median float64
	Q3     float64
	Upper  float64
	Warn   Warn
}

// Evaluate computes Stats from s, or ok=false if s has zero observations
// (spec.md: "If N=0, evaluate yields no row for that position").
func (s *HistogramState) Evaluate() (Stats, bool) {
	n := s.Total()
	if n == 0 {
		return Stats{}, false
	}
	if n == 1 {
		var only float64
		for score, c := range s.Counts {
			if c > 0 {
				only = float64(score)
				break
			}
		}
		return Stats{Avg: only, Lower: only, Q1: only, Median: only, Q3: only, Upper: only, Warn: warnFor(only)}, true
	}

	var sum float64
	for score, c := range s.Counts {
		sum += float64(score) * float64(c)
	}
	avg := sum / float64(n)

	q1 := s.quantile(n, 0.25)
	median := s.quantile(n, 0.5)
	q3 := s.quantile(n, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	return Stats{
		Avg: avg, Lower: lower, Q1: q1, Median: median, Q3: q3, Upper: upper,
		Warn: warnFor(median),
	}, true
}

// quantile computes one weighted percentile by the exact linear
// interpolation scheme spec.md §4.8 documents: rank = q*(N-1), walk the
// histogram in ascending score order tracking the running cumulative
// count and the last nonzero-count score, interpolating between it and
// the current score when the target index falls exactly on a count
// boundary.
func (s *HistogramState) quantile(n uint64, q float64) float64 {
	rank := q * float64(n-1)
	r := int64(rank)
	delta := rank - float64(r)
	target := uint64(r) + 1

	var acc uint64
	var lo float64
	haveLo := false
	for score := 0; score < NumScores; score++ {
		count := s.Counts[score]
		if count == 0 {
			continue
		}
		hi := float64(score)
		if acc == target && haveLo {
			return lo + (hi-lo)*delta
		}
		if acc+count > target {
			return hi
		}
		acc += count
		lo = hi
		haveLo = true
	}
	return lo
}

// warnFor applies the median threshold policy: median<=20 fails,
// otherwise median<=25 warns, otherwise passes.
func warnFor(median float64) Warn {
	if median <= 20 {
		return Fail
	}
	if median <= 25 {
		return WarnLevel
	}
	return Pass
}
