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

// FilterOp parameterizes every range operator per spec.md §3: Weak means
// "touching counts as overlap", Strict means "strictly nested/crossing".
type FilterOp string

const (
	Weak   FilterOp = "weak"
	Strict FilterOp = "strict"
)

// resolve returns f, defaulting to Weak for the zero value, matching the
// documented default suffixes/columns pattern used throughout RangeOptions.
func (f FilterOp) resolve() FilterOp {
	if f == "" {
		return Weak
	}
	return f
}

// Resolve returns the effective filter op, defaulting unset values to Weak.
func (f FilterOp) Resolve() FilterOp { return f.resolve() }

// Overlaps reports whether [aStart,aEnd] and [bStart,bEnd] overlap under f.
func (f FilterOp) Overlaps(aStart, aEnd, bStart, bEnd int64) bool {
	switch f.resolve() {
	case Strict:
		return aEnd > bStart && aStart < bEnd
	default: // Weak
		return aEnd >= bStart && aStart <= bEnd
	}
}

// RangeOp names one of the eight range operators spec.md §4 defines.
type RangeOp string

const (
	Overlap             RangeOp = "overlap"
	Nearest             RangeOp = "nearest"
	CountOverlapsNaive  RangeOp = "count_overlaps_naive"
	Coverage            RangeOp = "coverage"
	Merge               RangeOp = "merge"
	Cluster             RangeOp = "cluster"
	Complement          RangeOp = "complement"
	Subtract            RangeOp = "subtract"
)

// Columns names the (contig,start,end) columns of one input table.
type Columns struct {
	Contig string
	Start  string
	End    string
}

// DefaultColumns is the conventional column-name triple.
var DefaultColumns = Columns{Contig: "contig", Start: "start", End: "end"}

func (c Columns) resolve() Columns {
	if c.Contig == "" {
		c.Contig = DefaultColumns.Contig
	}
	if c.Start == "" {
		c.Start = DefaultColumns.Start
	}
	if c.End == "" {
		c.End = DefaultColumns.End
	}
	return c
}

// Resolve returns c with empty fields filled in from DefaultColumns.
func (c Columns) Resolve() Columns { return c.resolve() }

// Suffixes is the pair of suffixes appended to left/right column names
// in a binary operator's output, default ("_1","_2") per spec.md §6.
type Suffixes struct {
	Left  string
	Right string
}

// DefaultSuffixes is ("_1","_2").
var DefaultSuffixes = Suffixes{Left: "_1", Right: "_2"}

func (s Suffixes) resolve() Suffixes {
	if s.Left == "" && s.Right == "" {
		return DefaultSuffixes
	}
	return s
}

// Resolve returns DefaultSuffixes when both fields are empty, and s
// unchanged otherwise, so one side's suffix may be left empty.
func (s Suffixes) Resolve() Suffixes { return s.resolve() }

// RangeOptions is the public options bundle from spec.md §6.
type RangeOptions struct {
	Op RangeOp

	FilterOp FilterOp
	Suffixes Suffixes
	Columns1 Columns
	Columns2 Columns

	// OverlapAlg is the user-facing algorithm tag. rangeop.Dispatch rejects
	// AlgCoitreesNearest (dispatch-internal only) with
	// rangeop.ErrUnsupportedAlgorithm and does not read any other value.
	OverlapAlg Algorithm
	LowMemory  bool

	NearestK         int
	IncludeOverlaps  *bool // nil defaults to true
	ComputeDistance  *bool // nil defaults to true

	MinDist int

	ViewTable   string
	ViewColumns Columns
}

// includeOverlaps returns the effective include_overlaps value, default true.
func (o RangeOptions) includeOverlaps() bool {
	if o.IncludeOverlaps == nil {
		return true
	}
	return *o.IncludeOverlaps
}

// IncludeOverlapsOrDefault returns include_overlaps, defaulting to true.
func (o RangeOptions) IncludeOverlapsOrDefault() bool { return o.includeOverlaps() }

func (o RangeOptions) computeDistance() bool {
	if o.ComputeDistance == nil {
		return true
	}
	return *o.ComputeDistance
}

// ComputeDistanceOrDefault returns compute_distance, defaulting to true.
func (o RangeOptions) ComputeDistanceOrDefault() bool { return o.computeDistance() }

// NearestKOrDefault returns nearest_k, defaulting to 1.
func (o RangeOptions) NearestKOrDefault() int {
	if o.NearestK <= 0 {
		return 1
	}
	return o.NearestK
}

// BoolPtr is a small helper for populating RangeOptions.IncludeOverlaps /
// ComputeDistance from a literal, since Go has no inline &true.
func BoolPtr(v bool) *bool { return &v }

// PileupOptions is the public pileup options bundle from spec.md §6.
type PileupOptions struct {
	FilterFlag         uint16
	MinMappingQuality   uint8
	BinaryCigar         bool
	DenseMode           DenseMode
	ZeroBased           bool
	PerBase             bool
}

// DenseMode is the pileup dense-mode setting carried in PileupOptions.
// PileupExec does not read it; per-base rows are selected by
// PileupOptions.PerBase.
type DenseMode string

const (
	DenseAuto    DenseMode = "auto"
	DenseForce   DenseMode = "force"
	DenseDisable DenseMode = "disable"
)

// DefaultFilterFlag is 1796 = unmapped|secondary|qcfail|duplicate.
const DefaultFilterFlag uint16 = 1796

// DefaultPileupOptions returns the spec.md §6 documented defaults.
func DefaultPileupOptions() PileupOptions {
	return PileupOptions{
		FilterFlag:        DefaultFilterFlag,
		MinMappingQuality: 0,
		BinaryCigar:       true,
		DenseMode:         DenseAuto,
		ZeroBased:         false,
		PerBase:           false,
	}
}

// OutputFormat names a streaming write-path target format.
type OutputFormat string

const (
	FormatVCF   OutputFormat = "VCF"
	FormatFASTQ OutputFormat = "FASTQ"
	FormatBAM   OutputFormat = "BAM"
	FormatSAM   OutputFormat = "SAM"
	FormatCRAM  OutputFormat = "CRAM"
)

// WriteOptions is the public write-path options bundle from spec.md §6.
type WriteOptions struct {
	Format    OutputFormat
	ZeroBased bool

	// VCF
	InfoMetadataJSON   string
	FormatMetadataJSON string
	SampleNamesJSON    string

	// BAM/CRAM
	TagFields        map[string]string
	HeaderMetadataJSON string
	SortOnWrite       bool
	ReferencePath     string // CRAM only; empty means reference-free
}
