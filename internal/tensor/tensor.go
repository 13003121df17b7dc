// Package tensor converts genomes into the fixed-length numeric matrices
// consumed by sequence models: a one-hot category block per position followed
// by optional per-gene features.
package tensor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
)

// ErrUnsupportedFeatureMode is returned for an unknown feature selector.
var ErrUnsupportedFeatureMode = errors.New("unsupported feature mode")

// FeatureMode selects the auxiliary per-gene features.
type FeatureMode int

const (
	FeaturesAll    FeatureMode = iota // strand, length and spacing
	FeaturesStrand                    // strand only
	FeaturesNone                      // gene order only
)

// MaxFeatures is the feature width of FeaturesAll.
const MaxFeatures = 5

// ParseFeatureMode parses "all", "strand" or "none". An empty string means all.
func ParseFeatureMode(s string) (FeatureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FeaturesAll, nil
	case "strand":
		return FeaturesStrand, nil
	case "none":
		return FeaturesNone, nil
	}
	return 0, fmt.Errorf("%w: %q (want all, strand or none)", ErrUnsupportedFeatureMode, s)
}

func (m FeatureMode) String() string {
	switch m {
	case FeaturesAll:
		return "all"
	case FeaturesStrand:
		return "strand"
	case FeaturesNone:
		return "none"
	}
	return "invalid"
}

// Width returns the number of feature columns the mode fills.
func (m FeatureMode) Width() int {
	switch m {
	case FeaturesAll:
		return MaxFeatures
	case FeaturesStrand:
		return 2
	}
	return 0
}

// Layout fixes the shape of every matrix built for one model.
type Layout struct {
	MaxLength int
	Mode      FeatureMode
	// FixedWidth reserves all feature columns regardless of Mode, so models
	// trained under different modes accept the same input width.
	FixedWidth bool
}

// FeatureWidth returns the number of feature columns in a row.
func (l Layout) FeatureWidth() int {
	if l.FixedWidth {
		return MaxFeatures
	}
	return l.Mode.Width()
}

// Width returns the row width: one-hot categories plus features.
func (l Layout) Width() int {
	return category.NumCategories + l.FeatureWidth()
}

// Matrix is one instance: MaxLength rows of Width columns.
type Matrix [][]float32

// Batch is a list of instances sharing a layout.
type Batch []Matrix

// Encode builds the matrix for g. Genes beyond MaxLength are truncated and
// positions past the genome are padding rows of zeros.
func Encode(g genome.Genome, l Layout) Matrix {
	width := l.Width()
	m := make(Matrix, l.MaxLength)
	for i := range m {
		m[i] = make([]float32, width)
		if i >= len(g.Genes) {
			continue
		}
		c := g.Genes[i].Category
		if !c.Valid() || c == category.Masked {
			c = category.Unknown
		}
		m[i][c] = 1
		copy(m[i][category.NumCategories:], Features(g, i, l.Mode))
	}
	return m
}

// Features returns the feature vector of gene i under mode. Lengths and gaps
// are in kilobases; edge genes have a zero gap on the open side.
func Features(g genome.Genome, i int, mode FeatureMode) []float32 {
	gene := g.Genes[i]
	var fwd, rev float32
	if gene.Strand >= 0 {
		fwd = 1
	} else {
		rev = 1
	}

	switch mode {
	case FeaturesStrand:
		return []float32{fwd, rev}
	case FeaturesAll:
		var prev, next float32
		if i > 0 {
			prev = float32(gene.Start-g.Genes[i-1].End-1) / 1000
		}
		if i < len(g.Genes)-1 {
			next = float32(g.Genes[i+1].Start-gene.End-1) / 1000
		}
		return []float32{fwd, rev, float32(gene.Length()) / 1000, prev, next}
	}
	return nil
}

// Category returns the category one-hot encoded in row i, or false for padding.
func (m Matrix) Category(i int) (category.Category, bool) {
	for c := 0; c < category.NumCategories; c++ {
		if m[i][c] == 1 {
			return category.Category(c), true
		}
	}
	return category.Unknown, false
}

// MaskAt replaces row i with the masked marker and zeroes its features.
func (m Matrix) MaskAt(i int) {
	row := m[i]
	for j := range row {
		row[j] = 0
	}
	row[category.Masked] = 1
}

// MaskedPositions returns every row carrying the masked marker.
func (m Matrix) MaskedPositions() []int {
	var out []int
	for i, row := range m {
		if row[category.Masked] == 1 {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = make([]float32, len(row))
		copy(out[i], row)
	}
	return out
}

// Shape returns the number of rows and columns.
func (m Matrix) Shape() (rows, cols int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}
