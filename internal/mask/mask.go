// Package mask builds masked instances: matrices with exactly one position
// replaced by the masked marker, for training supervision and for inference.
package mask

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

var (
	// ErrTooLong is returned when a genome has more genes than the layout allows.
	ErrTooLong = errors.New("genome exceeds maximum length")
	// ErrEmpty is returned when a genome has no genes to mask.
	ErrEmpty = errors.New("genome has no genes")
)

// Instance is a masked matrix with the masked position and its true category.
type Instance struct {
	X        tensor.Matrix
	Position int
	Target   category.Category
}

// Training masks one position chosen uniformly among the genome's real
// (non-padding) positions. The target is the true category at that position.
func Training(g genome.Genome, l tensor.Layout, r *rand.Rand) (Instance, error) {
	n := min(g.Len(), l.MaxLength)
	if n == 0 {
		return Instance{}, fmt.Errorf("mask %s: %w", g.ID, ErrEmpty)
	}
	pos := r.IntN(n)
	return maskAt(g, l, pos), nil
}

// Inference returns one instance per unknown position, in genome order.
// Known positions are never masked. A genome without unknown genes yields no
// instances; one longer than the layout yields ErrTooLong.
func Inference(g genome.Genome, l tensor.Layout) ([]Instance, error) {
	if g.Len() > l.MaxLength {
		return nil, fmt.Errorf("mask %s: %d genes, maximum %d: %w", g.ID, g.Len(), l.MaxLength, ErrTooLong)
	}
	unknown := g.UnknownPositions()
	if len(unknown) == 0 {
		return nil, nil
	}

	base := tensor.Encode(g, l)
	out := make([]Instance, len(unknown))
	for i, pos := range unknown {
		x := base.Clone()
		x.MaskAt(pos)
		out[i] = Instance{X: x, Position: pos, Target: category.Unknown}
	}
	return out, nil
}

// Evaluation returns one instance per known position so predictions can be
// scored against the annotation. Positions beyond the layout are dropped.
func Evaluation(g genome.Genome, l tensor.Layout) []Instance {
	n := min(g.Len(), l.MaxLength)
	base := tensor.Encode(g, l)
	var out []Instance
	for pos := 0; pos < n; pos++ {
		c := g.Genes[pos].Category
		if !c.Known() {
			continue
		}
		x := base.Clone()
		x.MaskAt(pos)
		out = append(out, Instance{X: x, Position: pos, Target: c})
	}
	return out
}

func maskAt(g genome.Genome, l tensor.Layout, pos int) Instance {
	x := tensor.Encode(g, l)
	target, _ := x.Category(pos)
	x.MaskAt(pos)
	return Instance{X: x, Position: pos, Target: target}
}
