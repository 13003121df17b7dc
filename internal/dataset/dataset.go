// Package dataset turns a genome pool into model-ready training sets: seeded
// shuffling, the contiguous train/held-out split, and one masked training
// instance per genome.
package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/mask"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

// DefaultPortion is the fraction of the shuffled pool used for training.
const DefaultPortion = 0.5

// Set is a batch of masked instances with their targets.
type Set struct {
	X         tensor.Batch
	Y         []category.Category
	Positions []int    // masked position per instance
	IDs       []string // source genome per instance
}

// Len returns the number of instances.
func (s Set) Len() int {
	return len(s.X)
}

// Append adds one instance.
func (s *Set) Append(id string, inst mask.Instance) {
	s.X = append(s.X, inst.X)
	s.Y = append(s.Y, inst.Target)
	s.Positions = append(s.Positions, inst.Position)
	s.IDs = append(s.IDs, id)
}

// Build creates one training instance per genome, masking a random real
// position of each. Genomes without genes are skipped.
func Build(p genome.Pool, l tensor.Layout, r *rand.Rand) Set {
	var s Set
	for _, g := range p {
		inst, err := mask.Training(g, l, r)
		if err != nil {
			continue
		}
		s.Append(g.ID, inst)
	}
	return s
}

// BuildEvaluation creates one instance per known position of every genome.
func BuildEvaluation(p genome.Pool, l tensor.Layout) Set {
	var s Set
	for _, g := range p {
		for _, inst := range mask.Evaluation(g, l) {
			s.Append(g.ID, inst)
		}
	}
	return s
}

// Split takes the first int(portion*len) genomes as the training portion and
// the rest as the held-out portion. Shuffle p first; the split itself is
// deterministic.
func Split(p genome.Pool, portion float64) (train, heldout genome.Pool, err error) {
	if portion <= 0 || portion > 1 {
		return nil, nil, fmt.Errorf("split: portion %g outside (0,1]", portion)
	}
	n := int(portion * float64(len(p)))
	return p[:n:n], p[n:], nil
}
