// Package genome holds the gene-order representation of phage genomes and the
// pool-level transformations applied before training: orientation, dereplication,
// filtering and shuffling.
package genome

import (
	"strconv"
	"strings"

	"github.com/phynteny/phynteny-go/internal/category"
)

// Strand values.
const (
	Forward int8 = 1
	Reverse int8 = -1
)

// Gene is one gene record in genomic order.
type Gene struct {
	Annotation string            // raw annotation identifier, e.g. "phrog_12"
	Category   category.Category // encoded function
	Strand     int8              // +1 or -1
	Start      int64             // 1-based start coordinate
	End        int64             // 1-based end coordinate
}

// Length returns the gene length in base pairs.
func (g Gene) Length() int64 {
	if g.End < g.Start {
		return g.Start - g.End + 1
	}
	return g.End - g.Start + 1
}

// Genome is an ordered gene list keyed by a stable identifier.
type Genome struct {
	ID    string
	Genes []Gene
}

// Len returns the number of genes.
func (g Genome) Len() int {
	return len(g.Genes)
}

// Categories returns the category of each gene in order.
func (g Genome) Categories() []category.Category {
	out := make([]category.Category, len(g.Genes))
	for i, gene := range g.Genes {
		out[i] = gene.Category
	}
	return out
}

// UnknownPositions returns the indices of genes with unknown function.
func (g Genome) UnknownPositions() []int {
	var out []int
	for i, gene := range g.Genes {
		if gene.Category == category.Unknown {
			out = append(out, i)
		}
	}
	return out
}

// DistinctKnown returns the number of distinct named categories in the genome.
func (g Genome) DistinctKnown() int {
	var seen [category.NumCategories]bool
	n := 0
	for _, gene := range g.Genes {
		if gene.Category.Known() && !seen[gene.Category] {
			seen[gene.Category] = true
			n++
		}
	}
	return n
}

// Signature returns the category-order signature used as a dereplication key.
func (g Genome) Signature() string {
	var sb strings.Builder
	sb.Grow(3 * len(g.Genes))
	for i, gene := range g.Genes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(gene.Category)))
	}
	return sb.String()
}

// Encode sets every gene's category from its annotation identifier.
func (g Genome) Encode(enc *category.Encoder) Genome {
	out := Genome{ID: g.ID, Genes: make([]Gene, len(g.Genes))}
	for i, gene := range g.Genes {
		gene.Category = enc.Encode(gene.Annotation)
		out.Genes[i] = gene
	}
	return out
}

// Clone returns a deep copy.
func (g Genome) Clone() Genome {
	genes := make([]Gene, len(g.Genes))
	copy(genes, g.Genes)
	return Genome{ID: g.ID, Genes: genes}
}

// Pool is the ordered training pool. It is treated as immutable once built;
// every transformation returns a new slice.
type Pool []Genome

// IDs returns the genome identifiers in pool order.
func (p Pool) IDs() []string {
	ids := make([]string, len(p))
	for i, g := range p {
		ids[i] = g.ID
	}
	return ids
}

// ByID returns the genome with the given identifier.
func (p Pool) ByID(id string) (Genome, bool) {
	for _, g := range p {
		if g.ID == id {
			return g, true
		}
	}
	return Genome{}, false
}

// Encode applies the encoder to every genome.
func (p Pool) Encode(enc *category.Encoder) Pool {
	out := make(Pool, len(p))
	for i, g := range p {
		out[i] = g.Encode(enc)
	}
	return out
}
