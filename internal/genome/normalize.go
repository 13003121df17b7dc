package genome

import "github.com/phynteny/phynteny-go/internal/category"

// DefaultLeadingWindow is the number of leading positions in which an
// integrase is accepted without re-orienting the genome.
const DefaultLeadingWindow = 1

// Normalize re-orients g so that its integrase sits near the start. If the
// first integration/excision gene lies at or beyond window, the gene order is
// reversed, every strand inverted and coordinates mirrored within the genome's
// extent, so gene lengths and the spacing between neighbours are unchanged.
// Genomes without one pass through.
func Normalize(g Genome, window int) (Genome, bool) {
	if window < 1 {
		window = DefaultLeadingWindow
	}
	first := -1
	for i, gene := range g.Genes {
		if gene.Category == category.Integration {
			first = i
			break
		}
	}
	if first < window {
		return g, false
	}

	lo, hi := g.extent()
	n := len(g.Genes)
	out := Genome{ID: g.ID, Genes: make([]Gene, n)}
	for i, gene := range g.Genes {
		gene.Strand = -gene.Strand
		gene.Start, gene.End = lo+hi-gene.End, lo+hi-gene.Start
		out.Genes[n-1-i] = gene
	}
	return out, true
}

// extent returns the lowest and highest coordinate covered by any gene.
func (g Genome) extent() (lo, hi int64) {
	for i, gene := range g.Genes {
		s, e := min(gene.Start, gene.End), max(gene.Start, gene.End)
		if i == 0 || s < lo {
			lo = s
		}
		if i == 0 || e > hi {
			hi = e
		}
	}
	return lo, hi
}

// NormalizePool normalizes every genome and returns how many were flipped.
func NormalizePool(p Pool, window int) (Pool, int) {
	out := make(Pool, len(p))
	flipped := 0
	for i, g := range p {
		var f bool
		out[i], f = Normalize(g, window)
		if f {
			flipped++
		}
	}
	return out, flipped
}
