package genome

// Skip reasons reported by DedupAndFilter.
const (
	ReasonDuplicate     = "duplicate category order"
	ReasonTooManyGenes  = "too many genes"
	ReasonTooFewClasses = "too few categories"
)

// Skip records a genome excluded from the training pool.
type Skip struct {
	GenomeID string
	Reason   string
}

// FilterOptions bounds which genomes enter the training pool. Zero values
// disable the corresponding check.
type FilterOptions struct {
	MaxGenes      int // drop genomes with more genes than this
	MinCategories int // drop genomes with fewer distinct named categories
}

// Dereplicate keeps the first genome seen for each category-order signature.
// The result depends on input order.
func Dereplicate(p Pool) (Pool, []Skip) {
	seen := make(map[string]bool, len(p))
	out := make(Pool, 0, len(p))
	var skips []Skip
	for _, g := range p {
		sig := g.Signature()
		if seen[sig] {
			skips = append(skips, Skip{GenomeID: g.ID, Reason: ReasonDuplicate})
			continue
		}
		seen[sig] = true
		out = append(out, g)
	}
	return out, skips
}

// Filter drops genomes that violate opts.
func Filter(p Pool, opts FilterOptions) (Pool, []Skip) {
	out := make(Pool, 0, len(p))
	var skips []Skip
	for _, g := range p {
		switch {
		case opts.MaxGenes > 0 && g.Len() > opts.MaxGenes:
			skips = append(skips, Skip{GenomeID: g.ID, Reason: ReasonTooManyGenes})
		case opts.MinCategories > 0 && g.DistinctKnown() < opts.MinCategories:
			skips = append(skips, Skip{GenomeID: g.ID, Reason: ReasonTooFewClasses})
		default:
			out = append(out, g)
		}
	}
	return out, skips
}

// DedupAndFilter dereplicates p and then applies opts. Every excluded genome
// is reported; nothing here is an error.
func DedupAndFilter(p Pool, opts FilterOptions) (Pool, []Skip) {
	derep, skips := Dereplicate(p)
	kept, filtered := Filter(derep, opts)
	return kept, append(skips, filtered...)
}
