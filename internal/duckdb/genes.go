package duckdb

import (
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
)

// WriteGenes exports every gene of p under the given source label
// (e.g. "all_data" or "dereplicated"), replacing an earlier export.
func (s *Store) WriteGenes(source string, p genome.Pool) error {
	if _, err := s.db.Exec("DELETE FROM genes WHERE source=?", source); err != nil {
		return fmt.Errorf("clear genes: %w", err)
	}
	if len(p) == 0 {
		return nil
	}
	return s.appendRows("genes", func(a *goduckdb.Appender) error {
		for i, g := range p {
			for pos, gene := range g.Genes {
				if err := a.AppendRow(
					source, int64(i), g.ID, int64(pos), gene.Annotation,
					int64(gene.Category), int64(gene.Strand), gene.Start, gene.End,
				); err != nil {
					return fmt.Errorf("append gene: %w", err)
				}
			}
		}
		return nil
	})
}

// LoadGenes reads a pool exported by WriteGenes, in export order.
func (s *Store) LoadGenes(source string) (genome.Pool, error) {
	rows, err := s.db.Query(`SELECT
		genome_index, genome_id, annotation, category, strand, start_pos, end_pos
		FROM genes
		WHERE source=?
		ORDER BY genome_index, position`, source)
	if err != nil {
		return nil, fmt.Errorf("query genes: %w", err)
	}
	defer rows.Close()

	var p genome.Pool
	last := int64(-1)
	for rows.Next() {
		var idx, cat, strand int64
		var id string
		var gene genome.Gene
		if err := rows.Scan(&idx, &id, &gene.Annotation, &cat, &strand, &gene.Start, &gene.End); err != nil {
			return nil, fmt.Errorf("scan gene: %w", err)
		}
		gene.Category = category.Category(cat)
		gene.Strand = int8(strand)
		if idx != last {
			p = append(p, genome.Genome{ID: id})
			last = idx
		}
		p[len(p)-1].Genes = append(p[len(p)-1].Genes, gene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genes: %w", err)
	}
	return p, nil
}

// CategoryCounts returns the number of genes per category for a source.
func (s *Store) CategoryCounts(source string) (map[category.Category]int, error) {
	rows, err := s.db.Query(`SELECT category, count(*) FROM genes WHERE source=? GROUP BY category`, source)
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[category.Category]int)
	for rows.Next() {
		var cat, n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts[category.Category(cat)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category counts: %w", err)
	}
	return counts, nil
}
