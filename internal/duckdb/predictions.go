package duckdb

import (
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/predict"
)

// WritePredictions batch-inserts every call of results using the Appender API.
// Skipped genomes have no calls and add no rows.
func (s *Store) WritePredictions(runID string, results []predict.Result) error {
	n := 0
	for _, r := range results {
		n += len(r.Predicted)
	}
	if n == 0 {
		return nil
	}

	return s.appendRows("predictions", func(a *goduckdb.Appender) error {
		for _, r := range results {
			for _, c := range r.Predicted {
				if err := a.AppendRow(
					runID, r.GenomeID, int64(c.Position), int64(c.Category), c.Score, c.Accepted,
				); err != nil {
					return fmt.Errorf("append prediction: %w", err)
				}
			}
		}
		return nil
	})
}

// Predictions returns the calls recorded for one genome of a run in position order.
func (s *Store) Predictions(runID, genomeID string) ([]predict.Call, error) {
	rows, err := s.db.Query(`SELECT position, category, score, accepted
		FROM predictions
		WHERE run_id=? AND genome_id=?
		ORDER BY position`, runID, genomeID)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var calls []predict.Call
	for rows.Next() {
		var c predict.Call
		var cat int64
		if err := rows.Scan(&c.Position, &cat, &c.Score, &c.Accepted); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		c.Category = category.Category(cat)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return calls, nil
}
