package duckdb

import (
	"fmt"

	"github.com/phynteny/phynteny-go/internal/crossval"
)

// WriteReport records a cross-validation run, its folds and held-out genomes
// in one transaction.
func (s *Store) WriteReport(r crossval.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, int64(len(r.Folds)), int64(r.Succeeded), int64(r.Failed),
		r.MeanAccuracy, r.StdAccuracy); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, f := range r.Folds {
		if _, err := tx.Exec(`INSERT INTO fold_results VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, int64(f.Fold), string(f.Status), string(f.Stage), f.Err,
			int64(f.TrainSize), int64(f.ValSize), int64(f.Evaluated), int64(f.Correct),
			f.Accuracy, int64(f.Epochs), f.ValLoss); err != nil {
			return fmt.Errorf("insert fold result: %w", err)
		}
		for i, id := range f.HeldOut {
			if _, err := tx.Exec(`INSERT INTO heldout_genomes VALUES (?, ?, ?, ?)`,
				r.RunID, int64(f.Fold), int64(i), id); err != nil {
				return fmt.Errorf("insert held-out genome: %w", err)
			}
		}
	}
	return tx.Commit()
}

// FoldResults returns the recorded folds of a run in fold order, with their
// held-out genomes. Training histories are not stored.
func (s *Store) FoldResults(runID string) ([]crossval.FoldResult, error) {
	rows, err := s.db.Query(`SELECT
		fold, status, stage, error_message, train_size, val_size, evaluated, correct,
		accuracy, epochs, val_loss
		FROM fold_results
		WHERE run_id=?
		ORDER BY fold`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fold results: %w", err)
	}
	defer rows.Close()

	var folds []crossval.FoldResult
	for rows.Next() {
		var f crossval.FoldResult
		var status, stage string
		if err := rows.Scan(&f.Fold, &status, &stage, &f.Err, &f.TrainSize, &f.ValSize,
			&f.Evaluated, &f.Correct, &f.Accuracy, &f.Epochs, &f.ValLoss); err != nil {
			return nil, fmt.Errorf("scan fold result: %w", err)
		}
		f.Status = crossval.Status(status)
		f.Stage = crossval.Stage(stage)
		folds = append(folds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fold results: %w", err)
	}

	for i := range folds {
		if folds[i].HeldOut, err = s.HeldOut(runID, folds[i].Fold); err != nil {
			return nil, err
		}
	}
	return folds, nil
}

// HeldOut returns the held-out genome identifiers of one fold in partition order.
func (s *Store) HeldOut(runID string, fold int) ([]string, error) {
	rows, err := s.db.Query(`SELECT genome_id FROM heldout_genomes
		WHERE run_id=? AND fold=?
		ORDER BY ordinal`, runID, int64(fold))
	if err != nil {
		return nil, fmt.Errorf("query held-out genomes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan held-out genome: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate held-out genomes: %w", err)
	}
	return ids, nil
}

// RunSummary is the aggregate row of a run.
type RunSummary struct {
	RunID        string
	Folds        int
	Succeeded    int
	Failed       int
	MeanAccuracy float64
	StdAccuracy  float64
}

// Runs lists every recorded run.
func (s *Store) Runs() ([]RunSummary, error) {
	rows, err := s.db.Query(`SELECT run_id, folds, succeeded, failed, mean_accuracy, std_accuracy
		FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Folds, &r.Succeeded, &r.Failed, &r.MeanAccuracy, &r.StdAccuracy); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
