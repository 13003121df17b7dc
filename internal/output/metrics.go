package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/crossval"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/model"
)

// foldRow is one line of the fold metrics table.
type foldRow struct {
	RunID     string  `csv:"run_id"`
	Fold      int     `csv:"fold"`
	Status    string  `csv:"status"`
	Stage     string  `csv:"stage"`
	Accuracy  float64 `csv:"accuracy"`
	Evaluated int     `csv:"evaluated"`
	Correct   int     `csv:"correct"`
	TrainSize int     `csv:"train_size"`
	ValSize   int     `csv:"val_size"`
	Epochs    int     `csv:"epochs"`
	ValLoss   float64 `csv:"val_loss"`
	Error     string  `csv:"error"`
}

type runRow struct {
	RunID        string  `csv:"run_id"`
	Folds        int     `csv:"folds"`
	Succeeded    int     `csv:"succeeded"`
	Failed       int     `csv:"failed"`
	MeanAccuracy float64 `csv:"mean_accuracy"`
	StdAccuracy  float64 `csv:"std_accuracy"`
}

type categoryRow struct {
	Category string `csv:"category"`
	Genes    int    `csv:"genes"`
}

func tsvWriter(w io.Writer) *gocsv.SafeCSVWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return gocsv.NewSafeCSVWriter(cw)
}

// WriteFoldMetrics writes one tab-separated row per fold of the report.
func WriteFoldMetrics(w io.Writer, r crossval.Report) error {
	rows := make([]foldRow, len(r.Folds))
	for i, f := range r.Folds {
		rows[i] = foldRow{
			RunID:     r.RunID,
			Fold:      f.Fold,
			Status:    string(f.Status),
			Stage:     string(f.Stage),
			Accuracy:  f.Accuracy,
			Evaluated: f.Evaluated,
			Correct:   f.Correct,
			TrainSize: f.TrainSize,
			ValSize:   f.ValSize,
			Epochs:    f.Epochs,
			ValLoss:   f.ValLoss,
			Error:     f.Err,
		}
	}
	if err := gocsv.MarshalCSV(rows, tsvWriter(w)); err != nil {
		return fmt.Errorf("write fold metrics: %w", err)
	}
	return nil
}

// WriteHistory writes the per-epoch training record as a tab-separated table.
func WriteHistory(w io.Writer, h model.History) error {
	epochs := h.Epochs
	if epochs == nil {
		epochs = []model.Epoch{}
	}
	if err := gocsv.MarshalCSV(epochs, tsvWriter(w)); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// ReadHistory parses a table written by WriteHistory.
func ReadHistory(r io.Reader) (model.History, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	var epochs []model.Epoch
	if err := gocsv.UnmarshalCSV(cr, &epochs); err != nil {
		return model.History{}, fmt.Errorf("read history: %w", err)
	}
	return model.History{Epochs: epochs}, nil
}

// WriteRuns writes one tab-separated row per recorded cross-validation run.
func WriteRuns(w io.Writer, runs []duckdb.RunSummary) error {
	rows := make([]runRow, len(runs))
	for i, r := range runs {
		rows[i] = runRow(r)
	}
	if err := gocsv.MarshalCSV(rows, tsvWriter(w)); err != nil {
		return fmt.Errorf("write runs: %w", err)
	}
	return nil
}

// WriteCategoryCounts writes gene counts in scheme order, Unknown first.
// Categories without genes are listed with a zero count.
func WriteCategoryCounts(w io.Writer, names category.Names, counts map[category.Category]int) error {
	rows := make([]categoryRow, 0, category.NumClasses)
	for c := category.Unknown; c < category.Masked; c++ {
		rows = append(rows, categoryRow{Category: names.Name(c), Genes: counts[c]})
	}
	if err := gocsv.MarshalCSV(rows, tsvWriter(w)); err != nil {
		return fmt.Errorf("write category counts: %w", err)
	}
	return nil
}
