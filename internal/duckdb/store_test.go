package duckdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/crossval"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/predict"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPool() genome.Pool {
	return genome.Pool{
		{ID: "phage_a", Genes: []genome.Gene{
			{Annotation: "1", Category: category.Integration, Strand: genome.Forward, Start: 1, End: 900},
			{Annotation: "", Category: category.Unknown, Strand: genome.Reverse, Start: 950, End: 1400},
		}},
		{ID: "phage_b", Genes: []genome.Gene{
			{Annotation: "9", Category: category.Tail, Strand: genome.Forward, Start: 10, End: 300},
		}},
	}
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "phynteny.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteGenes("all_data", testPool()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	p, err := s.LoadGenes("all_data")
	require.NoError(t, err)
	assert.Equal(t, testPool(), p)
}

func TestWriteAndLoadGenes(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.WriteGenes("all_data", testPool()))
	require.NoError(t, s.WriteGenes("dereplicated", testPool()[:1]))

	p, err := s.LoadGenes("all_data")
	require.NoError(t, err)
	assert.Equal(t, testPool(), p)

	p, err = s.LoadGenes("dereplicated")
	require.NoError(t, err)
	assert.Equal(t, testPool()[:1], p)

	// Rewriting a source replaces it.
	require.NoError(t, s.WriteGenes("all_data", testPool()[1:]))
	p, err = s.LoadGenes("all_data")
	require.NoError(t, err)
	assert.Equal(t, []string{"phage_b"}, p.IDs())

	counts, err := s.CategoryCounts("dereplicated")
	require.NoError(t, err)
	assert.Equal(t, map[category.Category]int{category.Integration: 1, category.Unknown: 1}, counts)
}

func TestLoadGenesEmpty(t *testing.T) {
	s := openInMemory(t)
	p, err := s.LoadGenes("missing")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestWriteReport(t *testing.T) {
	s := openInMemory(t)
	report := crossval.Report{
		RunID: "run-1",
		Folds: []crossval.FoldResult{
			{Fold: 0, Status: crossval.StatusOK, Stage: crossval.StageDone, TrainSize: 4, ValSize: 2,
				Evaluated: 8, Correct: 6, Accuracy: 0.75, Epochs: 3, ValLoss: 0.4, HeldOut: []string{"g0", "g2"}},
			{Fold: 1, Status: crossval.StatusFailed, Stage: crossval.StageTrain, Err: "train fold 1: diverged",
				HeldOut: []string{"g1", "g3"}},
		},
		Succeeded:    1,
		Failed:       1,
		MeanAccuracy: 0.75,
	}
	require.NoError(t, s.WriteReport(report))

	folds, err := s.FoldResults("run-1")
	require.NoError(t, err)
	assert.Equal(t, report.Folds, folds)

	ids, err := s.HeldOut("run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g3"}, ids)

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunSummary{RunID: "run-1", Folds: 2, Succeeded: 1, Failed: 1, MeanAccuracy: 0.75}, runs[0])

	// Run IDs are unique.
	assert.Error(t, s.WriteReport(report))
}

func TestWritePredictions(t *testing.T) {
	s := openInMemory(t)
	results := []predict.Result{
		{GenomeID: "phage_a", Predicted: []predict.Call{
			{Position: 3, Category: category.Tail, Score: 0.4},
			{Position: 1, Category: category.Lysis, Score: 0.9, Accepted: true},
		}},
		{GenomeID: "phage_b", Skip: predict.ReasonFullyAnnotated},
	}
	require.NoError(t, s.WritePredictions("run-2", results))

	calls, err := s.Predictions("run-2", "phage_a")
	require.NoError(t, err)
	assert.Equal(t, []predict.Call{
		{Position: 1, Category: category.Lysis, Score: 0.9, Accepted: true},
		{Position: 3, Category: category.Tail, Score: 0.4},
	}, calls)

	calls, err = s.Predictions("run-2", "phage_b")
	require.NoError(t, err)
	assert.Empty(t, calls)

	require.NoError(t, s.WritePredictions("run-3", nil))
}
