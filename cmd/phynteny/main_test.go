package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/pool"
)

// runCLI executes the command line with fresh global configuration.
func runCLI(t *testing.T, args ...string) int {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return run(args)
}

// writeAnnotationTable maps phrog_N to category N for the nine named categories.
func writeAnnotationTable(t *testing.T, dir string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("phrog\tcolor\tannot\tcategory\n")
	for _, c := range category.Named() {
		fmt.Fprintf(&sb, "%d\t#c9c9c9\tprotein %d\t%s\n", int(c), int(c), c.String())
	}
	path := filepath.Join(dir, "phrog_annot.tsv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

// writeGeneTable writes 12 genomes that lead with an integrase, carry four
// further named categories and end with an unknown gene.
func writeGeneTable(t *testing.T, dir string) (string, int) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("genome_id\tannotation\tstrand\tstart\tend\n")
	genes := 0
	for i := 0; i < 12; i++ {
		annotations := []string{"phrog_1"}
		for j := 0; j < 4; j++ {
			annotations = append(annotations, fmt.Sprintf("phrog_%d", 2+(i+j)%8))
		}
		if i >= 8 {
			annotations = append(annotations, "phrog_9")
		}
		annotations = append(annotations, "No_PHROG")
		for j, a := range annotations {
			strand := "+"
			if j%3 == 2 {
				strand = "-"
			}
			fmt.Fprintf(&sb, "phage%02d\t%s\t%s\t%d\t%d\n", i, a, strand, j*1000+1, j*1000+850)
			genes++
		}
	}
	path := filepath.Join(dir, "genes.tsv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path, genes
}

func writeThresholds(t *testing.T, dir string) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range category.Named() {
		fmt.Fprintf(&sb, "%q: 0.0\n", c.String())
	}
	path := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	annot := writeAnnotationTable(t, dir)
	genes, geneCount := writeGeneTable(t, dir)
	prefix := filepath.Join(dir, "data")
	db := filepath.Join(dir, "results.duckdb")

	require.Equal(t, ExitSuccess, runCLI(t, "generate", "-i", genes, "-a", annot, "-p", prefix,
		"--cache", filepath.Join(dir, "cache"), "--db", db))
	out := pool.Outputs(prefix)
	all, err := pool.Read(out.AllData())
	require.NoError(t, err)
	assert.Len(t, all, 12)
	derep, err := pool.Read(out.Dereplicated())
	require.NoError(t, err)
	assert.Len(t, derep, 12)
	assert.Equal(t, category.Integration, derep[0].Genes[0].Category)

	// A second run is served from the pool cache.
	require.Equal(t, ExitSuccess, runCLI(t, "generate", "-i", genes, "-a", annot, "-p", prefix,
		"--cache", filepath.Join(dir, "cache")))

	modelPrefix := filepath.Join(dir, "single")
	require.Equal(t, ExitSuccess, runCLI(t, "train", "-t", out.Dereplicated(), "-o", modelPrefix,
		"--epochs", "3", "--seed", "5"))
	single := pool.Outputs(modelPrefix)
	assert.FileExists(t, single.Model())
	assert.FileExists(t, single.History())
	heldout, err := pool.ReadIDs(single.TestIDs())
	require.NoError(t, err)
	assert.Len(t, heldout, 6)

	cvPrefix := filepath.Join(dir, "cv")
	require.Equal(t, ExitSuccess, runCLI(t, "kfold", "-t", out.Dereplicated(), "-o", cvPrefix,
		"-k", "3", "--epochs", "2", "--workers", "2", "--db", db))
	cv := pool.Outputs(cvPrefix)
	assert.FileExists(t, cv.KFoldMetrics())
	for fold := 0; fold < 3; fold++ {
		assert.FileExists(t, cv.FoldModel(fold))
		ids, err := pool.ReadIDs(cv.FoldTestIDs(fold))
		require.NoError(t, err)
		assert.Len(t, ids, 4)
	}

	predictions := filepath.Join(dir, "predictions.tsv")
	require.Equal(t, ExitSuccess, runCLI(t, "predict", "-i", genes, "-a", annot,
		"-m", single.Model(), "--thresholds", writeThresholds(t, dir), "-o", predictions, "--db", db))
	data, err := os.ReadFile(predictions)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, geneCount+1)
	assert.True(t, strings.HasPrefix(lines[0], "genome_id\t"))

	store, err := duckdb.Open(db)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Folds)
	exported, err := store.LoadGenes("dereplicated")
	require.NoError(t, err)
	assert.Len(t, exported, 12)
}

func TestTrainFromDatabase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	annot := writeAnnotationTable(t, dir)
	genes, _ := writeGeneTable(t, dir)
	prefix := filepath.Join(dir, "data")
	db := filepath.Join(dir, "pools.duckdb")
	cache := filepath.Join(dir, "cache")

	require.Equal(t, ExitSuccess, runCLI(t, "generate", "-i", genes, "-a", annot, "-p", prefix,
		"--cache", cache, "--db", db))
	require.Equal(t, ExitSuccess, runCLI(t, "generate", "-i", genes, "-a", annot, "-p", prefix,
		"--cache", cache, "--refresh-cache"))

	holdout := filepath.Join(dir, "holdout.txt")
	require.NoError(t, os.WriteFile(holdout, []byte("phage00\nphage01\nmissing\n"), 0644))
	fromDB := filepath.Join(dir, "fromdb")
	require.Equal(t, ExitSuccess, runCLI(t, "train", "--db", db, "--source", "dereplicated",
		"--holdout", holdout, "-o", fromDB, "--epochs", "2"))
	ids, err := pool.ReadIDs(pool.Outputs(fromDB).TestIDs())
	require.NoError(t, err)
	assert.Equal(t, []string{"phage00", "phage01"}, ids)

	// Genomes 8..11 carry seven genes and do not fit a six-gene layout.
	short := filepath.Join(dir, "short")
	require.Equal(t, ExitSuccess, runCLI(t, "train", "-t", pool.Outputs(prefix).Dereplicated(),
		"--max-genes", "6", "-o", short, "--epochs", "2"))
	ids, err = pool.ReadIDs(pool.Outputs(short).TestIDs())
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	for _, id := range ids {
		assert.NotContains(t, []string{"phage08", "phage09", "phage10", "phage11"}, id)
	}
	assert.Equal(t, ExitError, runCLI(t, "train", "-t", pool.Outputs(prefix).Dereplicated(),
		"--max-genes", "5", "-o", short))

	cv := filepath.Join(dir, "cv")
	require.Equal(t, ExitSuccess, runCLI(t, "kfold", "--db", db, "--source", "dereplicated",
		"-k", "2", "--epochs", "1", "-o", cv))
	store, err := duckdb.Open(db)
	require.NoError(t, err)
	runs, err := store.Runs()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)

	assert.Equal(t, ExitSuccess, runCLI(t, "report", "--db", db))
	assert.Equal(t, ExitSuccess, runCLI(t, "report", "--db", db, "--run", runs[0].RunID))
	assert.Equal(t, ExitSuccess, runCLI(t, "report", "--db", db, "--source", "dereplicated"))
	assert.Equal(t, ExitError, runCLI(t, "report", "--db", db, "--run", "missing"))
	assert.Equal(t, ExitError, runCLI(t, "report", "--db", db, "--source", "missing"))
	assert.Equal(t, ExitError, runCLI(t, "train", "--db", db, "--source", "missing", "-o", short))
}

func TestLogSkipsNamesEveryGenome(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger
	logger = zap.New(core)
	t.Cleanup(func() { logger = prev })

	logSkips([]genome.Skip{
		{GenomeID: "a", Reason: genome.ReasonDuplicate},
		{GenomeID: "b", Reason: genome.ReasonTooManyGenes},
		{GenomeID: "c", Reason: genome.ReasonDuplicate},
	})

	dropped := logs.FilterMessage("genome dropped")
	require.Equal(t, 3, dropped.Len())
	for i, want := range []string{"a", "b", "c"} {
		entry := dropped.All()[i]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, want, entry.ContextMap()["genome"])
	}
	assert.Equal(t, 2, logs.FilterMessage("genomes dropped").Len())
}

func TestUsageErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.Equal(t, ExitUsage, runCLI(t, "train"))
	assert.Equal(t, ExitUsage, runCLI(t, "generate", "--bogus"))
	assert.Equal(t, ExitUsage, runCLI(t, "predict", "-i", "genes.tsv"))
	assert.Equal(t, ExitUsage, runCLI(t, "train", "--source", "dereplicated", "-o", "x"))
	assert.Equal(t, ExitUsage, runCLI(t, "report"))
	assert.Equal(t, ExitSuccess, runCLI(t, "--version"))
}

func TestMissingFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	// No annotation table downloaded yet.
	genes, _ := writeGeneTable(t, dir)
	assert.Equal(t, ExitError, runCLI(t, "generate", "-i", genes, "-p", filepath.Join(dir, "x")))

	annot := writeAnnotationTable(t, dir)
	assert.Equal(t, ExitError, runCLI(t, "generate", "-i", filepath.Join(dir, "missing.tsv"), "-a", annot))
	assert.Equal(t, ExitError, runCLI(t, "train", "-t", filepath.Join(dir, "missing.gob"), "-o", "x"))
	assert.Equal(t, ExitError, runCLI(t, "predict", "-i", genes, "-a", annot,
		"-m", dir, "--thresholds", writeThresholds(t, dir)))
}

func TestInvalidFeatureMode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	annot := writeAnnotationTable(t, dir)
	genes, _ := writeGeneTable(t, dir)
	prefix := filepath.Join(dir, "data")
	require.Equal(t, ExitSuccess, runCLI(t, "generate", "-i", genes, "-a", annot, "-p", prefix))

	assert.Equal(t, ExitError, runCLI(t, "train", "-t", pool.Outputs(prefix).Dereplicated(),
		"-o", filepath.Join(dir, "m"), "--features", "codons"))
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	table := "phrog\tcolor\tannot\tcategory\n1\t#c9c9c9\tintegrase\tintegration and excision\n"
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, table)
	}))
	defer srv.Close()

	require.Equal(t, ExitSuccess, runCLI(t, "download", "--output", dir, "--url", srv.URL))
	data, err := os.ReadFile(filepath.Join(dir, category.AnnotationTableName()))
	require.NoError(t, err)
	assert.Equal(t, table, string(data))

	require.Equal(t, ExitSuccess, runCLI(t, "download", "--output", dir, "--url", srv.URL))
	assert.Equal(t, 1, requests)

	require.Equal(t, ExitSuccess, runCLI(t, "download", "--output", dir, "--url", srv.URL, "--force"))
	assert.Equal(t, 2, requests)

	failing := httptest.NewServer(http.NotFoundHandler())
	defer failing.Close()
	assert.Equal(t, ExitError, runCLI(t, "download", "--output", t.TempDir(), "--url", failing.URL))
}

func TestConfigSetGet(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfg := filepath.Join(dir, "phynteny.yaml")

	require.Equal(t, ExitSuccess, runCLI(t, "--config", cfg, "config", "set", "epochs", "7"))
	data, err := os.ReadFile(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "epochs: 7")

	assert.Equal(t, ExitSuccess, runCLI(t, "--config", cfg, "config", "get", "epochs"))
	assert.Equal(t, ExitError, runCLI(t, "--config", cfg, "config", "get", "missing"))
	assert.Equal(t, ExitSuccess, runCLI(t, "--config", cfg, "config"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}
