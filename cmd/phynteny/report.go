package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/crossval"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/output"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize pools and cross-validation runs stored in a database",
		Long: `Print tab-separated summaries from a database written with --db.

Without options every cross-validation run is listed. --run prints the folds
of one run, --source the number of genes per category in an exported pool.`,
		Example: `  phynteny report --db results.duckdb
  phynteny report --db results.duckdb --run 6f1c...
  phynteny report --db results.duckdb --source dereplicated`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "db"); err != nil {
				return err
			}
			return runReport(cmd)
		},
	}

	f := cmd.Flags()
	f.String("db", "", "DuckDB database written by generate, kfold or predict")
	f.String("run", "", "Print the folds of this cross-validation run")
	f.String("source", "", "Print category counts of this exported pool")
	return cmd
}

func runReport(cmd *cobra.Command) error {
	store, err := duckdb.Open(viper.GetString("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if source := viper.GetString("source"); source != "" {
		counts, err := store.CategoryCounts(source)
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			return fmt.Errorf("no genes exported as %q", source)
		}
		return output.WriteCategoryCounts(out, category.DefaultNames(), counts)
	}

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	runID := viper.GetString("run")
	if runID == "" {
		return output.WriteRuns(out, runs)
	}

	report := crossval.Report{RunID: runID}
	found := false
	for _, r := range runs {
		if r.RunID == runID {
			report.Succeeded, report.Failed = r.Succeeded, r.Failed
			report.MeanAccuracy, report.StdAccuracy = r.MeanAccuracy, r.StdAccuracy
			found = true
		}
	}
	if !found {
		return fmt.Errorf("run %q not recorded", runID)
	}
	if report.Folds, err = store.FoldResults(runID); err != nil {
		return err
	}
	return output.WriteFoldMetrics(out, report)
}
