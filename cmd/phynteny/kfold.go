package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/crossval"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/model"
	"github.com/phynteny/phynteny-go/internal/output"
	"github.com/phynteny/phynteny-go/internal/pool"
)

func newKFoldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kfold",
		Short: "Cross-validate models over a training pool",
		Long: `Shuffle the pool, split it round-robin into k folds and train one model
per fold on the other folds. Each fold model is scored by masking every
annotated gene of its held-out genomes. Failed folds are reported and the
remaining folds continue.

Outputs:
  <prefix>_fold<N>.model           fold models
  <prefix>_fold<N>_test_ids.txt    held-out genome identifiers
  <prefix>_fold<N>_history.tsv     per-epoch training record
  <prefix>_kfold_metrics.tsv       accuracy per fold`,
		Example: `  phynteny kfold -t data_dereplicated.gob -k 10 -o models/phynteny
  phynteny kfold -t data_dereplicated.gob -k 5 --workers 4 --db results.duckdb -o cv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "output"); err != nil {
				return err
			}
			if err := requirePool(cmd); err != nil {
				return err
			}
			return runKFold(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("pool", "t", "", "Training pool written by generate")
	f.StringP("annotations", "a", "", "Re-encode the pool with this PHROG annotation table")
	f.StringP("output", "o", "", "Output prefix")
	f.IntP("folds", "k", 10, "Number of folds")
	f.Int("workers", 1, "Folds trained in parallel (0 = one per CPU)")
	f.String("db", "", "DuckDB database receiving fold results")
	f.String("source", "", "Read the pool exported under this name from --db instead of --pool")
	addLayoutFlags(cmd)
	addModelFlags(cmd)
	return cmd
}

func runKFold(cmd *cobra.Command) error {
	layout, err := layoutFromFlags()
	if err != nil {
		return err
	}
	cfg, err := modelConfig()
	if err != nil {
		return err
	}
	p, err := loadPool(layout)
	if err != nil {
		return err
	}

	seed := viper.GetUint64("seed")
	out := pool.Outputs(viper.GetString("output"))
	opts := crossval.Options{
		Folds:   viper.GetInt("folds"),
		Layout:  layout,
		Config:  cfg,
		Trainer: model.SoftmaxTrainer{Window: viper.GetInt("window"), Seed: seed, Logger: logger},
		Seed:    seed,
		Workers: viper.GetInt("workers"),
		Logger:  logger,
		Sink: func(fold int, m model.Model, hist model.History) error {
			if err := model.Save(out.FoldModel(fold), m); err != nil {
				return err
			}
			return writeHistory(out.FoldHistory(fold), hist)
		},
	}

	report, err := crossval.Run(cmd.Context(), genome.Shuffle(p, seed), opts)
	if err != nil {
		return err
	}

	for _, f := range report.Folds {
		if err := pool.WriteIDs(out.FoldTestIDs(f.Fold), f.HeldOut); err != nil {
			return err
		}
	}
	if err := writeFoldMetrics(out.KFoldMetrics(), report); err != nil {
		return err
	}
	if dbPath := viper.GetString("db"); dbPath != "" {
		store, err := duckdb.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.WriteReport(report); err != nil {
			return fmt.Errorf("record cross-validation run: %w", err)
		}
	}

	if report.Succeeded == 0 {
		return fmt.Errorf("all %d folds failed", len(report.Folds))
	}
	logger.Info("fold metrics written",
		zap.String("metrics", out.KFoldMetrics()),
		zap.String("run_id", report.RunID))
	return nil
}

func writeFoldMetrics(path string, r crossval.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := output.WriteFoldMetrics(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
