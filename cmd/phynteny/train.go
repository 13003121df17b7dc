package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/dataset"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/model"
	"github.com/phynteny/phynteny-go/internal/output"
	"github.com/phynteny/phynteny-go/internal/pool"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train one model on a training pool",
		Long: `Shuffle the pool, hold out the tail portion for validation and train a
single model on masked instances of the rest. A training failure is fatal.

Outputs:
  <prefix>.model          the trained model
  <prefix>_test_ids.txt   held-out genome identifiers
  <prefix>_history.tsv    per-epoch loss and accuracy`,
		Example: `  phynteny train -t data_dereplicated.gob -o models/phynteny
  phynteny train -t data_dereplicated.gob --features strand --epochs 60 -o strand
  phynteny train --db results.duckdb --source dereplicated --holdout test_ids.txt -o models/phynteny`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "output"); err != nil {
				return err
			}
			if err := requirePool(cmd); err != nil {
				return err
			}
			return runTrain(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("pool", "t", "", "Training pool written by generate")
	f.StringP("annotations", "a", "", "Re-encode the pool with this PHROG annotation table")
	f.StringP("output", "o", "", "Output prefix")
	f.Float64("portion", dataset.DefaultPortion, "Fraction of the shuffled pool used for training")
	f.String("holdout", "", "Hold out the genomes listed in this file instead of the shuffled tail")
	f.String("db", "", "DuckDB database holding pools exported by generate")
	f.String("source", "", "Read the pool exported under this name from --db instead of --pool")
	addLayoutFlags(cmd)
	addModelFlags(cmd)
	return cmd
}

// requirePool checks that a training pool is named, either as a file with
// --pool or as an exported source in --db.
func requirePool(cmd *cobra.Command) error {
	if viper.GetString("source") != "" {
		return requireFlags(cmd, "db")
	}
	return requireFlags(cmd, "pool")
}

// loadPool reads the pool from --pool, or --source in --db, and re-encodes it
// when --annotations is given. Genomes longer than the layout are dropped.
func loadPool(l tensor.Layout) (genome.Pool, error) {
	var p genome.Pool
	var err error
	if source := viper.GetString("source"); source != "" {
		p, err = loadStoredPool(viper.GetString("db"), source)
	} else {
		p, err = pool.Read(viper.GetString("pool"))
	}
	if err != nil {
		return nil, err
	}
	if viper.GetString("annotations") != "" {
		enc, _, err := loadEncoder()
		if err != nil {
			return nil, err
		}
		p = p.Encode(enc)
	}

	kept, skips := genome.Filter(p, genome.FilterOptions{MaxGenes: l.MaxLength})
	logSkips(skips)
	if len(kept) == 0 {
		return nil, fmt.Errorf("no genome of %d has at most %d genes", len(p), l.MaxLength)
	}
	return kept, nil
}

func loadStoredPool(dbPath, source string) (genome.Pool, error) {
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	p, err := store.LoadGenes(source)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("no genomes exported as %q in %s", source, dbPath)
	}
	logger.Info("read pool from database",
		zap.String("db", dbPath),
		zap.String("source", source),
		zap.Int("genomes", len(p)))
	return p, nil
}

// splitByIDs holds out the genomes listed in path, in file order, and trains
// on the rest. Listed genomes missing from the pool are reported and skipped.
func splitByIDs(p genome.Pool, path string) (train, heldout genome.Pool, err error) {
	ids, err := pool.ReadIDs(path)
	if err != nil {
		return nil, nil, err
	}
	held := make(map[string]bool, len(ids))
	for _, id := range ids {
		g, ok := p.ByID(id)
		if !ok {
			logger.Warn("held-out genome not in pool", zap.String("genome", id))
			continue
		}
		if !held[id] {
			heldout = append(heldout, g)
			held[id] = true
		}
	}
	for _, g := range p {
		if !held[g.ID] {
			train = append(train, g)
		}
	}
	return train, heldout, nil
}

func runTrain(cmd *cobra.Command) error {
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
	var train, heldout genome.Pool
	if path := viper.GetString("holdout"); path != "" {
		train, heldout, err = splitByIDs(genome.Shuffle(p, seed), path)
	} else {
		train, heldout, err = dataset.Split(genome.Shuffle(p, seed), viper.GetFloat64("portion"))
	}
	if err != nil {
		return err
	}
	if len(train) == 0 {
		return fmt.Errorf("training portion of %d genomes is empty", len(p))
	}

	out := pool.Outputs(viper.GetString("output"))
	if err := pool.WriteIDs(out.TestIDs(), heldout.IDs()); err != nil {
		return err
	}

	r := genome.NewRand(seed)
	trainSet := dataset.Build(train, layout, r)
	valSet := dataset.Build(heldout, layout, r)
	logger.Info("training model",
		zap.Int("train", trainSet.Len()),
		zap.Int("validation", valSet.Len()),
		zap.String("features", layout.Mode.String()),
		zap.Int("max_genes", layout.MaxLength))

	trainer := model.SoftmaxTrainer{Window: viper.GetInt("window"), Seed: seed, Logger: logger}
	m, hist, err := trainer.Train(cmd.Context(), trainSet, valSet, cfg)
	if err != nil {
		return err
	}

	if err := model.Save(out.Model(), m); err != nil {
		return err
	}
	if err := writeHistory(out.History(), hist); err != nil {
		return err
	}

	last := hist.Last()
	logger.Info("model trained",
		zap.String("model", out.Model()),
		zap.Int("epochs", len(hist.Epochs)),
		zap.Int("best_epoch", hist.BestEpoch),
		zap.Bool("stopped_early", hist.StoppedEarly),
		zap.Float64("val_loss", last.ValLoss),
		zap.Float64("val_accuracy", last.ValAccuracy))
	return nil
}

func writeHistory(path string, h model.History) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	if err := output.WriteHistory(f, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
