package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/genetable"
	"github.com/phynteny/phynteny-go/internal/model"
	"github.com/phynteny/phynteny-go/internal/output"
	"github.com/phynteny/phynteny-go/internal/predict"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict categories of unknown genes",
		Long: `Mask each gene of unknown function in turn, score it with every model
and accept the top category when its averaged score reaches the category
threshold. Genomes with no unknown genes, or more genes than the models
accept, are written unchanged.`,
		Example: `  phynteny predict -i genes.tsv -m models/ --thresholds thresholds.yaml
  phynteny predict -i genes.tsv -m models/phynteny.model --thresholds t.yaml -o predictions.tsv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "input", "models", "thresholds"); err != nil {
				return err
			}
			return runPredict(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "Gene table (tab-separated, optionally gzipped; '-' for stdin)")
	f.StringP("annotations", "a", "", "PHROG annotation table (default: downloaded table)")
	f.StringP("models", "m", "", "Model file or directory of *.model files")
	f.String("thresholds", "", "YAML table of category name to score threshold")
	f.String("names", "", "YAML table overriding category display names")
	f.String("features", "", "Feature mode of the models (default: inferred from model width)")
	f.StringP("output", "o", "", "Output file (default: stdout)")
	f.Int("workers", 0, "Genomes predicted in parallel (0 = one per CPU)")
	f.Int("cache-size", predict.DefaultCacheSize, "Score vectors kept in memory (0 disables)")
	f.String("db", "", "DuckDB database receiving predictions")
	return cmd
}

func loadModels(path string) ([]model.Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	if !info.IsDir() {
		m, err := model.Load(path)
		if err != nil {
			return nil, err
		}
		return []model.Model{m}, nil
	}
	models, err := model.LoadDir(path)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no *%s files in %s", model.Extension, path)
	}
	return models, nil
}

func runPredict(cmd *cobra.Command) error {
	enc, _, err := loadEncoder()
	if err != nil {
		return err
	}

	names := category.DefaultNames()
	if path := viper.GetString("names"); path != "" {
		if names, err = category.LoadNames(path); err != nil {
			return err
		}
	}
	thresholds, err := category.LoadThresholds(viper.GetString("thresholds"), names)
	if err != nil {
		return err
	}

	models, err := loadModels(viper.GetString("models"))
	if err != nil {
		return err
	}
	opts := []predict.Option{
		predict.WithLogger(logger),
		predict.WithCacheSize(viper.GetInt("cache-size")),
	}
	if s := viper.GetString("features"); s != "" {
		mode, err := tensor.ParseFeatureMode(s)
		if err != nil {
			return err
		}
		opts = append(opts, predict.WithFeatureMode(mode))
	}
	predictor, err := predict.New(models, enc, thresholds, opts...)
	if err != nil {
		return err
	}

	input := viper.GetString("input")
	genomes, err := genetable.ReadPool(input, enc)
	if err != nil {
		return err
	}
	logger.Info("predicting",
		zap.String("input", input),
		zap.Int("genomes", len(genomes)),
		zap.Int("models", len(models)))

	results, err := predictor.PredictPool(cmd.Context(), genomes, viper.GetInt("workers"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path := viper.GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := output.NewTabWriter(out, names)
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	skipped, found, unknown := 0, 0, 0
	for i, r := range results {
		if err := w.Write(genomes[i], r); err != nil {
			return fmt.Errorf("write predictions: %w", err)
		}
		if r.Skip != "" {
			skipped++
		}
		found += r.Found()
		unknown += len(r.Predicted)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	if dbPath := viper.GetString("db"); dbPath != "" {
		store, err := duckdb.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		runID := uuid.NewString()
		if err := store.WritePredictions(runID, results); err != nil {
			return fmt.Errorf("record predictions: %w", err)
		}
		logger.Info("predictions recorded", zap.String("db", dbPath), zap.String("run_id", runID))
	}

	logger.Info("prediction complete",
		zap.Int("genomes", len(results)),
		zap.Int("skipped", skipped),
		zap.Int("masked", unknown),
		zap.Int("found", found))
	return nil
}
