package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/model"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

// DefaultMaxGenes is the longest genome a model accepts.
const DefaultMaxGenes = 120

// requireFlags fails with a usage error when any of keys is empty.
func requireFlags(cmd *cobra.Command, keys ...string) error {
	for _, k := range keys {
		if viper.GetString(k) == "" {
			return &usageError{command: cmd.Name(), err: fmt.Errorf("required flag --%s not set", k)}
		}
	}
	return nil
}

func addModelFlags(cmd *cobra.Command) {
	d := model.DefaultConfig()
	f := cmd.Flags()
	f.Int("hidden-units", d.HiddenUnits, "Hidden units of the sequence model")
	f.Int("batch-size", d.BatchSize, "Training batch size")
	f.Int("epochs", d.Epochs, "Maximum training epochs")
	f.Float64("dropout", d.Dropout, "Input dropout rate")
	f.Float64("recurrent-dropout", d.RecurrentDropout, "Recurrent dropout rate")
	f.Float64("learning-rate", d.LearningRate, "Learning rate")
	f.Bool("early-stopping", d.EarlyStopping, "Stop when validation loss stops improving")
	f.Int("patience", d.Patience, "Epochs without improvement before stopping")
	f.Float64("min-delta", d.MinDelta, "Minimum improvement of validation loss")
	f.Int("window", model.DefaultWindow, "Neighbouring genes read on each side of the masked gene")
	f.Uint64("seed", 42, "Random seed for shuffling, masking and training")
}

func modelConfig() (model.Config, error) {
	cfg := model.Config{
		HiddenUnits:      viper.GetInt("hidden-units"),
		BatchSize:        viper.GetInt("batch-size"),
		Epochs:           viper.GetInt("epochs"),
		Dropout:          viper.GetFloat64("dropout"),
		RecurrentDropout: viper.GetFloat64("recurrent-dropout"),
		LearningRate:     viper.GetFloat64("learning-rate"),
		EarlyStopping:    viper.GetBool("early-stopping"),
		Patience:         viper.GetInt("patience"),
		MinDelta:         viper.GetFloat64("min-delta"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("model configuration: %w", err)
	}
	return cfg, nil
}

func addLayoutFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("features", "all", "Gene features given to the model: all, strand or none")
	f.Int("max-genes", DefaultMaxGenes, "Maximum genes per genome")
	f.Bool("fixed-width", false, "Reserve every feature column regardless of --features")
}

func layoutFromFlags() (tensor.Layout, error) {
	mode, err := tensor.ParseFeatureMode(viper.GetString("features"))
	if err != nil {
		return tensor.Layout{}, err
	}
	maxGenes := viper.GetInt("max-genes")
	if maxGenes < 1 {
		return tensor.Layout{}, fmt.Errorf("max genes must be positive, got %d", maxGenes)
	}
	return tensor.Layout{MaxLength: maxGenes, Mode: mode, FixedWidth: viper.GetBool("fixed-width")}, nil
}

// annotationPath returns --annotations or the downloaded table in the data dir.
func annotationPath() (string, error) {
	if p := viper.GetString("annotations"); p != "" {
		return p, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, category.AnnotationTableName()), nil
}

func loadEncoder() (*category.Encoder, string, error) {
	path, err := annotationPath()
	if err != nil {
		return nil, "", err
	}
	enc, err := category.LoadAnnotationTable(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, path, fmt.Errorf("annotation table %s not found (run 'phynteny download' or pass --annotations): %w", path, err)
		}
		return nil, path, err
	}
	return enc, path, nil
}
