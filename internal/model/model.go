// Package model defines the contract between the pipeline and the sequence
// model: a trainer turning masked training sets into a model, and a model
// scoring batches of masked instances. A softmax baseline implements both.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/phynteny/phynteny-go/internal/dataset"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

// ErrDiverged is returned when training produces a non-finite loss.
var ErrDiverged = errors.New("training diverged")

// Model scores masked instances. Predict returns one probability vector of
// width category.NumClasses per instance.
type Model interface {
	InputShape() (maxLength, width int)
	Predict(ctx context.Context, x tensor.Batch) ([][]float64, error)
}

// Trainer fits a model on a training set, monitoring a validation set.
type Trainer interface {
	Train(ctx context.Context, train, val dataset.Set, cfg Config) (Model, History, error)
}

// Config holds training hyperparameters.
type Config struct {
	HiddenUnits      int     `mapstructure:"hidden_units"`
	BatchSize        int     `mapstructure:"batch_size"`
	Epochs           int     `mapstructure:"epochs"`
	Dropout          float64 `mapstructure:"dropout"`
	RecurrentDropout float64 `mapstructure:"recurrent_dropout"`
	LearningRate     float64 `mapstructure:"learning_rate"`
	EarlyStopping    bool    `mapstructure:"early_stopping"`
	Patience         int     `mapstructure:"patience"`
	MinDelta         float64 `mapstructure:"min_delta"`
}

// DefaultConfig returns the default hyperparameters.
func DefaultConfig() Config {
	return Config{
		HiddenUnits:      20,
		BatchSize:        128,
		Epochs:           120,
		Dropout:          0.2,
		RecurrentDropout: 0,
		LearningRate:     0.001,
		EarlyStopping:    true,
		Patience:         3,
		MinDelta:         1e-5,
	}
}

// Validate checks that the hyperparameters are usable.
func (c Config) Validate() error {
	switch {
	case c.HiddenUnits < 1:
		return fmt.Errorf("hidden units must be positive, got %d", c.HiddenUnits)
	case c.BatchSize < 1:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.Epochs < 1:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0,1), got %g", c.Dropout)
	case c.RecurrentDropout < 0 || c.RecurrentDropout >= 1:
		return fmt.Errorf("recurrent dropout must be in [0,1), got %g", c.RecurrentDropout)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	case c.EarlyStopping && c.Patience < 1:
		return fmt.Errorf("patience must be positive with early stopping, got %d", c.Patience)
	case c.MinDelta < 0:
		return fmt.Errorf("min delta must not be negative, got %g", c.MinDelta)
	}
	return nil
}

// Epoch records the metrics of one training epoch.
type Epoch struct {
	Epoch       int     `csv:"epoch"`
	Loss        float64 `csv:"loss"`
	Accuracy    float64 `csv:"accuracy"`
	ValLoss     float64 `csv:"val_loss"`
	ValAccuracy float64 `csv:"val_accuracy"`
}

// History is the per-epoch training record.
type History struct {
	Epochs       []Epoch
	BestEpoch    int
	StoppedEarly bool
}

// Last returns the final epoch, or a zero Epoch for an empty history.
func (h History) Last() Epoch {
	if len(h.Epochs) == 0 {
		return Epoch{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// ArgMax returns the index of the largest score.
func ArgMax(s []float64) int {
	best := 0
	for i, v := range s {
		if v > s[best] {
			best = i
		}
	}
	return best
}
