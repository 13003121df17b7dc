package model

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/dataset"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

var testLayout = tensor.Layout{MaxLength: 3, Mode: tensor.FeaturesNone}

// instance masks the middle of a three-gene genome whose flanks share neighbor.
func instance(neighbor, target category.Category) tensor.Matrix {
	g := genome.Genome{ID: "g", Genes: []genome.Gene{
		{Category: neighbor, Strand: 1, Start: 1, End: 300},
		{Category: target, Strand: 1, Start: 400, End: 900},
		{Category: neighbor, Strand: 1, Start: 1000, End: 1500},
	}}
	x := tensor.Encode(g, testLayout)
	x.MaskAt(1)
	return x
}

// separableSet maps tail neighbours to lysis and integrase neighbours to connector.
func separableSet(copies int) dataset.Set {
	var s dataset.Set
	for i := 0; i < copies; i++ {
		s.X = append(s.X, instance(category.Tail, category.Lysis), instance(category.Integration, category.Connector))
		s.Y = append(s.Y, category.Lysis, category.Connector)
	}
	return s
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.5
	cfg.Dropout = 0
	cfg.Epochs = 200
	cfg.BatchSize = 4
	cfg.EarlyStopping = false
	return cfg
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.HiddenUnits)
	assert.Equal(t, 128, cfg.BatchSize)
	assert.Equal(t, 120, cfg.Epochs)
	assert.Equal(t, 3, cfg.Patience)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"dropout one", func(c *Config) { c.Dropout = 1 }},
		{"negative learning rate", func(c *Config) { c.LearningRate = -1 }},
		{"no patience", func(c *Config) { c.Patience = 0 }},
		{"negative delta", func(c *Config) { c.MinDelta = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSoftmaxLearnsNeighbourRule(t *testing.T) {
	set := separableSet(4)
	m, hist, err := SoftmaxTrainer{Seed: 1}.Train(context.Background(), set, set, fastConfig())
	require.NoError(t, err)
	assert.Len(t, hist.Epochs, 200)
	assert.Less(t, hist.Last().Loss, hist.Epochs[0].Loss)

	rows, cols := m.InputShape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, testLayout.Width(), cols)

	scores, err := m.Predict(context.Background(), tensor.Batch{
		instance(category.Tail, category.Unknown),
		instance(category.Integration, category.Unknown),
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, int(category.Lysis), ArgMax(scores[0]))
	assert.Equal(t, int(category.Connector), ArgMax(scores[1]))

	for _, s := range scores {
		assert.Len(t, s, category.NumClasses)
		var sum float64
		for _, v := range s {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-9)
	}
}

func TestSoftmaxTrainReproducible(t *testing.T) {
	set := separableSet(3)
	cfg := fastConfig()
	cfg.Dropout = 0.2
	cfg.Epochs = 10

	_, h1, err := SoftmaxTrainer{Seed: 9}.Train(context.Background(), set, set, cfg)
	require.NoError(t, err)
	_, h2, err := SoftmaxTrainer{Seed: 9}.Train(context.Background(), set, set, cfg)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestSoftmaxEarlyStopping(t *testing.T) {
	set := separableSet(2)
	cfg := fastConfig()
	cfg.EarlyStopping = true
	cfg.Patience = 1
	cfg.MinDelta = 100

	_, hist, err := SoftmaxTrainer{}.Train(context.Background(), set, set, cfg)
	require.NoError(t, err)
	assert.True(t, hist.StoppedEarly)
	assert.Len(t, hist.Epochs, 2)
	assert.Equal(t, 1, hist.BestEpoch)
}

func TestSoftmaxDiverged(t *testing.T) {
	set := separableSet(1)
	set.X[0][0][0] = float32(math.NaN())

	_, _, err := SoftmaxTrainer{}.Train(context.Background(), set, dataset.Set{}, fastConfig())
	assert.True(t, errors.Is(err, ErrDiverged))
}

func TestSoftmaxTrainErrors(t *testing.T) {
	_, _, err := SoftmaxTrainer{}.Train(context.Background(), dataset.Set{}, dataset.Set{}, fastConfig())
	assert.Error(t, err)

	bad := fastConfig()
	bad.BatchSize = 0
	_, _, err = SoftmaxTrainer{}.Train(context.Background(), separableSet(1), dataset.Set{}, bad)
	assert.Error(t, err)
}

func TestSoftmaxTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := SoftmaxTrainer{}.Train(ctx, separableSet(1), dataset.Set{}, fastConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSoftmaxPredictShapeMismatch(t *testing.T) {
	m := NewSoftmax(3, testLayout.Width(), 1)
	wide := tensor.Layout{MaxLength: 3, Mode: tensor.FeaturesAll}
	x := tensor.Encode(genome.Genome{Genes: []genome.Gene{{Category: category.Tail, Start: 1, End: 10}}}, wide)
	_, err := m.Predict(context.Background(), tensor.Batch{x})
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	set := separableSet(2)
	cfg := fastConfig()
	cfg.Epochs = 5
	m, _, err := SoftmaxTrainer{Seed: 3}.Train(context.Background(), set, set, cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "b"+Extension), m))
	require.NoError(t, Save(filepath.Join(dir, "a"+Extension), m))

	loaded, err := Load(filepath.Join(dir, "a"+Extension))
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	want, err := m.Predict(context.Background(), set.X)
	require.NoError(t, err)
	got, err := loaded.Predict(context.Background(), set.X)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	all, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadDirEmpty(t *testing.T) {
	models, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestSoftmax1D(t *testing.T) {
	p := Softmax1D([]float64{1000, 1000})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)
	assert.Equal(t, 2, ArgMax([]float64{0.1, 0.2, 0.7}))
}
