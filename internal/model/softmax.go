package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/dataset"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

// DefaultWindow is the number of neighbouring genes read on each side of the
// masked position.
const DefaultWindow = 2

// Softmax is a multinomial logistic regression over the rows surrounding the
// masked position. It is the in-process baseline; recurrent models plug in
// through the Model interface.
type Softmax struct {
	MaxLength int
	Width     int
	Window    int
	Weights   [][]float64 // NumClasses rows of 2*Window*Width+1 columns, bias last
}

// NewSoftmax returns a zero-weight model for the given input shape.
func NewSoftmax(maxLength, width, window int) *Softmax {
	s := &Softmax{MaxLength: maxLength, Width: width, Window: window}
	s.Weights = make([][]float64, category.NumClasses)
	for c := range s.Weights {
		s.Weights[c] = make([]float64, s.dim())
	}
	return s
}

func (s *Softmax) dim() int {
	return 2*s.Window*s.Width + 1
}

// InputShape implements Model.
func (s *Softmax) InputShape() (int, int) {
	return s.MaxLength, s.Width
}

// Predict implements Model.
func (s *Softmax) Predict(ctx context.Context, x tensor.Batch) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, m := range x {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rows, cols := m.Shape(); rows != s.MaxLength || cols != s.Width {
			return nil, fmt.Errorf("predict instance %d: shape %dx%d, model expects %dx%d", i, rows, cols, s.MaxLength, s.Width)
		}
		out[i] = s.forward(s.features(m))
	}
	return out, nil
}

// features flattens the window around the first masked row. Rows outside the
// matrix contribute zeros.
func (s *Softmax) features(m tensor.Matrix) []float64 {
	out := make([]float64, s.dim())
	pos := -1
	if masked := m.MaskedPositions(); len(masked) > 0 {
		pos = masked[0]
	}
	k := 0
	for off := -s.Window; off <= s.Window; off++ {
		if off == 0 {
			continue
		}
		if i := pos + off; pos >= 0 && i >= 0 && i < len(m) {
			for j, v := range m[i] {
				out[k+j] = float64(v)
			}
		}
		k += s.Width
	}
	out[k] = 1
	return out
}

func (s *Softmax) forward(x []float64) []float64 {
	logits := make([]float64, len(s.Weights))
	for c, w := range s.Weights {
		var z float64
		for j, v := range x {
			z += w[j] * v
		}
		logits[c] = z
	}
	return Softmax1D(logits)
}

func (s *Softmax) clone() *Softmax {
	out := *s
	out.Weights = make([][]float64, len(s.Weights))
	for c, w := range s.Weights {
		out.Weights[c] = slices.Clone(w)
	}
	return &out
}

// Softmax1D normalizes logits into probabilities.
func Softmax1D(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	hi := slices.Max(logits)
	var sum float64
	for i, z := range logits {
		out[i] = math.Exp(z - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// SoftmaxTrainer fits Softmax models with mini-batch gradient descent.
type SoftmaxTrainer struct {
	Window int    // neighbours per side; zero means DefaultWindow
	Seed   uint64 // batch order and dropout
	Logger *zap.Logger
}

// Train implements Trainer. The validation set drives early stopping; when it
// is empty the training loss is monitored instead. With early stopping the
// weights of the best epoch are returned.
func (t SoftmaxTrainer) Train(ctx context.Context, train, val dataset.Set, cfg Config) (Model, History, error) {
	var hist History
	if err := cfg.Validate(); err != nil {
		return nil, hist, fmt.Errorf("train: %w", err)
	}
	if train.Len() == 0 {
		return nil, hist, fmt.Errorf("train: empty training set")
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := t.Window
	if window <= 0 {
		window = DefaultWindow
	}

	rows, cols := train.X[0].Shape()
	s := NewSoftmax(rows, cols, window)
	trainX, err := s.featurize(train)
	if err != nil {
		return nil, hist, fmt.Errorf("train: %w", err)
	}
	valX, err := s.featurize(val)
	if err != nil {
		return nil, hist, fmt.Errorf("validation: %w", err)
	}

	r := genome.NewRand(t.Seed)
	best := math.Inf(1)
	bestModel := s.clone()
	wait := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, hist, fmt.Errorf("train epoch %d: %w", epoch, err)
		}

		loss, acc := s.epoch(trainX, train.Y, r.Perm(len(trainX)), cfg, r)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, hist, fmt.Errorf("train epoch %d: loss %g: %w", epoch, loss, ErrDiverged)
		}
		e := Epoch{Epoch: epoch, Loss: loss, Accuracy: acc, ValLoss: loss, ValAccuracy: acc}
		if len(valX) > 0 {
			e.ValLoss, e.ValAccuracy = s.evaluate(valX, val.Y)
		}
		hist.Epochs = append(hist.Epochs, e)
		logger.Debug("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float64("loss", e.Loss),
			zap.Float64("val_loss", e.ValLoss),
			zap.Float64("val_accuracy", e.ValAccuracy))

		if e.ValLoss < best-cfg.MinDelta {
			best = e.ValLoss
			bestModel = s.clone()
			hist.BestEpoch = epoch
			wait = 0
		} else {
			wait++
		}
		if cfg.EarlyStopping && wait >= cfg.Patience {
			hist.StoppedEarly = true
			break
		}
	}

	if cfg.EarlyStopping {
		return bestModel, hist, nil
	}
	hist.BestEpoch = len(hist.Epochs)
	return s, hist, nil
}

func (s *Softmax) featurize(set dataset.Set) ([][]float64, error) {
	out := make([][]float64, set.Len())
	for i, m := range set.X {
		if rows, cols := m.Shape(); rows != s.MaxLength || cols != s.Width {
			return nil, fmt.Errorf("instance %d: shape %dx%d, expected %dx%d", i, rows, cols, s.MaxLength, s.Width)
		}
		if int(set.Y[i]) >= category.NumClasses || set.Y[i] < 0 {
			return nil, fmt.Errorf("instance %d: target %d outside model classes", i, set.Y[i])
		}
		out[i] = s.features(m)
	}
	return out, nil
}

// epoch runs one pass of mini-batch updates and returns the mean training
// loss and accuracy.
func (s *Softmax) epoch(x [][]float64, y []category.Category, order []int, cfg Config, r *rand.Rand) (float64, float64) {
	grad := make([][]float64, len(s.Weights))
	for c := range grad {
		grad[c] = make([]float64, s.dim())
	}
	var loss float64
	correct := 0
	keep := 1 - cfg.Dropout

	for start := 0; start < len(order); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(order))
		for c := range grad {
			clear(grad[c])
		}
		for _, idx := range order[start:end] {
			in := x[idx]
			if cfg.Dropout > 0 {
				in = slices.Clone(in)
				for j := 0; j < len(in)-1; j++ {
					if r.Float64() < cfg.Dropout {
						in[j] = 0
					} else {
						in[j] /= keep
					}
				}
			}
			p := s.forward(in)
			target := int(y[idx])
			loss -= math.Log(math.Max(p[target], 1e-12))
			if ArgMax(p) == target {
				correct++
			}
			for c := range p {
				g := p[c]
				if c == target {
					g--
				}
				for j, v := range in {
					grad[c][j] += g * v
				}
			}
		}
		step := cfg.LearningRate / float64(end-start)
		for c, w := range s.Weights {
			for j := range w {
				w[j] -= step * grad[c][j]
			}
		}
	}
	n := float64(len(order))
	return loss / n, float64(correct) / n
}

func (s *Softmax) evaluate(x [][]float64, y []category.Category) (float64, float64) {
	var loss float64
	correct := 0
	for i, in := range x {
		p := s.forward(in)
		target := int(y[i])
		loss -= math.Log(math.Max(p[target], 1e-12))
		if ArgMax(p) == target {
			correct++
		}
	}
	n := float64(len(x))
	return loss / n, float64(correct) / n
}
