// Package predict assigns categories to the unknown genes of a genome by
// masking each one in turn, scoring it with an ensemble of models and
// accepting the top category only when it clears its calibrated threshold.
package predict

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dgryski/go-spooky"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/mask"
	"github.com/phynteny/phynteny-go/internal/model"
	"github.com/phynteny/phynteny-go/internal/parallel"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

var (
	// ErrNoModels is returned when a predictor is built without models.
	ErrNoModels = errors.New("no models")
	// ErrMissingThreshold is returned when a category the encoder can produce
	// has no threshold.
	ErrMissingThreshold = errors.New("missing threshold")
)

// Skip reasons reported in Result.Skip.
const (
	ReasonFullyAnnotated = "fully annotated"
	ReasonTooManyGenes   = "too many genes"
)

// DefaultCacheSize is the number of instance score vectors kept in memory.
const DefaultCacheSize = 4096

// Combiner merges the score vectors of every model for one instance.
type Combiner func(scores [][]float64) []float64

// Mean averages the score vectors element-wise.
func Mean(scores [][]float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	out := make([]float64, len(scores[0]))
	for _, s := range scores {
		for i, v := range s {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(scores))
	}
	return out
}

// Call is the decision for one masked position.
type Call struct {
	Position int
	Category category.Category // highest-scoring category
	Score    float64           // combined score of Category
	Accepted bool              // whether Category replaced unknown
}

// Result is the prediction for one genome.
type Result struct {
	GenomeID   string
	Categories []category.Category // final categories, one per gene
	Predicted  []Call
	Skip       string // non-empty when the genome was returned unchanged
}

// Found returns the number of genes that received a category.
func (r Result) Found() int {
	n := 0
	for _, c := range r.Predicted {
		if c.Accepted {
			n++
		}
	}
	return n
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger for skip and found diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(p *Predictor) {
		p.logger = l
	}
}

// WithCombiner replaces the mean ensemble combiner.
func WithCombiner(c Combiner) Option {
	return func(p *Predictor) {
		p.combine = c
	}
}

// WithCacheSize sets the score cache capacity. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(p *Predictor) {
		p.cacheSize = n
	}
}

// WithFeatureMode sets the feature mode the models were trained with. Without
// it the mode is inferred from the model input width.
func WithFeatureMode(m tensor.FeatureMode) Option {
	return func(p *Predictor) {
		p.mode = &m
	}
}

// Predictor is safe for concurrent use.
type Predictor struct {
	models     []model.Model
	enc        *category.Encoder
	thresholds category.Thresholds
	layout     tensor.Layout
	combine    Combiner
	logger     *zap.Logger
	cacheSize  int
	mode       *tensor.FeatureMode
	cache      *lru.Cache
}

// New builds a predictor. Every model must share one input shape, and every
// category enc can produce needs a threshold.
func New(models []model.Model, enc *category.Encoder, thresholds category.Thresholds, opts ...Option) (*Predictor, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("new predictor: %w", ErrNoModels)
	}
	if enc == nil {
		return nil, fmt.Errorf("new predictor: no category encoder")
	}
	p := &Predictor{
		models:     models,
		enc:        enc,
		thresholds: thresholds,
		combine:    Mean,
		logger:     zap.NewNop(),
		cacheSize:  DefaultCacheSize,
	}
	for _, o := range opts {
		o(p)
	}

	maxLength, width := models[0].InputShape()
	for i, m := range models[1:] {
		if l, w := m.InputShape(); l != maxLength || w != width {
			return nil, fmt.Errorf("new predictor: model %d input %dx%d differs from model 0 input %dx%d", i+1, l, w, maxLength, width)
		}
	}
	layout, err := layoutFor(maxLength, width, p.mode)
	if err != nil {
		return nil, fmt.Errorf("new predictor: %w", err)
	}
	p.layout = layout

	if missing := thresholds.Missing(enc.Categories()); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = c.String()
		}
		return nil, fmt.Errorf("new predictor: %w for %s", ErrMissingThreshold, strings.Join(names, ", "))
	}

	if p.cacheSize > 0 {
		p.cache, err = lru.New(p.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("new predictor: %w", err)
		}
	}
	return p, nil
}

func layoutFor(maxLength, width int, mode *tensor.FeatureMode) (tensor.Layout, error) {
	features := width - category.NumCategories
	if mode != nil {
		l := tensor.Layout{MaxLength: maxLength, Mode: *mode}
		if l.Width() != width {
			l.FixedWidth = true
		}
		if l.Width() != width {
			return tensor.Layout{}, fmt.Errorf("feature mode %s does not fit model width %d", *mode, width)
		}
		return l, nil
	}
	for _, m := range []tensor.FeatureMode{tensor.FeaturesAll, tensor.FeaturesStrand, tensor.FeaturesNone} {
		if m.Width() == features {
			return tensor.Layout{MaxLength: maxLength, Mode: m}, nil
		}
	}
	return tensor.Layout{}, fmt.Errorf("model width %d matches no feature mode", width)
}

// Layout returns the input layout shared by the models.
func (p *Predictor) Layout() tensor.Layout {
	return p.layout
}

// Predict fills in the unknown genes of g. Genomes without unknown genes and
// genomes longer than the models accept are returned unchanged with a Skip
// reason; neither is an error.
func (p *Predictor) Predict(ctx context.Context, g genome.Genome) (Result, error) {
	g = g.Encode(p.enc)
	res := Result{GenomeID: g.ID, Categories: g.Categories()}

	if len(g.UnknownPositions()) == 0 {
		res.Skip = ReasonFullyAnnotated
		p.logger.Debug("genome not predicted", zap.String("genome", g.ID), zap.String("reason", res.Skip))
		return res, nil
	}

	instances, err := mask.Inference(g, p.layout)
	switch {
	case errors.Is(err, mask.ErrTooLong):
		res.Skip = ReasonTooManyGenes
		p.logger.Warn("genome not predicted",
			zap.String("genome", g.ID),
			zap.String("reason", res.Skip),
			zap.Int("genes", g.Len()),
			zap.Int("max_genes", p.layout.MaxLength))
		return res, nil
	case err != nil:
		return res, fmt.Errorf("predict %s: %w", g.ID, err)
	}

	scores, err := p.score(ctx, instances)
	if err != nil {
		return res, fmt.Errorf("predict %s: %w", g.ID, err)
	}
	for i, inst := range instances {
		call := p.decide(inst.Position, scores[i])
		if call.Accepted {
			res.Categories[inst.Position] = call.Category
		}
		res.Predicted = append(res.Predicted, call)
	}
	p.logger.Debug("genome predicted",
		zap.String("genome", g.ID),
		zap.Int("unknown", len(instances)),
		zap.Int("found", res.Found()))
	return res, nil
}

// PredictPool predicts every genome of pool with the given number of workers.
// Results are in pool order; the first error aborts.
func (p *Predictor) PredictPool(ctx context.Context, pool genome.Pool, workers int) ([]Result, error) {
	results, errs := parallel.Map(pool, workers, func(g genome.Genome) (Result, error) {
		return p.Predict(ctx, g)
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// decide accepts the top category when it is not unknown and its score
// reaches the category threshold.
func (p *Predictor) decide(pos int, s []float64) Call {
	top := category.Category(model.ArgMax(s))
	call := Call{Position: pos, Category: top, Score: s[top]}
	if top == category.Unknown {
		return call
	}
	if thr, ok := p.thresholds[top]; ok && s[top] >= thr {
		call.Accepted = true
	}
	return call
}

// score returns the combined score vector of each instance, consulting the
// cache first and running every model once over the uncached instances.
func (p *Predictor) score(ctx context.Context, instances []mask.Instance) ([][]float64, error) {
	out := make([][]float64, len(instances))
	keys := make([]uint64, len(instances))
	var pending []int
	var batch tensor.Batch
	for i, inst := range instances {
		keys[i] = matrixKey(inst.X)
		if p.cache != nil {
			if v, ok := p.cache.Get(keys[i]); ok {
				out[i] = v.([]float64)
				continue
			}
		}
		pending = append(pending, i)
		batch = append(batch, inst.X)
	}
	if len(pending) == 0 {
		return out, nil
	}

	perModel := make([][][]float64, len(p.models))
	for j, m := range p.models {
		scores, err := m.Predict(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", j, err)
		}
		if len(scores) != len(batch) {
			return nil, fmt.Errorf("model %d returned %d score vectors for %d instances", j, len(scores), len(batch))
		}
		for _, s := range scores {
			if len(s) != category.NumClasses {
				return nil, fmt.Errorf("model %d returned %d scores, want %d", j, len(s), category.NumClasses)
			}
		}
		perModel[j] = scores
	}

	for k, i := range pending {
		ensemble := make([][]float64, len(p.models))
		for j := range p.models {
			ensemble[j] = perModel[j][k]
		}
		out[i] = p.combine(ensemble)
		if len(out[i]) != category.NumClasses {
			return nil, fmt.Errorf("combiner returned %d scores, want %d", len(out[i]), category.NumClasses)
		}
		if p.cache != nil {
			p.cache.Add(keys[i], out[i])
		}
	}
	return out, nil
}

// matrixKey hashes the exact bit pattern of a matrix.
func matrixKey(x tensor.Matrix) uint64 {
	rows, cols := x.Shape()
	buf := make([]byte, 0, 8+4*rows*cols)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rows))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(cols))
	for _, row := range x {
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return spooky.Hash64(buf)
}
