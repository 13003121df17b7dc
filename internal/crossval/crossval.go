// Package crossval runs k-fold cross-validation of a model trainer over a
// genome pool and aggregates per-fold accuracy.
package crossval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/dataset"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/model"
	"github.com/phynteny/phynteny-go/internal/parallel"
	"github.com/phynteny/phynteny-go/internal/tensor"
)

// ErrInvalidFolds is returned when the fold count cannot partition the pool.
var ErrInvalidFolds = errors.New("invalid number of folds")

// Status is the outcome of one fold.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Stage names a step of a fold's life cycle.
type Stage string

const (
	StageTrain    Stage = "train"
	StageEvaluate Stage = "evaluate"
	StageRecord   Stage = "record"
	StageDone     Stage = "done"
)

// Sink receives each successfully trained fold model, in fold order.
type Sink func(fold int, m model.Model, hist model.History) error

// Options configures a cross-validation run.
type Options struct {
	Folds  int
	Layout tensor.Layout
	Config model.Config
	// Trainer is shared by all folds and must be safe for concurrent use
	// when Workers > 1.
	Trainer model.Trainer
	Seed    uint64
	Workers int // 0 means one per CPU
	Sink    Sink
	Logger  *zap.Logger
}

// FoldResult is the record of one fold.
type FoldResult struct {
	Fold      int
	Status    Status
	Stage     Stage // last stage reached
	Err       string
	TrainSize int
	ValSize   int
	Evaluated int
	Correct   int
	Accuracy  float64
	Epochs    int
	ValLoss   float64
	HeldOut   []string
	History   model.History
}

// Report aggregates a run.
type Report struct {
	RunID        string
	Folds        []FoldResult
	Succeeded    int
	Failed       int
	MeanAccuracy float64
	StdAccuracy  float64
}

// Partition assigns genome i of the (already shuffled) pool to fold i mod k.
// Folds are disjoint and together hold every genome.
func Partition(p genome.Pool, k int) ([]genome.Pool, error) {
	if k < 2 || k > len(p) {
		return nil, fmt.Errorf("partition %d genomes into %d folds: %w", len(p), k, ErrInvalidFolds)
	}
	folds := make([]genome.Pool, k)
	for i, g := range p {
		folds[i%k] = append(folds[i%k], g)
	}
	return folds, nil
}

type foldJob struct {
	fold    int
	train   genome.Pool
	heldout genome.Pool
}

type foldOutcome struct {
	result FoldResult
	model  model.Model
}

// Run trains one model per fold on the other folds and scores it by masking
// every known position of the held-out genomes. A failing fold is recorded
// and the remaining folds continue; Run itself only fails on invalid options.
func Run(ctx context.Context, p genome.Pool, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Trainer == nil {
		return Report{}, fmt.Errorf("cross-validate: no trainer")
	}
	if err := opts.Config.Validate(); err != nil {
		return Report{}, fmt.Errorf("cross-validate: %w", err)
	}
	folds, err := Partition(p, opts.Folds)
	if err != nil {
		return Report{}, fmt.Errorf("cross-validate: %w", err)
	}

	report := Report{RunID: uuid.NewString()}
	logger.Info("starting cross-validation",
		zap.String("run_id", report.RunID),
		zap.Int("folds", opts.Folds),
		zap.Int("genomes", len(p)))

	jobs := make([]foldJob, len(folds))
	for i := range folds {
		job := foldJob{fold: i, heldout: folds[i]}
		for j, f := range folds {
			if j != i {
				job.train = append(job.train, f...)
			}
		}
		jobs[i] = job
	}

	results := parallel.Run(parallel.Feed(jobs), opts.Workers, func(job foldJob) (foldOutcome, error) {
		return runFold(ctx, job, opts, logger), nil
	})
	err = parallel.OrderedCollect(results, func(r parallel.Result[foldJob, foldOutcome]) error {
		res := r.Out.result
		if res.Status == StatusOK && opts.Sink != nil {
			res.Stage = StageRecord
			if err := opts.Sink(res.Fold, r.Out.model, res.History); err != nil {
				res.Status = StatusFailed
				res.Err = fmt.Sprintf("record fold: %v", err)
			} else {
				res.Stage = StageDone
			}
		}
		if res.Status == StatusFailed {
			logger.Warn("fold failed",
				zap.Int("fold", res.Fold),
				zap.String("stage", string(res.Stage)),
				zap.String("error", res.Err))
		} else {
			logger.Info("fold complete",
				zap.Int("fold", res.Fold),
				zap.Float64("accuracy", res.Accuracy),
				zap.Int("evaluated", res.Evaluated))
		}
		report.Folds = append(report.Folds, res)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("cross-validate: %w", err)
	}

	aggregate(&report)
	logger.Info("cross-validation complete",
		zap.String("run_id", report.RunID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Float64("mean_accuracy", report.MeanAccuracy),
		zap.Float64("std_accuracy", report.StdAccuracy))
	return report, nil
}

func runFold(ctx context.Context, job foldJob, opts Options, logger *zap.Logger) foldOutcome {
	res := FoldResult{Fold: job.fold, Stage: StageTrain, HeldOut: job.heldout.IDs()}
	fail := func(err error) foldOutcome {
		res.Status = StatusFailed
		res.Err = err.Error()
		return foldOutcome{result: res}
	}

	r := genome.NewRand(opts.Seed + uint64(job.fold))
	train := dataset.Build(job.train, opts.Layout, r)
	val := dataset.Build(job.heldout, opts.Layout, r)
	res.TrainSize, res.ValSize = train.Len(), val.Len()
	logger.Debug("training fold",
		zap.Int("fold", job.fold),
		zap.Int("train", res.TrainSize),
		zap.Int("validation", res.ValSize))

	m, hist, err := opts.Trainer.Train(ctx, train, val, opts.Config)
	if err != nil {
		return fail(fmt.Errorf("train fold %d: %w", job.fold, err))
	}
	res.History = hist
	res.Epochs = len(hist.Epochs)
	res.ValLoss = hist.Last().ValLoss

	res.Stage = StageEvaluate
	eval := dataset.BuildEvaluation(job.heldout, opts.Layout)
	if eval.Len() == 0 {
		return fail(fmt.Errorf("evaluate fold %d: no known held-out positions", job.fold))
	}
	correct, err := score(ctx, m, eval, opts.Config.BatchSize)
	if err != nil {
		return fail(fmt.Errorf("evaluate fold %d: %w", job.fold, err))
	}
	res.Evaluated = eval.Len()
	res.Correct = correct
	res.Accuracy = float64(correct) / float64(eval.Len())
	res.Status = StatusOK
	res.Stage = StageDone
	return foldOutcome{result: res, model: m}
}

// score counts instances whose argmax matches the target.
func score(ctx context.Context, m model.Model, set dataset.Set, batch int) (int, error) {
	if batch <= 0 {
		batch = set.Len()
	}
	correct := 0
	for start := 0; start < set.Len(); start += batch {
		end := min(start+batch, set.Len())
		scores, err := m.Predict(ctx, set.X[start:end])
		if err != nil {
			return 0, err
		}
		if len(scores) != end-start {
			return 0, fmt.Errorf("model returned %d score vectors for %d instances", len(scores), end-start)
		}
		for i, s := range scores {
			if model.ArgMax(s) == int(set.Y[start+i]) {
				correct++
			}
		}
	}
	return correct, nil
}

func aggregate(r *Report) {
	var acc []float64
	for _, f := range r.Folds {
		if f.Status == StatusOK {
			acc = append(acc, f.Accuracy)
		} else {
			r.Failed++
		}
	}
	r.Succeeded = len(acc)
	if len(acc) == 0 {
		return
	}
	r.MeanAccuracy, _ = stats.Mean(acc)
	r.StdAccuracy, _ = stats.StandardDeviation(acc)
}
