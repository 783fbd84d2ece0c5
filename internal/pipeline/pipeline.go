// Package pipeline runs one evaluation pass: sample headlines, query the
// model repeatedly, aggregate the trials and persist the new columns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/headcheck/internal/invoke"
	"github.com/ppiankov/headcheck/internal/llm"
	"github.com/ppiankov/headcheck/internal/model"
	"github.com/ppiankov/headcheck/internal/prompt"
	"github.com/ppiankov/headcheck/internal/sample"
	"github.com/ppiankov/headcheck/internal/stats"
	"github.com/ppiankov/headcheck/internal/table"
	"github.com/ppiankov/headcheck/internal/worker"
)

var (
	// ErrUnsupportedModel is returned for models that cannot run a chaining pass
	ErrUnsupportedModel = errors.New("model not supported in chaining mode")

	// ErrInvalidIterations is returned when fewer than one trial is requested
	ErrInvalidIterations = errors.New("iterations must be a positive integer")
)

// unchainable models answer the certainty prompt with prose rather than a rating
var unchainable = map[string]bool{
	"llama2": true,
}

// Ledger records runs and their trials. *store.Store satisfies it.
type Ledger interface {
	StartRun(ctx context.Context, run model.Run) error
	RecordTrial(ctx context.Context, trial model.Trial) error
	FinishRun(ctx context.Context, runID string, at time.Time) error
}

// Pipeline orchestrates evaluation runs against one provider
type Pipeline struct {
	config   *model.Config
	provider llm.Provider
	invoker  *invoke.Invoker
	sampler  *sample.Sampler
	ledger   Ledger
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLedger records every run and trial in l
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithLogger sets the progress logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSampler replaces the sampler seeded from the config
func WithSampler(s *sample.Sampler) Option {
	return func(p *Pipeline) { p.sampler = s }
}

// NewPipeline creates a pipeline for provider with the given configuration
func NewPipeline(cfg *model.Config, provider llm.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:   cfg,
		provider: provider,
		sampler:  sample.New(cfg.Sample.Seed),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	if provider.Backend() == llm.BackendLocalServed && cfg.RateLimiting.LocalRequestsPerSecond > 0 {
		limiter.SetRate(provider.Name(), cfg.RateLimiting.LocalRequestsPerSecond, cfg.RateLimiting.BurstSize)
	}
	p.invoker = invoke.New(provider,
		invoke.WithLimiter(limiter),
		invoke.WithMaxAttempts(cfg.Retry.MaxAttempts),
		invoke.WithLogger(p.logger))

	return p
}

// Result is the outcome of one run
type Result struct {
	Run        model.Run
	Aggregates []model.Aggregate // In sampling order
	Columns    [2]string
	Path       string       // Prediction file the columns were persisted to
	Table      *table.Table // Full headline table with the new columns
}

// Run performs one evaluation pass for modelName and persists its columns
func (p *Pipeline) Run(ctx context.Context, mode model.Mode, modelName string, iterations int) (*Result, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIterations, iterations)
	}
	if mode == model.ModeChain && unchainable[modelName] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, modelName)
	}

	src, err := table.Load(p.config.Data.Headlines)
	if err != nil {
		return nil, fmt.Errorf("load headlines: %w", err)
	}
	headlines, err := src.Headlines(p.config.Data.TextColumn, p.config.Data.TruthColumn)
	if err != nil {
		return nil, fmt.Errorf("load headlines: %w", err)
	}
	byIndex := make(map[int]model.Headline, len(headlines))
	for _, h := range headlines {
		byIndex[h.Index] = h
	}

	path := p.config.Output.OutputPath(modelName)

	// Chaining reads the baseline predictions back from the output file
	var prior *table.Table
	candidates := src.Indices()
	if mode == model.ModeChain {
		prior, err = table.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load baseline predictions: %w", err)
		}
		withPrediction, err := prior.NonEmpty(model.PredictionColumn(modelName))
		if err != nil {
			return nil, fmt.Errorf("load baseline predictions: %w", err)
		}
		candidates = candidates[:0]
		for _, idx := range withPrediction {
			if _, ok := byIndex[idx]; ok {
				candidates = append(candidates, idx)
			}
		}
	}

	picks := p.sampler.Indices(candidates, p.config.Sample.Size)

	run := model.Run{
		ID:         uuid.NewString(),
		Model:      modelName,
		Provider:   p.provider.Name(),
		Mode:       mode,
		Iterations: iterations,
		SampleSize: len(picks),
		StartedAt:  p.now().UTC(),
	}
	if p.ledger != nil {
		if err := p.ledger.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("trial log: %w", err)
		}
	}

	log := p.logger.With(
		zap.String("run_id", run.ID),
		zap.String("model", modelName),
		zap.String("mode", string(mode)))
	log.Info("starting run",
		zap.String("provider", run.Provider),
		zap.Int("headlines", len(picks)),
		zap.Int("iterations", iterations))

	aggregates := make([]model.Aggregate, 0, len(picks))
	for n, idx := range picks {
		text := byIndex[idx].Text
		if p.config.Data.CleanMarkup {
			text = prompt.CleanHeadline(text)
		}

		var agg model.Aggregate
		if mode == model.ModeChain {
			agg, err = p.chain(ctx, run, idx, text, prior)
		} else {
			agg, err = p.baseline(ctx, run, idx, text)
		}
		if err != nil {
			return nil, fmt.Errorf("headline %d: %w", idx, err)
		}
		aggregates = append(aggregates, agg)

		log.Info("headline aggregated",
			zap.Int("index", idx),
			zap.Int("done", n+1),
			zap.Int("total", len(picks)),
			zap.Float64("first", agg.First),
			zap.Float64("second", agg.Second))
	}

	first, second := mode.Columns(modelName)
	result := src.Clone()
	setColumns(result, mode, first, second, aggregates)

	if err := Persist(path, result, first, second); err != nil {
		return nil, err
	}

	completed := p.now().UTC()
	run.CompletedAt = &completed
	if p.ledger != nil {
		if err := p.ledger.FinishRun(ctx, run.ID, completed); err != nil {
			return nil, fmt.Errorf("trial log: %w", err)
		}
	}

	log.Info("run complete", zap.String("path", path), zap.Duration("elapsed", completed.Sub(run.StartedAt)))

	return &Result{
		Run:        run,
		Aggregates: aggregates,
		Columns:    [2]string{first, second},
		Path:       path,
		Table:      result,
	}, nil
}

func (p *Pipeline) baseline(ctx context.Context, run model.Run, idx int, text string) (model.Aggregate, error) {
	classes := make([]int, 0, run.Iterations)
	for it := 0; it < run.Iterations; it++ {
		verdict, reply, err := p.invoker.Verdict(ctx, text, prompt.Baseline)
		if err != nil {
			return model.Aggregate{}, err
		}
		class := verdict.Class()
		classes = append(classes, class)

		if err := p.record(ctx, run, idx, it, reply, class); err != nil {
			return model.Aggregate{}, err
		}
	}

	class, freq, _ := stats.MostCommon(classes)
	return model.Aggregate{Index: idx, First: float64(class), Second: freq}, nil
}

func (p *Pipeline) chain(ctx context.Context, run model.Run, idx int, text string, prior *table.Table) (model.Aggregate, error) {
	pred, _, err := prior.Float(idx, model.PredictionColumn(run.Model))
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("baseline prediction: %w", err)
	}
	template := prompt.Certainty(string(model.VerdictFromClass(int(pred))))

	scores := make([]float64, 0, run.Iterations)
	for it := 0; it < run.Iterations; it++ {
		rating, reply, err := p.invoker.Rating(ctx, text, template)
		if err != nil {
			return model.Aggregate{}, err
		}
		scores = append(scores, stats.NormalizeRating(rating))

		if err := p.record(ctx, run, idx, it, reply, rating); err != nil {
			return model.Aggregate{}, err
		}
	}

	mean, std := stats.MeanStd(scores)
	return model.Aggregate{Index: idx, First: mean, Second: std}, nil
}

func (p *Pipeline) record(ctx context.Context, run model.Run, idx, iteration int, reply invoke.Reply, value int) error {
	p.logger.Debug("trial",
		zap.Int("index", idx),
		zap.Int("iteration", iteration),
		zap.String("reply", reply.Text),
		zap.Int("value", value),
		zap.Int("attempts", reply.Attempts))

	if p.ledger == nil {
		return nil
	}
	err := p.ledger.RecordTrial(ctx, model.Trial{
		RunID:     run.ID,
		Index:     idx,
		Iteration: iteration,
		Reply:     reply.Text,
		Value:     value,
		Attempts:  reply.Attempts,
		At:        p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("trial log: %w", err)
	}
	return nil
}

// setColumns writes aggregates into t; unsampled rows stay empty
func setColumns(t *table.Table, mode model.Mode, first, second string, aggregates []model.Aggregate) {
	firstValues := make(map[int]string, len(aggregates))
	secondValues := make(map[int]string, len(aggregates))
	for _, a := range aggregates {
		if mode == model.ModeBaseline {
			firstValues[a.Index] = strconv.Itoa(int(a.First))
		} else {
			firstValues[a.Index] = table.FormatFloat(a.First)
		}
		secondValues[a.Index] = table.FormatFloat(a.Second)
	}
	t.SetColumn(first, firstValues)
	t.SetColumn(second, secondValues)
}
