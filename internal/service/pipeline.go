package service

import (
	"context"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/analysis"
	"github.com/poornimagithubrit/Agentic-RAG/internal/metrics"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
	"github.com/poornimagithubrit/Agentic-RAG/internal/state"
)

// Strategy selects how questions are translated.
type Strategy string

const (
	StrategyModel Strategy = "model"
	StrategyRules Strategy = "rules"
	// StrategyAuto uses the model and switches to rules when the model is
	// unavailable.
	StrategyAuto Strategy = "auto"
)

// ParseStrategy validates a configured strategy name. Empty means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyModel:
		return StrategyModel, nil
	case StrategyRules:
		return StrategyRules, nil
	}
	return "", errors.Errorf("unknown translator strategy %q", s)
}

type Options struct {
	Strategy   Strategy
	MaxRows    int
	SampleRows int
	// FallbackOnError answers with fallback rows instead of an error
	// result when model code fails to run.
	FallbackOnError bool
}

// Request is one question against one dataset. Zero fields take the
// pipeline defaults.
type Request struct {
	Dataset         string
	Question        string
	Strategy        Strategy
	FallbackOnError bool
}

// Pipeline answers questions: lookup, describe, translate, execute, and
// fall back when there is nothing to show.
type Pipeline struct {
	registry *state.Registry
	model    Translator
	rules    Translator
	executor *Executor
	fallback *Fallback
	opts     Options
	logger   *zap.SugaredLogger
}

// NewPipeline wires a pipeline. model may be nil, in which case the model
// strategy reports TranslatorUnavailable.
func NewPipeline(registry *state.Registry, model Translator, opts Options, logger *zap.SugaredLogger) *Pipeline {
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = analysis.DefaultSampleRows
	}
	if model == nil {
		model = NewModelTranslator(nil)
	}
	return &Pipeline{
		registry: registry,
		model:    model,
		rules:    NewRuleTranslator(),
		executor: NewExecutor(opts.MaxRows),
		fallback: NewFallback(opts.MaxRows),
		opts:     opts,
		logger:   logger,
	}
}

// Ask answers a question. The returned error is a *QueryError of kind
// DatasetNotFound or TranslatorUnavailable, or an unknown strategy error;
// execution failures are part of the answer.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*models.Answer, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = p.opts.Strategy
	}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	traceID, _ := nanoid.New()
	log := p.logger.With("trace_id", traceID, "dataset", req.Dataset, "strategy", strategy)

	ds, ok := p.registry.Lookup(req.Dataset)
	if !ok {
		metrics.Queries.WithLabelValues(string(strategy), "not_found").Inc()
		return nil, newQueryError(KindDatasetNotFound, nil, "dataset %q not found, upload it first", req.Dataset)
	}

	ans := &models.Answer{
		TraceID:  traceID,
		Dataset:  req.Dataset,
		Question: req.Question,
		Strategy: string(strategy),
	}
	desc := analysis.Describe(ds, p.opts.SampleRows)
	fallbackOnError := p.opts.FallbackOnError || req.FallbackOnError

	switch strategy {
	case StrategyRules:
		p.answerRules(ctx, ans, ds, desc)
	case StrategyModel:
		if err := p.answerModel(ctx, ans, ds, desc, fallbackOnError); err != nil {
			metrics.Queries.WithLabelValues(string(strategy), "unavailable").Inc()
			log.Warnw("translation failed", "error", err)
			return nil, err
		}
	case StrategyAuto:
		err := p.answerModel(ctx, ans, ds, desc, fallbackOnError)
		if err != nil {
			var qe *QueryError
			if !errors.As(err, &qe) || qe.Kind != KindTranslatorUnavailable {
				return nil, err
			}
			log.Infow("model unavailable, using rules", "error", qe.Message)
			ans.Strategy = string(StrategyRules)
			ans.Warning = &models.ErrorBody{Kind: string(qe.Kind), Message: qe.Message}
			p.answerRules(ctx, ans, ds, desc)
		}
	}

	outcome := string(ans.Result.Kind)
	if ans.Fallback != "" {
		outcome = "fallback"
		metrics.Fallbacks.WithLabelValues(ans.Fallback).Inc()
	}
	metrics.Queries.WithLabelValues(ans.Strategy, outcome).Inc()
	log.Infow("question answered", "outcome", outcome, "fallback", ans.Fallback)
	return ans, nil
}

func (p *Pipeline) answerModel(ctx context.Context, ans *models.Answer, ds *models.Dataset, desc analysis.Description, fallbackOnError bool) error {
	start := time.Now()
	cand, err := p.model.Translate(ctx, ans.Question, desc)
	metrics.TranslateDuration.WithLabelValues(string(StrategyModel)).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	ans.Code = cand.Code

	result, err := p.executor.RunCode(cand.Code, ds)
	if err != nil {
		var qe *QueryError
		if !errors.As(err, &qe) {
			qe = newQueryError(KindExecutionError, err, "%v", err)
		}
		p.logger.Debugw("generated code failed", "trace_id", ans.TraceID, "kind", qe.Kind, "error", qe.Message)
		if fallbackOnError {
			ans.Result = models.RowsResult(p.fallback.Head(ds))
			ans.Fallback = ReasonExecutionError
			ans.Warning = &models.ErrorBody{Kind: string(qe.Kind), Message: qe.Message}
			return nil
		}
		ans.Result = models.ErrorResult(string(qe.Kind), qe.Message)
		return nil
	}

	if result.Kind == models.ResultRows && len(result.Rows) == 0 {
		ans.Result = models.RowsResult(p.fallback.Resolve(ans.Question, ds, true))
		ans.Fallback = ReasonEmptyResult
		return nil
	}
	ans.Result = result
	return nil
}

func (p *Pipeline) answerRules(ctx context.Context, ans *models.Answer, ds *models.Dataset, desc analysis.Description) {
	start := time.Now()
	cand, _ := p.rules.Translate(ctx, ans.Question, desc)
	metrics.TranslateDuration.WithLabelValues(string(StrategyRules)).Observe(time.Since(start).Seconds())
	ans.Code = cand.Code

	rows, filtered := p.executor.ApplyRules(cand, ds)
	switch {
	case !filtered:
		ans.Result = models.RowsResult(p.fallback.Head(ds))
		ans.Fallback = ReasonNoFilters
	case len(rows) == 0:
		ans.Result = models.RowsResult(p.fallback.Resolve(ans.Question, ds, true))
		ans.Fallback = ReasonNoMatch
	default:
		ans.Result = models.RowsResult(rows)
	}
}

// Registry exposes the dataset registry the pipeline reads from.
func (p *Pipeline) Registry() *state.Registry {
	return p.registry
}
