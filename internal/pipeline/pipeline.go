// Package pipeline sequences one question through schema loading, prompt
// construction, SQL generation, the read-only gate, execution and
// explanation. Each failure is tagged with the stage it happened in; partial
// artifacts such as a generated-but-rejected statement travel with the error
// instead of being discarded.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sqlscout/sqlscout/internal/explain"
	"github.com/sqlscout/sqlscout/internal/nl2sql"
	"github.com/sqlscout/sqlscout/internal/observability"
	"github.com/sqlscout/sqlscout/internal/schema"
	"github.com/sqlscout/sqlscout/internal/sqlguard"
	"github.com/sqlscout/sqlscout/internal/store"
)

const (
	StageSchema   = "schema"
	StageGenerate = "generate"
	StageValidate = "validate"
	StageExecute  = "execute"
	StageExplain  = "explain"
)

const (
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeBackendUnreachable = "BACKEND_UNREACHABLE"
	CodeBackendTimeout     = "BACKEND_TIMEOUT"
	CodeBackendError       = "BACKEND_ERROR"
	CodeUnsafeQuery        = "UNSAFE_QUERY"
	CodeExecutionError     = "EXECUTION_ERROR"
	CodeExecutionTimeout   = "EXECUTION_TIMEOUT"
)

// StageError reports which stage failed and why. SQL carries the statement
// involved when one exists, so callers can show the user what was generated.
type StageError struct {
	Stage  string
	Code   string
	Reason string
	SQL    string
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Code + ": " + e.Reason
}

// Retryable reports whether rephrasing or retrying the same question could
// plausibly succeed without operator intervention.
func (e *StageError) Retryable() bool {
	switch e.Code {
	case CodeBackendUnreachable, CodeBackendTimeout:
		return true
	default:
		return false
	}
}

// Answer is the externally visible artifact of a successful run.
type Answer struct {
	Question          string
	SQL               string
	Result            store.Result
	Explanation       string
	ExplanationFromAI bool
	Provider          string
	Model             string
	GenerationLatency time.Duration
}

type Options struct {
	RowLimit        int
	GenerateTimeout time.Duration
	ExecuteTimeout  time.Duration
}

type Pipeline struct {
	schemaCache *schema.Cache
	generator   nl2sql.Generator
	store       store.Store
	explainer   *explain.Explainer
	logger      *slog.Logger
	opts        Options
}

func New(cache *schema.Cache, generator nl2sql.Generator, st store.Store, explainer *explain.Explainer, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if explainer == nil {
		explainer = explain.New(nil)
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = 1000
	}
	return &Pipeline{
		schemaCache: cache,
		generator:   generator,
		store:       st,
		explainer:   explainer,
		logger:      logger,
		opts:        opts,
	}
}

// Answer runs the full pipeline for one question. The returned error is
// always a *StageError.
func (p *Pipeline) Answer(ctx context.Context, question string) (Answer, *StageError) {
	observability.IncrementQuestions()

	snapshot, stageErr := p.loadSchema(ctx)
	if stageErr != nil {
		return Answer{}, p.fail(stageErr)
	}

	generated, stageErr := p.generate(ctx, snapshot, question)
	if stageErr != nil {
		return Answer{}, p.fail(stageErr)
	}

	validated, stageErr := p.validate(generated.Text)
	if stageErr != nil {
		return Answer{}, p.fail(stageErr)
	}

	result, stageErr := p.execute(ctx, validated)
	if stageErr != nil {
		return Answer{}, p.fail(stageErr)
	}

	explanation, fromBackend := p.explain(ctx, validated)

	p.logger.InfoContext(ctx, "question answered",
		slog.String("sql", validated.SQL()),
		slog.Int("rows", result.RowCount),
		slog.Bool("truncated", result.Truncated),
		slog.String("provider", generated.Provider),
	)

	return Answer{
		Question:          question,
		SQL:               validated.SQL(),
		Result:            result,
		Explanation:       explanation,
		ExplanationFromAI: fromBackend,
		Provider:          generated.Provider,
		Model:             generated.Model,
		GenerationLatency: generated.Latency,
	}, nil
}

func (p *Pipeline) loadSchema(ctx context.Context) (schema.Snapshot, *StageError) {
	start := time.Now()
	snapshot, err := p.schemaCache.Snapshot(ctx)
	observability.ObserveStageDuration(StageSchema, time.Since(start))
	if err != nil {
		return schema.Snapshot{}, &StageError{
			Stage:  StageSchema,
			Code:   CodeStoreUnavailable,
			Reason: err.Error(),
		}
	}
	return snapshot, nil
}

func (p *Pipeline) generate(ctx context.Context, snapshot schema.Snapshot, question string) (nl2sql.Result, *StageError) {
	prompt := nl2sql.BuildSQLPrompt(snapshot.Text, question)

	genCtx := ctx
	if p.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.opts.GenerateTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.generator.Generate(genCtx, prompt)
	observability.ObserveStageDuration(StageGenerate, time.Since(start))
	if err != nil {
		return nl2sql.Result{}, &StageError{
			Stage:  StageGenerate,
			Code:   classifyGenerateError(err),
			Reason: err.Error(),
		}
	}
	return result, nil
}

func classifyGenerateError(err error) string {
	switch {
	case errors.Is(err, nl2sql.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		return CodeBackendTimeout
	case errors.Is(err, nl2sql.ErrBackendStatus):
		return CodeBackendError
	default:
		return CodeBackendUnreachable
	}
}

func (p *Pipeline) validate(rawText string) (sqlguard.ValidatedQuery, *StageError) {
	start := time.Now()
	validated, err := sqlguard.Validate(rawText)
	observability.ObserveStageDuration(StageValidate, time.Since(start))
	if err != nil {
		var rejection *sqlguard.RejectionError
		stageErr := &StageError{
			Stage:  StageValidate,
			Code:   CodeUnsafeQuery,
			Reason: err.Error(),
		}
		if errors.As(err, &rejection) {
			stageErr.SQL = rejection.SQL
			observability.IncrementRejectedQuery(rejection.Keyword)
		}
		return sqlguard.ValidatedQuery{}, stageErr
	}
	return validated, nil
}

func (p *Pipeline) execute(ctx context.Context, validated sqlguard.ValidatedQuery) (store.Result, *StageError) {
	execCtx := ctx
	if p.opts.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, p.opts.ExecuteTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.store.Execute(execCtx, validated.SQL(), p.opts.RowLimit)
	observability.ObserveStageDuration(StageExecute, time.Since(start))
	if err != nil {
		code := CodeExecutionError
		if errors.Is(err, context.DeadlineExceeded) || execCtx.Err() != nil {
			code = CodeExecutionTimeout
		}
		return store.Result{}, &StageError{
			Stage:  StageExecute,
			Code:   code,
			Reason: err.Error(),
			SQL:    validated.SQL(),
		}
	}
	observability.ObserveResultRows(result.RowCount, result.Truncated)
	return result, nil
}

func (p *Pipeline) explain(ctx context.Context, validated sqlguard.ValidatedQuery) (string, bool) {
	start := time.Now()
	explanation, fromBackend := p.explainer.Explain(ctx, validated.SQL())
	observability.ObserveStageDuration(StageExplain, time.Since(start))
	if !fromBackend {
		p.logger.DebugContext(ctx, "explanation served from template")
	}
	return explanation, fromBackend
}

func (p *Pipeline) fail(stageErr *StageError) *StageError {
	observability.IncrementStageFailure(stageErr.Stage)
	p.logger.Warn("pipeline stage failed",
		slog.String("stage", stageErr.Stage),
		slog.String("code", stageErr.Code),
		slog.String("reason", stageErr.Reason),
	)
	return stageErr
}
