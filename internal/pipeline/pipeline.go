package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/completion"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/parser"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/retriever"
)

// Stage names as recorded in QueryResult.StageTimings and StageError.
const (
	StageEmbedding      = "embedding"
	StageRetrieving     = "retrieving"
	StagePromptBuilding = "prompt_building"
	StageCompleting     = "completing"
	StageParsing        = "parsing"
)

// Pipeline answers natural-language queries against the ingested corpus. It
// runs the stages in a fixed order; the first stage failure aborts the query
// and surfaces as a StageError naming where it happened.
type Pipeline struct {
	embedder  embedding.Embedder
	retriever *retriever.Retriever
	builder   *prompt.Builder
	completer completion.Service
	parser    *parser.Parser

	timeout      time.Duration
	defaultTopK  int
	defaultMin   float64
	genOpts      completion.Options
	logger       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for per-stage progress events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a query pipeline with the given dependencies. cfg supplies the
// per-query time budget, the prompt character budget, defaults for top-k and
// minimum score, and the completion sampling options.
func New(
	embedder embedding.Embedder,
	retr *retriever.Retriever,
	completer completion.Service,
	cfg *config.Config,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		embedder:    embedder,
		retriever:   retr,
		builder:     prompt.NewBuilder(cfg.Pipeline.PromptBudgetChars),
		completer:   completer,
		parser:      parser.New(),
		timeout:     time.Duration(cfg.Pipeline.QueryTimeoutSeconds) * time.Second,
		defaultTopK: cfg.Retrieval.TopK,
		defaultMin:  cfg.Retrieval.MinScore,
		genOpts: completion.Options{
			MaxTokens:   cfg.Completion.MaxOutputTokens,
			Temperature: cfg.Completion.Temperature,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer runs the full query flow: embed, retrieve, build prompt, complete,
// parse. An empty evidence set is not an error; the result comes back with
// InsufficientEvidence set and low confidence.
func (p *Pipeline) Answer(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	if req.TopK <= 0 {
		req.TopK = p.defaultTopK
	}
	if req.MinScore <= 0 {
		req.MinScore = p.defaultMin
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	queryID := uuid.New().String()
	timings := make(map[string]time.Duration, 5)
	start := time.Now()
	p.log(queryID, "query started", zap.String("query", req.Query))

	queryVector, err := timed(timings, StageEmbedding, func() ([]float32, error) {
		return p.embedder.Embed(ctx, req.Query)
	})
	if err != nil {
		return nil, p.fail(ctx, queryID, StageEmbedding, err)
	}

	evidence, err := timed(timings, StageRetrieving, func() ([]models.EvidenceItem, error) {
		return p.retriever.Retrieve(ctx, queryVector, req.TopK, req.MinScore)
	})
	if err != nil {
		return nil, p.fail(ctx, queryID, StageRetrieving, err)
	}
	p.log(queryID, "evidence retrieved", zap.Int("count", len(evidence)))

	promptText, _ := timed(timings, StagePromptBuilding, func() (string, error) {
		return p.builder.Build(req.Query, evidence), nil
	})

	raw, err := timed(timings, StageCompleting, func() (string, error) {
		return p.completer.Complete(ctx, promptText, p.genOpts)
	})
	if err != nil {
		return nil, p.fail(ctx, queryID, StageCompleting, err)
	}

	result, err := timed(timings, StageParsing, func() (*models.QueryResult, error) {
		return p.parser.Parse(raw, evidence)
	})
	if err != nil {
		return nil, p.fail(ctx, queryID, StageParsing, err)
	}

	result.QueryID = queryID
	result.SupportingEvidence = evidence
	result.StageTimings = timings
	if len(evidence) == 0 {
		// The model had nothing to ground on; whatever it claims, the answer
		// is unsupported.
		result.InsufficientEvidence = true
		result.Confidence = models.ConfidenceLow
	}

	p.log(queryID, "query answered",
		zap.String("confidence", string(result.Confidence)),
		zap.Bool("insufficient_evidence", result.InsufficientEvidence),
		zap.Duration("total", time.Since(start)))
	return result, nil
}

// timed runs fn and records its wall time under stage.
func timed[T any](timings map[string]time.Duration, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	timings[stage] = time.Since(start)
	return v, err
}

// fail wraps a stage failure, converting a blown deadline into ErrTimeout so
// callers can tell a slow dependency from a broken one. The query context is
// consulted too: provider clients may report a deadline as their own
// unavailability error.
func (p *Pipeline) fail(ctx context.Context, queryID, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = models.ErrTimeout
	}
	if p.logger != nil {
		p.logger.Warn("query stage failed",
			zap.String("query_id", queryID),
			zap.String("stage", stage),
			zap.Error(err))
	}
	return models.NewStageError(stage, err)
}

func (p *Pipeline) log(queryID, msg string, fields ...zap.Field) {
	if p.logger == nil {
		return
	}
	p.logger.Debug(msg, append([]zap.Field{zap.String("query_id", queryID)}, fields...)...)
}
