package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/rolo/internal/composer"
	"github.com/kalambet/rolo/internal/generator"
	"github.com/kalambet/rolo/internal/intent"
	"github.com/kalambet/rolo/internal/retrieval"
)

// Fixed replies for the terminal states that never reach the generator or
// where the generator could not answer.
const (
	NotFoundMessage = "❌ No contacts found. Try rephrasing your request."
	ErrorMessage    = "❌ Something went wrong while answering your request. Please try again later."
	TimeoutMessage  = "⏳ The answer took too long to generate. Please try a narrower request."
)

const (
	DefaultTimeout   = 60 * time.Second
	batchConcurrency = 4
)

// Outcome is how a query ended.
type Outcome string

const (
	OutcomeAnswered          Outcome = "answered"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeGenerationFailed  Outcome = "generation_failed"
	OutcomeGenerationTimeout Outcome = "generation_timeout"
)

// Searcher finds contacts for an intent. *retrieval.Repository implements it.
type Searcher interface {
	Search(ctx context.Context, in intent.Intent) retrieval.SearchResult
}

// Options tune a Pipeline. Zero values select the defaults.
type Options struct {
	DisplayLimit int
	Language     string
	Timeout      time.Duration
}

// Result is the answer to one query plus diagnostics about how it was produced.
type Result struct {
	Query        string                 `json:"query"`
	Answer       string                 `json:"answer"`
	Outcome      Outcome                `json:"outcome"`
	Intent       intent.Intent          `json:"intent"`
	Status       retrieval.SearchStatus `json:"status"`
	Retrieved    int                    `json:"retrieved"`
	Rendered     int                    `json:"rendered"`
	PromptTokens int                    `json:"prompt_tokens,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
}

// Pipeline answers free-text questions about the contact store:
// classify, search, render context, generate, format.
type Pipeline struct {
	searcher Searcher
	gen      generator.Generator
	opts     Options
}

// New creates a Pipeline. It holds no per-request state and is safe for
// concurrent use when searcher and gen are.
func New(searcher Searcher, gen generator.Generator, opts Options) *Pipeline {
	if opts.DisplayLimit <= 0 {
		opts.DisplayLimit = composer.DefaultDisplayLimit
	}
	if opts.Language == "" {
		opts.Language = composer.DefaultLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Pipeline{searcher: searcher, gen: gen, opts: opts}
}

// Answer returns the user-facing reply for query.
func (p *Pipeline) Answer(ctx context.Context, query string) string {
	return p.Run(ctx, query).Answer
}

// Run answers query and reports how. Every failure resolves to one of the
// fixed replies; Run never returns an error.
func (p *Pipeline) Run(ctx context.Context, query string) (res Result) {
	start := time.Now()
	res.Query = query
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		slog.Debug("query answered",
			"kind", res.Intent.Kind,
			"terms", len(res.Intent.Terms),
			"status", res.Status,
			"retrieved", res.Retrieved,
			"rendered", res.Rendered,
			"outcome", res.Outcome,
			"duration_ms", res.DurationMs,
		)
	}()

	// 1. Classify.
	res.Intent = intent.Classify(query)

	// 2. Search.
	found := p.searcher.Search(ctx, res.Intent)
	res.Status = found.Status
	res.Retrieved = len(found.Contacts)

	// 3. Nothing to talk about.
	if len(found.Contacts) == 0 {
		res.Outcome = OutcomeNotFound
		res.Answer = NotFoundMessage
		return res
	}

	// 4. Render context and prompt.
	res.Rendered = min(len(found.Contacts), p.opts.DisplayLimit)
	contactContext := composer.BuildContext(found.Contacts, p.opts.DisplayLimit)
	prompt := composer.BuildPrompt(contactContext, query, p.opts.Language)
	res.PromptTokens = composer.EstimateTokens(prompt)

	// 5. Generate under a deadline.
	genCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	text, err := p.gen.Generate(genCtx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			slog.Warn("generation timed out", "timeout", p.opts.Timeout, "kind", res.Intent.Kind)
			res.Outcome = OutcomeGenerationTimeout
			res.Answer = TimeoutMessage
			return res
		}
		slog.Warn("generation failed", "error", err, "kind", res.Intent.Kind)
		res.Outcome = OutcomeGenerationFailed
		res.Answer = ErrorMessage
		return res
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("generation returned no text", "kind", res.Intent.Kind)
		res.Outcome = OutcomeGenerationFailed
		res.Answer = ErrorMessage
		return res
	}

	// 6. Format.
	res.Outcome = OutcomeAnswered
	res.Answer = composer.FormatResponse(text)
	return res
}

// AnswerBatch answers independent queries concurrently. Results keep the
// order of queries. It fails only when ctx is cancelled before every query
// was started.
func (p *Pipeline) AnswerBatch(ctx context.Context, queries []string) ([]Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	results := make([]Result, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, q := range queries {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = p.Run(gCtx, q)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("answering batch: %w", err)
	}
	return results, nil
}
