package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/raptorgraph-backend/internal/config"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/httpx"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/openai"
	"github.com/yungbote/raptorgraph-backend/internal/platform/ratelimit"
	"github.com/yungbote/raptorgraph-backend/internal/platform/tokens"
)

// contextSafetyMargin covers prompt scaffolding and provider-side tokens the
// estimator cannot see.
const contextSafetyMargin = 768

// rewriteTargetTokens is the length the query-rewrite prompt aims for.
const rewriteTargetTokens = 40

const summarySystemPrompt = `You write faithful summaries of source excerpts.
Rules:
- Use only information present in the excerpts. Never invent facts.
- If a fact is uncertain or missing, write "unknown".
- Do not include reasoning steps, headers, or meta commentary.
- Answer with the summary text only.`

const rewriteSystemPrompt = `You rewrite verbose search queries.
Rules:
- Produce one concise, self-contained search query of about %d tokens.
- Keep the language of the original query.
- Preserve all named entities and constraints.
- Answer with the rewritten query only.`

// Gateway produces grounded summaries and concise query rewrites.
type Gateway interface {
	Summarize(ctx context.Context, texts []string, maxTokens int) (string, error)
	RewriteQuery(ctx context.Context, query string) (string, error)
}

type service struct {
	log         *logger.Logger
	clients     map[string]openai.Client
	model       string
	temperature float64
	maxTokens   int
	limiter     *ratelimit.IntervalLimiter
	gate        *ratelimit.Gate
}

// Clients maps provider labels to transports. A single transport may serve
// all three providers when they share a base URL and credential.
type Clients map[string]openai.Client

func New(log *logger.Logger, clients Clients, cfg config.SummarizerConfig) Gateway {
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 4
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &service{
		log:         log.With("service", "SummarizerGateway"),
		clients:     clients,
		model:       cfg.DefaultModel,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		limiter:     ratelimit.NewInterval(cfg.RPMLimit),
		gate:        ratelimit.NewGate(conc),
	}
}

func (s *service) Summarize(ctx context.Context, texts []string, maxTokens int) (string, error) {
	if len(texts) == 0 {
		return "", apierr.New(apierr.KindValidation, "empty_input", "summarize requires at least one source text")
	}
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	info, err := Resolve(s.model)
	if err != nil {
		return "", err
	}

	user := buildSummaryPrompt(texts, maxTokens)
	if err := checkContextWindow(info, summarySystemPrompt, user, maxTokens); err != nil {
		return "", err
	}

	return s.complete(ctx, info, summarySystemPrompt, user, maxTokens)
}

func (s *service) RewriteQuery(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", apierr.New(apierr.KindValidation, "empty_query", "rewrite requires a non-empty query")
	}

	info, err := Resolve(s.model)
	if err != nil {
		return "", err
	}

	system := fmt.Sprintf(rewriteSystemPrompt, rewriteTargetTokens)
	maxTokens := rewriteTargetTokens * 2
	if err := checkContextWindow(info, system, query, maxTokens); err != nil {
		return "", err
	}

	out, err := s.complete(ctx, info, system, query, maxTokens)
	if err != nil {
		return "", err
	}
	if out == "" {
		return query, nil
	}
	return out, nil
}

func (s *service) complete(ctx context.Context, info ModelInfo, system, user string, maxTokens int) (string, error) {
	client := s.clients[info.Provider]
	if client == nil {
		return "", apierr.New(apierr.KindConfiguration, "provider_disabled", "no transport configured for provider").
			WithContext(map[string]any{"provider": info.Provider, "model": info.Name})
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return "", cancelled(err)
	}
	defer s.gate.Release()

	if err := s.limiter.Wait(ctx); err != nil {
		return "", cancelled(err)
	}

	temp := s.temperature
	out, err := client.ChatComplete(ctx, openai.ChatRequest{
		Model:       info.Name,
		System:      system,
		User:        user,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", s.classify(err)
	}
	return strings.TrimSpace(out), nil
}

func (s *service) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(err)
	}
	status := openai.StatusOf(err)
	switch {
	case httpx.IsPermanentAuthStatus(status):
		return apierr.Wrap(apierr.KindConfiguration, "permanent_auth", "summarizer provider rejected the credential", err)
	case status == 429:
		return apierr.Wrap(apierr.KindRateLimit, "rate_limited", "summarizer provider rate limit exhausted after retries", err)
	default:
		return apierr.Wrap(apierr.KindUpstream, "provider_error", "summarization request failed", err)
	}
}

func checkContextWindow(info ModelInfo, system, user string, maxTokens int) error {
	input := tokens.Estimate(system) + tokens.Estimate(user)
	if input+maxTokens+contextSafetyMargin > info.Window {
		return apierr.New(apierr.KindContextLimit, "context_limit_exceeded", "summarization input exceeds the model context window").
			WithContext(map[string]any{
				"model":         info.Name,
				"window":        info.Window,
				"input_tokens":  input,
				"max_tokens":    maxTokens,
				"safety_margin": contextSafetyMargin,
			})
	}
	return nil
}

func buildSummaryPrompt(texts []string, maxTokens int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following %d excerpt(s) in at most %d tokens.\n", len(texts), maxTokens)
	for i, t := range texts {
		fmt.Fprintf(&b, "\n--- Excerpt %d ---\n%s\n", i+1, strings.TrimSpace(t))
	}
	return b.String()
}

func cancelled(err error) error {
	return apierr.Wrap(apierr.KindCancelled, "cancelled", "summarizer call cancelled", err)
}
