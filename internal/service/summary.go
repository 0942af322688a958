package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/port"

	"go.uber.org/zap"
)

// DeterministicSummary returns the narrative computed by the aggregator.
type DeterministicSummary struct{}

// Strategy implements port.SummaryProvider.
func (DeterministicSummary) Strategy() domain.SummaryStrategy { return domain.SummaryDeterministic }

// Summarize implements port.SummaryProvider.
func (DeterministicSummary) Summarize(_ context.Context, in *domain.SummaryInput) (*domain.Narrative, error) {
	text := ""
	if in != nil && in.Summary != nil {
		text = in.Summary.NarrativeText
	}
	return &domain.Narrative{Text: text, Source: domain.SummaryDeterministic}, nil
}

// LLMSummary asks a hosted model for the narrative and falls back to the
// deterministic text when the model fails.
type LLMSummary struct {
	summarizer port.NarrativeSummarizer
	fallback   DeterministicSummary
	cache      port.Cache[string]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewLLMSummary creates the LLM-backed summary provider.
func NewLLMSummary(summarizer port.NarrativeSummarizer, cache port.Cache[string], metrics *observability.Metrics, logger *zap.Logger) *LLMSummary {
	return &LLMSummary{
		summarizer: summarizer,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

// Strategy implements port.SummaryProvider.
func (s *LLMSummary) Strategy() domain.SummaryStrategy { return domain.SummaryLLM }

// Summarize implements port.SummaryProvider. An empty window never reaches
// the model.
func (s *LLMSummary) Summarize(ctx context.Context, in *domain.SummaryInput) (*domain.Narrative, error) {
	ctx, span := tracer.Start(ctx, "LLMSummary.Summarize")
	defer span.End()

	if in == nil || in.Summary == nil || in.Summary.Empty() {
		return s.fallback.Summarize(ctx, in)
	}

	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	key := promptKey(s.summarizer.Name(), prompt)
	if text, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("narratives")
		return &domain.Narrative{Text: text, Source: domain.SummaryLLM}, nil
	}
	s.metrics.IncrCacheMiss("narratives")

	text, err := s.summarizer.Summarize(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var upstream *domain.ErrUpstream
		if !errors.As(err, &upstream) {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		s.logger.Warn("llm summary failed, using deterministic narrative",
			zap.String("provider", s.summarizer.Name()),
			zap.Int("status", upstream.Status),
			zap.Error(err),
		)
		s.metrics.IncrLLMFallback(s.summarizer.Name())
		s.metrics.IncrExternalError(s.summarizer.Name())
		return s.fallback.Summarize(ctx, in)
	}

	s.cache.Set(key, text)
	return &domain.Narrative{Text: text, Source: domain.SummaryLLM}, nil
}

type promptBill struct {
	BillType  domain.BillType `json:"bill_type"`
	Date      string          `json:"date"`
	Usage     float64         `json:"usage"`
	Cost      float64         `json:"cost"`
	GoalUsage *float64        `json:"goal_usage"`
}

// BuildPrompt renders the window, the goal of its latest bill and the total
// usage into the instruction sent to the model.
func BuildPrompt(in *domain.SummaryInput) (string, error) {
	window := in.Window
	bills := make([]promptBill, len(window))
	for i, b := range window {
		bills[i] = promptBill{
			BillType:  b.BillType,
			Date:      b.Date.Format(domain.DateLayout),
			Usage:     b.Usage,
			Cost:      b.Cost,
			GoalUsage: b.GoalUsage,
		}
	}
	raw, err := json.Marshal(bills)
	if err != nil {
		return "", err
	}

	total := 0.0
	if in.Summary != nil {
		total = in.Summary.TotalUsage
	}
	goal := 0.0
	if len(window) > 0 {
		goal = window[len(window)-1].Goal()
	}

	var b strings.Builder
	b.WriteString("Analyze the following data:\n")
	fmt.Fprintf(&b, "Reports: %s\n", raw)
	fmt.Fprintf(&b, "Goal Usage: %s\n", strconv.FormatFloat(goal, 'f', -1, 64))
	fmt.Fprintf(&b, "Total Usage: %s\n\n", strconv.FormatFloat(total, 'f', -1, 64))
	b.WriteString("Provide a short summary comparing the total usage with the goal usage.")
	return b.String(), nil
}

func promptKey(provider, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "narrative:" + provider + ":" + hex.EncodeToString(sum[:])
}
