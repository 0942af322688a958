package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultOpenAIModel   = "gpt-4"
	systemPrompt         = "You are a helpful assistant."
)

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	guard      *resilience.Guard
	tokens     TokenRecorder
}

// NewOpenAI creates the adapter. Empty baseURL and model take the defaults;
// tokens may be nil.
func NewOpenAI(httpClient *http.Client, baseURL, apiKey, model string, guard *resilience.Guard, tokens TokenRecorder) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		guard:      guard,
		tokens:     tokens,
	}
}

// Name identifies the provider in metrics and errors.
func (o *OpenAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Summarize sends the prompt as the user message and returns the first choice.
func (o *OpenAI) Summarize(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAI.Summarize")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	body, err := postJSON(ctx, o.httpClient, o.guard, o.Name(), o.baseURL+"/v1/chat/completions", o.apiKey, chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &domain.ErrUpstream{Provider: o.Name(), Status: http.StatusOK, Err: fmt.Errorf("decode completion: %w", err)}
	}
	if o.tokens != nil {
		o.tokens.RecordTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &domain.ErrUpstream{Provider: o.Name(), Status: http.StatusOK, Err: errors.New("empty completion")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
