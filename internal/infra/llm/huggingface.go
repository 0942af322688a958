package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultHuggingFaceURL is the summarization model the dashboard used.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/sshleifer/distilbart-cnn-12-6"

// HuggingFace calls the Hugging Face Inference API.
type HuggingFace struct {
	httpClient *http.Client
	modelURL   string
	token      string
	guard      *resilience.Guard
}

// NewHuggingFace creates the adapter. An empty modelURL uses DefaultHuggingFaceURL.
func NewHuggingFace(httpClient *http.Client, modelURL, token string, guard *resilience.Guard) *HuggingFace {
	if modelURL == "" {
		modelURL = DefaultHuggingFaceURL
	}
	return &HuggingFace{httpClient: httpClient, modelURL: modelURL, token: token, guard: guard}
}

// Name identifies the provider in metrics and errors.
func (h *HuggingFace) Name() string { return "huggingface" }

// Summarize posts {"inputs": prompt} and returns the generated text.
func (h *HuggingFace) Summarize(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "HuggingFace.Summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	body, err := postJSON(ctx, h.httpClient, h.guard, h.Name(), h.modelURL, h.token, map[string]string{"inputs": prompt})
	if err != nil {
		return "", err
	}

	text := extractHuggingFaceText(body)
	if text == "" {
		return "", &domain.ErrUpstream{Provider: h.Name(), Status: http.StatusOK, Err: errors.New("unexpected response format")}
	}
	return text, nil
}

// extractHuggingFaceText reads [0].summary_text, [0].generated_text,
// generated_text or text, whichever is present first.
func extractHuggingFaceText(body []byte) string {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return firstString(list[0], "summary_text", "generated_text", "text")
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		return firstString(obj, "summary_text", "generated_text", "text")
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
