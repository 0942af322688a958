// Package llm holds the NarrativeSummarizer adapters for hosted text
// generation: Hugging Face Inference and OpenAI chat completions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("llm")

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 1 << 20

// TokenRecorder receives token usage reported by a provider.
type TokenRecorder interface {
	RecordTokens(prompt, completion int)
}

// postJSON sends payload to url through the guard and returns the 2xx body.
// Any failure comes back as *domain.ErrUpstream.
func postJSON(ctx context.Context, httpClient *http.Client, guard *resilience.Guard, provider, url, bearer string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.ErrUpstream{Provider: provider, Err: err}
	}

	var (
		body   []byte
		status int
	)
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		statusErr := fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, truncate(string(body), 200))
		// rate limits and server errors may pass on a later attempt
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return resilience.Permanent(statusErr)
	}

	if guard != nil {
		err = guard.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if resilience.IsBreakerOpen(err) {
			err = &domain.ErrCircuitOpen{Service: provider}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &domain.ErrTimeout{Operation: provider + " summarize"}
		}
		return nil, &domain.ErrUpstream{Provider: provider, Status: status, Err: err}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
