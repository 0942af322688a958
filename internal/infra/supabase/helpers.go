package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"
)

// ============================================================
// HTTP helpers for POST and PATCH
// ============================================================

func (c *Client) doPost(ctx context.Context, table string, data map[string]any) ([]byte, error) {
	return c.doWrite(ctx, http.MethodPost, table, data)
}

// doPatch updates the rows selected by path and returns them.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) ([]byte, error) {
	return c.doWrite(ctx, http.MethodPatch, path, data)
}

func (c *Client) doWrite(ctx context.Context, method, path string, data map[string]any) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	c.setRestHeaders(req, "return=representation")

	return c.send(req, path)
}

// guarded runs fn through the client's breaker, bulkhead and retry policy.
func (c *Client) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.guard == nil {
		return fn(ctx)
	}
	return c.guard.Do(ctx, fn)
}

// unavailable maps transport and server failures to *domain.ErrStoreUnavailable.
// Domain errors raised inside the call pass through untouched.
func (c *Client) unavailable(err error) error {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return notFound
	}
	if resilience.IsBreakerOpen(err) {
		return &domain.ErrStoreUnavailable{Store: "supabase", Err: &domain.ErrCircuitOpen{Service: "supabase"}}
	}
	return &domain.ErrStoreUnavailable{Store: "supabase", Err: err}
}
