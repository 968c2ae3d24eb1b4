package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of an upstream response is read; the loan
// APIs return at most a few hundred KB of JSON.
const maxResponseBytes = 4 << 20

// getRaw issues one bounded GET and returns the response body. Non-2xx
// statuses are errors so callers can fall through to sibling endpoints.
func (a *Aggregator) getRaw(ctx context.Context, timeout time.Duration, url string, headers map[string]string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("source: %s returned status %d", url, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("source: read response: %w", err)
	}
	return payload, nil
}

// getJSON fetches and decodes one endpoint's object payload.
func (a *Aggregator) getJSON(ctx context.Context, timeout time.Duration, url string, headers map[string]string) (map[string]any, error) {
	payload, err := a.getRaw(ctx, timeout, url, headers)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("source: decode response: %w", err)
	}
	return decoded, nil
}
