// Package extracthttp implements the provider port over the HTTP extraction
// API exposed by each provider sidecar. One Client per configured provider;
// the sidecar normalizes the vendor payload into the shared candidate schema.
package extracthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/provider"
	"github.com/semaj-12/7M-Quote-sub001/internal/resilience"
)

// Client talks to one extraction provider sidecar.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	caps       provider.Capabilities
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// extractResponse is the sidecar's wire format. Latency and versions come
// from the sidecar, not the caller's clock, so records are comparable across
// fusion hosts.
type extractResponse struct {
	Candidates     []*entity.Candidate `json:"candidates"`
	LatencyMS      int64               `json:"latency_ms"`
	AdapterVersion string              `json:"adapter_version"`
	SchemaVersion  string              `json:"schema_version"`
	PromptVersion  string              `json:"prompt_version,omitempty"`
}

// NewClient creates a provider client for one sidecar endpoint.
func NewClient(name, baseURL, apiKey string, caps provider.Capabilities, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		caps:    caps,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Name implements provider.Invoker.
func (c *Client) Name() string { return c.name }

// Capabilities implements provider.Invoker.
func (c *Client) Capabilities() provider.Capabilities { return c.caps }

// Invoke extracts candidates for the requested document. Each returned
// candidate is stamped with this provider's name and the sidecar's version
// metadata before it reaches the fusion pipeline.
func (c *Client) Invoke(ctx context.Context, req provider.Request) ([]*entity.Candidate, error) {
	for _, et := range req.Types {
		if !c.caps.Supports(et) {
			return nil, fmt.Errorf("%w: %s does not extract %s", provider.ErrUnsupportedType, c.name, et)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/v1/extract", body)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", c.name, err)
	}

	var resp extractResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal extract response: %w", err)
	}

	for _, cand := range resp.Candidates {
		cand.Provider = c.name
		cand.Meta.LatencyMS = resp.LatencyMS
		cand.Meta.AdapterVersion = resp.AdapterVersion
		cand.Meta.SchemaVersion = resp.SchemaVersion
		cand.Meta.PromptVersion = resp.PromptVersion
		if err := cand.Validate(); err != nil {
			return nil, fmt.Errorf("candidate %s from %s: %w", cand.ID, c.name, err)
		}
	}
	return resp.Candidates, nil
}

// Health checks if the sidecar is reachable.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err == nil, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %s", provider.ErrUnavailable, strconv.Itoa(resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("extraction API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
