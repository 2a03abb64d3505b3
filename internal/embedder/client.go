// Package embedder provides the client for the external embedding compute
// service (an Ollama-style HTTP API) and the per-entity refresh operations
// built on top of it. All HTTP calls are wrapped with circuit breaker
// protection and rate limited so a refresh pass cannot overwhelm the
// service.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Client handles communication with the embedding service API.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// ClientConfig holds embedding client configuration.
type ClientConfig struct {
	// BaseURL is the base URL of the embedding API (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model name (default: nomic-embed-text).
	Model string

	// Timeout is the per-request timeout (default: 10s).
	Timeout time.Duration

	// RequestsPerSecond caps the request rate (default: 10). The refresh
	// pass issues embeddings concurrently; this keeps the aggregate rate
	// bounded.
	RequestsPerSecond float64

	// Breaker configures the circuit breaker.
	Breaker BreakerConfig
}

// embedRequest is the request body for the /api/embed endpoint.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the response from /api/embed. The embeddings field is a
// 2D array; the first entry is the embedding for our single input.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewClient creates an embedding client, applying defaults for zero config
// values.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}

	return &Client{
		baseURL: config.BaseURL,
		model:   config.Model,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: newBreaker(config.Breaker),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		timeout: config.Timeout,
	}
}

// Model returns the configured embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Embed generates an embedding vector for the given text. The call waits
// for the rate limiter, then runs through the circuit breaker.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := execute(ctx, c.breaker, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	return result.([]float64), nil
}

// embed is the raw HTTP call without breaker wrapping.
func (c *Client) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jsonData, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding service returned empty embedding vector")
	}

	return respData.Embeddings[0], nil
}

// HealthCheck verifies the embedding service is reachable. It bypasses the
// circuit breaker since it is itself a health probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service health check returned status %d", resp.StatusCode)
	}

	return nil
}
