package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// OllamaGenerator speaks the native Ollama /api/generate protocol for fully
// local models.
type OllamaGenerator struct {
	baseURL       string
	model         string
	temperature   float64
	maxRetries    int
	retryInterval time.Duration
	client        *http.Client
}

func NewOllamaGenerator(cfg Config) (*OllamaGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}
	return &OllamaGenerator{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:         model,
		temperature:   cfg.Temperature,
		maxRetries:    cfg.MaxRetries,
		retryInterval: retryInterval,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	payload := map[string]any{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": g.temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal generate payload: %w", err)
	}

	start := time.Now()
	var text string
	attempt := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build generate request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%w: %v", classifyTransport(err), err)
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%w: status=%d body=%s", ErrBackendStatus, resp.StatusCode, strings.TrimSpace(string(raw))))
		}

		var parsed struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrBackendStatus, err))
		}
		text = parsed.Response
		return nil
	}

	if err := backoff.RetryNotify(attempt, retryPolicy(ctx, g.maxRetries, g.retryInterval), notifyRetry("ollama")); err != nil {
		return Result{}, err
	}
	return Result{
		Text:     text,
		Provider: "ollama",
		Model:    g.model,
		Latency:  time.Since(start),
	}, nil
}
