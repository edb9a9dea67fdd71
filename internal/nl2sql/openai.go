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

	"github.com/sqlscout/sqlscout/internal/observability"
)

const systemPrompt = "You translate analytics questions into a single read-only SQL query. " +
	"Return ONLY SQL. No markdown, no explanation."

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// OpenAIGenerator speaks the OpenAI-compatible chat completions protocol,
// which covers the hosted APIs as well as local servers that expose the same
// surface.
type OpenAIGenerator struct {
	baseURL       string
	apiKey        string
	model         string
	temperature   float64
	maxRetries    int
	retryInterval time.Duration
	client        *http.Client
}

func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}
	return &OpenAIGenerator{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		model:         model,
		temperature:   cfg.Temperature,
		maxRetries:    cfg.MaxRetries,
		retryInterval: retryInterval,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": g.temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	start := time.Now()
	var text string
	attempt := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build chat request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

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
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrBackendStatus, err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: empty chat completion choices", ErrBackendStatus))
		}
		text = parsed.Choices[0].Message.Content
		return nil
	}

	if err := backoff.RetryNotify(attempt, retryPolicy(ctx, g.maxRetries, g.retryInterval), notifyRetry("openai-compatible")); err != nil {
		return Result{}, err
	}
	return Result{
		Text:     text,
		Provider: "openai-compatible",
		Model:    g.model,
		Latency:  time.Since(start),
	}, nil
}

func notifyRetry(provider string) backoff.Notify {
	return func(_ error, _ time.Duration) {
		observability.IncrementBackendRetry(provider)
	}
}

func retryPolicy(ctx context.Context, maxRetries int, interval time.Duration) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = interval
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxRetries)), ctx)
}
