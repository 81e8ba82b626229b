// Package openai implements the chat-completion port against any
// OpenAI-compatible API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"log/slog"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/config"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
)

// Client implements domain.ChatCompleter over the /chat/completions
// endpoint. Each call retries transient failures with a linearly growing
// delay; permanent client errors short-circuit.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	counter *tokencount.Counter
}

// New constructs a Client. The HTTP timeout doubles as the per-attempt
// budget for one completion call.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.ProcessingTimeout},
		counter: tokencount.NewCounter(),
	}
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// linearBackOff waits delay, 2*delay, 3*delay, ... between attempts.
type linearBackOff struct {
	delay time.Duration
	n     int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return l.delay * time.Duration(l.n)
}

func (l *linearBackOff) Reset() { l.n = 0 }

// Complete performs one prompt/response round trip and returns the raw
// message content. Transient failures (429, 5xx, network faults, empty
// choices) are retried up to MaxRetries total attempts; other 4xx statuses
// fail immediately. Returned errors wrap the domain sentinels so callers
// can classify without string matching.
func (c *Client) Complete(ctx domain.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("op=openai.Complete: %w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}

	tracer := otel.Tracer("ai.openai")
	ctx, span := tracer.Start(ctx, "openai.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", c.cfg.OpenAIModel))

	body := map[string]any{
		"model":       c.cfg.OpenAIModel,
		"temperature": temperature,
		"max_tokens":  c.cfg.OpenAIMaxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=openai.Complete: marshal request: %w", err)
	}

	var out completionResponse
	attempt := 0
	op := func() error {
		attempt++
		// Recreate the request each attempt; the previous body reader is
		// consumed.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			slog.Warn("chat completion transport error",
				slog.Int("attempt", attempt),
				slog.String("model", c.cfg.OpenAIModel),
				slog.Any("error", err))
			return classifyTransportErr(err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := classifyStatus(resp.StatusCode, respBody); err != nil {
			slog.Warn("chat completion attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("status", resp.StatusCode),
				slog.String("model", c.cfg.OpenAIModel),
				slog.Any("error", err))
			return err
		}

		out = completionResponse{}
		if err := json.Unmarshal(respBody, &out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(out.Choices) == 0 {
			return fmt.Errorf("%w: no choices in response", domain.ErrEmptyCompletion)
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{delay: c.cfg.RetryDelay}, uint64(c.cfg.MaxRetries-1)),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return "", fmt.Errorf("op=openai.Complete: %w", err)
	}

	content := out.Choices[0].Message.Content

	usage := tokencount.Usage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
		Model:            c.cfg.OpenAIModel,
	}
	if usage.TotalTokens == 0 {
		// Some compatible backends omit usage; estimate locally.
		usage = c.counter.CalculateUsage(systemPrompt, userPrompt, content, c.cfg.OpenAIModel)
	}
	observability.AddTokenUsage(usage.PromptTokens, usage.CompletionTokens)

	slog.Debug("chat completion succeeded",
		slog.Int("attempts", attempt),
		slog.String("model", c.cfg.OpenAIModel),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens))
	return content, nil
}

// classifyStatus maps an HTTP status to a domain sentinel. Rate limits and
// server-side failures are retryable; every other 4xx is permanent.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrRateLimited, status)
	case status >= 400 && status < 500:
		return backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrInvalidRequest, status, snippet(body)))
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamUnavailable, status, snippet(body))
	}
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

func snippet(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
