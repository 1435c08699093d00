// Package gemini talks to the Gemini generateContent API and returns the
// generated copy as validated JSON.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/egress"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/llm"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
)

const (
	DefaultBaseURL  = "https://generativelanguage.googleapis.com"
	DefaultModel    = "gemini-pro"
	DefaultAttempts = 3
	DefaultDelay    = time.Second
	APIHost         = "generativelanguage.googleapis.com"

	httpTimeout = 120 * time.Second
)

var fencePattern = regexp.MustCompile("```(?:json)?\\s*|\\s*```")

// Transport performs a single provider round trip.
type Transport interface {
	// GenerateText returns candidates[0].content.parts[0].text.
	GenerateText(ctx context.Context, apiKey, model, prompt string) (string, error)
	ValidateKey(ctx context.Context, apiKey string) error
}

type Client struct {
	transport Transport
	model     string
	attempts  int
	delay     time.Duration
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
}

type Option func(*Client)

func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay >= 0 {
			c.delay = delay
		}
	}
}

func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient defaults to the HTTP transport behind the egress allowlist.
func NewClient(opts ...Option) *Client {
	c := &Client{
		model:    DefaultModel,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		sleep:    sleepWithContext,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(DefaultBaseURL, DefaultHTTPClient(), c.logger)
	}
	c.logger = c.logger.With("component", "gemini")
	return c
}

// DefaultHTTPClient only reaches the Gemini API host over HTTPS.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   httpTimeout,
		Transport: egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{APIHost}),
	}
}

func (c *Client) Model() string { return c.model }

// Generate sends prompt and returns the generated JSON payload. Transport
// failures are retried with a fixed delay; after the last attempt the error
// wraps llm.ErrRetriesExhausted. Shape and payload errors are returned at once.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		raw, err := c.attempt(ctx, apiKey, prompt)
		if err == nil {
			c.logger.Debug("generate.succeeded", "attempt", attempt, "model", c.model, "bytes", len(raw))
			return raw, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		c.logger.Warn("generate.attempt_failed",
			"attempt", attempt,
			"max_attempts", c.attempts,
			"model", c.model,
			"error", err.Error(),
		)
		if !llm.Retryable(err) {
			return nil, err
		}
		if attempt == c.attempts {
			break
		}
		if err := c.sleep(ctx, c.delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", llm.ErrRetriesExhausted, c.attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, apiKey, prompt string) (json.RawMessage, error) {
	text, err := c.transport.GenerateText(ctx, apiKey, c.model, prompt)
	if err != nil {
		return nil, err
	}
	return Normalize(text)
}

// ValidateKey checks apiKey against the model listing endpoint.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	return c.transport.ValidateKey(ctx, apiKey)
}

// Normalize strips markdown code fences from text and validates the rest as
// JSON.
func Normalize(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
	if !gjson.Valid(cleaned) {
		return nil, fmt.Errorf("%w: failed to parse response as JSON: %s", llm.ErrMalformedPayload, truncate(cleaned, 200))
	}
	return json.RawMessage(cleaned), nil
}

// transportFailure tags a low-level error as retryable unless it is an
// egress block or a context error.
func transportFailure(err error) error {
	var blocked *egress.BlockedError
	switch {
	case errors.As(err, &blocked):
		return blocked
	case errors.Is(err, llm.ErrEgressBlocked):
		return llm.ErrEgressBlocked
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	// url.Error carries the request URL, which includes the key.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = logging.RedactURL(urlErr.URL)
	}
	return fmt.Errorf("%w: %w", llm.ErrTransport, err)
}

// statusKind classifies a non-2xx status code.
func statusKind(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return llm.ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case code >= 500:
		return llm.ErrUnavailable
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
