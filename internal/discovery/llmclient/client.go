// Package llmclient implements the LLM Client from spec.md §4.2: a thin
// adapter over manifold's existing internal/llm.Provider that adds
// structured-output validation with a single retry, and exponential
// backoff with jitter on upstream overload, grounded on the retry idiom in
// internal/llm/anthropic/client.go and internal/llm/openai/client.go.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"manifold/internal/discovery"
	"manifold/internal/llm"
)

// Options controls a single Complete or Stream call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// backoffBase is a var, not a const, so tests can shrink it rather than
// sleeping through the real spec.md §4.2 backoff schedule.
var backoffBase = 5 * time.Second

const (
	backoffFactor = 2
	maxAttempts   = 3
)

// TokenHandler receives streamed text fragments; ToolCalls and images are
// unused by the discovery domain but kept on llm.StreamHandler's contract.
type TokenHandler func(fragment string)

// Client wraps an llm.Provider with the Complete/Stream contract spec.md
// §4.2 names, plus the per-call timeout, backoff, and retry policy.
type Client struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Client {
	return &Client{provider: provider}
}

// Complete issues a single-shot call. When schema is non-nil the raw
// response is parsed as JSON into a value of that shape; on a parse failure
// the call retries once with the same prompt (spec.md §4.2); a second
// failure surfaces as a discovery.Error of kind discovery.KindParseError.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options, out any) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	var lastText string
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := c.complete(ctx, msgs, opts)
		if err != nil {
			return "", err
		}
		lastText = text
		if out == nil {
			return text, nil
		}
		if jsonErr := decodeStructured(text, out); jsonErr == nil {
			return text, nil
		} else {
			lastErr = jsonErr
		}
	}
	return lastText, discovery.NewError(discovery.KindParseError, fmt.Errorf("structured output did not parse after retry: %w", lastErr))
}

// complete runs one attempt of the underlying provider call, applying the
// per-call timeout and the overload backoff-and-retry policy.
func (c *Client) complete(ctx context.Context, msgs []llm.Message, opts Options) (string, error) {
	var result string
	err := c.withBackoff(ctx, func(attemptCtx context.Context) error {
		msg, err := c.provider.Chat(attemptCtx, msgs, nil, opts.Model)
		if err != nil {
			return err
		}
		result = msg.Content
		return nil
	}, opts)
	return result, err
}

// Stream issues a streaming call, invoking onToken for each delta and
// returning the concatenated final text once the provider signals done.
func (c *Client) Stream(ctx context.Context, systemPrompt, userPrompt string, opts Options, onToken TokenHandler) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	var full []byte
	handler := &streamHandler{onToken: func(s string) {
		full = append(full, s...)
		if onToken != nil {
			onToken(s)
		}
	}}
	err := c.withBackoff(ctx, func(attemptCtx context.Context) error {
		full = full[:0]
		return c.provider.ChatStream(attemptCtx, msgs, nil, opts.Model, handler)
	}, opts)
	if err != nil {
		return "", err
	}
	return string(full), nil
}

// withBackoff runs fn under the per-call timeout, retrying on Overloaded
// classifications with exponential backoff and jitter: base 5s, factor 2,
// up to 3 attempts (spec.md §4.2). A cancellation observed during backoff
// surfaces as discovery.KindCancelled immediately.
func (c *Client) withBackoff(ctx context.Context, fn func(context.Context) error, opts Options) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var lastErr error
	wait := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return discovery.NewError(discovery.KindCancelled, ctx.Err())
		}
		if !isOverloaded(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		jittered := wait + time.Duration(rand.Int63n(int64(wait)/2+1))
		select {
		case <-ctx.Done():
			return discovery.NewError(discovery.KindCancelled, ctx.Err())
		case <-time.After(jittered):
		}
		wait *= backoffFactor
	}
	return discovery.NewError(discovery.KindOverloaded, lastErr)
}

type streamHandler struct {
	onToken func(string)
}

func (s *streamHandler) OnDelta(content string)         { s.onToken(content) }
func (s *streamHandler) OnToolCall(tc llm.ToolCall)      {}
func (s *streamHandler) OnImage(img llm.GeneratedImage)  {}
func (s *streamHandler) OnThoughtSummary(summary string) {}

func isOverloaded(err error) bool {
	if discovery.KindOf(err) == discovery.KindOverloaded {
		return true
	}
	// Providers surface upstream 429/overload as plain errors; heuristically
	// match the common substrings rather than depend on provider-specific types.
	lower := strings.ToLower(err.Error())
	for _, sub := range []string{"overloaded", "rate limit", "429", "503", "try again"} {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func decodeStructured(text string, out any) error {
	return json.Unmarshal([]byte(stripCodeFence(text)), out)
}

// stripCodeFence removes a surrounding ```json ... ``` fence some models add
// despite structured-output instructions.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			trimmed = trimmed[nl+1:]
		}
		if end := strings.LastIndex(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
	}
	return strings.TrimSpace(trimmed)
}
