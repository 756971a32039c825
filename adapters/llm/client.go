package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/ports"
)

// Provider names recorded in usage data
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// StatusError is a non-2xx response from a provider
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// MockLLMClient is a mock LLM client for testing. Responses are returned in
// order; the last one repeats.
type MockLLMClient struct {
	Responses []string
	Errors    []error // Errors[i] is returned instead of Responses[i] when non-nil
	Usage     *ports.UsageData
	Calls     []ports.CompletionRequest
}

func (m *MockLLMClient) ChatCompletionWithUsage(ctx context.Context, req ports.CompletionRequest) (*ports.LLMResponse, error) {
	i := len(m.Calls)
	m.Calls = append(m.Calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < len(m.Errors) && m.Errors[i] != nil {
		return nil, m.Errors[i]
	}
	if len(m.Responses) == 0 {
		return &ports.LLMResponse{Content: "[]", Usage: m.Usage, Attempts: 1}, nil
	}
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	return &ports.LLMResponse{Content: m.Responses[i], Usage: m.Usage, Attempts: 1}, nil
}

// OpenAIClient implements LLMClient over the chat completions API
type OpenAIClient struct {
	APIKey  string
	BaseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewOpenAIClient creates a chat completions client
func NewOpenAIClient(apiKey, baseURL string, logger *zap.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.ConfigInvalid("missing OpenAI API key")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  logging.OrNop(logger),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatCompletionWithUsage sends one system and one user message
func (c *OpenAIClient) ChatCompletionWithUsage(ctx context.Context, req ports.CompletionRequest) (*ports.LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.ConfigInvalid("missing model")
	}

	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSONMode {
		// json_object mode returns an object; the parser accepts {"rules": [...]}
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Body: truncate(string(respRaw), 500)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("openai response missing choices")
	}

	out := &ports.LLMResponse{Content: decoded.Choices[0].Message.Content, Attempts: 1}
	if decoded.Usage != nil {
		model := decoded.Model
		if model == "" {
			model = req.Model
		}
		out.Usage = &ports.UsageData{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
			Model:            model,
			Provider:         ProviderOpenAI,
		}
	}

	c.logger.Debug("[OpenAIClient] completion received",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(out.Content)))
	return out, nil
}

// RetryPolicy bounds retries of transient provider failures
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration // per call; zero leaves the caller's deadline alone
}

// Backoff returns the delay before retry n (1-based): BaseDelay * 2^(n-1), capped at MaxDelay
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryingClient wraps an LLMClient with a per-attempt timeout and exponential backoff
type RetryingClient struct {
	inner  ports.LLMClient
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingClient wraps inner with policy
func NewRetryingClient(inner ports.LLMClient, policy RetryPolicy, logger *zap.Logger) *RetryingClient {
	return &RetryingClient{inner: inner, policy: policy, logger: logging.OrNop(logger), sleep: sleepContext}
}

func (c *RetryingClient) ChatCompletionWithUsage(ctx context.Context, req ports.CompletionRequest) (*ports.LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.policy.Backoff(attempt)
			c.logger.Warn("[LLM] retrying after transient failure",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, errors.ExternalServiceError("llm", err)
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			resp.Attempts = attempt + 1
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			break
		}
	}
	return nil, errors.ExternalServiceError("llm", lastErr)
}

func (c *RetryingClient) attempt(ctx context.Context, req ports.CompletionRequest) (*ports.LLMResponse, error) {
	if c.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		defer cancel()
	}
	return c.inner.ChatCompletionWithUsage(ctx, req)
}

// IsTransient classifies errors worth retrying: transport failures, attempt
// timeouts, 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if stderrors.As(err, &status) {
		return status.Transient()
	}
	var transient interface{ Transient() bool }
	if stderrors.As(err, &transient) {
		return transient.Transient()
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
