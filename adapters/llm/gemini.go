package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/ports"
)

// GeminiClient implements LLMClient over the Gemini API
type GeminiClient struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini client for the given API key
func NewGeminiClient(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.ConfigInvalid("missing Gemini API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.ExternalServiceError("gemini", err)
	}
	return &GeminiClient{client: client, logger: logging.OrNop(logger)}, nil
}

func (c *GeminiClient) ChatCompletionWithUsage(ctx context.Context, req ports.CompletionRequest) (*ports.LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.ConfigInvalid("missing model")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, &geminiError{err: err}
	}

	out := &ports.LLMResponse{Content: resp.Text(), Attempts: 1}
	if resp.UsageMetadata != nil {
		out.Usage = &ports.UsageData{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			Model:            req.Model,
			Provider:         ProviderGemini,
		}
	}

	c.logger.Debug("[GeminiClient] completion received",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(out.Content)))
	return out, nil
}

// geminiError marks rate limits and server-side failures as transient
type geminiError struct {
	err error
}

func (e *geminiError) Error() string { return fmt.Sprintf("gemini: %v", e.err) }
func (e *geminiError) Unwrap() error { return e.err }

func (e *geminiError) Transient() bool {
	if code, ok := geminiStatus(e.err); ok {
		return code == http.StatusTooManyRequests || code >= 500
	}
	return IsTransient(e.err)
}

// geminiStatus extracts the HTTP status of an API error. The SDK returns
// APIError by value.
func geminiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if stderrors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
