package ports

import "context"

// UsageData represents raw usage data from LLM provider APIs
type UsageData struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// LLMResponse is the completion text plus the provider's token accounting
type LLMResponse struct {
	Content  string
	Usage    *UsageData
	Attempts int // calls made, including retries
}

// CompletionRequest is one prompt sent to a text-generation provider
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool // ask the provider for a JSON-only response when it supports one
}

// LLMClient is implemented by every text-generation provider
type LLMClient interface {
	ChatCompletionWithUsage(ctx context.Context, req CompletionRequest) (*LLMResponse, error)
}
