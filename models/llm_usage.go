package models

import (
	"time"

	"dqrules/domain/core"
)

// LLMUsage represents a single LLM API call's token usage
type LLMUsage struct {
	ID               core.ID    `json:"id" db:"id"`
	RunID            core.RunID `json:"run_id" db:"run_id"`
	Attribute        string     `json:"attribute_name" db:"attribute_name"`
	Provider         string     `json:"provider" db:"provider"`             // 'openai', 'gemini'
	Model            string     `json:"model" db:"model"`                   // 'gpt-4o', 'gemini-2.5-flash', etc.
	OperationType    string     `json:"operation_type" db:"operation_type"` // 'rule_derivation'
	PromptTokens     int        `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens" db:"total_tokens"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// UsageSummary provides aggregated usage statistics for a run
type UsageSummary struct {
	RunID                 core.RunID             `json:"run_id"`
	TotalTokens           int                    `json:"total_tokens"`
	TotalPromptTokens     int                    `json:"total_prompt_tokens"`
	TotalCompletionTokens int                    `json:"total_completion_tokens"`
	ByModel               map[string]*ModelUsage `json:"by_model"`
	RequestCount          int                    `json:"request_count"`
}

// ModelUsage represents usage aggregated by model
type ModelUsage struct {
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	TotalTokens  int    `json:"total_tokens"`
	RequestCount int    `json:"request_count"`
}

// Summarize aggregates usage records
func Summarize(runID core.RunID, records []*LLMUsage) *UsageSummary {
	s := &UsageSummary{RunID: runID, ByModel: make(map[string]*ModelUsage)}
	for _, u := range records {
		s.RequestCount++
		s.TotalTokens += u.TotalTokens
		s.TotalPromptTokens += u.PromptTokens
		s.TotalCompletionTokens += u.CompletionTokens
		m := s.ByModel[u.Model]
		if m == nil {
			m = &ModelUsage{Model: u.Model, Provider: u.Provider}
			s.ByModel[u.Model] = m
		}
		m.TotalTokens += u.TotalTokens
		m.RequestCount++
	}
	return s
}

// Operation types for categorization
const (
	OpRuleDerivation = "rule_derivation"
)
