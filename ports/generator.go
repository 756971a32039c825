package ports

import (
	"context"

	"dqrules/domain/core"
	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/internal/profiling"
)

// Generator types recorded in the audit trail
const (
	GeneratorLLM       = "llm"
	GeneratorHeuristic = "heuristic"
)

// RuleGenerator derives candidate rules for one attribute
type RuleGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*Generation, error)
}

// GenerationRequest carries everything known about one attribute
type GenerationRequest struct {
	Dataset         profile.DatasetContext
	Profile         profile.AttributeProfile
	Recommendations []profile.Recommendation
	Sample          *profiling.ColumnSummary // nil when the attribute is absent from the sample
}

// DroppedCandidate records why a candidate was rejected (audit trail).
type DroppedCandidate struct {
	CandidateIndex int    `json:"candidate_index"`
	Reason         string `json:"reason"`
	Message        string `json:"message"`
}

// GenerationAudit is metadata about a generation call (prompt/response hashes, model, usage).
type GenerationAudit struct {
	GeneratorType string             `json:"generator_type"` // "llm" | "heuristic"
	Provider      string             `json:"provider,omitempty"`
	Model         string             `json:"model,omitempty"`
	Temperature   float64            `json:"temperature,omitempty"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	PromptHash    core.Hash          `json:"prompt_hash,omitempty"`
	ResponseHash  core.Hash          `json:"response_hash,omitempty"`
	Attempts      int                `json:"attempts,omitempty"`
	Usage         *UsageData         `json:"usage,omitempty"`
	Dropped       []DroppedCandidate `json:"dropped,omitempty"`
}

// Generation is the full output for one attribute. Rules carry no IDs yet;
// the deriver assigns them in derivation order.
type Generation struct {
	Rules []rule.Rule     `json:"rules"`
	Audit GenerationAudit `json:"audit"`
}
