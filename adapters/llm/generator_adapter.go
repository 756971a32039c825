package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dqrules/ai"
	"dqrules/domain/core"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/ports"
)

// Config holds LLM adapter configuration
type Config struct {
	Provider    string        // recorded in the audit
	Model       string        // e.g., "gpt-4.1-mini"
	Temperature float64       // 0.0-1.0, lower = more deterministic
	MaxTokens   int           // Max tokens in response
	Timeout     time.Duration // Bound on the whole generation, retries included; zero disables
	JSONMode    bool          // ask the provider for a JSON-only response
}

// topValuesInPrompt bounds the top-value list rendered into the prompt
const topValuesInPrompt = 10

// GeneratorAdapter implements RuleGenerator using an LLM
type GeneratorAdapter struct {
	config    Config
	llmClient ports.LLMClient
	prompts   *ai.PromptManager
	examples  string
	logger    *zap.Logger
}

// NewGeneratorAdapter creates a new LLM rule generator
func NewGeneratorAdapter(config Config, client ports.LLMClient, prompts *ai.PromptManager, logger *zap.Logger) (*GeneratorAdapter, error) {
	if client == nil {
		return nil, errors.ConfigInvalid("LLM client is required")
	}
	if prompts == nil {
		prompts = ai.NewPromptManager("", logger)
	}
	examples, err := ai.FormatExemplars(ai.DefaultExemplars())
	if err != nil {
		return nil, fmt.Errorf("failed to format exemplars: %w", err)
	}
	return &GeneratorAdapter{
		config:    config,
		llmClient: client,
		prompts:   prompts,
		examples:  examples,
		logger:    logging.OrNop(logger),
	}, nil
}

// BuildPrompt renders the system and user prompts for one attribute
func (g *GeneratorAdapter) BuildPrompt(req ports.GenerationRequest) (string, string, error) {
	system, err := g.prompts.LoadPrompt(ai.PromptSystem)
	if err != nil {
		return "", "", err
	}

	p := req.Profile
	rangeText := "n/a"
	if p.Range != nil {
		rangeText = fmt.Sprintf("%v to %v", p.Range.Min, p.Range.Max)
	}

	topValues := p.TopValues
	if len(topValues) > topValuesInPrompt {
		topValues = topValues[:topValuesInPrompt]
	}
	topJSON, err := json.MarshalIndent(topValues, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal top values: %w", err)
	}

	recommended := make([]string, 0, len(req.Recommendations))
	for _, rec := range req.Recommendations {
		recommended = append(recommended, "- "+rec.String())
	}
	guidance := ai.CompileGuidance(p)
	for i := range guidance {
		guidance[i] = "- " + guidance[i]
	}

	user, err := g.prompts.RenderPrompt(ai.PromptRuleDerivation, map[string]string{
		"DATASET_NAME":    req.Dataset.Name,
		"PARENT_CLASS":    req.Dataset.ParentClass,
		"TOTAL_RECORDS":   fmt.Sprintf("%d", req.Dataset.TotalRecords),
		"ATTRIBUTE":       p.Name,
		"DATATYPE":        string(p.Datatype),
		"MISSING_PERCENT": fmt.Sprintf("%.2f", p.MissingPercent()),
		"CARDINALITY":     fmt.Sprintf("%.2f", p.CardinalityPercent()),
		"RANGE":           rangeText,
		"TOP_VALUES":      string(topJSON),
		"SAMPLE_SUMMARY":  sampleSummary(req),
		"RECOMMENDED":     orNone(recommended),
		"GUIDANCE":        orNone(guidance),
		"EXAMPLES":        g.examples,
		"OPS":             opsHelp,
	})
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

var opsHelp = strings.Join([]string{
	`  - {"op": "not_null"}, {"op": "not_empty"}`,
	`  - {"op": "in_set", "values": [...]}`,
	`  - {"op": "range", "min": n, "max": n} (either bound may be omitted)`,
	`  - {"op": "regex", "pattern": "..."} (RE2 syntax, no lookaround)`,
	`  - {"op": "length", "min": n, "max": n}`,
	`  - {"op": "data_type", "expected_type": "numeric" | "integer" | "date"}`,
	`  - {"op": "unique"}, {"op": "case_consistent"}`,
}, "\n")

func sampleSummary(req ports.GenerationRequest) string {
	s := req.Sample
	if s == nil {
		return "Attribute not present in the sample file."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "- Rows: %d, non-null: %d, distinct: %d, duplicate values: %d\n",
		s.Rows, s.NonNull, s.Distinct, s.Duplicates)
	fmt.Fprintf(&b, "- Length: %d to %d characters, numeric share: %.2f\n",
		s.MinLength, s.MaxLength, s.NumericShare)
	if n := s.Numeric; n != nil {
		fmt.Fprintf(&b, "- Numeric: min %v, q25 %v, median %v, q75 %v, max %v, IQR outliers %d\n",
			n.Min, n.Q25, n.Median, n.Q75, n.Max, n.Outliers)
	}
	if len(s.Examples) > 0 {
		fmt.Fprintf(&b, "- Examples: %s\n", strings.Join(s.Examples, " | "))
	}
	return strings.TrimSpace(b.String())
}

func orNone(lines []string) string {
	if len(lines) == 0 {
		return "- none"
	}
	return strings.Join(lines, "\n")
}

// Generate implements RuleGenerator. Any provider or parse failure is a
// DerivationError for the whole attribute.
func (g *GeneratorAdapter) Generate(ctx context.Context, req ports.GenerationRequest) (*ports.Generation, error) {
	attribute := req.Profile.Name

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	system, prompt, err := g.BuildPrompt(req)
	if err != nil {
		return nil, errors.DerivationError(attribute, fmt.Errorf("failed to build prompt: %w", err))
	}
	audit := ports.GenerationAudit{
		GeneratorType: ports.GeneratorLLM,
		Provider:      g.config.Provider,
		Model:         g.config.Model,
		Temperature:   g.config.Temperature,
		MaxTokens:     g.config.MaxTokens,
		PromptHash:    core.NewHash([]byte(system + "\n" + prompt)),
	}

	start := time.Now()
	response, err := g.llmClient.ChatCompletionWithUsage(ctx, ports.CompletionRequest{
		Model:       g.config.Model,
		System:      system,
		Prompt:      prompt,
		Temperature: g.config.Temperature,
		MaxTokens:   g.config.MaxTokens,
		JSONMode:    g.config.JSONMode,
	})
	if err != nil {
		return nil, errors.DerivationError(attribute, fmt.Errorf("LLM call failed: %w", err))
	}
	audit.ResponseHash = core.NewHash([]byte(response.Content))
	audit.Attempts = response.Attempts
	audit.Usage = response.Usage

	rules, err := ParseRules(attribute, response.Content)
	if err != nil {
		g.logger.Warn("[GeneratorAdapter] response rejected",
			zap.String("attribute", attribute),
			zap.String("response_hash", audit.ResponseHash.Short()),
			zap.Error(err))
		return &ports.Generation{Audit: audit}, errors.DerivationError(attribute, err)
	}

	g.logger.Info("[GeneratorAdapter] rules derived",
		zap.String("attribute", attribute),
		zap.Int("rules", len(rules)),
		zap.Int("attempts", response.Attempts),
		zap.Duration("elapsed", time.Since(start)))

	return &ports.Generation{Rules: withTrace(rules, audit), Audit: audit}, nil
}

// withTrace fills DerivedFrom for rules the model left unexplained
func withTrace(rules []rule.Rule, audit ports.GenerationAudit) []rule.Rule {
	for i := range rules {
		if strings.TrimSpace(rules[i].DerivedFrom) == "" {
			rules[i].DerivedFrom = "llm:" + audit.Model
		}
	}
	return rules
}
