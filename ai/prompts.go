package ai

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"dqrules/internal/logging"
)

//go:embed prompts/*.txt
var builtinPrompts embed.FS

// Prompt template names
const (
	PromptSystem         = "system"
	PromptRuleDerivation = "rule_derivation"
)

// PromptManager loads prompt templates. Files in PromptsDir override the
// templates compiled into the binary.
type PromptManager struct {
	PromptsDir string
	logger     *zap.Logger
}

// NewPromptManager creates a prompt manager; an empty dir uses only built-in templates
func NewPromptManager(promptsDir string, logger *zap.Logger) *PromptManager {
	logger = logging.OrNop(logger)
	if promptsDir != "" {
		logger.Debug("[PromptManager] Initialized with override directory", zap.String("dir", promptsDir))
	}
	return &PromptManager{PromptsDir: promptsDir, logger: logger}
}

// LoadPrompt loads a prompt template by name
func (pm *PromptManager) LoadPrompt(name string) (string, error) {
	if pm.PromptsDir != "" {
		content, err := os.ReadFile(filepath.Join(pm.PromptsDir, name+".txt"))
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
		}
	}

	content, err := builtinPrompts.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	return string(content), nil
}

// RenderPrompt replaces {PLACEHOLDER} with values
func (pm *PromptManager) RenderPrompt(name string, replacements map[string]string) (string, error) {
	template, err := pm.LoadPrompt(name)
	if err != nil {
		return "", err
	}

	pairs := make([]string, 0, len(replacements)*2)
	for placeholder, value := range replacements {
		pairs = append(pairs, "{"+placeholder+"}", value)
	}
	// single pass so values containing braces are never re-expanded
	return strings.NewReplacer(pairs...).Replace(template), nil
}
