package ai

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPromptManager_BuiltinTemplates(t *testing.T) {
	pm := NewPromptManager("", zaptest.NewLogger(t))

	system, err := pm.LoadPrompt(PromptSystem)
	require.NoError(t, err)
	assert.Contains(t, system, "JSON array")

	rendered, err := pm.RenderPrompt(PromptRuleDerivation, map[string]string{
		"ATTRIBUTE":    "zz_Number of Poles",
		"DATASET_NAME": "{ATTRIBUTE}",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered, `must be exactly "zz_Number of Poles"`)
	assert.Contains(t, rendered, "Dataset Name: {ATTRIBUTE}", "values are not expanded twice")

	_, err = pm.LoadPrompt("missing")
	assert.Error(t, err)
}

func TestPromptManager_OverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PromptSystem+".txt"), []byte("custom {X}"), 0o644))

	pm := NewPromptManager(dir, nil)
	out, err := pm.RenderPrompt(PromptSystem, map[string]string{"X": "system"})
	require.NoError(t, err)
	assert.Equal(t, "custom system", out)

	derivation, err := pm.LoadPrompt(PromptRuleDerivation)
	require.NoError(t, err, "falls back to built-in templates")
	assert.Contains(t, derivation, "## Output Schema")
}

func TestFormatExemplars(t *testing.T) {
	examples := DefaultExemplars()
	require.Len(t, examples, 3)

	out, err := FormatExemplars(examples)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "### Example:"))
	assert.Contains(t, out, `"op": "in_set"`)

	// every exemplar rule must carry the fields the parser requires
	for _, ex := range examples {
		for _, r := range ex.Rules {
			raw, err := json.Marshal(r)
			require.NoError(t, err)
			for _, field := range []string{"attribute_name", "rule_category", "row_predicate", "threshold_percent", "confidence_score"} {
				assert.Contains(t, string(raw), `"`+field+`"`)
			}
			assert.Equal(t, ex.Attribute, r["attribute_name"])
		}
	}
}
