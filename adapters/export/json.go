package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dqrules/domain/rule"
	"dqrules/internal/errors"
)

// WriteJSON writes the rule set document to path, replacing any previous file
func WriteJSON(path string, rs *rule.RuleSet) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rule set: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// ReadJSON loads a rule set document written by WriteJSON
func ReadJSON(path string) (*rule.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot read rule document %s: %v", path, err))
	}
	var rs rule.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("rule document %s is not valid JSON: %v", path, err))
	}
	return &rs, nil
}

// writeFile writes through a temporary file in the same directory so readers
// never see a partial document.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
