package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"dqrules/domain/rule"
	"dqrules/internal/validation"
)

// candidateRule is one rule object as the model writes it. Pointer fields tell a
// missing value apart from a zero one.
type candidateRule struct {
	Attribute           string          `json:"attribute_name" validate:"required"`
	Category            string          `json:"rule_category" validate:"required"`
	Type                string          `json:"rule_type" validate:"required"`
	Severity            string          `json:"severity" validate:"required"`
	Description         string          `json:"description" validate:"required"`
	Expression          string          `json:"rule_expression"`
	SQL                 string          `json:"rule_expression_sql" validate:"required"`
	Predicate           *rule.Predicate `json:"row_predicate" validate:"required"`
	ThresholdPercent    *float64        `json:"threshold_percent" validate:"required,gte=0,lte=100"`
	Confidence          *float64        `json:"confidence_score" validate:"required,gte=0,lte=1"`
	DerivedFrom         string          `json:"derived_from"`
	SampleValidValues   []string        `json:"sample_valid_values"`
	SampleInvalidValues []string        `json:"sample_invalid_values"`
}

var (
	candidateValidate = validator.New(validator.WithRequiredStructEnabled())
	ruleTypePattern   = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
)

// ParseRules strictly decodes a model response into rules for attribute. The
// response must be a JSON array of rule objects, or an object whose only key is
// "rules" holding that array. An empty array is a valid answer with no rules; a
// single invalid rule rejects the whole response.
func ParseRules(attribute, content string) ([]rule.Rule, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var candidates []candidateRule
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, fmt.Errorf("response is not an array of rule objects: %w", err)
	}
	if candidates == nil {
		return nil, fmt.Errorf("response holds null instead of a rule array")
	}

	rules := make([]rule.Rule, 0, len(candidates))
	for i, c := range candidates {
		r, err := c.toRule(attribute)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// extractJSON strips a markdown fence and unwraps a {"rules": [...]} envelope
func extractJSON(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}

	raw := []byte(s)
	if raw[0] == '[' {
		return raw, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("response is not JSON")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	inner, ok := envelope["rules"]
	if !ok || len(envelope) != 1 {
		return nil, fmt.Errorf("object response must hold only a \"rules\" array")
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '[' {
		return nil, fmt.Errorf("\"rules\" must be an array")
	}
	return inner, nil
}

func (c candidateRule) toRule(attribute string) (rule.Rule, error) {
	if err := candidateValidate.Struct(c); err != nil {
		return rule.Rule{}, fmt.Errorf("schema: %s", describeFieldErrors(err))
	}
	if c.Attribute != attribute {
		return rule.Rule{}, fmt.Errorf("attribute_name %q does not match requested %q", c.Attribute, attribute)
	}
	category := rule.Category(c.Category)
	if !category.Valid() {
		return rule.Rule{}, fmt.Errorf("unknown rule_category %q", c.Category)
	}
	severity := rule.Severity(c.Severity)
	if !severity.Valid() {
		return rule.Rule{}, fmt.Errorf("unknown severity %q", c.Severity)
	}
	if !ruleTypePattern.MatchString(c.Type) {
		return rule.Rule{}, fmt.Errorf("rule_type %q is not an upper-case identifier", c.Type)
	}
	if err := validation.CheckPredicate(*c.Predicate); err != nil {
		return rule.Rule{}, fmt.Errorf("row_predicate: %w", err)
	}

	return rule.Rule{
		Attribute:           c.Attribute,
		Category:            category,
		Type:                rule.Type(c.Type),
		Severity:            severity,
		Description:         strings.TrimSpace(c.Description),
		Expression:          c.Expression,
		SQL:                 strings.TrimSpace(c.SQL),
		Predicate:           *c.Predicate,
		ThresholdPercent:    *c.ThresholdPercent,
		Confidence:          *c.Confidence,
		DerivedFrom:         c.DerivedFrom,
		SampleValidValues:   c.SampleValidValues,
		SampleInvalidValues: c.SampleInvalidValues,
	}, nil
}

func describeFieldErrors(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
