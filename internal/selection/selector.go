package selection

import (
	"strings"

	"go.uber.org/zap"

	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
)

// DefaultAttributeCount caps selection when no priority list is configured
const DefaultAttributeCount = 15

// Selector picks the ordered subset of attributes that receive rules
type Selector struct {
	priority      []string
	maxAttributes int
	logger        *zap.Logger
}

// NewSelector creates a selector over a static priority list. maxAttributes <= 0 means no cap.
func NewSelector(priority []string, maxAttributes int, logger *zap.Logger) *Selector {
	return &Selector{priority: priority, maxAttributes: maxAttributes, logger: logging.OrNop(logger)}
}

// Selection is the outcome of attribute selection
type Selection struct {
	Attributes []string
	Skipped    []rule.Unprocessed
	Missing    []string // priority names with no profile
	Fallback   bool     // true when no priority list was configured
}

// Select intersects the priority list with the loaded profiles, in priority order.
// Matching is case-insensitive; the profile's own spelling is returned. Attributes whose
// profile failed to parse, or that are entirely empty, are reported as skipped.
func (s *Selector) Select(set *profile.Set, parseFailures map[string]*errors.AppError) (*Selection, error) {
	if set == nil || set.Len() == 0 {
		return nil, errors.InvalidInput("no attribute profiles loaded")
	}

	sel := &Selection{}
	limit := s.maxAttributes

	if len(s.priority) == 0 {
		sel.Fallback = true
		if limit <= 0 {
			limit = DefaultAttributeCount
		}
		for _, name := range set.NonEmpty() {
			if len(sel.Attributes) >= limit {
				break
			}
			sel.Attributes = append(sel.Attributes, name)
		}
		s.logger.Info("[AttributeSelector] no priority list configured, using first non-empty attributes",
			zap.Int("selected", len(sel.Attributes)))
		return s.finish(sel)
	}

	byLower := make(map[string]string, set.Len())
	for _, name := range set.Order {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, exists := byLower[key]; !exists {
			byLower[key] = name
		}
	}
	failedLower := make(map[string]*errors.AppError, len(parseFailures))
	for name, err := range parseFailures {
		failedLower[strings.ToLower(strings.TrimSpace(name))] = err
	}

	seen := make(map[string]bool)
	for _, wanted := range s.priority {
		key := strings.ToLower(strings.TrimSpace(wanted))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if perr, failed := failedLower[key]; failed {
			sel.Skipped = append(sel.Skipped, rule.Unprocessed{
				Attribute: wanted,
				Stage:     rule.StageProfile,
				Code:      perr.Code,
				Reason:    perr.Error(),
			})
			continue
		}

		name, ok := byLower[key]
		if !ok {
			sel.Missing = append(sel.Missing, wanted)
			continue
		}
		if set.Attributes[name].IsEmpty() {
			sel.Skipped = append(sel.Skipped, rule.Unprocessed{
				Attribute: name,
				Stage:     rule.StageSelection,
				Code:      errors.CodeInvalidInput,
				Reason:    "attribute is entirely empty",
			})
			continue
		}
		if limit > 0 && len(sel.Attributes) >= limit {
			continue
		}
		sel.Attributes = append(sel.Attributes, name)
	}

	if len(sel.Missing) > 0 {
		s.logger.Warn("[AttributeSelector] priority attributes without a profile",
			zap.Strings("attributes", sel.Missing))
	}
	if len(sel.Attributes) < len(s.priority) {
		s.logger.Info("[AttributeSelector] proceeding with a partial priority list",
			zap.Int("requested", len(s.priority)),
			zap.Int("selected", len(sel.Attributes)))
	}
	return s.finish(sel)
}

func (s *Selector) finish(sel *Selection) (*Selection, error) {
	if len(sel.Attributes) == 0 {
		return nil, errors.InvalidInput("no attributes selected for rule derivation")
	}
	return sel, nil
}
