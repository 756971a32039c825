package profiling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"dqrules/domain/profile"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
)

// Loader parses the profiling document into attribute profiles
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a profile loader
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logging.OrNop(logger)}
}

// LoadResult is a parsed document plus the attributes that could not be parsed
type LoadResult struct {
	Profiles *profile.Set
	Failures []*errors.AppError
	Failed   map[string]*errors.AppError
}

type rawStats struct {
	Datatype          string          `json:"datatype"`
	MissingPercentage json.RawMessage `json:"missing_percentage"`
	Cardinality       json.RawMessage `json:"cardinality"`
	TopValues         []rawTopValue   `json:"top_values"`
	Range             []*float64      `json:"range"`
	Imbalance         json.RawMessage `json:"imbalance"`
	Sparsity          json.RawMessage `json:"sparsity"`
}

type rawTopValue struct {
	Value interface{} `json:"value"`
	Count interface{} `json:"count"`
}

// LoadFile reads and parses the profiling document at path
func (l *Loader) LoadFile(path string) (*LoadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read profiling document %s", path)
	}
	return l.Load(path, bytes.NewReader(raw))
}

// Load parses a profiling document. An empty or non-object document is fatal;
// a malformed attribute entry is recorded as a ParseError and skipped.
func (l *Loader) Load(source string, r io.Reader) (*LoadResult, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, errors.InvalidInput("profiling document is empty")
	}
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "profiling document is not valid JSON")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.InvalidInput("profiling document must be a JSON object keyed by attribute name")
	}

	result := &LoadResult{
		Profiles: profile.NewSet(source),
		Failed:   make(map[string]*errors.AppError),
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(errors.InvalidInput(err.Error()), "malformed profiling document")
		}
		name, _ := keyTok.(string)

		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "malformed profiling entry %q", name)
		}

		p, perr := parseEntry(name, entry)
		if perr != nil {
			l.logger.Warn("[ProfileLoader] skipping attribute", zap.String("attribute", name), zap.Error(perr))
			result.Failures = append(result.Failures, perr)
			result.Failed[name] = perr
			continue
		}
		result.Profiles.Add(p)
	}

	if result.Profiles.Len() == 0 {
		if len(result.Failures) > 0 {
			return nil, errors.Wrapf(result.Failures[0], "no attribute in %s could be parsed (%d failures)", source, len(result.Failures))
		}
		return nil, errors.InvalidInput("profiling document contains no attributes")
	}

	l.logger.Info("[ProfileLoader] loaded profiles",
		zap.String("source", source),
		zap.Int("attributes", result.Profiles.Len()),
		zap.Int("non_empty", len(result.Profiles.NonEmpty())),
		zap.Int("parse_errors", len(result.Failures)))

	return result, nil
}

func parseEntry(name string, raw json.RawMessage) (profile.AttributeProfile, *errors.AppError) {
	if strings.TrimSpace(name) == "" {
		return profile.AttributeProfile{}, errors.ParseError(name, "attribute name is empty")
	}

	var stats rawStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return profile.AttributeProfile{}, errors.ParseError(name, fmt.Sprintf("statistics are not an object: %v", err))
	}

	missing, err := parsePercent(stats.MissingPercentage)
	if err != nil {
		return profile.AttributeProfile{}, errors.ParseError(name, "missing_percentage: "+err.Error())
	}
	cardinality, err := parsePercent(stats.Cardinality)
	if err != nil {
		return profile.AttributeProfile{}, errors.ParseError(name, "cardinality: "+err.Error())
	}

	p := profile.AttributeProfile{
		Name:         name,
		Datatype:     profile.ParseDatatype(stats.Datatype),
		Completeness: 1 - missing/100,
		Cardinality:  cardinality / 100,
		Imbalance:    optionalText(stats.Imbalance),
		Sparsity:     optionalText(stats.Sparsity),
	}

	for i, tv := range stats.TopValues {
		value, err := cast.ToStringE(tv.Value)
		if err != nil {
			return profile.AttributeProfile{}, errors.ParseError(name, fmt.Sprintf("top_values[%d].value: %v", i, err))
		}
		count, err := cast.ToIntE(normalizeNumber(tv.Count))
		if err != nil || count < 0 {
			return profile.AttributeProfile{}, errors.ParseError(name, fmt.Sprintf("top_values[%d].count is not a non-negative integer", i))
		}
		p.TopValues = append(p.TopValues, profile.TopValue{Value: value, Count: count})
	}

	if len(stats.Range) == 2 && stats.Range[0] != nil && stats.Range[1] != nil {
		lo, hi := *stats.Range[0], *stats.Range[1]
		if lo > hi {
			return profile.AttributeProfile{}, errors.ParseError(name, fmt.Sprintf("range min %v exceeds max %v", lo, hi))
		}
		p.Range = &profile.NumericRange{Min: lo, Max: hi}
	}

	return p, nil
}

// parsePercent accepts 12.5, "12.5" or "12.5%" and returns a value in [0, 100].
func parsePercent(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("required statistic is missing")
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSuffix(strings.TrimSpace(s), "%")
	}
	f, err := cast.ToFloat64E(normalizeNumber(v))
	if err != nil {
		return 0, fmt.Errorf("%s is not a percentage", string(raw))
	}
	if f < 0 || f > 100 {
		return 0, fmt.Errorf("%v is outside [0, 100]", f)
	}
	return f, nil
}

func normalizeNumber(v interface{}) interface{} {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return v
}

func optionalText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return cast.ToString(v)
}
