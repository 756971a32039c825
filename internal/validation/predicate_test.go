package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqrules/domain/rule"
	"dqrules/internal/errors"
)

func f64(v float64) *float64 { return &v }

func TestCheckPredicate(t *testing.T) {
	valid := []rule.Predicate{
		{Op: rule.OpNotNull},
		{Op: rule.OpInSet, Values: []string{"1", "3"}},
		{Op: rule.OpRange, Min: f64(6)},
		{Op: rule.OpRange, Min: f64(6), Max: f64(800)},
		{Op: rule.OpRegex, Pattern: `^[A-Z]{2}\d+$`},
		{Op: rule.OpLength, Max: f64(40)},
		{Op: rule.OpDataType, ExpectedType: rule.ExpectedDate},
		{Op: rule.OpCaseConsistent},
	}
	for _, p := range valid {
		assert.NoError(t, CheckPredicate(p), p.String())
	}

	invalid := map[string]rule.Predicate{
		"unknown op":        {Op: "python"},
		"empty set":         {Op: rule.OpInSet},
		"unbounded range":   {Op: rule.OpRange},
		"inverted range":    {Op: rule.OpRange, Min: f64(10), Max: f64(1)},
		"negative length":   {Op: rule.OpLength, Min: f64(-1)},
		"bad regex":         {Op: rule.OpRegex, Pattern: `(unclosed`},
		"lookahead regex":   {Op: rule.OpRegex, Pattern: `^(?=x)`},
		"missing type":      {Op: rule.OpDataType},
		"unsupported type":  {Op: rule.OpDataType, ExpectedType: "boolean"},
		"blank regex":       {Op: rule.OpRegex, Pattern: "  "},
		"empty op":          {},
		"inverted length":   {Op: rule.OpLength, Min: f64(5), Max: f64(2)},
		"range without max": {Op: rule.OpRange, Min: nil, Max: nil},
	}
	for name, p := range invalid {
		assert.Error(t, CheckPredicate(p), name)
	}
}

func TestEvaluator_Fails(t *testing.T) {
	tests := []struct {
		name  string
		pred  rule.Predicate
		value string
		fails bool
	}{
		{"not_null missing", rule.Predicate{Op: rule.OpNotNull}, "", true},
		{"not_null marker", rule.Predicate{Op: rule.OpNotNull}, "NaN", true},
		{"not_null whitespace present", rule.Predicate{Op: rule.OpNotNull}, "  ", false},
		{"not_empty whitespace", rule.Predicate{Op: rule.OpNotEmpty}, "  ", true},
		{"not_empty value", rule.Predicate{Op: rule.OpNotEmpty}, "ABB", false},
		{"in_set member trimmed", rule.Predicate{Op: rule.OpInSet, Values: []string{"3", "4"}}, " 3 ", false},
		{"in_set outsider", rule.Predicate{Op: rule.OpInSet, Values: []string{"3", "4"}}, "5", true},
		{"in_set null passes", rule.Predicate{Op: rule.OpInSet, Values: []string{"3"}}, "", false},
		{"range inside", rule.Predicate{Op: rule.OpRange, Min: f64(6), Max: f64(800)}, "25", false},
		{"range above", rule.Predicate{Op: rule.OpRange, Min: f64(6), Max: f64(800)}, "900", true},
		{"range below open max", rule.Predicate{Op: rule.OpRange, Min: f64(6)}, "5.9", true},
		{"range edge", rule.Predicate{Op: rule.OpRange, Min: f64(6), Max: f64(800)}, "800", false},
		{"regex match", rule.Predicate{Op: rule.OpRegex, Pattern: `^[^@\s]+@[^@\s]+\.[a-z]{2,}$`}, "ops@example.com", false},
		{"regex ignores padding", rule.Predicate{Op: rule.OpRegex, Pattern: `^\d+$`}, " 123 ", false},
		{"regex miss", rule.Predicate{Op: rule.OpRegex, Pattern: `^[^@\s]+@[^@\s]+\.[a-z]{2,}$`}, "ops@example", true},
		{"length rune count", rule.Predicate{Op: rule.OpLength, Max: f64(5)}, "Größe", false},
		{"length too long", rule.Predicate{Op: rule.OpLength, Max: f64(3)}, "abcd", true},
		{"numeric ok", rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedNumeric}, "12.5", false},
		{"numeric bad", rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedNumeric}, "12 A", true},
		{"integer fraction", rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedInteger}, "12.5", true},
		{"integer whole", rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedInteger}, "12", false},
		{"date ok", rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedDate}, "2024-01-15", false},
		{"date bad", rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedDate}, "someday", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Compile(tt.pred, nil)
			require.NoError(t, err)
			got, err := ev.Fails(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.fails, got)
		})
	}
}

func TestEvaluator_RangeNonNumericIsEvaluationError(t *testing.T) {
	ev, err := Compile(rule.Predicate{Op: rule.OpRange, Min: f64(0), Max: f64(10)}, nil)
	require.NoError(t, err)

	_, err = ev.Fails("ten")
	require.Error(t, err)
	assert.Equal(t, errors.CodePredicateEvaluationError, errors.GetCode(err))

	failed, err := ev.Fails("n/a")
	require.NoError(t, err, "null markers pass non-completeness predicates")
	assert.False(t, failed)
}

func TestEvaluator_SampleWideOps(t *testing.T) {
	column := []string{"A1", "A2", "A1", "", "A3"}
	ev, err := Compile(rule.Predicate{Op: rule.OpUnique}, column)
	require.NoError(t, err)
	for value, want := range map[string]bool{"A1": true, "A2": false, "A3": false, "": false} {
		got, err := ev.Fails(value)
		require.NoError(t, err)
		assert.Equal(t, want, got, value)
	}

	brands := []string{"ABB", "abb", "ABB", "Eaton", "EATON", "eaton", "Siemens"}
	ev, err = Compile(rule.Predicate{Op: rule.OpCaseConsistent}, brands)
	require.NoError(t, err)

	var failures []string
	for _, v := range brands {
		failed, err := ev.Fails(v)
		require.NoError(t, err)
		if failed {
			failures = append(failures, v)
		}
	}
	// Eaton/EATON/eaton tie at one each; the first spelling wins
	assert.Equal(t, []string{"abb", "EATON", "eaton"}, failures)
}
