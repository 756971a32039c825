package heuristic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/internal/profiling"
	"dqrules/internal/validation"
	"dqrules/ports"
)

func types(rules []rule.Rule) []rule.Type {
	out := make([]rule.Type, len(rules))
	for i, r := range rules {
		out[i] = r.Type
	}
	return out
}

func TestGenerate_Numeric(t *testing.T) {
	req := ports.GenerationRequest{
		Profile: profile.AttributeProfile{
			Name:         "zz_Contact Current Rating",
			Datatype:     profile.DatatypeNumeric,
			Completeness: 0.98,
			Cardinality:  0.05,
			Range:        &profile.NumericRange{Min: 6, Max: 800},
		},
		Sample: &profiling.ColumnSummary{Rows: 100, NonNull: 98, NumericShare: 0.95},
	}

	gen, err := NewGenerator().Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []rule.Type{rule.TypeNotNull, rule.TypeRange, rule.TypeDataType}, types(gen.Rules))
	assert.Equal(t, ports.GeneratorHeuristic, gen.Audit.GeneratorType)

	notNull := gen.Rules[0]
	assert.Equal(t, rule.SeverityCritical, notNull.Severity)
	assert.Equal(t, 2.2, notNull.ThresholdPercent)

	rng := gen.Rules[1]
	require.NotNil(t, rng.Predicate.Min)
	assert.Equal(t, 6.0, *rng.Predicate.Min)
	assert.Equal(t, 800.0, *rng.Predicate.Max)
	assert.Contains(t, rng.SQL, `CAST("zz_Contact Current Rating" AS REAL) NOT BETWEEN 6 AND 800`)

	assert.Equal(t, 5.5, gen.Rules[2].ThresholdPercent)

	for _, r := range gen.Rules {
		assert.NoError(t, validation.CheckPredicate(r.Predicate), r.Type)
		assert.True(t, r.InBounds(), r.Type)
		assert.Empty(t, r.ID)
	}
}

func TestGenerate_CategoricalWithCaseVariants(t *testing.T) {
	req := ports.GenerationRequest{
		Profile: profile.AttributeProfile{
			Name:         "Brand",
			Datatype:     profile.DatatypeCategorical,
			Completeness: 0.5,
			Cardinality:  0.01,
			TopValues: []profile.TopValue{
				{Value: "ABB", Count: 40}, {Value: "Eaton", Count: 30}, {Value: "abb", Count: 2},
			},
		},
	}

	gen, err := NewGenerator().Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []rule.Type{rule.TypeNotNull, rule.TypeValueSet, rule.TypeCaseConsistency}, types(gen.Rules))
	assert.Equal(t, rule.SeverityLow, gen.Rules[0].Severity)
	assert.Equal(t, []string{"ABB", "Eaton", "abb"}, gen.Rules[1].Predicate.Values)
	assert.Contains(t, gen.Rules[1].SQL, "NOT IN ('ABB', 'Eaton', 'abb')")
	assert.Equal(t, rule.CategoryConsistency, gen.Rules[2].Category)
}

func TestGenerate_SparseAttributeSkipsCompleteness(t *testing.T) {
	req := ports.GenerationRequest{
		Profile: profile.AttributeProfile{
			Name:         "Notes",
			Datatype:     profile.DatatypeText,
			Completeness: 0.1,
			Cardinality:  0.09,
		},
		Sample: &profiling.ColumnSummary{Rows: 100, NonNull: 10, MaxLength: 120},
	}

	gen, err := NewGenerator().Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []rule.Type{rule.TypeLength}, types(gen.Rules))
	assert.Equal(t, 120.0, *gen.Rules[0].Predicate.Max)
}

func TestGenerate_IdentifierIsUnique(t *testing.T) {
	req := ports.GenerationRequest{
		Profile: profile.AttributeProfile{
			Name:         "SKU",
			Datatype:     profile.DatatypeID,
			Completeness: 1,
			Cardinality:  0.995,
		},
	}

	gen, err := NewGenerator().Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []rule.Type{rule.TypeNotNull, rule.TypePrimaryKey}, types(gen.Rules))
	assert.Equal(t, 0.0, gen.Rules[0].ThresholdPercent)
	assert.Equal(t, rule.OpUnique, gen.Rules[1].Predicate.Op)
	assert.Equal(t, 0.5, gen.Rules[1].ThresholdPercent)
}

func TestGenerate_NothingApplies(t *testing.T) {
	req := ports.GenerationRequest{
		Profile: profile.AttributeProfile{Name: "Mystery", Datatype: profile.DatatypeUnknown, Completeness: 0.05},
	}

	_, err := NewGenerator().Generate(context.Background(), req)
	assert.Equal(t, errors.CodeDerivationError, errors.GetCode(err))
}

func TestGenerate_Deterministic(t *testing.T) {
	req := ports.GenerationRequest{
		Profile: profile.AttributeProfile{
			Name: "Brand", Datatype: profile.DatatypeCategorical, Completeness: 0.9, Cardinality: 0.02,
			TopValues: []profile.TopValue{{Value: "ABB", Count: 4}},
		},
	}
	first, err := NewGenerator().Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := NewGenerator().Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
