package rule

import "strings"

// PredicateOp names a row-level check. A predicate describes when a row fails.
type PredicateOp string

const (
	OpNotNull        PredicateOp = "not_null"        // fails on missing values
	OpNotEmpty       PredicateOp = "not_empty"       // fails on missing or blank values
	OpInSet          PredicateOp = "in_set"          // fails when a value is outside Values
	OpRange          PredicateOp = "range"           // fails when a number is outside [Min, Max]
	OpRegex          PredicateOp = "regex"           // fails when a value does not match Pattern
	OpLength         PredicateOp = "length"          // fails when rune length is outside [Min, Max]
	OpDataType       PredicateOp = "data_type"       // fails when a value does not parse as ExpectedType
	OpUnique         PredicateOp = "unique"          // fails when a value repeats within the sample
	OpCaseConsistent PredicateOp = "case_consistent" // fails when a value deviates from its dominant casing
)

// Expected types accepted by OpDataType
const (
	ExpectedNumeric = "numeric"
	ExpectedInteger = "integer"
	ExpectedDate    = "date"
)

// Ops lists the supported predicate operators
var Ops = []PredicateOp{
	OpNotNull, OpNotEmpty, OpInSet, OpRange, OpRegex,
	OpLength, OpDataType, OpUnique, OpCaseConsistent,
}

// Predicate is the row-level form of a rule, evaluated directly against sample rows
type Predicate struct {
	Op           PredicateOp `json:"op" validate:"required,oneof=not_null not_empty in_set range regex length data_type unique case_consistent"`
	Values       []string    `json:"values,omitempty"`
	Min          *float64    `json:"min,omitempty"`
	Max          *float64    `json:"max,omitempty"`
	Pattern      string      `json:"pattern,omitempty"`
	ExpectedType string      `json:"expected_type,omitempty"`
}

// String renders the predicate for reports
func (p Predicate) String() string {
	var b strings.Builder
	b.WriteString(string(p.Op))
	switch p.Op {
	case OpInSet:
		b.WriteString(" [" + strings.Join(p.Values, ", ") + "]")
	case OpRange, OpLength:
		b.WriteString(" " + boundString(p.Min) + ".." + boundString(p.Max))
	case OpRegex:
		b.WriteString(" /" + p.Pattern + "/")
	case OpDataType:
		b.WriteString(" " + p.ExpectedType)
	}
	return b.String()
}

func boundString(v *float64) string {
	if v == nil {
		return "*"
	}
	return formatFloat(*v)
}
