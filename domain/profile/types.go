package profile

import "strings"

// Datatype is the column type reported by the profiling tool
type Datatype string

const (
	DatatypeCategorical Datatype = "Categorical"
	DatatypeNumeric     Datatype = "Numeric"
	DatatypeText        Datatype = "Text"
	DatatypeID          Datatype = "ID"
	DatatypeConstant    Datatype = "Constant"
	DatatypeEmpty       Datatype = "Empty"
	DatatypeUnknown     Datatype = "Unknown"
)

// ParseDatatype maps a profiling label onto a known Datatype, case-insensitively.
func ParseDatatype(s string) Datatype {
	for _, dt := range []Datatype{
		DatatypeCategorical, DatatypeNumeric, DatatypeText,
		DatatypeID, DatatypeConstant, DatatypeEmpty,
	} {
		if strings.EqualFold(strings.TrimSpace(s), string(dt)) {
			return dt
		}
	}
	return DatatypeUnknown
}

// TopValue is one entry of the most-frequent-values list
type TopValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// NumericRange is the observed min/max of a numeric column
type NumericRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AttributeProfile holds the profiling facts for one column. It is not modified after load.
type AttributeProfile struct {
	Name         string        `json:"attribute_name"`
	Datatype     Datatype      `json:"datatype"`
	Completeness float64       `json:"completeness"` // share of non-missing values, 0-1
	Cardinality  float64       `json:"cardinality"`  // share of distinct values, 0-1
	TopValues    []TopValue    `json:"top_values,omitempty"`
	Range        *NumericRange `json:"range,omitempty"`
	Imbalance    string        `json:"imbalance,omitempty"`
	Sparsity     string        `json:"sparsity,omitempty"`
}

// MissingPercent is the missing share expressed as 0-100
func (p AttributeProfile) MissingPercent() float64 {
	return (1 - p.Completeness) * 100
}

// CardinalityPercent is the distinct share expressed as 0-100
func (p AttributeProfile) CardinalityPercent() float64 {
	return p.Cardinality * 100
}

// IsEmpty reports a column with no observed values
func (p AttributeProfile) IsEmpty() bool {
	return p.Datatype == DatatypeEmpty || p.Completeness <= 0
}

// IsHighCardinality reports a column whose values are more than 90% distinct
func (p AttributeProfile) IsHighCardinality() bool {
	return p.CardinalityPercent() > 90
}

// TopValueStrings returns up to limit most-frequent values
func (p AttributeProfile) TopValueStrings(limit int) []string {
	if limit <= 0 || limit > len(p.TopValues) {
		limit = len(p.TopValues)
	}
	out := make([]string, 0, limit)
	for _, tv := range p.TopValues[:limit] {
		out = append(out, tv.Value)
	}
	return out
}

// Set is the loaded profiling document. Order keeps the document's attribute order.
type Set struct {
	Source     string
	Attributes map[string]AttributeProfile
	Order      []string
}

// NewSet returns an empty profile set
func NewSet(source string) *Set {
	return &Set{Source: source, Attributes: make(map[string]AttributeProfile)}
}

// Add appends a profile, keeping first-seen order for repeated names
func (s *Set) Add(p AttributeProfile) {
	if _, exists := s.Attributes[p.Name]; !exists {
		s.Order = append(s.Order, p.Name)
	}
	s.Attributes[p.Name] = p
}

// Get looks up a profile by exact name
func (s *Set) Get(name string) (AttributeProfile, bool) {
	p, ok := s.Attributes[name]
	return p, ok
}

// Len returns the number of loaded profiles
func (s *Set) Len() int {
	return len(s.Order)
}

// NonEmpty returns names of non-empty attributes in document order
func (s *Set) NonEmpty() []string {
	var out []string
	for _, name := range s.Order {
		if !s.Attributes[name].IsEmpty() {
			out = append(out, name)
		}
	}
	return out
}
