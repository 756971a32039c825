package sample

import "strings"

// Row maps column name to raw cell text. Missing cells are absent or empty.
type Row map[string]string

// Sample is a bounded slice of raw dataset rows used for rule validation
type Sample struct {
	Source  string
	Columns []string
	Rows    []Row
	columns map[string]bool
}

// New builds a sample over the given header
func New(source string, columns []string) *Sample {
	s := &Sample{Source: source, Columns: columns, columns: make(map[string]bool, len(columns))}
	for _, c := range columns {
		s.columns[c] = true
	}
	return s
}

// HasColumn reports whether the header contains column
func (s *Sample) HasColumn(column string) bool {
	if s == nil {
		return false
	}
	if s.columns == nil {
		s.columns = make(map[string]bool, len(s.Columns))
		for _, c := range s.Columns {
			s.columns[c] = true
		}
	}
	return s.columns[column]
}

// Len returns the row count
func (s *Sample) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Column returns every row's value for column in row order
func (s *Sample) Column(column string) []string {
	out := make([]string, 0, s.Len())
	for _, r := range s.Rows {
		out = append(out, r[column])
	}
	return out
}

var nullTokens = map[string]bool{
	"nan":  true,
	"null": true,
	"none": true,
	"n/a":  true,
	"#n/a": true,
}

// IsNull reports a missing value: an empty cell or a null marker left by an export
func IsNull(value string) bool {
	return value == "" || nullTokens[strings.ToLower(strings.TrimSpace(value))]
}

// IsBlank reports a missing value or one made only of whitespace
func IsBlank(value string) bool {
	return IsNull(value) || strings.TrimSpace(value) == ""
}
