package rule

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// AttributeToken upper-cases an attribute name and replaces every
// non-alphanumeric character with an underscore.
func AttributeToken(attribute string) string {
	var b strings.Builder
	for _, r := range attribute {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FormatID renders DQ_{ATTRIBUTE}_{CATEGORY}_{SEQ:03d}
func FormatID(attribute string, category Category, seq int) string {
	return fmt.Sprintf("DQ_%s_%s_%03d", AttributeToken(attribute), strings.ToUpper(string(category)), seq)
}

// IDAllocator hands out rule IDs in derivation order. Sequences are counted per
// (attribute token, category), so attributes whose names collapse to the same
// token share a counter and never collide.
type IDAllocator struct {
	next map[string]int
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[string]int)}
}

// Next returns the next ID for the pair
func (a *IDAllocator) Next(attribute string, category Category) string {
	key := AttributeToken(attribute) + "\x00" + string(category)
	a.next[key]++
	return FormatID(attribute, category, a.next[key])
}

// Assign sets the ID of every rule in place, in slice order
func (a *IDAllocator) Assign(rules []Rule) {
	for i := range rules {
		rules[i].ID = a.Next(rules[i].Attribute, rules[i].Category)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
