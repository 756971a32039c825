package profile

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DatasetContext is the dataset-level metadata handed to rule derivation
type DatasetContext struct {
	Name                 string `json:"dataset_name"`
	ParentClass          string `json:"parent_class"`
	ParentClassAttribute string `json:"parent_class_attribute,omitempty"`
	TotalRecords         int    `json:"total_records"`
	TotalAttributes      int    `json:"total_attributes"`
	NonEmptyAttributes   int    `json:"non_empty_attributes"`
}

// UnknownParentClass is reported when no category attribute carries a usable value
const UnknownParentClass = "Unknown"

var parentClassIndicators = []string{
	"RS Product Category",
	"Product Category",
	"Category",
	"ProductCategory",
	"product_category",
	"category",
	"Class",
	"ProductClass",
	"product_class",
	"class",
	"Type",
	"ProductType",
	"product_type",
}

var hierarchyDelimiters = []string{">>", " > ", ">", "/", "|", "\\", " - "}

// BuildContext derives dataset metadata from the profiles. name overrides the
// name inferred from the sample path when non-empty.
func BuildContext(set *Set, name, samplePath string) DatasetContext {
	if name == "" {
		name = DatasetNameFromPath(samplePath)
	}
	attr := ParentClassAttribute(set)
	parent := UnknownParentClass
	if attr != "" {
		if p, ok := set.Get(attr); ok && len(p.TopValues) > 0 {
			parent = ExtractParentClass(p.TopValues[0].Value)
		}
	}
	return DatasetContext{
		Name:                 name,
		ParentClass:          parent,
		ParentClassAttribute: attr,
		TotalRecords:         EstimateTotalRecords(set),
		TotalAttributes:      set.Len(),
		NonEmptyAttributes:   len(set.NonEmpty()),
	}
}

// ParentClassAttribute finds the attribute holding the product category, or "".
func ParentClassAttribute(set *Set) string {
	for _, name := range parentClassIndicators {
		if p, ok := set.Get(name); ok && !p.IsEmpty() {
			return name
		}
	}
	for _, name := range set.Order {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "category") || strings.Contains(lower, "class") || strings.Contains(lower, "type") {
			if !set.Attributes[name].IsEmpty() {
				return name
			}
		}
	}
	return ""
}

// ExtractParentClass returns the leaf of a hierarchical category path such as
// "Web Taxonomy>>Industrial Controls>>Contactors".
func ExtractParentClass(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return UnknownParentClass
	}
	for _, delim := range hierarchyDelimiters {
		if !strings.Contains(value, delim) {
			continue
		}
		var parts []string
		for _, part := range strings.Split(value, delim) {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}
	return value
}

var (
	uuidPattern       = regexp.MustCompile(`(?i)[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`)
	exportSuffix      = regexp.MustCompile(`(?i)_(out|data|export|raw|clean)\s*\d*`)
	separatorSequence = regexp.MustCompile(`[_\s]+`)
)

// DatasetNameFromPath turns an export file name into a readable dataset name.
func DatasetNameFromPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return "Dataset"
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = uuidPattern.ReplaceAllString(name, "")
	name = exportSuffix.ReplaceAllString(name, "")
	name = strings.Trim(separatorSequence.ReplaceAllString(name, "_"), "_")
	if name == "" {
		return "Product_Data"
	}
	return name
}

// EstimateTotalRecords infers the row count from the first nearly complete attribute:
// the summed top-value counts scaled by its cardinality.
func EstimateTotalRecords(set *Set) int {
	for _, name := range set.Order {
		p := set.Attributes[name]
		if p.MissingPercent() >= 1 || len(p.TopValues) == 0 {
			continue
		}
		total := 0
		for _, tv := range p.TopValues {
			total += tv.Count
		}
		card := p.CardinalityPercent()
		if card > 0 && card < 100 {
			if estimated := int(float64(total) / (card / 100)); estimated > total {
				return estimated
			}
		}
		return total
	}
	return 0
}
