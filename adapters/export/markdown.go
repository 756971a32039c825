package export

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"dqrules/domain/rule"
)

// RenderMarkdown renders a human-readable summary of the rule set
func RenderMarkdown(rs *rule.RuleSet) string {
	var b strings.Builder
	s := rs.Summary

	fmt.Fprintf(&b, "# Data Quality Rules: %s\n\n", cell(rs.DatasetName))
	fmt.Fprintf(&b, "- Parent class: %s\n", cell(rs.ParentClass))
	fmt.Fprintf(&b, "- Total records: %d\n", rs.TotalRecords)
	fmt.Fprintf(&b, "- Generator: %s", rs.GeneratorType)
	if rs.Model != "" {
		fmt.Fprintf(&b, " (%s)", rs.Model)
	}
	b.WriteString("\n")
	if !rs.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", rs.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if rs.RunID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", rs.RunID)
	}

	b.WriteString("\n## Summary\n\n| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Rules | %d |\n", s.TotalRules)
	fmt.Fprintf(&b, "| Attributes covered | %d |\n", s.AttributesCovered)
	fmt.Fprintf(&b, "| Unprocessed attributes | %d |\n", s.UnprocessedCount)
	fmt.Fprintf(&b, "| Average confidence | %.3f |\n", s.AverageConfidence)
	fmt.Fprintf(&b, "| Adjusted thresholds | %d |\n", s.AdjustedThresholds)
	fmt.Fprintf(&b, "| Passed / failed / inconclusive | %d / %d / %d |\n",
		s.PassedValidation, s.FailedValidation, s.InconclusiveResults)

	if counts := s.SortedCategoryCounts(); len(counts) > 0 {
		b.WriteString("\n## Rules by Category\n\n| Category | Rules |\n|---|---|\n")
		for _, c := range counts {
			fmt.Fprintf(&b, "| %s | %d |\n", c.Category, c.Count)
		}
	}

	for _, group := range rule.GroupByAttribute(rs.Rules) {
		fmt.Fprintf(&b, "\n## %s\n\n", cell(group.Key))
		b.WriteString("| Rule | Category | Severity | Check | Threshold % | Observed % | Verdict |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, r := range group.Rules {
			observed, verdict := "-", "NOT VALIDATED"
			if r.Validation != nil {
				verdict = r.Validation.Verdict()
				if !r.Validation.Inconclusive {
					observed = fmt.Sprintf("%.2f", r.Validation.FailureRatePercent)
				}
			}
			threshold := fmt.Sprintf("%.2f", r.ThresholdPercent)
			if r.ThresholdAdjusted && r.OriginalThreshold != nil {
				threshold = fmt.Sprintf("%.2f (was %.2f)", r.ThresholdPercent, *r.OriginalThreshold)
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s | %s | %s |\n",
				r.ID, r.Category, r.Severity, cell(r.Description), threshold, observed, verdict)
		}
	}

	if len(rs.Unprocessed) > 0 {
		b.WriteString("\n## Unprocessed Attributes\n\n| Attribute | Stage | Reason |\n|---|---|---|\n")
		for _, u := range rs.Unprocessed {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(u.Attribute), u.Stage, cell(u.Reason))
		}
	}
	return b.String()
}

// RenderHTML converts the Markdown summary into a standalone HTML page
func RenderHTML(rs *rule.RuleSet) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(RenderMarkdown(rs)))
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
		Title: "Data Quality Rules: " + rs.DatasetName,
	})
	return markdown.Render(doc, renderer)
}

// WriteMarkdown writes the Markdown summary to path
func WriteMarkdown(path string, rs *rule.RuleSet) error {
	return writeFile(path, []byte(RenderMarkdown(rs)))
}

// WriteHTML writes the HTML summary to path
func WriteHTML(path string, rs *rule.RuleSet) error {
	return writeFile(path, RenderHTML(rs))
}

// cell flattens text for a table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
