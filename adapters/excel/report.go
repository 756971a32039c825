package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dqrules/domain/rule"
	"dqrules/internal/logging"
)

// Report sheet names in workbook order
const (
	SheetRules       = "Rules"
	SheetByCategory  = "By Category"
	SheetByAttribute = "By Attribute"
	SheetBySeverity  = "By Severity"
	SheetUnprocessed = "Unprocessed"
	SheetSummary     = "Summary"
)

var severityFills = map[rule.Severity]string{
	rule.SeverityCritical: "FF6B6B",
	rule.SeverityHigh:     "FFA94D",
	rule.SeverityMedium:   "FFE066",
	rule.SeverityLow:      "8CE99A",
}

var ruleColumns = []struct {
	title string
	width float64
}{
	{"Rule ID", 34}, {"Attribute", 26}, {"Category", 14}, {"Type", 20}, {"Severity", 10},
	{"Description", 50}, {"Expression", 40}, {"SQL", 60}, {"Row Predicate", 36},
	{"Threshold %", 12}, {"Original Threshold %", 12}, {"Adjusted", 10}, {"Confidence", 11},
	{"Observed Failure %", 12}, {"Evaluated Rows", 10}, {"Excluded Rows", 10}, {"Verdict", 14},
	{"CI95 Low %", 10}, {"CI95 High %", 10}, {"SQL Failure Count", 10}, {"Derived From", 36},
	{"Sample Failures", 36},
}

// ReportWriter renders a rule set as a formatted workbook
type ReportWriter struct {
	logger *zap.Logger
}

func NewReportWriter(logger *zap.Logger) *ReportWriter {
	return &ReportWriter{logger: logging.OrNop(logger)}
}

type reportStyles struct {
	header   int
	wrap     int
	severity map[rule.Severity]int
}

// Write saves the report to path
func (w *ReportWriter) Write(path string, rs *rule.RuleSet) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newReportStyles(f)
	if err != nil {
		return err
	}

	if err := f.SetSheetName("Sheet1", SheetRules); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetByCategory, SheetByAttribute, SheetBySeverity, SheetUnprocessed, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	steps := []func(*excelize.File, *rule.RuleSet, *reportStyles) error{
		writeRulesSheet, writeCategorySheet, writeAttributeSheet,
		writeSeveritySheet, writeUnprocessedSheet, writeSummarySheet,
	}
	for _, step := range steps {
		if err := step(f, rs, styles); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	w.logger.Info("[ReportWriter] workbook written",
		zap.String("path", path),
		zap.Int("rules", len(rs.Rules)))
	return nil
}

func newReportStyles(f *excelize.File) (*reportStyles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Vertical: "top", WrapText: true}})
	if err != nil {
		return nil, fmt.Errorf("wrap style: %w", err)
	}
	s := &reportStyles{header: header, wrap: wrap, severity: make(map[rule.Severity]int)}
	for sev, color := range severityFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
			Alignment: &excelize.Alignment{Vertical: "top"},
		})
		if err != nil {
			return nil, fmt.Errorf("severity style: %w", err)
		}
		s.severity[sev] = id
	}
	return s, nil
}

func writeHeader(f *excelize.File, sheet string, titles []string, widths []float64, styles *reportStyles) error {
	row := make([]interface{}, len(titles))
	for i, t := range titles {
		row[i] = t
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, _ := excelize.ColumnNumberToName(len(titles))
	if err := f.SetCellStyle(sheet, "A1", last+"1", styles.header); err != nil {
		return err
	}
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeRow(f *excelize.File, sheet string, n int, values []interface{}) error {
	cell, _ := excelize.CoordinatesToCellName(1, n)
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, n, err)
	}
	return nil
}

// styleSeverity colours the severity cell of row n in column col
func styleSeverity(f *excelize.File, sheet string, col, n int, sev rule.Severity, styles *reportStyles) error {
	id, ok := styles.severity[sev]
	if !ok {
		return nil
	}
	cell, _ := excelize.CoordinatesToCellName(col, n)
	return f.SetCellStyle(sheet, cell, cell, id)
}

func writeRulesSheet(f *excelize.File, rs *rule.RuleSet, styles *reportStyles) error {
	titles := make([]string, len(ruleColumns))
	widths := make([]float64, len(ruleColumns))
	for i, c := range ruleColumns {
		titles[i], widths[i] = c.title, c.width
	}
	if err := writeHeader(f, SheetRules, titles, widths, styles); err != nil {
		return err
	}

	for i, r := range rs.Rules {
		n := i + 2
		var original interface{}
		if r.OriginalThreshold != nil {
			original = *r.OriginalThreshold
		}
		values := []interface{}{
			r.ID, r.Attribute, string(r.Category), string(r.Type), string(r.Severity),
			r.Description, r.Expression, r.SQL, r.Predicate.String(),
			r.ThresholdPercent, original, yesNo(r.ThresholdAdjusted), r.Confidence,
		}
		if v := r.Validation; v != nil {
			var sqlCount interface{}
			if v.SQLFailureCount != nil {
				sqlCount = *v.SQLFailureCount
			} else if v.SQLError != "" {
				sqlCount = "error: " + v.SQLError
			}
			values = append(values, v.FailureRatePercent, v.EvaluatedRows, v.ExcludedRows, v.Verdict(),
				v.ConfidenceLow, v.ConfidenceHigh, sqlCount)
		} else {
			values = append(values, nil, nil, nil, "NOT VALIDATED", nil, nil, nil)
		}
		failures := ""
		if r.Validation != nil {
			failures = strings.Join(r.Validation.SampleFailures, ", ")
		}
		values = append(values, r.DerivedFrom, failures)

		if err := writeRow(f, SheetRules, n, values); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(ruleColumns), n)
		if err := f.SetCellStyle(SheetRules, fmt.Sprintf("A%d", n), last, styles.wrap); err != nil {
			return err
		}
		if err := styleSeverity(f, SheetRules, 5, n, r.Severity, styles); err != nil {
			return err
		}
	}
	if len(rs.Rules) > 0 {
		last, _ := excelize.ColumnNumberToName(len(ruleColumns))
		return f.AutoFilter(SheetRules, fmt.Sprintf("A1:%s%d", last, len(rs.Rules)+1), nil)
	}
	return nil
}

var groupTitles = []string{"Group", "Rule ID", "Attribute", "Severity", "Threshold %", "Verdict", "Description"}
var groupWidths = []float64{26, 34, 26, 10, 12, 14, 60}

func writeGroupRows(f *excelize.File, sheet string, groups []groupRows, styles *reportStyles) error {
	if err := writeHeader(f, sheet, groupTitles, groupWidths, styles); err != nil {
		return err
	}
	n := 2
	for _, g := range groups {
		for _, r := range g.rules {
			verdict := "NOT VALIDATED"
			if r.Validation != nil {
				verdict = r.Validation.Verdict()
			}
			values := []interface{}{g.key, r.ID, r.Attribute, string(r.Severity), r.ThresholdPercent, verdict, r.Description}
			if err := writeRow(f, sheet, n, values); err != nil {
				return err
			}
			if err := styleSeverity(f, sheet, 4, n, r.Severity, styles); err != nil {
				return err
			}
			n++
		}
	}
	return nil
}

type groupRows struct {
	key   string
	rules []rule.Rule
}

func writeCategorySheet(f *excelize.File, rs *rule.RuleSet, styles *reportStyles) error {
	var groups []groupRows
	for _, g := range rule.GroupByCategory(rs.Rules) {
		groups = append(groups, groupRows{key: string(g.Key), rules: g.Rules})
	}
	return writeGroupRows(f, SheetByCategory, groups, styles)
}

func writeAttributeSheet(f *excelize.File, rs *rule.RuleSet, styles *reportStyles) error {
	var groups []groupRows
	for _, g := range rule.GroupByAttribute(rs.Rules) {
		groups = append(groups, groupRows{key: g.Key, rules: g.Rules})
	}
	return writeGroupRows(f, SheetByAttribute, groups, styles)
}

func writeSeveritySheet(f *excelize.File, rs *rule.RuleSet, styles *reportStyles) error {
	var groups []groupRows
	for _, g := range rule.GroupBySeverity(rs.Rules) {
		groups = append(groups, groupRows{key: string(g.Key), rules: g.Rules})
	}
	return writeGroupRows(f, SheetBySeverity, groups, styles)
}

func writeUnprocessedSheet(f *excelize.File, rs *rule.RuleSet, styles *reportStyles) error {
	if err := writeHeader(f, SheetUnprocessed, []string{"Attribute", "Stage", "Error Code", "Reason"},
		[]float64{30, 14, 26, 80}, styles); err != nil {
		return err
	}
	for i, u := range rs.Unprocessed {
		if err := writeRow(f, SheetUnprocessed, i+2, []interface{}{u.Attribute, string(u.Stage), u.Code, u.Reason}); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, rs *rule.RuleSet, styles *reportStyles) error {
	if err := writeHeader(f, SheetSummary, []string{"Metric", "Value"}, []float64{34, 40}, styles); err != nil {
		return err
	}
	s := rs.Summary
	rows := [][]interface{}{
		{"Dataset", rs.DatasetName},
		{"Parent Class", rs.ParentClass},
		{"Total Records", rs.TotalRecords},
		{"Generator", rs.GeneratorType},
		{"Model", rs.Model},
		{"Run ID", rs.RunID},
		{"Total Rules", s.TotalRules},
		{"Attributes Covered", s.AttributesCovered},
		{"Unprocessed Attributes", s.UnprocessedCount},
		{"Average Confidence", s.AverageConfidence},
		{"Adjusted Thresholds", s.AdjustedThresholds},
		{"Passed Validation", s.PassedValidation},
		{"Failed Validation", s.FailedValidation},
		{"Inconclusive Validation", s.InconclusiveResults},
	}
	for _, c := range s.SortedCategoryCounts() {
		rows = append(rows, []interface{}{"Category: " + string(c.Category), c.Count})
	}
	for _, sev := range rule.Severities {
		if n := s.BySeverity[sev]; n > 0 {
			rows = append(rows, []interface{}{"Severity: " + string(sev), n})
		}
	}
	if !rs.GeneratedAt.IsZero() {
		rows = append(rows, []interface{}{"Generated At", rs.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")})
	}
	for i, row := range rows {
		if err := writeRow(f, SheetSummary, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
