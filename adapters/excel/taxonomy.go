package excel

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"dqrules/internal/errors"
)

const (
	taxonomySheet     = "ATTRIBUTES"
	displayNameColumn = "DISPLAY NAME"
)

// ResolveTaxonomyFile accepts a workbook path or a directory and returns the workbook to read.
// For a directory the first .xlsx file in name order is used.
func ResolveTaxonomyFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(errors.InvalidInput(err.Error()), "taxonomy schema not found at %s", path)
	}
	if !info.IsDir() {
		return path, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.xlsx"))
	if err != nil {
		return "", errors.Wrap(errors.InvalidInput(err.Error()), "failed to list taxonomy directory")
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", errors.InvalidInput("no .xlsx taxonomy workbook in " + path)
	}
	return matches[0], nil
}

// ReadTaxonomyAttributes returns the distinct DISPLAY NAME values of the
// workbook's ATTRIBUTES sheet in sheet order. Sheet and column are matched
// case-insensitively.
func ReadTaxonomyAttributes(path string) ([]string, error) {
	file, err := ResolveTaxonomyFile(path)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(file)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to open taxonomy workbook")
	}
	defer f.Close()

	sheet := ""
	for _, name := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(name), taxonomySheet) {
			sheet = name
			break
		}
	}
	if sheet == "" {
		return nil, errors.InvalidInput("taxonomy workbook has no " + taxonomySheet + " sheet")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read %s sheet", sheet)
	}
	if len(rows) == 0 {
		return nil, errors.InvalidInput("taxonomy sheet is empty")
	}

	col := -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), displayNameColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.InvalidInput("taxonomy sheet has no " + displayNameColumn + " column")
	}

	seen := make(map[string]bool)
	var names []string
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[col])
		if name == "" || strings.EqualFold(name, "nan") || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}
