package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dqrules/domain/sample"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
)

// DataReader reads the raw sample dataset from Excel or CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *zap.Logger
}

// NewDataReader creates a reader that handles both Excel and CSV files.
// sheet selects the worksheet; empty means the first sheet.
func NewDataReader(filePath, sheet string, logger *zap.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, sheet: sheet, logger: logging.OrNop(logger)}
}

// ReadSample reads the header and at most maxRows data rows. maxRows <= 0 reads everything.
func (r *DataReader) ReadSample(maxRows int) (*sample.Sample, error) {
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	start := time.Now()
	var (
		s   *sample.Sample
		err error
	)
	switch r.fileType {
	case "csv":
		s, err = r.readCSV(maxRows)
	default:
		s, err = r.readExcel(maxRows)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("[DataReader] sample loaded",
		zap.String("file", r.filePath),
		zap.Int("columns", len(s.Columns)),
		zap.Int("rows", s.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (r *DataReader) readExcel(maxRows int) (*sample.Sample, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidInput("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read sheet %s", sheet)
	}
	defer rows.Close()

	var builder rowBuilder
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read sheet %s", sheet)
		}
		if builder.add(cols, maxRows) {
			break
		}
	}
	return builder.build(r.filePath)
}

func (r *DataReader) readCSV(maxRows int) (*sample.Sample, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var builder rowBuilder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to read CSV file")
		}
		if builder.add(record, maxRows) {
			break
		}
	}
	return builder.build(r.filePath)
}

// rowBuilder turns a header row plus data rows into a Sample
type rowBuilder struct {
	headers []string
	rows    []sample.Row
}

// add consumes one raw row and reports whether maxRows data rows have been collected
func (b *rowBuilder) add(cells []string, maxRows int) bool {
	if b.headers == nil {
		b.headers = make([]string, len(cells))
		for i, h := range cells {
			h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
			if h == "" {
				h = fmt.Sprintf("column_%d", i+1)
			}
			b.headers[i] = h
		}
		return false
	}

	row := make(sample.Row, len(b.headers))
	for j, cell := range cells {
		if j < len(b.headers) {
			row[b.headers[j]] = cell
		}
	}
	b.rows = append(b.rows, row)
	return maxRows > 0 && len(b.rows) >= maxRows
}

func (b *rowBuilder) build(source string) (*sample.Sample, error) {
	if b.headers == nil {
		return nil, errors.InvalidInput(fmt.Sprintf("%s has no header row", source))
	}
	s := sample.New(source, b.headers)
	s.Rows = b.rows
	return s, nil
}
