package validation

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"

	"dqrules/domain/sample"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
)

// SampleTable is the table name rule SQL is written against
const SampleTable = "products"

func init() {
	// SQLite ships no REGEXP implementation; X REGEXP Y calls regexp(Y, X).
	_ = sqlite.RegisterDeterministicScalarFunction("regexp", 2, sqlRegexp)
}

var (
	regexpCacheMu sync.Mutex
	regexpCache   = make(map[string]*regexp.Regexp)
)

func sqlRegexp(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	pattern, value := fmt.Sprint(args[0]), fmt.Sprint(args[1])
	if b, ok := args[1].([]byte); ok {
		value = string(b)
	}

	regexpCacheMu.Lock()
	re, ok := regexpCache[pattern]
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			regexpCacheMu.Unlock()
			return nil, fmt.Errorf("invalid REGEXP pattern %q: %w", pattern, err)
		}
		regexpCache[pattern] = re
	}
	regexpCacheMu.Unlock()

	if re.MatchString(value) {
		return int64(1), nil
	}
	return int64(0), nil
}

// SQLChecker holds the sample in an in-memory SQLite database so a rule's SQL form
// can be run and its violation count compared with the row-predicate count.
type SQLChecker struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLChecker loads s into a fresh in-memory table. Missing values become NULL.
func NewSQLChecker(ctx context.Context, s *sample.Sample, logger *zap.Logger) (*SQLChecker, error) {
	if s == nil || len(s.Columns) == 0 {
		return nil, errors.InvalidInput("sample has no columns")
	}

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errors.DatabaseError("failed to open in-memory sqlite", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	c := &SQLChecker{db: db, logger: logging.OrNop(logger)}
	if err := c.load(ctx, s); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLChecker) load(ctx context.Context, s *sample.Sample) error {
	cols := make([]string, len(s.Columns))
	marks := make([]string, len(s.Columns))
	for i, name := range s.Columns {
		cols[i] = quoteIdent(name) + " TEXT"
		marks[i] = "?"
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", SampleTable, strings.Join(cols, ", "))
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return errors.DatabaseError("failed to create sample table", err)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin sample load", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", SampleTable, strings.Join(marks, ", "))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return errors.DatabaseError("failed to prepare sample insert", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(s.Columns))
	for _, row := range s.Rows {
		for i, name := range s.Columns {
			v := row[name]
			if sample.IsNull(v) {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.DatabaseError("failed to insert sample row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit sample load", err)
	}
	c.logger.Debug("[SQLChecker] sample loaded",
		zap.Int("rows", len(s.Rows)),
		zap.Int("columns", len(s.Columns)))
	return nil
}

// CountViolations runs a rule's SQL form and returns the number of rows it selects.
// Only a single read-only SELECT or WITH statement is accepted.
func (c *SQLChecker) CountViolations(ctx context.Context, query string) (int, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return 0, errors.InvalidInput("empty SQL")
	}
	head := strings.ToUpper(strings.Fields(q)[0])
	if head != "SELECT" && head != "WITH" {
		return 0, errors.InvalidInput("rule SQL must be a SELECT statement")
	}
	if strings.Contains(q, ";") {
		return 0, errors.InvalidInput("rule SQL must be a single statement")
	}

	var count int
	if err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM ("+q+")"); err != nil {
		return 0, errors.Wrap(err, "rule SQL failed")
	}
	return count, nil
}

// Close releases the in-memory database
func (c *SQLChecker) Close() error {
	return c.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
