package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"dqrules/domain/core"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/models"
	"dqrules/ports"
)

// RunRepository implements ports.RunRepository
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository over db
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

var _ ports.RunRepository = (*RunRepository)(nil)

type runRow struct {
	ID            string         `db:"id"`
	DatasetName   string         `db:"dataset_name"`
	ParentClass   string         `db:"parent_class"`
	TotalRecords  int            `db:"total_records"`
	ProfilingPath string         `db:"profiling_path"`
	SamplePath    string         `db:"sample_path"`
	GeneratorType string         `db:"generator_type"`
	Model         string         `db:"model"`
	Status        string         `db:"status"`
	Summary       sql.NullString `db:"summary"`
	Error         string         `db:"error"`
	StartedAt     string         `db:"started_at"`
	CompletedAt   sql.NullString `db:"completed_at"`
}

const runColumns = `id, dataset_name, parent_class, total_records, profiling_path, sample_path,
	generator_type, model, status, summary, error, started_at, completed_at`

func (row runRow) toModel() (*models.Run, error) {
	started, err := parseTime(row.StartedAt)
	if err != nil {
		return nil, err
	}
	run := &models.Run{
		ID:            core.RunID(row.ID),
		DatasetName:   row.DatasetName,
		ParentClass:   row.ParentClass,
		TotalRecords:  row.TotalRecords,
		ProfilingPath: row.ProfilingPath,
		SamplePath:    row.SamplePath,
		GeneratorType: row.GeneratorType,
		Model:         row.Model,
		Status:        models.RunStatus(row.Status),
		Error:         row.Error,
		StartedAt:     started,
	}
	if row.Summary.Valid && row.Summary.String != "" {
		var s rule.Summary
		if err := json.Unmarshal([]byte(row.Summary.String), &s); err != nil {
			return nil, fmt.Errorf("invalid stored summary for run %s: %w", row.ID, err)
		}
		run.Summary = &s
	}
	if row.CompletedAt.Valid {
		completed, err := parseTime(row.CompletedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &completed
	}
	return run, nil
}

// CreateRun stores a new run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return errors.InvalidInput(err.Error())
	}
	var summary interface{}
	if run.Summary != nil {
		data, err := json.Marshal(run.Summary)
		if err != nil {
			return errors.Wrap(err, "failed to encode run summary")
		}
		summary = string(data)
	}
	var completed interface{}
	if run.CompletedAt != nil {
		completed = formatTime(*run.CompletedAt)
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID.String(), run.DatasetName, run.ParentClass, run.TotalRecords, run.ProfilingPath,
		run.SamplePath, run.GeneratorType, run.Model, string(run.Status), summary, run.Error,
		formatTime(run.StartedAt), completed)
	if err != nil {
		return errors.DatabaseError("failed to create run", err)
	}
	return nil
}

// CompleteRun records the final status and summary of a run
func (r *RunRepository) CompleteRun(ctx context.Context, runID core.RunID, status models.RunStatus, summary rule.Summary, runErr string) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to encode run summary")
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE runs SET status = ?, summary = ?, error = ?, completed_at = ? WHERE id = ?`),
		string(status), string(data), runErr, formatTime(time.Now()), runID.String())
	if err != nil {
		return errors.DatabaseError("failed to complete run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run " + runID.String())
	}
	return nil
}

// SaveRules replaces the stored rules of a run, keeping slice order
func (r *RunRepository) SaveRules(ctx context.Context, runID core.RunID, rules []rule.Rule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM rules WHERE run_id = ?"), runID.String()); err != nil {
		return errors.DatabaseError("failed to clear rules", err)
	}
	insert := tx.Rebind(`
		INSERT INTO rules (run_id, position, rule_id, attribute_name, category, severity,
			threshold_percent, threshold_adjusted, confidence, verdict, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, rr := range rules {
		doc, err := json.Marshal(rr)
		if err != nil {
			return errors.Wrapf(err, "failed to encode rule %s", rr.ID)
		}
		verdict := ""
		if rr.Validation != nil {
			verdict = rr.Validation.Verdict()
		}
		if _, err := tx.ExecContext(ctx, insert,
			runID.String(), i, rr.ID, rr.Attribute, string(rr.Category), string(rr.Severity),
			rr.ThresholdPercent, rr.ThresholdAdjusted, rr.Confidence, verdict, string(doc)); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to save rule %s", rr.ID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit rules", err)
	}
	return nil
}

// SaveUnprocessed replaces the stored unprocessed attributes of a run
func (r *RunRepository) SaveUnprocessed(ctx context.Context, runID core.RunID, unprocessed []rule.Unprocessed) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM unprocessed_attributes WHERE run_id = ?"), runID.String()); err != nil {
		return errors.DatabaseError("failed to clear unprocessed attributes", err)
	}
	insert := tx.Rebind(`
		INSERT INTO unprocessed_attributes (run_id, position, attribute_name, stage, error_code, reason)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, u := range unprocessed {
		if _, err := tx.ExecContext(ctx, insert, runID.String(), i, u.Attribute, string(u.Stage), u.Code, u.Reason); err != nil {
			return errors.DatabaseError("failed to save unprocessed attribute", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit unprocessed attributes", err)
	}
	return nil
}

// GetRun loads one run
func (r *RunRepository) GetRun(ctx context.Context, runID core.RunID) (*models.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind("SELECT "+runColumns+" FROM runs WHERE id = ?"), runID.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run " + runID.String())
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to get run", err)
	}
	return row.toModel()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	out := make([]*models.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ListRules returns a run's rules in saved order
func (r *RunRepository) ListRules(ctx context.Context, runID core.RunID) ([]rule.Rule, error) {
	var docs []string
	err := r.db.SelectContext(ctx, &docs,
		r.db.Rebind("SELECT document FROM rules WHERE run_id = ? ORDER BY position"), runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to list rules", err)
	}
	out := make([]rule.Rule, 0, len(docs))
	for _, doc := range docs {
		var rr rule.Rule
		if err := json.Unmarshal([]byte(doc), &rr); err != nil {
			return nil, errors.Wrap(err, "invalid stored rule document")
		}
		out = append(out, rr)
	}
	return out, nil
}

type unprocessedRow struct {
	Attribute string `db:"attribute_name"`
	Stage     string `db:"stage"`
	Code      string `db:"error_code"`
	Reason    string `db:"reason"`
}

// ListUnprocessed returns a run's unprocessed attributes in saved order
func (r *RunRepository) ListUnprocessed(ctx context.Context, runID core.RunID) ([]rule.Unprocessed, error) {
	var rows []unprocessedRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT attribute_name, stage, error_code, reason
		FROM unprocessed_attributes WHERE run_id = ? ORDER BY position`), runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to list unprocessed attributes", err)
	}
	out := make([]rule.Unprocessed, 0, len(rows))
	for _, row := range rows {
		out = append(out, rule.Unprocessed{Attribute: row.Attribute, Stage: rule.Stage(row.Stage), Code: row.Code, Reason: row.Reason})
	}
	return out, nil
}
