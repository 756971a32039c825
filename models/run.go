package models

import (
	"fmt"
	"strings"
	"time"

	"dqrules/domain/core"
	"dqrules/domain/rule"
)

// RunStatus tracks a pipeline execution
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the stored record of one pipeline execution
type Run struct {
	ID            core.RunID    `json:"id"`
	DatasetName   string        `json:"dataset_name"`
	ParentClass   string        `json:"parent_class"`
	TotalRecords  int           `json:"total_records"`
	ProfilingPath string        `json:"profiling_path"`
	SamplePath    string        `json:"sample_path,omitempty"`
	GeneratorType string        `json:"generator_type"`
	Model         string        `json:"model,omitempty"`
	Status        RunStatus     `json:"status"`
	Summary       *rule.Summary `json:"summary,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// Validate checks the fields a run must carry before it is stored
func (r *Run) Validate() error {
	if _, err := core.ParseRunID(r.ID.String()); err != nil {
		return err
	}
	if strings.TrimSpace(r.DatasetName) == "" {
		return fmt.Errorf("run %s has no dataset name", r.ID)
	}
	switch r.Status {
	case RunRunning, RunCompleted, RunFailed:
	default:
		return fmt.Errorf("run %s has unknown status %q", r.ID, r.Status)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("run %s has no start time", r.ID)
	}
	return nil
}

// Duration is the elapsed run time, or zero while running
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
