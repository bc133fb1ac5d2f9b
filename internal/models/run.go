package models

import "time"

// RunStatus is the outcome of one job execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunRecord is the stored result of one job within a run.
type RunRecord struct {
	BaseModel `yaml:",inline"`

	// RunID groups the records of jobs started together.
	RunID       ULID      `gorm:"type:varchar(26);index;not null" json:"run_id" yaml:"run_id"`
	JobName     string    `gorm:"size:255;index;not null" json:"job_name" yaml:"job_name"`
	Source      string    `gorm:"size:2048" json:"source" yaml:"source"`
	Destination string    `gorm:"size:2048" json:"destination" yaml:"destination"`
	Status      RunStatus `gorm:"size:16;index;not null" json:"status" yaml:"status"`

	Records     int   `json:"records" yaml:"records"`
	Removed     int   `json:"removed" yaml:"removed"`
	Fixed       int   `json:"fixed" yaml:"fixed"`
	Kept        int   `json:"kept" yaml:"kept"`
	InputBytes  int64 `json:"input_bytes" yaml:"input_bytes"`
	OutputBytes int64 `json:"output_bytes" yaml:"output_bytes"`

	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	Error      string `gorm:"type:text" json:"error,omitempty" yaml:"error,omitempty"`

	StartedAt  time.Time `gorm:"index" json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// TableName returns the table name for run records.
func (RunRecord) TableName() string {
	return "run_records"
}

// Succeeded reports whether the job completed.
func (r *RunRecord) Succeeded() bool {
	return r.Status == RunStatusSuccess
}

// Duration returns the stored duration.
func (r *RunRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
