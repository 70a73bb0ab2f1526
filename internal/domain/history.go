package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONMap is a custom type for storing an opaque JSON payload in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// RunJobSummary captures one job's contribution to a finished run.
type RunJobSummary struct {
	JobID    string    `json:"job_id"`
	Name     string    `json:"name"`
	RunCount int       `json:"run_count"`
	Status   JobStatus `json:"status"`
}

// RunJobSummaries is stored as a JSON column.
type RunJobSummaries []RunJobSummary

// Value implements the driver.Valuer interface for database serialization.
func (s RunJobSummaries) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *RunJobSummaries) Scan(value interface{}) error {
	if value == nil {
		*s = RunJobSummaries{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan RunJobSummaries")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// RunRecord is an immutable record of one completed, failed, or stopped run.
// Produced exactly once per run termination and never mutated afterwards.
type RunRecord struct {
	ID         string          `gorm:"type:text;primaryKey" json:"id"`
	JobID      string          `gorm:"type:text;index" json:"job_id"`
	Name       string          `gorm:"type:text;not null" json:"name"`
	Status     string          `gorm:"type:text;not null" json:"status"`
	Current    int             `gorm:"default:0" json:"current"`
	Total      int             `gorm:"default:0" json:"total"`
	DurationMs int64           `gorm:"default:0" json:"duration_ms"`
	Jobs       RunJobSummaries `gorm:"type:text" json:"jobs,omitempty"`
	Result     JSONMap         `gorm:"type:text" json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName returns the database table name for RunRecord.
func (RunRecord) TableName() string {
	return "run_records"
}

// Duration returns the recorded run duration.
func (r *RunRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
