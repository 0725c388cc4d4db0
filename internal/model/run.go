package model

import "time"

// AggregationRunStatus is the lifecycle state of an aggregation run.
type AggregationRunStatus string

const (
	AggregationRunning   AggregationRunStatus = "running"
	AggregationCompleted AggregationRunStatus = "completed"
	AggregationFailed    AggregationRunStatus = "failed"
)

// AggregationRunType distinguishes full rebuilds from incremental refreshes.
type AggregationRunType string

const (
	RunTypeFull        AggregationRunType = "full"
	RunTypeIncremental AggregationRunType = "incremental"
)

// AggregationRunStats is the persisted record of one aggregation run.
type AggregationRunStats struct {
	ID              string               `json:"id" yaml:"id"`
	RunType         AggregationRunType   `json:"run_type" yaml:"run_type"`
	Status          AggregationRunStatus `json:"status" yaml:"status"`
	TotalProfiles   int64                `json:"total_profiles" yaml:"total_profiles"`
	TotalUEIsMapped int64                `json:"total_ueis_mapped" yaml:"total_ueis_mapped"`
	GroupsFailed    int64                `json:"groups_failed" yaml:"groups_failed"`
	DurationMs      int64                `json:"duration_ms" yaml:"duration_ms"`
	Error           string               `json:"error,omitempty" yaml:"error,omitempty"`
	Errors          []string             `json:"errors,omitempty" yaml:"errors,omitempty"`
	StartedAt       time.Time            `json:"started_at" yaml:"started_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// ItemError identifies one failed unit of work inside a batch.
type ItemError struct {
	Key string `json:"key" yaml:"key"`
	Err string `json:"error" yaml:"error"`
}

// BatchReport collects per-item outcomes so one failure never aborts its
// siblings.
type BatchReport struct {
	Succeeded int         `json:"succeeded" yaml:"succeeded"`
	Failed    int         `json:"failed" yaml:"failed"`
	Errors    []ItemError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Fail records a failed item.
func (r *BatchReport) Fail(key string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{Key: key, Err: err.Error()})
}

// Merge folds another report into r.
func (r *BatchReport) Merge(o BatchReport) {
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
}

// ErrorStrings flattens the error list as "key: error".
func (r *BatchReport) ErrorStrings() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Key+": "+e.Err)
	}
	return out
}
