package domain

import "time"

// Status is the lifecycle state of a search. Transitions are monotonic:
// initiated -> running -> completed | failed. There is no transition out
// of a terminal state.
type Status string

// Search lifecycle states.
const (
	StatusInitiated Status = "initiated"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the search lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OutcomeState is the terminal state of one vendor's contribution to a
// search. Every vendor leaves pending exactly once.
type OutcomeState string

// Per-vendor outcome states.
const (
	OutcomePending   OutcomeState = "pending"
	OutcomeSucceeded OutcomeState = "succeeded"
	OutcomeFailed    OutcomeState = "failed"
	OutcomeTimedOut  OutcomeState = "timed_out"
	OutcomeCancelled OutcomeState = "cancelled"
)

// VendorOutcome records how one vendor's lookup ended.
// Duration is in seconds.
type VendorOutcome struct {
	State     OutcomeState `json:"state"`
	ItemCount int          `json:"item_count,omitempty"`
	Duration  float64      `json:"duration,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
}

// Summary is an aggregation snapshot over a search's items. Price stats
// cover priced items only; they are absent when no item carries a price.
type Summary struct {
	Count     int      `json:"count"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MeanPrice *float64 `json:"mean_price,omitempty"`
}

// Search is a point-in-time snapshot of one query execution. Snapshots
// are detached copies: mutating one never affects the live record.
type Search struct {
	ID                  string                   `json:"id"`
	Query               string                   `json:"query"`
	MaxResultsPerVendor int                      `json:"max_results_per_vendor"`
	Status              Status                   `json:"status"`
	Items               []Item                   `json:"items"`
	VendorOutcomes      map[string]VendorOutcome `json:"vendor_outcomes"`
	StartedAt           time.Time                `json:"started_at"`
	CompletedAt         *time.Time               `json:"completed_at,omitempty"`
	Summary             Summary                  `json:"summary"`
	Error               string                   `json:"error,omitempty"`
}
