package model

import "time"

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:  true,
		StatusFailed:   true,
		StatusCanceled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Run is one journaled batch execution: a scenario table driven through
// a model with some number of workers.
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	ModelPath  string     `json:"model_path"`
	Workers    int        `json:"workers"`
	Scenarios  int        `json:"scenarios"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RowFailure is one persisted scenario-row failure from a run.
type RowFailure struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	ScenarioID string    `json:"scenario_id"`
	Phase      string    `json:"phase"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
