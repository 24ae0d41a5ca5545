// Package store persists the run journal: one record per batch
// execution plus its scenario-row failures.
package store

import (
	"context"
	"errors"

	"github.com/averros/ecoscen/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate execution statistics.
type RunStats struct {
	Total          int            `json:"total"`
	CountByStatus  map[string]int `json:"count_by_status"`
	TotalScenarios int            `json:"total_scenarios"`
	TotalFailures  int            `json:"total_failures"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for runs.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	UpdateRun(ctx context.Context, r *model.Run) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	InsertRowFailure(ctx context.Context, runID, scenarioID, phase, message string) error
	GetRowFailures(ctx context.Context, runID string) ([]model.RowFailure, error)
	Close() error
}
