// Package store persists pipeline runs. The output files themselves are
// the source of truth for resumability; the store is the queryable index
// over them: which runs exist, how far they got, and what they scored.
package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/ragbench/genread/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Dataset string          `json:"dataset,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run registry.
type Store interface {
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	UpdateRunProgress(ctx context.Context, runID string, processed, total int) error
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "store: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("store: %s %s not found", entity, id)
	}
	return nil
}
