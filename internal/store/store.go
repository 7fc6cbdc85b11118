// Package store persists the history of cross-validation fold runs.
package store

import (
	"context"

	"github.com/sells-group/nercv/internal/model"
)

// RunFilter specifies criteria for listing fold runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	ModelKey     string          `json:"model_key,omitempty"`
	Corpus       string          `json:"corpus,omitempty"`
	Architecture string          `json:"architecture,omitempty"`
	MetricKey    string          `json:"metric_key,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for fold runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, spec model.FoldSpec) (*model.FoldRun, error)
	CompleteRun(ctx context.Context, runID string, result *model.FoldResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.FoldRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.FoldRun, error)

	// Per-label scores
	ListLabelScores(ctx context.Context, runID string) ([]model.LabelScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// labelColumns is the column order of the fold_labels table.
var labelColumns = []string{"run_id", "label", "precision", "recall", "f1", "support"}

func labelRows(runID string, labels []model.LabelScore) [][]any {
	rows := make([][]any, len(labels))
	for i, l := range labels {
		rows[i] = []any{runID, l.Label, l.Precision, l.Recall, l.F1, l.Support}
	}
	return rows
}
