package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nercv/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fold_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	spec := model.FoldSpec{ModelKey: "BERTimbau", Corpus: "harem", Architecture: "BERTimbau_crf", MetricKey: "micro_avg", Folds: 5, Fold: 2}
	mock.ExpectExec(`INSERT INTO fold_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "BERTimbau", "harem", "BERTimbau_crf", "micro_avg", 2,
			"running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), spec)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, spec, run.Spec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_CopiesLabels(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	result := &model.FoldResult{
		MicroF1: 0.5,
		Labels: []model.LabelScore{
			{Label: "LOC", Precision: 1, Recall: 0.5, F1: 0.6667, Support: 2},
			{Label: "PER", Precision: 0, Recall: 0, F1: 0, Support: 1},
		},
	}

	mock.ExpectExec(`UPDATE fold_runs SET result = \$1, status = \$2`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"fold_labels"}, labelColumns).WillReturnResult(2)

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE fold_runs SET result`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", &model.FoldResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fold run not found: missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE fold_runs SET result`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"fold_labels"}, labelColumns).WillReturnError(errors.New("disk full"))

	err := s.CompleteRun(context.Background(), "run-1", &model.FoldResult{
		Labels: []model.LabelScore{{Label: "PER"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy labels for run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE fold_runs SET status = \$1, error = \$2`).
		WithArgs("failed", "trainer: exit status 1", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "trainer: exit status 1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, spec, status, result, error, created_at, updated_at FROM fold_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get fold run nonexistent-run: not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM fold_runs WHERE true AND status = \$1 AND corpus = \$2 ORDER BY created_at DESC, fold ASC LIMIT \$3 OFFSET \$4`).
		WithArgs("complete", "harem", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "spec", "status", "result", "error", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status: model.RunStatusComplete,
		Corpus: "harem",
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM fold_runs WHERE true ORDER BY created_at DESC, fold ASC LIMIT \$1`).
		WithArgs(defaultListLimit).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListRuns(context.Background(), RunFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list fold runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLabelScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT label, precision, recall, f1, support FROM fold_labels WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"label", "precision", "recall", "f1", "support"}).
			AddRow("LOC", 1.0, 0.5, 0.6667, 2).
			AddRow("PER", 0.0, 0.0, 0.0, 1))

	labels, err := s.ListLabelScores(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, model.LabelScore{Label: "LOC", Precision: 1, Recall: 0.5, F1: 0.6667, Support: 2}, labels[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
