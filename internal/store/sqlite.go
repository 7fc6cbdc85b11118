package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/nercv/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fold_runs (
	id           TEXT PRIMARY KEY,
	spec         TEXT NOT NULL,
	model_key    TEXT NOT NULL,
	corpus       TEXT NOT NULL,
	architecture TEXT NOT NULL,
	metric_key   TEXT NOT NULL,
	fold         INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	result       TEXT,
	error        TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fold_labels (
	run_id    TEXT NOT NULL REFERENCES fold_runs(id),
	label     TEXT NOT NULL,
	precision REAL NOT NULL,
	recall    REAL NOT NULL,
	f1        REAL NOT NULL,
	support   INTEGER NOT NULL,
	PRIMARY KEY (run_id, label)
);

CREATE INDEX IF NOT EXISTS idx_fold_runs_status ON fold_runs(status);
CREATE INDEX IF NOT EXISTS idx_fold_runs_group ON fold_runs(corpus, architecture, metric_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, spec model.FoldSpec) (*model.FoldRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal spec")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fold_runs (id, spec, model_key, corpus, architecture, metric_key, fold, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(specJSON), spec.ModelKey, spec.Corpus, spec.Architecture, spec.MetricKey, spec.Fold,
		string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert fold run")
	}

	return &model.FoldRun{
		ID:        id,
		Spec:      spec,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.FoldResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE fold_runs SET result = ?, status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete fold run %s", runID)
	}
	if err := checkRowsAffected(res, "fold run", runID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fold_labels WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear labels for %s", runID)
	}
	for _, row := range labelRows(runID, result.Labels) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fold_labels (run_id, label, precision, recall, f1, support) VALUES (?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert label %v for %s", row[1], runID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fold_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail fold run %s", runID)
	}
	return checkRowsAffected(res, "fold run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.FoldRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, spec, status, result, error, created_at, updated_at FROM fold_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.FoldRun, error) {
	query := `SELECT id, spec, status, result, error, created_at, updated_at FROM fold_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ModelKey != "" {
		query += ` AND model_key = ?`
		args = append(args, filter.ModelKey)
	}
	if filter.Corpus != "" {
		query += ` AND corpus = ?`
		args = append(args, filter.Corpus)
	}
	if filter.Architecture != "" {
		query += ` AND architecture = ?`
		args = append(args, filter.Architecture)
	}
	if filter.MetricKey != "" {
		query += ` AND metric_key = ?`
		args = append(args, filter.MetricKey)
	}
	query += ` ORDER BY created_at DESC, fold ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fold runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.FoldRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list fold runs iterate")
}

func (s *SQLiteStore) ListLabelScores(ctx context.Context, runID string) ([]model.LabelScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, precision, recall, f1, support FROM fold_labels WHERE run_id = ? ORDER BY label`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list labels for %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LabelScore
	for rows.Next() {
		var l model.LabelScore
		if err := rows.Scan(&l.Label, &l.Precision, &l.Recall, &l.F1, &l.Support); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan label")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list labels iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.FoldRun, error) {
	var r model.FoldRun
	var specJSON string
	var resultJSON, errText sql.NullString

	err := row.Scan(&r.ID, &specJSON, &r.Status, &resultJSON, &errText, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("fold run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan fold run")
	}

	if err := json.Unmarshal([]byte(specJSON), &r.Spec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal spec")
	}
	if resultJSON.Valid {
		r.Result = &model.FoldResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	r.Error = errText.String
	return &r, nil
}
