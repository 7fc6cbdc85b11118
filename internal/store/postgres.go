package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nercv/internal/db"
	"github.com/sells-group/nercv/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_fold_run":   `INSERT INTO fold_runs (id, spec, model_key, corpus, architecture, metric_key, fold, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"complete_fold_run": `UPDATE fold_runs SET result = $1, status = $2, error = NULL, updated_at = $3 WHERE id = $4`,
	"fail_fold_run":     `UPDATE fold_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_fold_run":      `SELECT id, spec, status, result, error, created_at, updated_at FROM fold_runs WHERE id = $1`,
	"list_fold_labels":  `SELECT label, precision, recall, f1, support FROM fold_labels WHERE run_id = $1 ORDER BY label`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fold_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	spec         JSONB NOT NULL,
	model_key    TEXT NOT NULL,
	corpus       TEXT NOT NULL,
	architecture TEXT NOT NULL,
	metric_key   TEXT NOT NULL,
	fold         INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	result       JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fold_labels (
	run_id    TEXT NOT NULL REFERENCES fold_runs(id) ON DELETE CASCADE,
	label     TEXT NOT NULL,
	precision DOUBLE PRECISION NOT NULL,
	recall    DOUBLE PRECISION NOT NULL,
	f1        DOUBLE PRECISION NOT NULL,
	support   INTEGER NOT NULL,
	PRIMARY KEY (run_id, label)
);

CREATE INDEX IF NOT EXISTS idx_fold_runs_status ON fold_runs(status);
CREATE INDEX IF NOT EXISTS idx_fold_runs_group ON fold_runs(corpus, architecture, metric_key);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, spec model.FoldSpec) (*model.FoldRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal spec")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fold_runs (id, spec, model_key, corpus, architecture, metric_key, fold, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, specJSON, spec.ModelKey, spec.Corpus, spec.Architecture, spec.MetricKey, spec.Fold,
		string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert fold run")
	}

	return &model.FoldRun{
		ID:        id,
		Spec:      spec,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompleteRun stores the result and bulk-copies the per-label rows. Run ids
// are fresh per fold so the label rows never conflict.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.FoldResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE fold_runs SET result = $1, status = $2, error = NULL, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete fold run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("fold run not found: %s", runID)
	}

	if _, err := db.CopyFrom(ctx, s.pool, "fold_labels", labelColumns, labelRows(runID, result.Labels)); err != nil {
		return eris.Wrapf(err, "postgres: copy labels for %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fold_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail fold run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("fold run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.FoldRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, spec, status, result, error, created_at, updated_at FROM fold_runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get fold run %s: not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get fold run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.FoldRun, error) {
	query := `SELECT id, spec, status, result, error, created_at, updated_at FROM fold_runs WHERE true`
	args := []any{}
	argIdx := 1

	add := func(column string, value any) {
		query += fmt.Sprintf(` AND %s = $%d`, column, argIdx)
		args = append(args, value)
		argIdx++
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.ModelKey != "" {
		add("model_key", filter.ModelKey)
	}
	if filter.Corpus != "" {
		add("corpus", filter.Corpus)
	}
	if filter.Architecture != "" {
		add("architecture", filter.Architecture)
	}
	if filter.MetricKey != "" {
		add("metric_key", filter.MetricKey)
	}
	query += ` ORDER BY created_at DESC, fold ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fold runs")
	}
	defer rows.Close()

	var runs []model.FoldRun
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan fold run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list fold runs iterate")
}

func (s *PostgresStore) ListLabelScores(ctx context.Context, runID string) ([]model.LabelScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, precision, recall, f1, support FROM fold_labels WHERE run_id = $1 ORDER BY label`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list labels for %s", runID)
	}
	defer rows.Close()

	var out []model.LabelScore
	for rows.Next() {
		var l model.LabelScore
		if err := rows.Scan(&l.Label, &l.Precision, &l.Recall, &l.F1, &l.Support); err != nil {
			return nil, eris.Wrap(err, "postgres: scan label")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list labels iterate")
}

func scanPostgresRun(row scannable) (*model.FoldRun, error) {
	var r model.FoldRun
	var specJSON []byte
	var resultJSON *[]byte
	var errText *string

	if err := row.Scan(&r.ID, &specJSON, &r.Status, &resultJSON, &errText, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(specJSON, &r.Spec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal spec")
	}
	if resultJSON != nil {
		r.Result = &model.FoldResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if errText != nil {
		r.Error = *errText
	}
	return &r, nil
}
