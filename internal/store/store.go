// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Schema creates the verdict history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS scenario_runs (
    run_id      TEXT PRIMARY KEY,
    scenario    TEXT NOT NULL,
    tags        TEXT[] NOT NULL DEFAULT '{}',
    passed      BOOLEAN NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS actor_outcomes (
    run_id      TEXT NOT NULL REFERENCES scenario_runs (run_id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    actor       TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    status      TEXT NOT NULL,
    code        TEXT NOT NULL,
    reason      TEXT NOT NULL,
    required    BOOLEAN NOT NULL,
    accepted    BOOLEAN NOT NULL,
    value       JSONB NOT NULL,
    diagnostics JSONB NOT NULL,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS scenario_runs_scenario_idx ON scenario_runs (scenario, started_at DESC);
`

var outcomeColumns = []string{"run_id", "seq", "actor", "session_id", "status", "code", "reason", "required", "accepted", "value", "diagnostics"}

// Store persists scenario verdicts to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistVerdict writes a verdict and its outcomes in one transaction. Re-persisting a
// run replaces it.
func (s *Store) PersistVerdict(ctx context.Context, v schemas.Verdict) error {
	if v.RunID == "" {
		return errors.New("verdict has no run id")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after Commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = tx.Exec(ctx, sqlUpsertRun, v.RunID, v.Scenario, tags, v.Passed, v.StartedAt.UTC(), v.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", v.RunID, err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteOutcomes, v.RunID); err != nil {
		return fmt.Errorf("failed to clear outcomes of run %s: %w", v.RunID, err)
	}

	if len(v.Outcomes) > 0 {
		if err := s.persistOutcomes(ctx, tx, v.RunID, v.Outcomes); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Verdict persisted.", zap.String("run_id", v.RunID), zap.Int("outcomes", len(v.Outcomes)))
	return nil
}

const (
	sqlUpsertRun = `
        INSERT INTO scenario_runs (run_id, scenario, tags, passed, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (run_id) DO UPDATE SET
            scenario = EXCLUDED.scenario,
            tags = EXCLUDED.tags,
            passed = EXCLUDED.passed,
            started_at = EXCLUDED.started_at,
            finished_at = EXCLUDED.finished_at;
    `
	sqlDeleteOutcomes = `DELETE FROM actor_outcomes WHERE run_id = $1;`
)

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, runID string, outcomes []schemas.Outcome) error {
	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		value, err := encodeJSON(o.Value)
		if err != nil {
			return fmt.Errorf("failed to encode value of outcome %d (%s): %w", i, o.Actor, err)
		}
		diagnostics, err := encodeJSON(o.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to encode diagnostics of outcome %d (%s): %w", i, o.Actor, err)
		}
		rows[i] = []any{
			runID, i, o.Actor, o.SessionID,
			string(o.Status), string(o.Code), o.Reason,
			o.Required, o.Accepted,
			value, diagnostics,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"actor_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy outcomes: %w", err)
	}
	if int(copyCount) != len(outcomes) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(outcomes), copyCount)
	}
	return nil
}

// encodeJSON never yields an empty or null document.
func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID      string
	Scenario   string
	Tags       []string
	Passed     bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// History lists the latest runs of scenario, newest first. An empty scenario lists
// every scenario.
func (s *Store) History(ctx context.Context, scenario string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
        SELECT run_id, scenario, tags, passed, started_at, finished_at
        FROM scenario_runs
        WHERE ($1 = '' OR scenario = $1)
        ORDER BY started_at DESC
        LIMIT $2;
    `
	rows, err := s.pool.Query(ctx, query, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Scenario, &r.Tags, &r.Passed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// OutcomesByRunID returns the outcomes of a run in the order they were reported.
// Values come back as decoded JSON.
func (s *Store) OutcomesByRunID(ctx context.Context, runID string) ([]schemas.Outcome, error) {
	query := `
        SELECT actor, session_id, status, code, reason, required, accepted, value, diagnostics
        FROM actor_outcomes
        WHERE run_id = $1
        ORDER BY seq ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []schemas.Outcome
	for rows.Next() {
		var (
			o                  schemas.Outcome
			status, code       string
			value, diagnostics []byte
		)
		if err := rows.Scan(&o.Actor, &o.SessionID, &status, &code, &o.Reason, &o.Required, &o.Accepted, &value, &diagnostics); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.Status = schemas.OutcomeStatus(status)
		o.Code = schemas.ErrorCode(code)
		if len(value) > 0 && string(value) != "{}" {
			if err := json.Unmarshal(value, &o.Value); err != nil {
				return nil, fmt.Errorf("failed to decode value of %s: %w", o.Actor, err)
			}
		}
		if len(diagnostics) > 0 {
			if err := json.Unmarshal(diagnostics, &o.Diagnostics); err != nil {
				return nil, fmt.Errorf("failed to decode diagnostics of %s: %w", o.Actor, err)
			}
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return outcomes, nil
}
