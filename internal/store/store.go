// Package store implements the optional managed-mode Postgres mirror
// (spec.md §4.2 "managed mode" / SPEC_FULL domain stack): a durable,
// queryable copy of the action log, parallel task history, and self-heal
// proposals for deployments that run with TARS_DATABASE_MODE=managed. The
// flat-file internal/memory.Store remains the source of truth in
// standalone mode; Store is a best-effort side mirror the composition root
// writes to alongside it when managed mode is on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps a Postgres connection for managed-mode persistence.
type Store struct {
	db *sql.DB
}

// Open connects to dsn using the pure-Go pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies every pending migration under dir (default
// "migrations" next to the running binary).
func Migrate(dsn, dir string) error {
	if dir == "" {
		dir = defaultMigrationsDir()
	}
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func defaultMigrationsDir() string {
	if v := os.Getenv("TARS_MIGRATIONS_DIR"); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

// AppendAction mirrors one action-log entry (spec.md §4.2's append-only
// history) into Postgres.
func (s *Store) AppendAction(ctx context.Context, taskID, source, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_log (task_id, source, content) VALUES ($1, $2, $3)`,
		taskID, source, content)
	return err
}

// RecordTaskStarted mirrors a parallel task's start (spec.md §4.9).
func (s *Store) RecordTaskStarted(ctx context.Context, taskID, traceID, source, batchType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parallel_tasks (task_id, trace_id, source, batch_type, status)
		 VALUES ($1, $2, $3, $4, 'started')
		 ON CONFLICT (task_id) DO NOTHING`,
		taskID, traceID, source, batchType)
	return err
}

// RecordTaskCompleted mirrors a parallel task's terminal state.
func (s *Store) RecordTaskCompleted(ctx context.Context, taskID, status, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE parallel_tasks SET status = $2, reason = $3, completed_at = now() WHERE task_id = $1`,
		taskID, status, reason)
	return err
}

// SaveProposal upserts a self-heal proposal snapshot, including every task
// ID observed with this fingerprint so the full blast radius stays
// queryable after the in-memory Tracker restarts.
func (s *Store) SaveProposal(ctx context.Context, id, fingerprint string, occurrences int, description, devTask string, approved, resolved bool, outcome string, affectedTaskIDs []string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heal_proposals (id, fingerprint, occurrences, description, dev_task, approved, resolved, outcome, affected_task_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   occurrences       = EXCLUDED.occurrences,
		   approved          = EXCLUDED.approved,
		   resolved          = EXCLUDED.resolved,
		   outcome           = EXCLUDED.outcome,
		   affected_task_ids = EXCLUDED.affected_task_ids`,
		id, fingerprint, occurrences, description, devTask, approved, resolved, outcome, pq.Array(affectedTaskIDs))
	return err
}

// ProposalTaskIDs returns the task IDs recorded against a proposal.
func (s *Store) ProposalTaskIDs(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := s.db.QueryRowContext(ctx, `SELECT affected_task_ids FROM heal_proposals WHERE id = $1`, id).
		Scan(pq.Array(&ids))
	return ids, err
}
