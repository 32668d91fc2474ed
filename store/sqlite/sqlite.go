/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface the domain defines (engine.TxStore,
  engine.AuditLog, engine.UserStore) on one handle. In production the same
  patterns apply to PostgreSQL, only minor SQL dialect differences.

PAYMENT CLAIM:
  ClaimTask is the load-bearing query of the module. It marks a task paid
  with a conditional UPDATE:

    UPDATE work_tasks SET paid_run_id = ?, paid_at = ?
    WHERE id = ? AND status = 'approved' AND paid_run_id IS NULL

  and reports success through RowsAffected. Combined with the settlement
  engine running claim + item insert in one transaction, a task can be
  claimed by at most one payroll run no matter how runs interleave.

IDEMPOTENT WRITES:
  - work_days:         unique (worker_id, date), upsert refreshes the note
  - work_tasks:        client-generated primary key, INSERT OR IGNORE
  - payroll_run_items: primary key (run_id, worker_id), INSERT OR IGNORE

ENCODING:
  Money and quantities are stored as decimal strings, never floats. Dates
  are YYYY-MM-DD, timestamps RFC3339. Uuids are TEXT.

CONCURRENCY:
  A sync.RWMutex serializes writers on top of SQLite's own locking; WithTx
  holds the write lock for the whole transaction. WAL mode keeps readers
  unblocked.

USAGE:
  store, err := sqlite.New("./data/piecework.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool.

SEE ALSO:
  - engine/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fibreline/piecework-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	base session
}

// New opens (creating if necessary) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, base: session{r: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		factory_id TEXT,
		payout TEXT NOT NULL,
		anchor_date TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workers_factory
		ON workers(factory_id) WHERE factory_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS task_types (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		default_rate TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS worker_rates (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		task_type_id TEXT NOT NULL REFERENCES task_types(id),
		rate TEXT NOT NULL,
		UNIQUE(worker_id, task_type_id)
	);

	CREATE TABLE IF NOT EXISTS work_days (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		date TEXT NOT NULL,
		logged_by TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		closed_by TEXT,
		closed_at TEXT,
		UNIQUE(worker_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_work_days_logged_by
		ON work_days(logged_by);

	CREATE TABLE IF NOT EXISTS work_tasks (
		id TEXT PRIMARY KEY,
		work_day_id TEXT NOT NULL REFERENCES work_days(id),
		task_type_id TEXT NOT NULL REFERENCES task_types(id),
		quantity TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		decided_by TEXT,
		decided_at TEXT,
		decision_reason TEXT NOT NULL DEFAULT '',
		settled_pay TEXT NOT NULL DEFAULT '0',
		paid_run_id TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_work_tasks_day
		ON work_tasks(work_day_id);
	CREATE INDEX IF NOT EXISTS idx_work_tasks_status
		ON work_tasks(status);

	-- Settlement eligibility (hot path): approved and unclaimed.
	CREATE INDEX IF NOT EXISTS idx_work_tasks_eligible
		ON work_tasks(status, paid_run_id) WHERE paid_run_id IS NULL;

	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		created_by TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payroll_run_items (
		run_id TEXT NOT NULL REFERENCES payroll_runs(id),
		worker_id TEXT NOT NULL REFERENCES workers(id),
		worker_name TEXT NOT NULL,
		payout TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_pay TEXT NOT NULL,
		combed_kg TEXT NOT NULL,
		woven_m TEXT NOT NULL,
		PRIMARY KEY(run_id, worker_id)
	);

	CREATE TABLE IF NOT EXISTS app_users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		factory_id TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		metadata_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_logs(entity_type, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction, holding the write lock
// for its duration. Rollback on error, commit otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(session{r: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// runner is what session executes against: *sql.DB outside transactions,
// *sql.Tx inside WithTx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session carries the actual SQL. Store methods lock and delegate here; the
// transactional view delegates without locking (WithTx already holds the
// write lock).
type session struct {
	r runner
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func encDate(d engine.Date) string { return d.String() }

func decDate(s string) engine.Date {
	d, _ := engine.ParseDate(s)
	return d
}

func encTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func decTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func encNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encTime(*t)
	return &s
}

func decNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := decTime(ns.String)
	return &t
}

func encNullUUID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func decNullUUID(ns sql.NullString) *uuid.UUID {
	if !ns.Valid {
		return nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil
	}
	return &id
}

func decUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
