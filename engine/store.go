/*
store.go - Persistence and audit interfaces

PURPOSE:
  Defines the boundary between domain services and the database. Services
  receive an explicit Store (or TxStore) handle; there is no package-level
  connection anywhere in the module.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional Store view. The
  settlement engine depends on this: for each worker the eligibility read,
  the run-item insert and the payment claim happen inside one transaction,
  with the claim expressed as a conditional update. Two concurrent runs over
  overlapping periods cannot both claim a task.

IDEMPOTENT WRITES:
  Three writes are insert-if-absent on a unique key, which is what makes
  client retries and run replays safe:
    - WorkDay on (worker, date)
    - WorkTask on id (client-generated, for offline replay)
    - PayrollRunItem on (run, worker)

AUDIT:
  Mutations emit AuditEvents through AuditRecorder. Recording is best-effort
  from the caller's perspective: a failed audit write never rolls back the
  business effect.

IMPLEMENTATIONS:
  - store/sqlite: production store, implements every interface here
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STORE - Aggregate persistence interface
// =============================================================================

// Store groups the per-entity persistence capabilities. The sqlite store
// implements all of them on one handle; services depend on the narrow
// interfaces they need.
type Store interface {
	WorkerStore
	TaskTypeStore
	RateStore
	WorkDayStore
	WorkTaskStore
	RunStore
	ReportStore
}

// TxStore adds transactional execution. If fn returns an error the
// transaction rolls back, otherwise it commits.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// PER-ENTITY INTERFACES
// =============================================================================

type WorkerStore interface {
	CreateWorker(ctx context.Context, w Worker) error
	GetWorker(ctx context.Context, id uuid.UUID) (*Worker, error)

	// ListWorkers returns workers ordered by name; inactive ones only when
	// includeInactive is set.
	ListWorkers(ctx context.Context, includeInactive bool) ([]Worker, error)

	// ListActiveWorkers returns active workers, optionally scoped to one
	// factory (supervisor scope in payroll views).
	ListActiveWorkers(ctx context.Context, factoryID *uuid.UUID) ([]Worker, error)

	PatchWorker(ctx context.Context, id uuid.UUID, patch WorkerPatch) error
}

type TaskTypeStore interface {
	SaveTaskType(ctx context.Context, tt TaskType) error
	GetTaskType(ctx context.Context, id uuid.UUID) (*TaskType, error)
	ListTaskTypes(ctx context.Context) ([]TaskType, error)
}

type RateStore interface {
	// GetWorkerRate returns nil (no error) when no override exists.
	GetWorkerRate(ctx context.Context, workerID, taskTypeID uuid.UUID) (*WorkerRate, error)
	UpsertWorkerRate(ctx context.Context, r WorkerRate) error
	ListWorkerRates(ctx context.Context, workerID uuid.UUID) ([]WorkerRate, error)
	DeleteWorkerRate(ctx context.Context, id uuid.UUID) error
}

type WorkDayStore interface {
	// UpsertWorkDay inserts the day if absent (unique on worker+date) and
	// refreshes the note otherwise. Returns the day's id either way.
	UpsertWorkDay(ctx context.Context, d WorkDay) (uuid.UUID, error)
	GetWorkDay(ctx context.Context, id uuid.UUID) (*WorkDay, error)
	// GetWorkDayByDate returns nil (no error) when the worker has no day on
	// that date.
	GetWorkDayByDate(ctx context.Context, workerID uuid.UUID, date Date) (*WorkDay, error)
	ListWorkDays(ctx context.Context, workerID uuid.UUID, from, to *Date) ([]WorkDay, error)
	SetDayClosed(ctx context.Context, id uuid.UUID, closed bool, by uuid.UUID, at time.Time) error
}

type WorkTaskStore interface {
	// CreateWorkTask inserts the task if its id is absent; replaying a
	// client-generated id is a no-op, not an error.
	CreateWorkTask(ctx context.Context, t WorkTask) error
	GetWorkTask(ctx context.Context, id uuid.UUID) (*WorkTask, error)
	ListDayTasks(ctx context.Context, workDayID uuid.UUID) ([]WorkTask, error)
	ListPendingTasks(ctx context.Context, f PendingFilter) ([]PendingTask, error)
	ListPeriodTasks(ctx context.Context, workerID uuid.UUID, period Period) ([]PeriodTaskRow, error)
	PatchWorkTask(ctx context.Context, id uuid.UUID, patch TaskPatch, by uuid.UUID) error
	DeleteWorkTask(ctx context.Context, id uuid.UUID) error

	// ApplyDecision persists an approval/rejection outcome.
	ApplyDecision(ctx context.Context, d Decision) error

	// SelectEligible returns the worker's approved, unpaid tasks with dates
	// inside the period.
	SelectEligible(ctx context.Context, workerID uuid.UUID, period Period) ([]EligibleTask, error)

	// ClaimTask conditionally marks a task as paid by runID. The update
	// applies only while the task is still approved with no paid run
	// (compare-and-set); false means another run won the race or the task
	// was re-decided, and the caller must drop it from the run's totals.
	ClaimTask(ctx context.Context, taskID, runID uuid.UUID, paidAt time.Time) (bool, error)
}

type RunStore interface {
	CreateRun(ctx context.Context, run PayrollRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*PayrollRun, error)
	ListRuns(ctx context.Context, limit int) ([]PayrollRun, error)

	// InsertRunItem is a no-op when an item for (run, worker) exists,
	// defending against replays of the same run id.
	InsertRunItem(ctx context.Context, item PayrollRunItem) error
	ListRunItems(ctx context.Context, runID uuid.UUID) ([]PayrollRunItem, error)
}

type ReportStore interface {
	// TaskTotals sums approved quantity and pay per task type over a date
	// range.
	TaskTotals(ctx context.Context, from, to Date) ([]TaskTotalRow, error)

	// SupervisorTotals aggregates logged days and approved value per
	// logging supervisor over a date range.
	SupervisorTotals(ctx context.Context, from, to Date) ([]SupervisorTotalRow, error)
}

// =============================================================================
// WRITE PAYLOADS AND READ VIEWS
// =============================================================================

// Decision is the persisted outcome of an approval call.
type Decision struct {
	TaskID     uuid.UUID
	Status     TaskStatus
	DecidedBy  uuid.UUID
	DecidedAt  time.Time
	Reason     string
	SettledPay Money
}

// PendingFilter narrows the approval queue.
type PendingFilter struct {
	WorkerID *uuid.UUID
	From     *Date
	To       *Date

	// LoggedBy restricts to days logged by one user. Set for supervisors,
	// nil for admins.
	LoggedBy *uuid.UUID
}

// PendingTask is an approval-queue row (task joined with day, worker and
// task type).
type PendingTask struct {
	TaskID     uuid.UUID
	WorkDate   Date
	WorkerID   uuid.UUID
	WorkerName string
	TaskCode   string
	TaskName   string
	Unit       string
	Quantity   Quantity
	Note       string
	CreatedAt  time.Time
}

// EligibleTask is an approved, unpaid task as settlement sees it.
type EligibleTask struct {
	TaskID     uuid.UUID
	TaskCode   string
	Quantity   Quantity
	SettledPay Money
}

// PeriodTaskRow is one unpaid task in a worker's statement.
type PeriodTaskRow struct {
	Date       Date
	TaskCode   string
	TaskName   string
	Unit       string
	Quantity   Quantity
	Status     TaskStatus
	SettledPay Money
	Note       string
}

type TaskTotalRow struct {
	TaskCode      string
	TaskName      string
	Unit          string
	TotalQuantity Quantity
	TotalPay      Money
}

type SupervisorTotalRow struct {
	Email         string
	DaysLogged    int
	TasksApproved int
	ApprovedPay   Money
}

// =============================================================================
// AUDIT - structured event records, best-effort persistence
// =============================================================================

type AuditAction string

const (
	AuditDayUpsert    AuditAction = "WORKDAY_UPSERT"
	AuditDayClose     AuditAction = "WORKDAY_CLOSE"
	AuditDayReopen    AuditAction = "WORKDAY_REOPEN"
	AuditTaskCreate   AuditAction = "TASK_CREATE"
	AuditTaskEdit     AuditAction = "TASK_EDIT"
	AuditTaskDelete   AuditAction = "TASK_DELETE"
	AuditTaskApprove  AuditAction = "TASK_APPROVE"
	AuditTaskReject   AuditAction = "TASK_REJECT"
	AuditWorkerUpdate AuditAction = "WORKER_UPDATE"
	AuditRateUpsert   AuditAction = "RATE_UPSERT"
	AuditRunCreate    AuditAction = "PAYROLL_RUN_CREATE"
)

// AuditEvent records who did what to which entity.
type AuditEvent struct {
	At         time.Time
	ActorID    uuid.UUID
	ActorRole  Role
	Action     AuditAction
	EntityType string
	EntityID   uuid.UUID
	Metadata   map[string]any
}

// AuditRecorder receives audit events. Failures must not propagate into the
// primary operation; callers log and move on.
type AuditRecorder interface {
	Record(ctx context.Context, e AuditEvent) error
}

// AuditLog extends AuditRecorder with querying, for the admin audit view.
type AuditLog interface {
	AuditRecorder
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEvent, error)
}

type AuditFilter struct {
	EntityType string
	EntityID   *uuid.UUID
	Limit      int
}

// =============================================================================
// APP USERS - authentication boundary records
// =============================================================================

// AppUser is a login account. The core never touches passwords; the api
// package verifies hashes and hands services an Actor.
type AppUser struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         Role
	FactoryID    *uuid.UUID
	Active       bool
	CreatedAt    time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, u AppUser) error
	GetUser(ctx context.Context, id uuid.UUID) (*AppUser, error)
	// GetUserByEmail returns nil (no error) when the email is unknown.
	GetUserByEmail(ctx context.Context, email string) (*AppUser, error)
	ListUsers(ctx context.Context) ([]AppUser, error)
}
