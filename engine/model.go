/*
model.go - Persisted entities of the piecework domain

PURPOSE:
  Entity definitions shared by every service and the storage layer. The data
  flows one direction through these types:

    logging (WorkDay/WorkTask) -> approval (status/pay) -> settlement (paid)

KEY INVARIANTS:
  - A WorkDay, once closed, freezes every task on it (create/edit/delete and
    decision changes all fail with Conflict).
  - A WorkTask with a non-nil PaidRunID is terminal: status, quantity and pay
    are immutable forever.
  - A WorkTask is referenced by at most one PayrollRun. This is the core
    correctness property of the whole system.

FIELD PATCHES:
  Partial updates go through typed patch structs (nil field = unchanged),
  which the storage layer translates to parameterized updates. Column names
  never come from input.
*/
package engine

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS - pending -> {approved, rejected}, re-decidable until paid
// =============================================================================

type TaskStatus string

const (
	StatusPending  TaskStatus = "pending"
	StatusApproved TaskStatus = "approved"
	StatusRejected TaskStatus = "rejected"
)

// ValidDecision reports whether the status is a legal decision target.
// Pending is where tasks start, not somewhere a decision can move them.
func (s TaskStatus) ValidDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// =============================================================================
// TASK CATEGORIES - the two rubric-bearing task types
// =============================================================================

const (
	TaskCodeCombing = "COMBING" // category A, measured in kg
	TaskCodeWeaving = "WEAVING" // category B, measured in metres
)

// =============================================================================
// ACTORS - closed role set, checked by type switch not string compare
// =============================================================================

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleSupervisor }

// Actor is the authenticated caller as the core sees it. Authentication
// itself happens outside the core; services only evaluate role and scope.
type Actor struct {
	ID   uuid.UUID
	Role Role

	// FactoryID scopes a supervisor to one factory's workers. Nil means
	// unscoped. Always nil for admins.
	FactoryID *uuid.UUID
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// =============================================================================
// ENTITIES
// =============================================================================

// Worker is a piecework worker. Workers are never hard-deleted; deactivation
// removes them from settlement without losing history.
type Worker struct {
	ID         uuid.UUID
	Code       string
	FullName   string
	FactoryID  *uuid.UUID
	Payout     Frequency
	AnchorDate Date
	Active     bool
	CreatedAt  time.Time
}

// TaskType is reference data: a kind of piecework with its unit and default
// per-unit rate.
type TaskType struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Unit        string
	DefaultRate Money
}

// WorkerRate overrides a task type's default rate for one worker. At most
// one per (worker, task type).
type WorkerRate struct {
	ID         uuid.UUID
	WorkerID   uuid.UUID
	TaskTypeID uuid.UUID
	Rate       Money
}

// WorkDay is the per-worker-per-date container gating editability of every
// task logged that day. Unique per (worker, date).
type WorkDay struct {
	ID       uuid.UUID
	WorkerID uuid.UUID
	Date     Date
	LoggedBy uuid.UUID
	Note     string
	Closed   bool
	ClosedBy *uuid.UUID
	ClosedAt *time.Time
}

// WorkTask is a single quantified, priced unit of piecework.
type WorkTask struct {
	ID         uuid.UUID
	WorkDayID  uuid.UUID
	TaskTypeID uuid.UUID
	Quantity   Quantity
	Note       string

	Status         TaskStatus
	DecidedBy      *uuid.UUID
	DecidedAt      *time.Time
	DecisionReason string
	SettledPay     Money

	// PaidRunID is set exactly once, by the payroll run that claimed this
	// task. Non-nil means terminal.
	PaidRunID *uuid.UUID
	PaidAt    *time.Time

	CreatedAt time.Time
}

// Paid reports whether a payroll run has claimed this task.
func (t WorkTask) Paid() bool { return t.PaidRunID != nil }

// PayrollRun is a settlement snapshot. Immutable once created except for
// item appends during the creating call.
type PayrollRun struct {
	ID        uuid.UUID
	AsOf      Date
	CreatedBy uuid.UUID
	Note      string
	CreatedAt time.Time
}

// PayrollRunItem is one worker's aggregate within a run. Unique per
// (run, worker); only written when there is something to pay.
type PayrollRunItem struct {
	RunID       uuid.UUID
	WorkerID    uuid.UUID
	WorkerName  string
	Payout      Frequency
	PeriodStart Date
	PeriodEnd   Date
	TotalPay    Money
	CombedKg    Quantity
	WovenM      Quantity
}

// =============================================================================
// FIELD PATCHES - typed partial updates
// =============================================================================

// WorkerPatch is a partial worker update. Nil pointer = leave unchanged.
// FactoryID uses a double pointer so "set to null" is expressible.
type WorkerPatch struct {
	Code       *string
	FullName   *string
	Payout     *Frequency
	AnchorDate *Date
	FactoryID  **uuid.UUID
	Active     *bool
}

func (p WorkerPatch) Empty() bool {
	return p.Code == nil && p.FullName == nil && p.Payout == nil &&
		p.AnchorDate == nil && p.FactoryID == nil && p.Active == nil
}

// TaskPatch is a partial update of a still-pending task.
type TaskPatch struct {
	Quantity   *Quantity
	Note       *string
	TaskTypeID *uuid.UUID
}

func (p TaskPatch) Empty() bool {
	return p.Quantity == nil && p.Note == nil && p.TaskTypeID == nil
}
