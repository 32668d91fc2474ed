/*
Package roster manages reference data: the worker roster, the task-type
catalogue, per-worker rate overrides and login accounts.

PURPOSE:
  Everything here is administrative plumbing around settlement. Workers are
  never hard-deleted; deactivation takes them out of payroll without
  touching history. Rate changes apply to future decisions only, because
  approval snapshots pay at decision time.

SEE ALSO:
  - engine/rate.go: how overrides and defaults combine
*/
package roster

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fibreline/piecework-engine/engine"
)

// Service is the admin surface over reference data.
type Service struct {
	Store engine.TxStore
	Users engine.UserStore
	Audit engine.AuditLog

	Now func() time.Time
}

func NewService(store engine.TxStore, users engine.UserStore, audit engine.AuditLog) *Service {
	return &Service{Store: store, Users: users, Audit: audit, Now: time.Now}
}

// =============================================================================
// WORKERS
// =============================================================================

// NewWorker carries worker creation input.
type NewWorker struct {
	Code       string
	FullName   string
	FactoryID  *uuid.UUID
	Payout     engine.Frequency
	AnchorDate engine.Date
}

func (s *Service) CreateWorker(ctx context.Context, actor engine.Actor, in NewWorker) (*engine.Worker, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("create worker: %w", engine.ErrForbidden)
	}
	if in.Code == "" {
		return nil, &engine.ValidationError{Field: "code", Message: "required"}
	}
	if in.FullName == "" {
		return nil, &engine.ValidationError{Field: "full_name", Message: "required"}
	}
	if !in.Payout.Valid() {
		return nil, &engine.ValidationError{Field: "payout", Message: fmt.Sprintf("unknown frequency %q", in.Payout)}
	}
	if in.AnchorDate.IsZero() {
		return nil, &engine.ValidationError{Field: "anchor_date", Message: "required"}
	}

	w := engine.Worker{
		ID:         uuid.New(),
		Code:       in.Code,
		FullName:   in.FullName,
		FactoryID:  in.FactoryID,
		Payout:     in.Payout,
		AnchorDate: in.AnchorDate,
		Active:     true,
		CreatedAt:  s.Now().UTC(),
	}
	if err := s.Store.CreateWorker(ctx, w); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, engine.AuditWorkerUpdate, "worker", w.ID, map[string]any{"created": true, "code": w.Code})
	return &w, nil
}

func (s *Service) GetWorker(ctx context.Context, id uuid.UUID) (*engine.Worker, error) {
	w, err := s.Store.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &engine.NotFoundError{Entity: "worker", ID: id.String()}
	}
	return w, nil
}

func (s *Service) ListWorkers(ctx context.Context, includeInactive bool) ([]engine.Worker, error) {
	return s.Store.ListWorkers(ctx, includeInactive)
}

// UpdateWorker applies a typed field patch. Changing payout or anchor only
// affects periods computed after the change; past runs are immutable.
func (s *Service) UpdateWorker(ctx context.Context, actor engine.Actor, id uuid.UUID, patch engine.WorkerPatch) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("update worker: %w", engine.ErrForbidden)
	}
	if patch.Empty() {
		return &engine.ValidationError{Field: "patch", Message: "no fields to update"}
	}
	if patch.Payout != nil && !patch.Payout.Valid() {
		return &engine.ValidationError{Field: "payout", Message: fmt.Sprintf("unknown frequency %q", *patch.Payout)}
	}

	if err := s.Store.PatchWorker(ctx, id, patch); err != nil {
		return err
	}
	s.audit(ctx, actor, engine.AuditWorkerUpdate, "worker", id, nil)
	return nil
}

// DeactivateWorker takes a worker out of settlement and pending views.
func (s *Service) DeactivateWorker(ctx context.Context, actor engine.Actor, id uuid.UUID) error {
	active := false
	return s.UpdateWorker(ctx, actor, id, engine.WorkerPatch{Active: &active})
}

// =============================================================================
// TASK TYPES
// =============================================================================

func (s *Service) SaveTaskType(ctx context.Context, actor engine.Actor, tt engine.TaskType) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("save task type: %w", engine.ErrForbidden)
	}
	if tt.Code == "" {
		return &engine.ValidationError{Field: "code", Message: "required"}
	}
	if tt.DefaultRate.Value.IsNegative() {
		return &engine.ValidationError{Field: "default_rate", Message: "must not be negative"}
	}
	if tt.ID == uuid.Nil {
		tt.ID = uuid.New()
	}
	return s.Store.SaveTaskType(ctx, tt)
}

func (s *Service) ListTaskTypes(ctx context.Context) ([]engine.TaskType, error) {
	return s.Store.ListTaskTypes(ctx)
}

// =============================================================================
// RATE OVERRIDES
// =============================================================================

func (s *Service) SetWorkerRate(ctx context.Context, actor engine.Actor, workerID, taskTypeID uuid.UUID, rate engine.Money) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("set worker rate: %w", engine.ErrForbidden)
	}
	if rate.Value.IsNegative() {
		return &engine.ValidationError{Field: "rate", Message: "must not be negative"}
	}
	if _, err := s.GetWorker(ctx, workerID); err != nil {
		return err
	}
	tt, err := s.Store.GetTaskType(ctx, taskTypeID)
	if err != nil {
		return err
	}
	if tt == nil {
		return &engine.NotFoundError{Entity: "task type", ID: taskTypeID.String()}
	}

	err = s.Store.UpsertWorkerRate(ctx, engine.WorkerRate{
		ID:         uuid.New(),
		WorkerID:   workerID,
		TaskTypeID: taskTypeID,
		Rate:       rate,
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, engine.AuditRateUpsert, "worker", workerID, map[string]any{
		"task_type": tt.Code,
		"rate":      rate.String(),
	})
	return nil
}

func (s *Service) ListWorkerRates(ctx context.Context, workerID uuid.UUID) ([]engine.WorkerRate, error) {
	return s.Store.ListWorkerRates(ctx, workerID)
}

func (s *Service) DeleteWorkerRate(ctx context.Context, actor engine.Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("delete worker rate: %w", engine.ErrForbidden)
	}
	return s.Store.DeleteWorkerRate(ctx, id)
}

// =============================================================================
// LOGIN ACCOUNTS
// =============================================================================

// NewUser carries account creation input. The plaintext password never
// leaves this call; only the bcrypt hash is stored.
type NewUser struct {
	Email     string
	Password  string
	Role      engine.Role
	FactoryID *uuid.UUID
}

func (s *Service) CreateUser(ctx context.Context, actor engine.Actor, in NewUser) (*engine.AppUser, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("create user: %w", engine.ErrForbidden)
	}
	if in.Email == "" {
		return nil, &engine.ValidationError{Field: "email", Message: "required"}
	}
	if len(in.Password) < 8 {
		return nil, &engine.ValidationError{Field: "password", Message: "must be at least 8 characters"}
	}
	if !in.Role.Valid() {
		return nil, &engine.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", in.Role)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := engine.AppUser{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		FactoryID:    in.FactoryID,
		Active:       true,
		CreatedAt:    s.Now().UTC(),
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) ListUsers(ctx context.Context, actor engine.Actor) ([]engine.AppUser, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("list users: %w", engine.ErrForbidden)
	}
	return s.Users.ListUsers(ctx)
}

// =============================================================================
// REPORTS AND AUDIT
// =============================================================================

func (s *Service) TaskTotals(ctx context.Context, from, to engine.Date) ([]engine.TaskTotalRow, error) {
	return s.Store.TaskTotals(ctx, from, to)
}

func (s *Service) SupervisorTotals(ctx context.Context, actor engine.Actor, from, to engine.Date) ([]engine.SupervisorTotalRow, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("supervisor report: %w", engine.ErrForbidden)
	}
	return s.Store.SupervisorTotals(ctx, from, to)
}

func (s *Service) QueryAudit(ctx context.Context, actor engine.Actor, f engine.AuditFilter) ([]engine.AuditEvent, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("audit log: %w", engine.ErrForbidden)
	}
	return s.Audit.QueryAudit(ctx, f)
}

func (s *Service) audit(ctx context.Context, actor engine.Actor, action engine.AuditAction, entityType string, entityID uuid.UUID, meta map[string]any) {
	if err := s.Audit.Record(ctx, engine.AuditEvent{
		At:         s.Now().UTC(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   meta,
	}); err != nil {
		log.Printf("audit record failed (non-fatal): %v", err)
	}
}
