/*
Package approval implements the task decision state machine.

PURPOSE:
  Moves WorkTasks between pending/approved/rejected and computes settled pay
  at approval time. Approval is the only place task status changes; the
  settlement engine only ever flips paid state.

STATE MACHINE:
  pending -> approved | rejected

  A decided-but-unpaid task may be re-decided (approved <-> rejected, pay
  recomputed) so mistakes can be corrected before settlement. Two states are
  terminal for decisions:
    - the owning WorkDay is closed        -> Conflict
    - a payroll run claimed the task      -> Conflict, forever

PAY COMPUTATION:
  approved: quantity x resolved rate (worker override, else task-type
            default), rounded half-up to the currency minor unit
  rejected: zero

BULK DECISIONS:
  Each task is evaluated independently against the same preconditions plus
  an authorization predicate (supervisors only decide tasks on days they
  logged; admins decide anything). Ineligible tasks are skipped and the
  caller receives the count of applied decisions.

SEE ALSO:
  - engine/rate.go: rate resolution
  - settlement/: the claim that makes decisions terminal
*/
package approval

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// Service applies approval decisions. All writes go through Store inside a
// transaction; Audit failures are logged, never propagated.
type Service struct {
	Store engine.TxStore
	Audit engine.AuditRecorder

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(store engine.TxStore, audit engine.AuditRecorder) *Service {
	return &Service{Store: store, Audit: audit, Now: time.Now}
}

// =============================================================================
// SINGLE DECISION
// =============================================================================

// Decide applies one approval/rejection. Returns the settled pay (zero for
// rejections).
func (s *Service) Decide(ctx context.Context, actor engine.Actor, taskID uuid.UUID, status engine.TaskStatus, reason string) (engine.Money, error) {
	if !status.ValidDecision() {
		return engine.ZeroMoney(), &engine.ValidationError{Field: "status", Message: fmt.Sprintf("cannot decide to %q", status)}
	}

	var pay engine.Money
	err := s.Store.WithTx(ctx, func(tx engine.Store) error {
		task, day, err := loadOpenTask(ctx, tx, taskID)
		if err != nil {
			return err
		}

		pay, err = settledPay(ctx, tx, day.WorkerID, task, status)
		if err != nil {
			return err
		}

		return tx.ApplyDecision(ctx, engine.Decision{
			TaskID:     taskID,
			Status:     status,
			DecidedBy:  actor.ID,
			DecidedAt:  s.Now().UTC(),
			Reason:     reason,
			SettledPay: pay,
		})
	})
	if err != nil {
		return engine.ZeroMoney(), err
	}

	s.audit(ctx, actor, status, taskID, map[string]any{
		"reason":      reason,
		"settled_pay": pay.String(),
	})
	return pay, nil
}

// =============================================================================
// BULK DECISION
// =============================================================================

// DecideBulk applies the same decision to many tasks. Tasks failing any
// precondition or the authorization predicate are skipped, not fatal; the
// return value is the number of decisions applied.
func (s *Service) DecideBulk(ctx context.Context, actor engine.Actor, taskIDs []uuid.UUID, status engine.TaskStatus, reason string) (int, error) {
	if !status.ValidDecision() {
		return 0, &engine.ValidationError{Field: "status", Message: fmt.Sprintf("cannot decide to %q", status)}
	}
	if len(taskIDs) == 0 {
		return 0, nil
	}

	updated := 0
	var decided []uuid.UUID
	err := s.Store.WithTx(ctx, func(tx engine.Store) error {
		for _, taskID := range taskIDs {
			task, day, err := loadOpenTask(ctx, tx, taskID)
			if err != nil {
				if engine.IsNotFound(err) || engine.IsConflict(err) {
					continue
				}
				return err
			}

			// Supervisors only decide tasks on days they logged.
			if !actor.IsAdmin() && day.LoggedBy != actor.ID {
				continue
			}

			pay, err := settledPay(ctx, tx, day.WorkerID, task, status)
			if err != nil {
				return err
			}

			if err := tx.ApplyDecision(ctx, engine.Decision{
				TaskID:     taskID,
				Status:     status,
				DecidedBy:  actor.ID,
				DecidedAt:  s.Now().UTC(),
				Reason:     reason,
				SettledPay: pay,
			}); err != nil {
				return err
			}
			updated++
			decided = append(decided, taskID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, taskID := range decided {
		s.audit(ctx, actor, status, taskID, map[string]any{"reason": reason})
	}
	return updated, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// loadOpenTask fetches a task and its day, enforcing the two terminal
// guards: closed day and already-paid task.
func loadOpenTask(ctx context.Context, tx engine.Store, taskID uuid.UUID) (*engine.WorkTask, *engine.WorkDay, error) {
	task, err := tx.GetWorkTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task == nil {
		return nil, nil, &engine.NotFoundError{Entity: "task", ID: taskID.String()}
	}

	day, err := tx.GetWorkDay(ctx, task.WorkDayID)
	if err != nil {
		return nil, nil, err
	}
	if day == nil {
		return nil, nil, &engine.NotFoundError{Entity: "work day", ID: task.WorkDayID.String()}
	}
	if day.Closed {
		return nil, nil, &engine.DayClosedError{WorkDayID: day.ID.String()}
	}
	if task.Paid() {
		return nil, nil, &engine.TaskPaidError{TaskID: taskID.String(), PaidRunID: task.PaidRunID.String()}
	}
	return task, day, nil
}

// settledPay computes the pay a decision settles: quantity x resolved rate
// for approvals, rounded half-up to the minor unit; zero for rejections.
// Re-deciding recomputes from scratch, so approve/reject/approve lands on
// the same figure as a single approval.
func settledPay(ctx context.Context, tx engine.Store, workerID uuid.UUID, task *engine.WorkTask, status engine.TaskStatus) (engine.Money, error) {
	if status != engine.StatusApproved {
		return engine.ZeroMoney(), nil
	}
	resolver := &engine.RateResolver{Rates: tx, Types: tx}
	rate, err := resolver.Resolve(ctx, workerID, task.TaskTypeID)
	if err != nil {
		return engine.ZeroMoney(), err
	}
	return task.Quantity.MulRate(rate).RoundMinor(), nil
}

func (s *Service) audit(ctx context.Context, actor engine.Actor, status engine.TaskStatus, taskID uuid.UUID, meta map[string]any) {
	action := engine.AuditTaskApprove
	if status == engine.StatusRejected {
		action = engine.AuditTaskReject
	}
	if err := s.Audit.Record(ctx, engine.AuditEvent{
		At:         s.Now().UTC(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "work_task",
		EntityID:   taskID,
		Metadata:   meta,
	}); err != nil {
		log.Printf("audit record failed (non-fatal): %v", err)
	}
}
