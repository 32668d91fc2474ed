/*
Package worklog is the intake side of the system: supervisors record what
workers produced, day by day.

PURPOSE:
  Owns the WorkDay/WorkTask lifecycle up to the point approval takes over:
  day upsert, task creation, pending-task edit and delete, day close/reopen,
  and the day/pending views.

OFFLINE REPLAY:
  Clients generate task ids. Creating a task whose id already exists is a
  quiet no-op, so a phone that logged offline can replay its queue as many
  times as it likes without duplicating work. Days are likewise upserts on
  (worker, date).

EDITABILITY RULES:
  - Only pending tasks may be edited or deleted.
  - A closed day freezes everything on it; reopening is admin-only.
  - Supervisors touch only tasks on days they logged; admins touch anything.

SEE ALSO:
  - approval/: decisions and settled pay
  - engine/rubric.go: the daily target evaluation shown on day views
*/
package worklog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// Service records and edits daily work.
type Service struct {
	Store engine.TxStore
	Audit engine.AuditRecorder

	Now func() time.Time
}

func NewService(store engine.TxStore, audit engine.AuditRecorder) *Service {
	return &Service{Store: store, Audit: audit, Now: time.Now}
}

// =============================================================================
// DAY LIFECYCLE
// =============================================================================

// UpsertDay creates or refreshes the worker's day for the given date and
// returns its id. LoggedBy is set on first insert and never changes.
func (s *Service) UpsertDay(ctx context.Context, actor engine.Actor, workerID uuid.UUID, date engine.Date, note string) (uuid.UUID, error) {
	if date.IsZero() {
		return uuid.Nil, &engine.ValidationError{Field: "date", Message: "required"}
	}

	w, err := s.Store.GetWorker(ctx, workerID)
	if err != nil {
		return uuid.Nil, err
	}
	if w == nil {
		return uuid.Nil, &engine.NotFoundError{Entity: "worker", ID: workerID.String()}
	}

	var dayID uuid.UUID
	err = s.Store.WithTx(ctx, func(tx engine.Store) error {
		dayID, err = tx.UpsertWorkDay(ctx, engine.WorkDay{
			ID:       uuid.New(),
			WorkerID: workerID,
			Date:     date,
			LoggedBy: actor.ID,
			Note:     note,
		})
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.audit(ctx, actor, engine.AuditDayUpsert, "work_day", dayID, map[string]any{
		"worker_id": workerID.String(),
		"date":      date.String(),
	})
	return dayID, nil
}

// CloseDay freezes a day: no further task creation, edits or decisions.
func (s *Service) CloseDay(ctx context.Context, actor engine.Actor, dayID uuid.UUID) error {
	day, err := s.loadDay(ctx, dayID)
	if err != nil {
		return err
	}
	if err := s.canTouchDay(actor, day); err != nil {
		return err
	}
	if day.Closed {
		return nil
	}

	now := s.Now().UTC()
	err = s.Store.WithTx(ctx, func(tx engine.Store) error {
		return tx.SetDayClosed(ctx, dayID, true, actor.ID, now)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, engine.AuditDayClose, "work_day", dayID, nil)
	return nil
}

// ReopenDay lifts a close. Admin-only: closing is how supervisors hand a day
// off, and they must not be able to pull it back.
func (s *Service) ReopenDay(ctx context.Context, actor engine.Actor, dayID uuid.UUID) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("reopen day: %w", engine.ErrForbidden)
	}
	day, err := s.loadDay(ctx, dayID)
	if err != nil {
		return err
	}
	if !day.Closed {
		return nil
	}

	err = s.Store.WithTx(ctx, func(tx engine.Store) error {
		return tx.SetDayClosed(ctx, dayID, false, actor.ID, s.Now().UTC())
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, engine.AuditDayReopen, "work_day", dayID, nil)
	return nil
}

// =============================================================================
// TASK LIFECYCLE
// =============================================================================

// TaskInput carries a new task. ID comes from the client so offline queues
// can replay safely; replaying an existing id is a no-op.
type TaskInput struct {
	ID         uuid.UUID
	WorkDayID  uuid.UUID
	TaskTypeID uuid.UUID
	Quantity   engine.Quantity
	Note       string
}

// AddTask logs one unit of work on an open day. New tasks always start
// pending.
func (s *Service) AddTask(ctx context.Context, actor engine.Actor, in TaskInput) error {
	if in.ID == uuid.Nil {
		return &engine.ValidationError{Field: "id", Message: "required"}
	}
	if in.Quantity.IsNegative() {
		return &engine.ValidationError{Field: "quantity", Message: "must not be negative"}
	}

	day, err := s.loadDay(ctx, in.WorkDayID)
	if err != nil {
		return err
	}
	if day.Closed {
		return &engine.DayClosedError{WorkDayID: day.ID.String()}
	}
	if err := s.canTouchDay(actor, day); err != nil {
		return err
	}

	tt, err := s.Store.GetTaskType(ctx, in.TaskTypeID)
	if err != nil {
		return err
	}
	if tt == nil {
		return &engine.NotFoundError{Entity: "task type", ID: in.TaskTypeID.String()}
	}

	err = s.Store.WithTx(ctx, func(tx engine.Store) error {
		return tx.CreateWorkTask(ctx, engine.WorkTask{
			ID:         in.ID,
			WorkDayID:  in.WorkDayID,
			TaskTypeID: in.TaskTypeID,
			Quantity:   in.Quantity,
			Note:       in.Note,
			Status:     engine.StatusPending,
			SettledPay: engine.ZeroMoney(),
			CreatedAt:  s.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	s.audit(ctx, actor, engine.AuditTaskCreate, "work_task", in.ID, map[string]any{
		"work_day_id": in.WorkDayID.String(),
		"task_type":   tt.Code,
		"quantity":    in.Quantity.String(),
	})
	return nil
}

// UpdateTask edits a still-pending task on an open day.
func (s *Service) UpdateTask(ctx context.Context, actor engine.Actor, taskID uuid.UUID, patch engine.TaskPatch) error {
	if patch.Empty() {
		return &engine.ValidationError{Field: "patch", Message: "no fields to update"}
	}
	if patch.Quantity != nil && patch.Quantity.IsNegative() {
		return &engine.ValidationError{Field: "quantity", Message: "must not be negative"}
	}

	err := s.Store.WithTx(ctx, func(tx engine.Store) error {
		if _, _, err := s.loadEditableTask(ctx, tx, actor, taskID); err != nil {
			return err
		}

		if patch.TaskTypeID != nil {
			tt, err := tx.GetTaskType(ctx, *patch.TaskTypeID)
			if err != nil {
				return err
			}
			if tt == nil {
				return &engine.NotFoundError{Entity: "task type", ID: patch.TaskTypeID.String()}
			}
		}
		return tx.PatchWorkTask(ctx, taskID, patch, actor.ID)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, actor, engine.AuditTaskEdit, "work_task", taskID, nil)
	return nil
}

// DeleteTask removes a still-pending task on an open day.
func (s *Service) DeleteTask(ctx context.Context, actor engine.Actor, taskID uuid.UUID) error {
	err := s.Store.WithTx(ctx, func(tx engine.Store) error {
		if _, _, err := s.loadEditableTask(ctx, tx, actor, taskID); err != nil {
			return err
		}
		return tx.DeleteWorkTask(ctx, taskID)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, engine.AuditTaskDelete, "work_task", taskID, nil)
	return nil
}

// =============================================================================
// VIEWS
// =============================================================================

// DayView is one worker-day with its tasks and the daily target evaluated
// two ways: over everything logged, and over approved tasks only.
type DayView struct {
	Day   engine.WorkDay
	Tasks []engine.WorkTask

	RubricLogged   engine.RubricResult
	RubricApproved engine.RubricResult
}

// GetDayView fetches a worker's day by date. Returns NotFound when nothing
// was logged on that date.
func (s *Service) GetDayView(ctx context.Context, workerID uuid.UUID, date engine.Date) (*DayView, error) {
	day, err := s.Store.GetWorkDayByDate(ctx, workerID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, &engine.NotFoundError{Entity: "work day", ID: workerID.String() + "/" + date.String()}
	}

	tasks, err := s.Store.ListDayTasks(ctx, day.ID)
	if err != nil {
		return nil, err
	}

	codes, err := s.taskCodes(ctx, tasks)
	if err != nil {
		return nil, err
	}

	logged := dayTotals(tasks, codes, false)
	approved := dayTotals(tasks, codes, true)
	return &DayView{
		Day:            *day,
		Tasks:          tasks,
		RubricLogged:   engine.EvaluateRubric(logged.combed, logged.woven),
		RubricApproved: engine.EvaluateRubric(approved.combed, approved.woven),
	}, nil
}

// ListDays lists a worker's days in a date range, newest first.
func (s *Service) ListDays(ctx context.Context, workerID uuid.UUID, from, to *engine.Date) ([]engine.WorkDay, error) {
	return s.Store.ListWorkDays(ctx, workerID, from, to)
}

// PendingTasks returns the approval queue. Supervisors only see tasks on
// days they logged themselves.
func (s *Service) PendingTasks(ctx context.Context, actor engine.Actor, f engine.PendingFilter) ([]engine.PendingTask, error) {
	if !actor.IsAdmin() {
		loggedBy := actor.ID
		f.LoggedBy = &loggedBy
	}
	return s.Store.ListPendingTasks(ctx, f)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) loadDay(ctx context.Context, dayID uuid.UUID) (*engine.WorkDay, error) {
	day, err := s.Store.GetWorkDay(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, &engine.NotFoundError{Entity: "work day", ID: dayID.String()}
	}
	return day, nil
}

// canTouchDay is the supervisor ownership predicate.
func (s *Service) canTouchDay(actor engine.Actor, day *engine.WorkDay) error {
	if actor.IsAdmin() || day.LoggedBy == actor.ID {
		return nil
	}
	return fmt.Errorf("day logged by another user: %w", engine.ErrForbidden)
}

// loadEditableTask enforces the edit preconditions: task exists, its day is
// open, the actor may touch the day, the task is still pending and unpaid.
func (s *Service) loadEditableTask(ctx context.Context, tx engine.Store, actor engine.Actor, taskID uuid.UUID) (*engine.WorkTask, *engine.WorkDay, error) {
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
	if err := s.canTouchDay(actor, day); err != nil {
		return nil, nil, err
	}
	if task.Paid() {
		return nil, nil, &engine.TaskPaidError{TaskID: taskID.String(), PaidRunID: task.PaidRunID.String()}
	}
	if task.Status != engine.StatusPending {
		return nil, nil, fmt.Errorf("task already %s: %w", task.Status, engine.ErrConflict)
	}
	return task, day, nil
}

type dayQuantities struct {
	combed engine.Quantity
	woven  engine.Quantity
}

func dayTotals(tasks []engine.WorkTask, codes map[uuid.UUID]string, approvedOnly bool) dayQuantities {
	t := dayQuantities{combed: engine.ZeroQuantity(), woven: engine.ZeroQuantity()}
	for _, task := range tasks {
		if approvedOnly && task.Status != engine.StatusApproved {
			continue
		}
		switch codes[task.TaskTypeID] {
		case engine.TaskCodeCombing:
			t.combed = t.combed.Add(task.Quantity)
		case engine.TaskCodeWeaving:
			t.woven = t.woven.Add(task.Quantity)
		}
	}
	return t
}

// taskCodes maps the task type ids present in tasks to their codes.
func (s *Service) taskCodes(ctx context.Context, tasks []engine.WorkTask) (map[uuid.UUID]string, error) {
	codes := make(map[uuid.UUID]string, len(tasks))
	for _, task := range tasks {
		if _, ok := codes[task.TaskTypeID]; ok {
			continue
		}
		tt, err := s.Store.GetTaskType(ctx, task.TaskTypeID)
		if err != nil {
			return nil, err
		}
		if tt != nil {
			codes[task.TaskTypeID] = tt.Code
		}
	}
	return codes, nil
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
