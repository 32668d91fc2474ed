/*
worklog.go - Work days and work tasks

PURPOSE:
  Persistence for the logging and approval lifecycle, plus the two queries
  settlement depends on: SelectEligible and the conditional ClaimTask
  update.
*/
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// =============================================================================
// WORK DAYS
// =============================================================================

func (s *Store) UpsertWorkDay(ctx context.Context, d engine.WorkDay) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.UpsertWorkDay(ctx, d)
}

// UpsertWorkDay inserts on first sight of (worker, date) and refreshes the
// note afterwards. logged_by never changes after insert.
func (q session) UpsertWorkDay(ctx context.Context, d engine.WorkDay) (uuid.UUID, error) {
	_, err := q.r.ExecContext(ctx, `
		INSERT INTO work_days (id, worker_id, date, logged_by, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO UPDATE SET
			note = excluded.note`,
		d.ID.String(), d.WorkerID.String(), encDate(d.Date), d.LoggedBy.String(), d.Note,
	)
	if err != nil {
		return uuid.Nil, err
	}

	var idStr string
	err = q.r.QueryRowContext(ctx, `
		SELECT id FROM work_days WHERE worker_id = ? AND date = ?`,
		d.WorkerID.String(), encDate(d.Date)).Scan(&idStr)
	if err != nil {
		return uuid.Nil, err
	}
	return decUUID(idStr), nil
}

func (s *Store) GetWorkDay(ctx context.Context, id uuid.UUID) (*engine.WorkDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetWorkDay(ctx, id)
}

func (q session) GetWorkDay(ctx context.Context, id uuid.UUID) (*engine.WorkDay, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, worker_id, date, logged_by, note, closed, closed_by, closed_at
		FROM work_days WHERE id = ?`, id.String())
	return scanWorkDayRow(row)
}

func (s *Store) GetWorkDayByDate(ctx context.Context, workerID uuid.UUID, date engine.Date) (*engine.WorkDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetWorkDayByDate(ctx, workerID, date)
}

func (q session) GetWorkDayByDate(ctx context.Context, workerID uuid.UUID, date engine.Date) (*engine.WorkDay, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, worker_id, date, logged_by, note, closed, closed_by, closed_at
		FROM work_days WHERE worker_id = ? AND date = ?`,
		workerID.String(), encDate(date))
	return scanWorkDayRow(row)
}

func (s *Store) ListWorkDays(ctx context.Context, workerID uuid.UUID, from, to *engine.Date) ([]engine.WorkDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListWorkDays(ctx, workerID, from, to)
}

func (q session) ListWorkDays(ctx context.Context, workerID uuid.UUID, from, to *engine.Date) ([]engine.WorkDay, error) {
	query := `
		SELECT id, worker_id, date, logged_by, note, closed, closed_by, closed_at
		FROM work_days WHERE worker_id = ?`
	args := []any{workerID.String()}
	if from != nil {
		query += ` AND date >= ?`
		args = append(args, encDate(*from))
	}
	if to != nil {
		query += ` AND date <= ?`
		args = append(args, encDate(*to))
	}
	query += ` ORDER BY date DESC`

	rows, err := q.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []engine.WorkDay
	for rows.Next() {
		d, err := scanWorkDay(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, *d)
	}
	return days, rows.Err()
}

func (s *Store) SetDayClosed(ctx context.Context, id uuid.UUID, closed bool, by uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.SetDayClosed(ctx, id, closed, by, at)
}

func (q session) SetDayClosed(ctx context.Context, id uuid.UUID, closed bool, by uuid.UUID, at time.Time) error {
	var closedBy, closedAt any
	if closed {
		closedBy, closedAt = by.String(), encTime(at)
	}
	res, err := q.r.ExecContext(ctx, `
		UPDATE work_days SET closed = ?, closed_by = ?, closed_at = ? WHERE id = ?`,
		closed, closedBy, closedAt, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "work day", ID: id.String()}
	}
	return nil
}

func scanWorkDayRow(row *sql.Row) (*engine.WorkDay, error) {
	d, err := scanWorkDay(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanWorkDay(row rowScanner) (*engine.WorkDay, error) {
	var (
		d                  engine.WorkDay
		idStr, workerID    string
		date, loggedBy     string
		closedBy, closedAt sql.NullString
	)
	if err := row.Scan(&idStr, &workerID, &date, &loggedBy, &d.Note, &d.Closed, &closedBy, &closedAt); err != nil {
		return nil, err
	}
	d.ID = decUUID(idStr)
	d.WorkerID = decUUID(workerID)
	d.Date = decDate(date)
	d.LoggedBy = decUUID(loggedBy)
	d.ClosedBy = decNullUUID(closedBy)
	d.ClosedAt = decNullTime(closedAt)
	return &d, nil
}

// =============================================================================
// WORK TASKS
// =============================================================================

func (s *Store) CreateWorkTask(ctx context.Context, t engine.WorkTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.CreateWorkTask(ctx, t)
}

// CreateWorkTask is INSERT OR IGNORE on the client-generated id: replaying
// an offline queue is a no-op, never a duplicate and never an error.
func (q session) CreateWorkTask(ctx context.Context, t engine.WorkTask) error {
	_, err := q.r.ExecContext(ctx, `
		INSERT OR IGNORE INTO work_tasks
		(id, work_day_id, task_type_id, quantity, note, status, settled_pay, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.WorkDayID.String(), t.TaskTypeID.String(),
		t.Quantity.String(), t.Note, string(t.Status), t.SettledPay.Value.String(),
		encTime(t.CreatedAt),
	)
	return err
}

func (s *Store) GetWorkTask(ctx context.Context, id uuid.UUID) (*engine.WorkTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetWorkTask(ctx, id)
}

func (q session) GetWorkTask(ctx context.Context, id uuid.UUID) (*engine.WorkTask, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, work_day_id, task_type_id, quantity, note, status,
		       decided_by, decided_at, decision_reason, settled_pay,
		       paid_run_id, paid_at, created_at
		FROM work_tasks WHERE id = ?`, id.String())

	t, err := scanWorkTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ListDayTasks(ctx context.Context, workDayID uuid.UUID) ([]engine.WorkTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListDayTasks(ctx, workDayID)
}

func (q session) ListDayTasks(ctx context.Context, workDayID uuid.UUID) ([]engine.WorkTask, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT id, work_day_id, task_type_id, quantity, note, status,
		       decided_by, decided_at, decision_reason, settled_pay,
		       paid_run_id, paid_at, created_at
		FROM work_tasks WHERE work_day_id = ?
		ORDER BY created_at ASC`, workDayID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []engine.WorkTask
	for rows.Next() {
		t, err := scanWorkTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) ListPendingTasks(ctx context.Context, f engine.PendingFilter) ([]engine.PendingTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListPendingTasks(ctx, f)
}

func (q session) ListPendingTasks(ctx context.Context, f engine.PendingFilter) ([]engine.PendingTask, error) {
	query := `
		SELECT t.id, d.date, d.worker_id, w.full_name, tt.code, tt.name, tt.unit,
		       t.quantity, t.note, t.created_at
		FROM work_tasks t
		JOIN work_days d ON d.id = t.work_day_id
		JOIN workers w ON w.id = d.worker_id
		JOIN task_types tt ON tt.id = t.task_type_id
		WHERE t.status = 'pending'`
	var args []any
	if f.WorkerID != nil {
		query += ` AND d.worker_id = ?`
		args = append(args, f.WorkerID.String())
	}
	if f.LoggedBy != nil {
		query += ` AND d.logged_by = ?`
		args = append(args, f.LoggedBy.String())
	}
	if f.From != nil {
		query += ` AND d.date >= ?`
		args = append(args, encDate(*f.From))
	}
	if f.To != nil {
		query += ` AND d.date <= ?`
		args = append(args, encDate(*f.To))
	}
	query += ` ORDER BY d.date ASC, t.created_at ASC`

	rows, err := q.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PendingTask
	for rows.Next() {
		var (
			p                     engine.PendingTask
			taskID, workerID      string
			date, qty, createdAt  string
		)
		if err := rows.Scan(&taskID, &date, &workerID, &p.WorkerName, &p.TaskCode,
			&p.TaskName, &p.Unit, &qty, &p.Note, &createdAt); err != nil {
			return nil, err
		}
		p.TaskID = decUUID(taskID)
		p.WorkDate = decDate(date)
		p.WorkerID = decUUID(workerID)
		p.Quantity = engine.MustParseQuantity(qty)
		p.CreatedAt = decTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListPeriodTasks(ctx context.Context, workerID uuid.UUID, period engine.Period) ([]engine.PeriodTaskRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListPeriodTasks(ctx, workerID, period)
}

func (q session) ListPeriodTasks(ctx context.Context, workerID uuid.UUID, period engine.Period) ([]engine.PeriodTaskRow, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT d.date, tt.code, tt.name, tt.unit, t.quantity, t.status, t.settled_pay, t.note
		FROM work_tasks t
		JOIN work_days d ON d.id = t.work_day_id
		JOIN task_types tt ON tt.id = t.task_type_id
		WHERE d.worker_id = ? AND d.date >= ? AND d.date <= ?
		  AND t.paid_run_id IS NULL
		ORDER BY d.date ASC, t.created_at ASC`,
		workerID.String(), encDate(period.Start), encDate(period.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PeriodTaskRow
	for rows.Next() {
		var (
			r                engine.PeriodTaskRow
			date, qty, pay   string
			status           string
		)
		if err := rows.Scan(&date, &r.TaskCode, &r.TaskName, &r.Unit, &qty, &status, &pay, &r.Note); err != nil {
			return nil, err
		}
		r.Date = decDate(date)
		r.Quantity = engine.MustParseQuantity(qty)
		r.Status = engine.TaskStatus(status)
		r.SettledPay = engine.MustParseMoney(pay)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PatchWorkTask(ctx context.Context, id uuid.UUID, patch engine.TaskPatch, by uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.PatchWorkTask(ctx, id, patch, by)
}

func (q session) PatchWorkTask(ctx context.Context, id uuid.UUID, patch engine.TaskPatch, by uuid.UUID) error {
	if patch.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Quantity != nil {
		sets, args = append(sets, "quantity = ?"), append(args, patch.Quantity.String())
	}
	if patch.Note != nil {
		sets, args = append(sets, "note = ?"), append(args, *patch.Note)
	}
	if patch.TaskTypeID != nil {
		sets, args = append(sets, "task_type_id = ?"), append(args, patch.TaskTypeID.String())
	}

	// Guarded on pending in SQL as well as in the service; an edit can never
	// touch a decided or paid row.
	query := "UPDATE work_tasks SET " + joinSets(sets) + " WHERE id = ? AND status = 'pending' AND paid_run_id IS NULL"
	args = append(args, id.String())

	res, err := q.r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "pending task", ID: id.String()}
	}
	return nil
}

func (s *Store) DeleteWorkTask(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.DeleteWorkTask(ctx, id)
}

func (q session) DeleteWorkTask(ctx context.Context, id uuid.UUID) error {
	_, err := q.r.ExecContext(ctx, `
		DELETE FROM work_tasks WHERE id = ? AND status = 'pending' AND paid_run_id IS NULL`,
		id.String())
	return err
}

func (s *Store) ApplyDecision(ctx context.Context, d engine.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.ApplyDecision(ctx, d)
}

func (q session) ApplyDecision(ctx context.Context, d engine.Decision) error {
	res, err := q.r.ExecContext(ctx, `
		UPDATE work_tasks
		SET status = ?, decided_by = ?, decided_at = ?, decision_reason = ?, settled_pay = ?
		WHERE id = ? AND paid_run_id IS NULL`,
		string(d.Status), d.DecidedBy.String(), encTime(d.DecidedAt), d.Reason,
		d.SettledPay.Value.String(), d.TaskID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "task", ID: d.TaskID.String()}
	}
	return nil
}

func (s *Store) SelectEligible(ctx context.Context, workerID uuid.UUID, period engine.Period) ([]engine.EligibleTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.SelectEligible(ctx, workerID, period)
}

func (q session) SelectEligible(ctx context.Context, workerID uuid.UUID, period engine.Period) ([]engine.EligibleTask, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT t.id, tt.code, t.quantity, t.settled_pay
		FROM work_tasks t
		JOIN work_days d ON d.id = t.work_day_id
		JOIN task_types tt ON tt.id = t.task_type_id
		WHERE d.worker_id = ? AND d.date >= ? AND d.date <= ?
		  AND t.status = 'approved' AND t.paid_run_id IS NULL
		ORDER BY d.date ASC, t.created_at ASC`,
		workerID.String(), encDate(period.Start), encDate(period.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.EligibleTask
	for rows.Next() {
		var e engine.EligibleTask
		var idStr, qty, pay string
		if err := rows.Scan(&idStr, &e.TaskCode, &qty, &pay); err != nil {
			return nil, err
		}
		e.TaskID = decUUID(idStr)
		e.Quantity = engine.MustParseQuantity(qty)
		e.SettledPay = engine.MustParseMoney(pay)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ClaimTask(ctx context.Context, taskID, runID uuid.UUID, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.ClaimTask(ctx, taskID, runID, paidAt)
}

// ClaimTask is the compare-and-set at the heart of exactly-once payment.
// The WHERE clause re-checks eligibility at write time; RowsAffected tells
// the caller whether this run won the task.
func (q session) ClaimTask(ctx context.Context, taskID, runID uuid.UUID, paidAt time.Time) (bool, error) {
	res, err := q.r.ExecContext(ctx, `
		UPDATE work_tasks SET paid_run_id = ?, paid_at = ?
		WHERE id = ? AND status = 'approved' AND paid_run_id IS NULL`,
		runID.String(), encTime(paidAt), taskID.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanWorkTask(row rowScanner) (*engine.WorkTask, error) {
	var (
		t                    engine.WorkTask
		idStr, dayID, typeID string
		qty, status, pay     string
		decidedBy, decidedAt sql.NullString
		paidRunID, paidAt    sql.NullString
		createdAt            string
	)
	if err := row.Scan(&idStr, &dayID, &typeID, &qty, &t.Note, &status,
		&decidedBy, &decidedAt, &t.DecisionReason, &pay,
		&paidRunID, &paidAt, &createdAt); err != nil {
		return nil, err
	}
	t.ID = decUUID(idStr)
	t.WorkDayID = decUUID(dayID)
	t.TaskTypeID = decUUID(typeID)
	t.Quantity = engine.MustParseQuantity(qty)
	t.Status = engine.TaskStatus(status)
	t.DecidedBy = decNullUUID(decidedBy)
	t.DecidedAt = decNullTime(decidedAt)
	t.SettledPay = engine.MustParseMoney(pay)
	t.PaidRunID = decNullUUID(paidRunID)
	t.PaidAt = decNullTime(paidAt)
	t.CreatedAt = decTime(createdAt)
	return &t, nil
}
