/*
payroll.go - Payroll runs, run items and reporting aggregates
*/
package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func (s *Store) CreateRun(ctx context.Context, run engine.PayrollRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.CreateRun(ctx, run)
}

func (q session) CreateRun(ctx context.Context, run engine.PayrollRun) error {
	_, err := q.r.ExecContext(ctx, `
		INSERT INTO payroll_runs (id, as_of, created_by, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(), encDate(run.AsOf), run.CreatedBy.String(), run.Note, encTime(run.CreatedAt),
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*engine.PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetRun(ctx, id)
}

func (q session) GetRun(ctx context.Context, id uuid.UUID) (*engine.PayrollRun, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, as_of, created_by, note, created_at FROM payroll_runs WHERE id = ?`,
		id.String())

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]engine.PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListRuns(ctx, limit)
}

func (q session) ListRuns(ctx context.Context, limit int) ([]engine.PayrollRun, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT id, as_of, created_by, note, created_at
		FROM payroll_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []engine.PayrollRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *Store) InsertRunItem(ctx context.Context, item engine.PayrollRunItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.InsertRunItem(ctx, item)
}

// InsertRunItem is INSERT OR IGNORE on (run_id, worker_id): replaying a run
// cannot duplicate a worker's line.
func (q session) InsertRunItem(ctx context.Context, item engine.PayrollRunItem) error {
	_, err := q.r.ExecContext(ctx, `
		INSERT OR IGNORE INTO payroll_run_items
		(run_id, worker_id, worker_name, payout, period_start, period_end, total_pay, combed_kg, woven_m)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.RunID.String(), item.WorkerID.String(), item.WorkerName, string(item.Payout),
		encDate(item.PeriodStart), encDate(item.PeriodEnd),
		item.TotalPay.Value.String(), item.CombedKg.String(), item.WovenM.String(),
	)
	return err
}

func (s *Store) ListRunItems(ctx context.Context, runID uuid.UUID) ([]engine.PayrollRunItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListRunItems(ctx, runID)
}

func (q session) ListRunItems(ctx context.Context, runID uuid.UUID) ([]engine.PayrollRunItem, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT run_id, worker_id, worker_name, payout, period_start, period_end,
		       total_pay, combed_kg, woven_m
		FROM payroll_run_items WHERE run_id = ?
		ORDER BY worker_name`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []engine.PayrollRunItem
	for rows.Next() {
		var (
			item                 engine.PayrollRunItem
			runStr, workerStr    string
			payout, start, end   string
			pay, combed, woven   string
		)
		if err := rows.Scan(&runStr, &workerStr, &item.WorkerName, &payout,
			&start, &end, &pay, &combed, &woven); err != nil {
			return nil, err
		}
		item.RunID = decUUID(runStr)
		item.WorkerID = decUUID(workerStr)
		item.Payout = engine.Frequency(payout)
		item.PeriodStart = decDate(start)
		item.PeriodEnd = decDate(end)
		item.TotalPay = engine.MustParseMoney(pay)
		item.CombedKg = engine.MustParseQuantity(combed)
		item.WovenM = engine.MustParseQuantity(woven)
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanRun(row rowScanner) (*engine.PayrollRun, error) {
	var run engine.PayrollRun
	var idStr, asOf, createdBy, createdAt string
	if err := row.Scan(&idStr, &asOf, &createdBy, &run.Note, &createdAt); err != nil {
		return nil, err
	}
	run.ID = decUUID(idStr)
	run.AsOf = decDate(asOf)
	run.CreatedBy = decUUID(createdBy)
	run.CreatedAt = decTime(createdAt)
	return &run, nil
}

// =============================================================================
// REPORTING AGGREGATES
// =============================================================================

func (s *Store) TaskTotals(ctx context.Context, from, to engine.Date) ([]engine.TaskTotalRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.TaskTotals(ctx, from, to)
}

// TaskTotals sums approved quantity and settled pay per task type. Decimal
// arithmetic stays in Go; SQL only groups rows.
func (q session) TaskTotals(ctx context.Context, from, to engine.Date) ([]engine.TaskTotalRow, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT tt.code, tt.name, tt.unit, t.quantity, t.settled_pay
		FROM work_tasks t
		JOIN work_days d ON d.id = t.work_day_id
		JOIN task_types tt ON tt.id = t.task_type_id
		WHERE t.status = 'approved' AND d.date >= ? AND d.date <= ?
		ORDER BY tt.code`,
		encDate(from), encDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byCode := map[string]*engine.TaskTotalRow{}
	var order []string
	for rows.Next() {
		var code, name, unit, qty, pay string
		if err := rows.Scan(&code, &name, &unit, &qty, &pay); err != nil {
			return nil, err
		}
		row, ok := byCode[code]
		if !ok {
			row = &engine.TaskTotalRow{
				TaskCode:      code,
				TaskName:      name,
				Unit:          unit,
				TotalQuantity: engine.ZeroQuantity(),
				TotalPay:      engine.ZeroMoney(),
			}
			byCode[code] = row
			order = append(order, code)
		}
		row.TotalQuantity = row.TotalQuantity.Add(engine.MustParseQuantity(qty))
		row.TotalPay = row.TotalPay.Add(engine.MustParseMoney(pay))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]engine.TaskTotalRow, 0, len(order))
	for _, code := range order {
		out = append(out, *byCode[code])
	}
	return out, nil
}

func (s *Store) SupervisorTotals(ctx context.Context, from, to engine.Date) ([]engine.SupervisorTotalRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.SupervisorTotals(ctx, from, to)
}

func (q session) SupervisorTotals(ctx context.Context, from, to engine.Date) ([]engine.SupervisorTotalRow, error) {
	byEmail := map[string]*engine.SupervisorTotalRow{}
	var order []string
	get := func(email string) *engine.SupervisorTotalRow {
		row, ok := byEmail[email]
		if !ok {
			row = &engine.SupervisorTotalRow{Email: email, ApprovedPay: engine.ZeroMoney()}
			byEmail[email] = row
			order = append(order, email)
		}
		return row
	}

	dayRows, err := q.r.QueryContext(ctx, `
		SELECT u.email, COUNT(*)
		FROM work_days d
		JOIN app_users u ON u.id = d.logged_by
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY u.email
		ORDER BY u.email`,
		encDate(from), encDate(to))
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var email string
		var count int
		if err := dayRows.Scan(&email, &count); err != nil {
			return nil, err
		}
		get(email).DaysLogged = count
	}
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	taskRows, err := q.r.QueryContext(ctx, `
		SELECT u.email, t.settled_pay
		FROM work_tasks t
		JOIN work_days d ON d.id = t.work_day_id
		JOIN app_users u ON u.id = d.logged_by
		WHERE t.status = 'approved' AND d.date >= ? AND d.date <= ?`,
		encDate(from), encDate(to))
	if err != nil {
		return nil, err
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var email, pay string
		if err := taskRows.Scan(&email, &pay); err != nil {
			return nil, err
		}
		row := get(email)
		row.TasksApproved++
		row.ApprovedPay = row.ApprovedPay.Add(engine.MustParseMoney(pay))
	}
	if err := taskRows.Err(); err != nil {
		return nil, err
	}

	out := make([]engine.SupervisorTotalRow, 0, len(order))
	for _, email := range order {
		out = append(out, *byEmail[email])
	}
	return out, nil
}
