/*
roster.go - Workers, task types and rate overrides

PURPOSE:
  Reference-data persistence: the worker roster, the task-type catalogue and
  per-worker rate overrides. Workers are never deleted, only deactivated;
  PatchWorker applies typed field patches as parameterized updates.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// =============================================================================
// WORKERS
// =============================================================================

func (s *Store) CreateWorker(ctx context.Context, w engine.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.CreateWorker(ctx, w)
}

func (q session) CreateWorker(ctx context.Context, w engine.Worker) error {
	_, err := q.r.ExecContext(ctx, `
		INSERT INTO workers (id, code, full_name, factory_id, payout, anchor_date, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.Code, w.FullName, encNullUUID(w.FactoryID),
		string(w.Payout), encDate(w.AnchorDate), w.Active, encTime(w.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("worker code %q already taken: %w", w.Code, engine.ErrConflict)
	}
	return err
}

func (s *Store) GetWorker(ctx context.Context, id uuid.UUID) (*engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetWorker(ctx, id)
}

func (q session) GetWorker(ctx context.Context, id uuid.UUID) (*engine.Worker, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, code, full_name, factory_id, payout, anchor_date, active, created_at
		FROM workers WHERE id = ?`, id.String())
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Store) ListWorkers(ctx context.Context, includeInactive bool) ([]engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListWorkers(ctx, includeInactive)
}

func (q session) ListWorkers(ctx context.Context, includeInactive bool) ([]engine.Worker, error) {
	query := `
		SELECT id, code, full_name, factory_id, payout, anchor_date, active, created_at
		FROM workers`
	if !includeInactive {
		query += ` WHERE active`
	}
	query += ` ORDER BY full_name`
	return q.queryWorkers(ctx, query)
}

func (s *Store) ListActiveWorkers(ctx context.Context, factoryID *uuid.UUID) ([]engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListActiveWorkers(ctx, factoryID)
}

func (q session) ListActiveWorkers(ctx context.Context, factoryID *uuid.UUID) ([]engine.Worker, error) {
	query := `
		SELECT id, code, full_name, factory_id, payout, anchor_date, active, created_at
		FROM workers WHERE active`
	var args []any
	if factoryID != nil {
		query += ` AND factory_id = ?`
		args = append(args, factoryID.String())
	}
	query += ` ORDER BY full_name`
	return q.queryWorkers(ctx, query, args...)
}

func (s *Store) PatchWorker(ctx context.Context, id uuid.UUID, patch engine.WorkerPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.PatchWorker(ctx, id, patch)
}

// PatchWorker builds the SET clause from fixed column names only; values are
// always bound parameters.
func (q session) PatchWorker(ctx context.Context, id uuid.UUID, patch engine.WorkerPatch) error {
	if patch.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Code != nil {
		sets, args = append(sets, "code = ?"), append(args, *patch.Code)
	}
	if patch.FullName != nil {
		sets, args = append(sets, "full_name = ?"), append(args, *patch.FullName)
	}
	if patch.Payout != nil {
		sets, args = append(sets, "payout = ?"), append(args, string(*patch.Payout))
	}
	if patch.AnchorDate != nil {
		sets, args = append(sets, "anchor_date = ?"), append(args, encDate(*patch.AnchorDate))
	}
	if patch.FactoryID != nil {
		sets, args = append(sets, "factory_id = ?"), append(args, encNullUUID(*patch.FactoryID))
	}
	if patch.Active != nil {
		sets, args = append(sets, "active = ?"), append(args, *patch.Active)
	}

	query := "UPDATE workers SET " + joinSets(sets) + " WHERE id = ?"
	args = append(args, id.String())

	res, err := q.r.ExecContext(ctx, query, args...)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("worker code already taken: %w", engine.ErrConflict)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "worker", ID: id.String()}
	}
	return nil
}

func (q session) queryWorkers(ctx context.Context, query string, args ...any) ([]engine.Worker, error) {
	rows, err := q.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []engine.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, *w)
	}
	return workers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorker(row rowScanner) (*engine.Worker, error) {
	var (
		w          engine.Worker
		idStr      string
		factoryID  sql.NullString
		payout     string
		anchorDate string
		createdAt  string
	)
	if err := row.Scan(&idStr, &w.Code, &w.FullName, &factoryID, &payout, &anchorDate, &w.Active, &createdAt); err != nil {
		return nil, err
	}
	w.ID = decUUID(idStr)
	w.FactoryID = decNullUUID(factoryID)
	w.Payout = engine.Frequency(payout)
	w.AnchorDate = decDate(anchorDate)
	w.CreatedAt = decTime(createdAt)
	return &w, nil
}

// =============================================================================
// TASK TYPES
// =============================================================================

func (s *Store) SaveTaskType(ctx context.Context, tt engine.TaskType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.SaveTaskType(ctx, tt)
}

func (q session) SaveTaskType(ctx context.Context, tt engine.TaskType) error {
	_, err := q.r.ExecContext(ctx, `
		INSERT INTO task_types (id, code, name, unit, default_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			unit = excluded.unit,
			default_rate = excluded.default_rate`,
		tt.ID.String(), tt.Code, tt.Name, tt.Unit, tt.DefaultRate.Value.String(),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("task type code %q already taken: %w", tt.Code, engine.ErrConflict)
	}
	return err
}

func (s *Store) GetTaskType(ctx context.Context, id uuid.UUID) (*engine.TaskType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetTaskType(ctx, id)
}

func (q session) GetTaskType(ctx context.Context, id uuid.UUID) (*engine.TaskType, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, code, name, unit, default_rate FROM task_types WHERE id = ?`, id.String())

	var tt engine.TaskType
	var idStr, rate string
	err := row.Scan(&idStr, &tt.Code, &tt.Name, &tt.Unit, &rate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tt.ID = decUUID(idStr)
	tt.DefaultRate = engine.MustParseMoney(rate)
	return &tt, nil
}

func (s *Store) ListTaskTypes(ctx context.Context) ([]engine.TaskType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListTaskTypes(ctx)
}

func (q session) ListTaskTypes(ctx context.Context) ([]engine.TaskType, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT id, code, name, unit, default_rate FROM task_types ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []engine.TaskType
	for rows.Next() {
		var tt engine.TaskType
		var idStr, rate string
		if err := rows.Scan(&idStr, &tt.Code, &tt.Name, &tt.Unit, &rate); err != nil {
			return nil, err
		}
		tt.ID = decUUID(idStr)
		tt.DefaultRate = engine.MustParseMoney(rate)
		types = append(types, tt)
	}
	return types, rows.Err()
}

// =============================================================================
// WORKER RATE OVERRIDES
// =============================================================================

func (s *Store) GetWorkerRate(ctx context.Context, workerID, taskTypeID uuid.UUID) (*engine.WorkerRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.GetWorkerRate(ctx, workerID, taskTypeID)
}

func (q session) GetWorkerRate(ctx context.Context, workerID, taskTypeID uuid.UUID) (*engine.WorkerRate, error) {
	row := q.r.QueryRowContext(ctx, `
		SELECT id, worker_id, task_type_id, rate FROM worker_rates
		WHERE worker_id = ? AND task_type_id = ?`,
		workerID.String(), taskTypeID.String())

	r, err := scanWorkerRate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) UpsertWorkerRate(ctx context.Context, r engine.WorkerRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.UpsertWorkerRate(ctx, r)
}

func (q session) UpsertWorkerRate(ctx context.Context, r engine.WorkerRate) error {
	_, err := q.r.ExecContext(ctx, `
		INSERT INTO worker_rates (id, worker_id, task_type_id, rate)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id, task_type_id) DO UPDATE SET
			rate = excluded.rate`,
		r.ID.String(), r.WorkerID.String(), r.TaskTypeID.String(), r.Rate.Value.String(),
	)
	return err
}

func (s *Store) ListWorkerRates(ctx context.Context, workerID uuid.UUID) ([]engine.WorkerRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ListWorkerRates(ctx, workerID)
}

func (q session) ListWorkerRates(ctx context.Context, workerID uuid.UUID) ([]engine.WorkerRate, error) {
	rows, err := q.r.QueryContext(ctx, `
		SELECT id, worker_id, task_type_id, rate FROM worker_rates
		WHERE worker_id = ?`, workerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []engine.WorkerRate
	for rows.Next() {
		r, err := scanWorkerRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, *r)
	}
	return rates, rows.Err()
}

func (s *Store) DeleteWorkerRate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.DeleteWorkerRate(ctx, id)
}

func (q session) DeleteWorkerRate(ctx context.Context, id uuid.UUID) error {
	_, err := q.r.ExecContext(ctx, `DELETE FROM worker_rates WHERE id = ?`, id.String())
	return err
}

func scanWorkerRate(row rowScanner) (*engine.WorkerRate, error) {
	var r engine.WorkerRate
	var idStr, workerID, taskTypeID, rate string
	if err := row.Scan(&idStr, &workerID, &taskTypeID, &rate); err != nil {
		return nil, err
	}
	r.ID = decUUID(idStr)
	r.WorkerID = decUUID(workerID)
	r.TaskTypeID = decUUID(taskTypeID)
	r.Rate = engine.MustParseMoney(rate)
	return &r, nil
}

// joinSets joins SET fragments; fragments are compile-time constants, never
// derived from input.
func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
