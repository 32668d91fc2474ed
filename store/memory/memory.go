// Package memory provides an in-memory Store implementation (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// =============================================================================
// MEMORY STORE - map-backed engine.TxStore, engine.AuditLog, engine.UserStore
// =============================================================================

// Store holds everything in maps behind one mutex. WithTx runs the function
// under the write lock; there is no rollback, so tests that exercise failure
// paths should fail before mutating (the services are written that way).
type Store struct {
	mu sync.Mutex

	workers   map[uuid.UUID]engine.Worker
	taskTypes map[uuid.UUID]engine.TaskType
	rates     map[rateKey]engine.WorkerRate
	days      map[uuid.UUID]engine.WorkDay
	dayByDate map[dayKey]uuid.UUID
	tasks     map[uuid.UUID]engine.WorkTask
	runs      map[uuid.UUID]engine.PayrollRun
	runItems  map[itemKey]engine.PayrollRunItem
	users     map[uuid.UUID]engine.AppUser
	audit     []engine.AuditEvent
}

type rateKey struct {
	WorkerID   uuid.UUID
	TaskTypeID uuid.UUID
}

type dayKey struct {
	WorkerID uuid.UUID
	Date     string
}

type itemKey struct {
	RunID    uuid.UUID
	WorkerID uuid.UUID
}

func New() *Store {
	return &Store{
		workers:   make(map[uuid.UUID]engine.Worker),
		taskTypes: make(map[uuid.UUID]engine.TaskType),
		rates:     make(map[rateKey]engine.WorkerRate),
		days:      make(map[uuid.UUID]engine.WorkDay),
		dayByDate: make(map[dayKey]uuid.UUID),
		tasks:     make(map[uuid.UUID]engine.WorkTask),
		runs:      make(map[uuid.UUID]engine.PayrollRun),
		runItems:  make(map[itemKey]engine.PayrollRunItem),
		users:     make(map[uuid.UUID]engine.AppUser),
	}
}

// WithTx runs fn against an unlocked view while holding the write lock, so
// a "transaction" is at least atomic with respect to other callers.
func (m *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(view{m})
}

// view is the unlocked Store handed to WithTx callbacks.
type view struct {
	m *Store
}

// =============================================================================
// WORKERS
// =============================================================================

func (m *Store) CreateWorker(ctx context.Context, w engine.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateWorker(ctx, w)
}

func (v view) CreateWorker(_ context.Context, w engine.Worker) error {
	for _, existing := range v.m.workers {
		if existing.Code == w.Code {
			return fmt.Errorf("worker code %q already taken: %w", w.Code, engine.ErrConflict)
		}
	}
	v.m.workers[w.ID] = w
	return nil
}

func (m *Store) GetWorker(ctx context.Context, id uuid.UUID) (*engine.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetWorker(ctx, id)
}

func (v view) GetWorker(_ context.Context, id uuid.UUID) (*engine.Worker, error) {
	w, ok := v.m.workers[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Store) ListWorkers(ctx context.Context, includeInactive bool) ([]engine.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListWorkers(ctx, includeInactive)
}

func (v view) ListWorkers(_ context.Context, includeInactive bool) ([]engine.Worker, error) {
	var out []engine.Worker
	for _, w := range v.m.workers {
		if !w.Active && !includeInactive {
			continue
		}
		out = append(out, w)
	}
	sortWorkers(out)
	return out, nil
}

func (m *Store) ListActiveWorkers(ctx context.Context, factoryID *uuid.UUID) ([]engine.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListActiveWorkers(ctx, factoryID)
}

func (v view) ListActiveWorkers(_ context.Context, factoryID *uuid.UUID) ([]engine.Worker, error) {
	var out []engine.Worker
	for _, w := range v.m.workers {
		if !w.Active {
			continue
		}
		if factoryID != nil && (w.FactoryID == nil || *w.FactoryID != *factoryID) {
			continue
		}
		out = append(out, w)
	}
	sortWorkers(out)
	return out, nil
}

func (m *Store) PatchWorker(ctx context.Context, id uuid.UUID, patch engine.WorkerPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.PatchWorker(ctx, id, patch)
}

func (v view) PatchWorker(_ context.Context, id uuid.UUID, patch engine.WorkerPatch) error {
	w, ok := v.m.workers[id]
	if !ok {
		return &engine.NotFoundError{Entity: "worker", ID: id.String()}
	}
	if patch.Code != nil {
		w.Code = *patch.Code
	}
	if patch.FullName != nil {
		w.FullName = *patch.FullName
	}
	if patch.Payout != nil {
		w.Payout = *patch.Payout
	}
	if patch.AnchorDate != nil {
		w.AnchorDate = *patch.AnchorDate
	}
	if patch.FactoryID != nil {
		w.FactoryID = *patch.FactoryID
	}
	if patch.Active != nil {
		w.Active = *patch.Active
	}
	v.m.workers[id] = w
	return nil
}

func sortWorkers(ws []engine.Worker) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].FullName < ws[j].FullName })
}

// =============================================================================
// TASK TYPES AND RATES
// =============================================================================

func (m *Store) SaveTaskType(ctx context.Context, tt engine.TaskType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.SaveTaskType(ctx, tt)
}

func (v view) SaveTaskType(_ context.Context, tt engine.TaskType) error {
	v.m.taskTypes[tt.ID] = tt
	return nil
}

func (m *Store) GetTaskType(ctx context.Context, id uuid.UUID) (*engine.TaskType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetTaskType(ctx, id)
}

func (v view) GetTaskType(_ context.Context, id uuid.UUID) (*engine.TaskType, error) {
	tt, ok := v.m.taskTypes[id]
	if !ok {
		return nil, nil
	}
	return &tt, nil
}

func (m *Store) ListTaskTypes(ctx context.Context) ([]engine.TaskType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListTaskTypes(ctx)
}

func (v view) ListTaskTypes(_ context.Context) ([]engine.TaskType, error) {
	var out []engine.TaskType
	for _, tt := range v.m.taskTypes {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Store) GetWorkerRate(ctx context.Context, workerID, taskTypeID uuid.UUID) (*engine.WorkerRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetWorkerRate(ctx, workerID, taskTypeID)
}

func (v view) GetWorkerRate(_ context.Context, workerID, taskTypeID uuid.UUID) (*engine.WorkerRate, error) {
	r, ok := v.m.rates[rateKey{workerID, taskTypeID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) UpsertWorkerRate(ctx context.Context, r engine.WorkerRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.UpsertWorkerRate(ctx, r)
}

func (v view) UpsertWorkerRate(_ context.Context, r engine.WorkerRate) error {
	v.m.rates[rateKey{r.WorkerID, r.TaskTypeID}] = r
	return nil
}

func (m *Store) ListWorkerRates(ctx context.Context, workerID uuid.UUID) ([]engine.WorkerRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListWorkerRates(ctx, workerID)
}

func (v view) ListWorkerRates(_ context.Context, workerID uuid.UUID) ([]engine.WorkerRate, error) {
	var out []engine.WorkerRate
	for k, r := range v.m.rates {
		if k.WorkerID == workerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Store) DeleteWorkerRate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DeleteWorkerRate(ctx, id)
}

func (v view) DeleteWorkerRate(_ context.Context, id uuid.UUID) error {
	for k, r := range v.m.rates {
		if r.ID == id {
			delete(v.m.rates, k)
			return nil
		}
	}
	return nil
}

// =============================================================================
// WORK DAYS
// =============================================================================

func (m *Store) UpsertWorkDay(ctx context.Context, d engine.WorkDay) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.UpsertWorkDay(ctx, d)
}

func (v view) UpsertWorkDay(_ context.Context, d engine.WorkDay) (uuid.UUID, error) {
	k := dayKey{d.WorkerID, d.Date.String()}
	if existingID, ok := v.m.dayByDate[k]; ok {
		existing := v.m.days[existingID]
		existing.Note = d.Note
		v.m.days[existingID] = existing
		return existingID, nil
	}
	v.m.days[d.ID] = d
	v.m.dayByDate[k] = d.ID
	return d.ID, nil
}

func (m *Store) GetWorkDay(ctx context.Context, id uuid.UUID) (*engine.WorkDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetWorkDay(ctx, id)
}

func (v view) GetWorkDay(_ context.Context, id uuid.UUID) (*engine.WorkDay, error) {
	d, ok := v.m.days[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Store) GetWorkDayByDate(ctx context.Context, workerID uuid.UUID, date engine.Date) (*engine.WorkDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetWorkDayByDate(ctx, workerID, date)
}

func (v view) GetWorkDayByDate(ctx context.Context, workerID uuid.UUID, date engine.Date) (*engine.WorkDay, error) {
	id, ok := v.m.dayByDate[dayKey{workerID, date.String()}]
	if !ok {
		return nil, nil
	}
	return v.GetWorkDay(ctx, id)
}

func (m *Store) ListWorkDays(ctx context.Context, workerID uuid.UUID, from, to *engine.Date) ([]engine.WorkDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListWorkDays(ctx, workerID, from, to)
}

func (v view) ListWorkDays(_ context.Context, workerID uuid.UUID, from, to *engine.Date) ([]engine.WorkDay, error) {
	var out []engine.WorkDay
	for _, d := range v.m.days {
		if d.WorkerID != workerID {
			continue
		}
		if from != nil && d.Date.Before(*from) {
			continue
		}
		if to != nil && d.Date.After(*to) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Date.Before(out[i].Date) })
	return out, nil
}

func (m *Store) SetDayClosed(ctx context.Context, id uuid.UUID, closed bool, by uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.SetDayClosed(ctx, id, closed, by, at)
}

func (v view) SetDayClosed(_ context.Context, id uuid.UUID, closed bool, by uuid.UUID, at time.Time) error {
	d, ok := v.m.days[id]
	if !ok {
		return &engine.NotFoundError{Entity: "work day", ID: id.String()}
	}
	d.Closed = closed
	if closed {
		d.ClosedBy, d.ClosedAt = &by, &at
	} else {
		d.ClosedBy, d.ClosedAt = nil, nil
	}
	v.m.days[id] = d
	return nil
}

// =============================================================================
// WORK TASKS
// =============================================================================

func (m *Store) CreateWorkTask(ctx context.Context, t engine.WorkTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateWorkTask(ctx, t)
}

func (v view) CreateWorkTask(_ context.Context, t engine.WorkTask) error {
	if _, ok := v.m.tasks[t.ID]; ok {
		return nil
	}
	v.m.tasks[t.ID] = t
	return nil
}

func (m *Store) GetWorkTask(ctx context.Context, id uuid.UUID) (*engine.WorkTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetWorkTask(ctx, id)
}

func (v view) GetWorkTask(_ context.Context, id uuid.UUID) (*engine.WorkTask, error) {
	t, ok := v.m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Store) ListDayTasks(ctx context.Context, workDayID uuid.UUID) ([]engine.WorkTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListDayTasks(ctx, workDayID)
}

func (v view) ListDayTasks(_ context.Context, workDayID uuid.UUID) ([]engine.WorkTask, error) {
	var out []engine.WorkTask
	for _, t := range v.m.tasks {
		if t.WorkDayID == workDayID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) ListPendingTasks(ctx context.Context, f engine.PendingFilter) ([]engine.PendingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListPendingTasks(ctx, f)
}

func (v view) ListPendingTasks(_ context.Context, f engine.PendingFilter) ([]engine.PendingTask, error) {
	var out []engine.PendingTask
	for _, t := range v.m.tasks {
		if t.Status != engine.StatusPending {
			continue
		}
		day, ok := v.m.days[t.WorkDayID]
		if !ok {
			continue
		}
		if f.WorkerID != nil && day.WorkerID != *f.WorkerID {
			continue
		}
		if f.LoggedBy != nil && day.LoggedBy != *f.LoggedBy {
			continue
		}
		if f.From != nil && day.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && day.Date.After(*f.To) {
			continue
		}
		worker := v.m.workers[day.WorkerID]
		tt := v.m.taskTypes[t.TaskTypeID]
		out = append(out, engine.PendingTask{
			TaskID:     t.ID,
			WorkDate:   day.Date,
			WorkerID:   day.WorkerID,
			WorkerName: worker.FullName,
			TaskCode:   tt.Code,
			TaskName:   tt.Name,
			Unit:       tt.Unit,
			Quantity:   t.Quantity,
			Note:       t.Note,
			CreatedAt:  t.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].WorkDate.Before(out[j].WorkDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) ListPeriodTasks(ctx context.Context, workerID uuid.UUID, period engine.Period) ([]engine.PeriodTaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListPeriodTasks(ctx, workerID, period)
}

func (v view) ListPeriodTasks(_ context.Context, workerID uuid.UUID, period engine.Period) ([]engine.PeriodTaskRow, error) {
	var out []engine.PeriodTaskRow
	for _, t := range v.m.tasks {
		if t.Paid() {
			continue
		}
		day, ok := v.m.days[t.WorkDayID]
		if !ok || day.WorkerID != workerID || !period.Contains(day.Date) {
			continue
		}
		tt := v.m.taskTypes[t.TaskTypeID]
		out = append(out, engine.PeriodTaskRow{
			Date:       day.Date,
			TaskCode:   tt.Code,
			TaskName:   tt.Name,
			Unit:       tt.Unit,
			Quantity:   t.Quantity,
			Status:     t.Status,
			SettledPay: t.SettledPay,
			Note:       t.Note,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Store) PatchWorkTask(ctx context.Context, id uuid.UUID, patch engine.TaskPatch, by uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.PatchWorkTask(ctx, id, patch, by)
}

func (v view) PatchWorkTask(_ context.Context, id uuid.UUID, patch engine.TaskPatch, _ uuid.UUID) error {
	t, ok := v.m.tasks[id]
	if !ok || t.Status != engine.StatusPending || t.Paid() {
		return &engine.NotFoundError{Entity: "pending task", ID: id.String()}
	}
	if patch.Quantity != nil {
		t.Quantity = *patch.Quantity
	}
	if patch.Note != nil {
		t.Note = *patch.Note
	}
	if patch.TaskTypeID != nil {
		t.TaskTypeID = *patch.TaskTypeID
	}
	v.m.tasks[id] = t
	return nil
}

func (m *Store) DeleteWorkTask(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DeleteWorkTask(ctx, id)
}

func (v view) DeleteWorkTask(_ context.Context, id uuid.UUID) error {
	t, ok := v.m.tasks[id]
	if !ok || t.Status != engine.StatusPending || t.Paid() {
		return nil
	}
	delete(v.m.tasks, id)
	return nil
}

func (m *Store) ApplyDecision(ctx context.Context, d engine.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ApplyDecision(ctx, d)
}

func (v view) ApplyDecision(_ context.Context, d engine.Decision) error {
	t, ok := v.m.tasks[d.TaskID]
	if !ok || t.Paid() {
		return &engine.NotFoundError{Entity: "task", ID: d.TaskID.String()}
	}
	t.Status = d.Status
	t.DecidedBy = &d.DecidedBy
	t.DecidedAt = &d.DecidedAt
	t.DecisionReason = d.Reason
	t.SettledPay = d.SettledPay
	v.m.tasks[d.TaskID] = t
	return nil
}

func (m *Store) SelectEligible(ctx context.Context, workerID uuid.UUID, period engine.Period) ([]engine.EligibleTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.SelectEligible(ctx, workerID, period)
}

func (v view) SelectEligible(_ context.Context, workerID uuid.UUID, period engine.Period) ([]engine.EligibleTask, error) {
	var out []engine.EligibleTask
	for _, t := range v.m.tasks {
		if t.Status != engine.StatusApproved || t.Paid() {
			continue
		}
		day, ok := v.m.days[t.WorkDayID]
		if !ok || day.WorkerID != workerID || !period.Contains(day.Date) {
			continue
		}
		tt := v.m.taskTypes[t.TaskTypeID]
		out = append(out, engine.EligibleTask{
			TaskID:     t.ID,
			TaskCode:   tt.Code,
			Quantity:   t.Quantity,
			SettledPay: t.SettledPay,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID.String() < out[j].TaskID.String() })
	return out, nil
}

func (m *Store) ClaimTask(ctx context.Context, taskID, runID uuid.UUID, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ClaimTask(ctx, taskID, runID, paidAt)
}

func (v view) ClaimTask(_ context.Context, taskID, runID uuid.UUID, paidAt time.Time) (bool, error) {
	t, ok := v.m.tasks[taskID]
	if !ok || t.Status != engine.StatusApproved || t.Paid() {
		return false, nil
	}
	t.PaidRunID = &runID
	t.PaidAt = &paidAt
	v.m.tasks[taskID] = t
	return true, nil
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func (m *Store) CreateRun(ctx context.Context, run engine.PayrollRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateRun(ctx, run)
}

func (v view) CreateRun(_ context.Context, run engine.PayrollRun) error {
	v.m.runs[run.ID] = run
	return nil
}

func (m *Store) GetRun(ctx context.Context, id uuid.UUID) (*engine.PayrollRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.GetRun(ctx, id)
}

func (v view) GetRun(_ context.Context, id uuid.UUID) (*engine.PayrollRun, error) {
	run, ok := v.m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *Store) ListRuns(ctx context.Context, limit int) ([]engine.PayrollRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListRuns(ctx, limit)
}

func (v view) ListRuns(_ context.Context, limit int) ([]engine.PayrollRun, error) {
	var out []engine.PayrollRun
	for _, run := range v.m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].CreatedAt.Before(out[i].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) InsertRunItem(ctx context.Context, item engine.PayrollRunItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.InsertRunItem(ctx, item)
}

func (v view) InsertRunItem(_ context.Context, item engine.PayrollRunItem) error {
	k := itemKey{item.RunID, item.WorkerID}
	if _, ok := v.m.runItems[k]; ok {
		return nil
	}
	v.m.runItems[k] = item
	return nil
}

func (m *Store) ListRunItems(ctx context.Context, runID uuid.UUID) ([]engine.PayrollRunItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.ListRunItems(ctx, runID)
}

func (v view) ListRunItems(_ context.Context, runID uuid.UUID) ([]engine.PayrollRunItem, error) {
	var out []engine.PayrollRunItem
	for k, item := range v.m.runItems {
		if k.RunID == runID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerName < out[j].WorkerName })
	return out, nil
}

// =============================================================================
// REPORTS
// =============================================================================

func (m *Store) TaskTotals(ctx context.Context, from, to engine.Date) ([]engine.TaskTotalRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.TaskTotals(ctx, from, to)
}

func (v view) TaskTotals(_ context.Context, from, to engine.Date) ([]engine.TaskTotalRow, error) {
	byCode := map[string]*engine.TaskTotalRow{}
	for _, t := range v.m.tasks {
		if t.Status != engine.StatusApproved {
			continue
		}
		day, ok := v.m.days[t.WorkDayID]
		if !ok || day.Date.Before(from) || day.Date.After(to) {
			continue
		}
		tt := v.m.taskTypes[t.TaskTypeID]
		row, ok := byCode[tt.Code]
		if !ok {
			row = &engine.TaskTotalRow{
				TaskCode:      tt.Code,
				TaskName:      tt.Name,
				Unit:          tt.Unit,
				TotalQuantity: engine.ZeroQuantity(),
				TotalPay:      engine.ZeroMoney(),
			}
			byCode[tt.Code] = row
		}
		row.TotalQuantity = row.TotalQuantity.Add(t.Quantity)
		row.TotalPay = row.TotalPay.Add(t.SettledPay)
	}

	var out []engine.TaskTotalRow
	for _, row := range byCode {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskCode < out[j].TaskCode })
	return out, nil
}

func (m *Store) SupervisorTotals(ctx context.Context, from, to engine.Date) ([]engine.SupervisorTotalRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.SupervisorTotals(ctx, from, to)
}

func (v view) SupervisorTotals(_ context.Context, from, to engine.Date) ([]engine.SupervisorTotalRow, error) {
	byUser := map[uuid.UUID]*engine.SupervisorTotalRow{}
	get := func(id uuid.UUID) *engine.SupervisorTotalRow {
		row, ok := byUser[id]
		if !ok {
			email := id.String()
			if u, ok := v.m.users[id]; ok {
				email = u.Email
			}
			row = &engine.SupervisorTotalRow{Email: email, ApprovedPay: engine.ZeroMoney()}
			byUser[id] = row
		}
		return row
	}

	for _, day := range v.m.days {
		if day.Date.Before(from) || day.Date.After(to) {
			continue
		}
		get(day.LoggedBy).DaysLogged++
	}
	for _, t := range v.m.tasks {
		if t.Status != engine.StatusApproved {
			continue
		}
		day, ok := v.m.days[t.WorkDayID]
		if !ok || day.Date.Before(from) || day.Date.After(to) {
			continue
		}
		row := get(day.LoggedBy)
		row.TasksApproved++
		row.ApprovedPay = row.ApprovedPay.Add(t.SettledPay)
	}

	var out []engine.SupervisorTotalRow
	for _, row := range byUser {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// =============================================================================
// USERS AND AUDIT
// =============================================================================

func (m *Store) CreateUser(_ context.Context, u engine.AppUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %q already registered: %w", u.Email, engine.ErrConflict)
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *Store) GetUser(_ context.Context, id uuid.UUID) (*engine.AppUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (*engine.AppUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Store) ListUsers(_ context.Context) ([]engine.AppUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []engine.AppUser
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Store) Record(_ context.Context, e engine.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Store) QueryAudit(_ context.Context, f engine.AuditFilter) ([]engine.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := f.Limit
	if limit < 1 {
		limit = 100
	}
	var out []engine.AuditEvent
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != nil && e.EntityID != *f.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
