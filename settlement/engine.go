/*
Package settlement converts approved unpaid work into immutable payroll runs.

PURPOSE:
  A payroll run is a snapshot keyed by an as-of date. For every active
  worker it computes the worker's settlement period, selects approved work
  not yet claimed by any run, aggregates totals, writes one run item, and
  atomically marks the selected tasks as paid.

EXACTLY-ONCE PAYMENT:
  The one property everything else bends around: a WorkTask is claimed by at
  most one run. Per worker, the eligibility read, the item insert and the
  claim all run inside one storage transaction, and the claim itself is a
  conditional update (still approved, still unclaimed). A task that loses
  the race to a concurrent run simply drops out of this run's totals.
  Re-invoking a run id is safe: items are insert-if-absent on (run, worker)
  and claimed tasks are no longer eligible.

WORKER INDEPENDENCE:
  Each worker's batch commits on its own. One worker failing is recorded on
  the result and does not block the rest; the run header survives either
  way.

PERIODS:
  Settlement always uses SettlementPeriod (the full fixed block). The live
  statement views use ProgressPeriod. The two are deliberately distinct; see
  engine/period.go.

SEE ALSO:
  - approval/: the only writer of task status
  - engine/store.go: ClaimTask contract
*/
package settlement

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// Engine executes payroll runs and the read-only payroll views.
type Engine struct {
	Store engine.TxStore
	Audit engine.AuditRecorder

	Now func() time.Time
}

func NewEngine(store engine.TxStore, audit engine.AuditRecorder) *Engine {
	return &Engine{Store: store, Audit: audit, Now: time.Now}
}

// =============================================================================
// RUN CREATION
// =============================================================================

// WorkerFailure records one worker whose settlement batch failed. The run
// itself still stands; retrying the same run id settles the stragglers.
type WorkerFailure struct {
	WorkerID uuid.UUID
	Err      error
}

// RunResult reports what a CreateRun call actually settled.
type RunResult struct {
	RunID          uuid.UUID
	WorkersSettled int
	Failures       []WorkerFailure
}

// CreateRun creates a payroll run as of the given date. Only workers with a
// positive eligible total get a run item; everyone's claimed tasks are
// marked paid exactly once.
func (e *Engine) CreateRun(ctx context.Context, actor engine.Actor, asOf engine.Date, note string) (*RunResult, error) {
	if asOf.IsZero() {
		return nil, &engine.ValidationError{Field: "as_of", Message: "required"}
	}

	runID := uuid.New()
	now := e.Now().UTC()

	err := e.Store.WithTx(ctx, func(tx engine.Store) error {
		return tx.CreateRun(ctx, engine.PayrollRun{
			ID:        runID,
			AsOf:      asOf,
			CreatedBy: actor.ID,
			Note:      note,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	workers, err := e.Store.ListActiveWorkers(ctx, nil)
	if err != nil {
		return nil, err
	}

	result := &RunResult{RunID: runID}
	for _, w := range workers {
		settled, err := e.settleWorker(ctx, runID, w, asOf, now)
		if err != nil {
			result.Failures = append(result.Failures, WorkerFailure{WorkerID: w.ID, Err: err})
			continue
		}
		if settled {
			result.WorkersSettled++
		}
	}

	e.recordAudit(ctx, actor, engine.AuditRunCreate, "payroll_run", runID, map[string]any{
		"as_of":           asOf.String(),
		"workers_settled": result.WorkersSettled,
		"failures":        len(result.Failures),
	})
	return result, nil
}

// settleWorker runs one worker's eligibility read, claim and item insert in
// a single transaction. Returns true when a run item was written.
func (e *Engine) settleWorker(ctx context.Context, runID uuid.UUID, w engine.Worker, asOf engine.Date, paidAt time.Time) (bool, error) {
	period := engine.SettlementPeriod(w.Payout, w.AnchorDate, asOf)

	settled := false
	err := e.Store.WithTx(ctx, func(tx engine.Store) error {
		eligible, err := tx.SelectEligible(ctx, w.ID, period)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			return nil
		}

		// Claim first, total second: only rows this run actually won count
		// toward its item. A task re-decided or claimed elsewhere between
		// the read and the write drops out here.
		totals := newAggregate()
		for _, task := range eligible {
			claimed, err := tx.ClaimTask(ctx, task.TaskID, runID, paidAt)
			if err != nil {
				return err
			}
			if claimed {
				totals.add(task)
			}
		}

		if !totals.pay.IsPositive() {
			return nil
		}

		settled = true
		return tx.InsertRunItem(ctx, engine.PayrollRunItem{
			RunID:       runID,
			WorkerID:    w.ID,
			WorkerName:  w.FullName,
			Payout:      w.Payout,
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
			TotalPay:    totals.pay.RoundMinor(),
			CombedKg:    totals.combed,
			WovenM:      totals.woven,
		})
	})
	return settled, err
}

// =============================================================================
// READ-ONLY PAYROLL VIEWS
// =============================================================================

// DueItem is one worker whose completed period has approved unpaid work.
type DueItem struct {
	WorkerID    uuid.UUID
	FullName    string
	Payout      engine.Frequency
	PeriodStart engine.Date
	PeriodEnd   engine.Date
	TotalPay    engine.Money
	CombedKg    engine.Quantity
	WovenM      engine.Quantity
}

// PayrollDue previews what a run would pay: for every eligible worker whose
// settlement period has ended on or before asOf, the approved-unpaid totals
// for that period. Workers with nothing to pay are omitted. Same
// eligibility query as CreateRun, with no mutation.
func (e *Engine) PayrollDue(ctx context.Context, actor engine.Actor, asOf engine.Date) ([]DueItem, error) {
	// Supervisors with a factory scope only see that factory's workers.
	var scope *uuid.UUID
	if !actor.IsAdmin() {
		scope = actor.FactoryID
	}

	workers, err := e.Store.ListActiveWorkers(ctx, scope)
	if err != nil {
		return nil, err
	}

	var due []DueItem
	for _, w := range workers {
		if w.AnchorDate.IsZero() {
			continue
		}
		period := engine.SettlementPeriod(w.Payout, w.AnchorDate, asOf)
		if !period.Ended(asOf) {
			continue
		}

		eligible, err := e.Store.SelectEligible(ctx, w.ID, period)
		if err != nil {
			return nil, err
		}
		totals := newAggregate()
		for _, task := range eligible {
			totals.add(task)
		}
		if !totals.pay.IsPositive() {
			continue
		}

		due = append(due, DueItem{
			WorkerID:    w.ID,
			FullName:    w.FullName,
			Payout:      w.Payout,
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
			TotalPay:    totals.pay.RoundMinor(),
			CombedKg:    totals.combed,
			WovenM:      totals.woven,
		})
	}
	return due, nil
}

// Statement is a worker's progress-period view: what approval has settled
// so far this period, before any run claims it.
type Statement struct {
	Worker      engine.Worker
	PeriodStart engine.Date
	PeriodEnd   engine.Date
	TotalPay    engine.Money
	CombedKg    engine.Quantity
	WovenM      engine.Quantity
}

// WorkerStatement aggregates a worker's approved unpaid tasks over the
// current progress period (end clamped to asOf).
func (e *Engine) WorkerStatement(ctx context.Context, workerID uuid.UUID, asOf engine.Date) (*Statement, error) {
	w, err := e.Store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &engine.NotFoundError{Entity: "worker", ID: workerID.String()}
	}

	period := engine.ProgressPeriod(w.Payout, w.AnchorDate, asOf)
	eligible, err := e.Store.SelectEligible(ctx, w.ID, period)
	if err != nil {
		return nil, err
	}

	totals := newAggregate()
	for _, task := range eligible {
		totals.add(task)
	}
	return &Statement{
		Worker:      *w,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		TotalPay:    totals.pay.RoundMinor(),
		CombedKg:    totals.combed,
		WovenM:      totals.woven,
	}, nil
}

// StatementRows lists a worker's unpaid tasks (any status) in the current
// progress period, for the per-worker CSV export.
func (e *Engine) StatementRows(ctx context.Context, workerID uuid.UUID, asOf engine.Date) (*Statement, []engine.PeriodTaskRow, error) {
	st, err := e.WorkerStatement(ctx, workerID, asOf)
	if err != nil {
		return nil, nil, err
	}
	rows, err := e.Store.ListPeriodTasks(ctx, workerID, engine.Period{Start: st.PeriodStart, End: st.PeriodEnd})
	if err != nil {
		return nil, nil, err
	}
	return st, rows, nil
}

// =============================================================================
// RUN READS
// =============================================================================

// RunDetail is a run header with its items.
type RunDetail struct {
	Run   engine.PayrollRun
	Items []engine.PayrollRunItem
}

func (e *Engine) GetRun(ctx context.Context, runID uuid.UUID) (*RunDetail, error) {
	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, &engine.NotFoundError{Entity: "payroll run", ID: runID.String()}
	}
	items, err := e.Store.ListRunItems(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: *run, Items: items}, nil
}

func (e *Engine) ListRuns(ctx context.Context, limit int) ([]engine.PayrollRun, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return e.Store.ListRuns(ctx, limit)
}

// =============================================================================
// INTERNALS
// =============================================================================

type aggregate struct {
	pay    engine.Money
	combed engine.Quantity
	woven  engine.Quantity
}

func newAggregate() *aggregate {
	return &aggregate{
		pay:    engine.ZeroMoney(),
		combed: engine.ZeroQuantity(),
		woven:  engine.ZeroQuantity(),
	}
}

func (a *aggregate) add(t engine.EligibleTask) {
	a.pay = a.pay.Add(t.SettledPay)
	switch t.TaskCode {
	case engine.TaskCodeCombing:
		a.combed = a.combed.Add(t.Quantity)
	case engine.TaskCodeWeaving:
		a.woven = a.woven.Add(t.Quantity)
	}
}

func (e *Engine) recordAudit(ctx context.Context, actor engine.Actor, action engine.AuditAction, entityType string, entityID uuid.UUID, meta map[string]any) {
	if err := e.Audit.Record(ctx, engine.AuditEvent{
		At:         e.Now().UTC(),
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
