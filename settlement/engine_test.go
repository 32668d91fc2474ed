/*
engine_test.go - Payroll run and payroll view tests

The core property under test is exactly-once payment: a second run over the
same period finds nothing, zero-pay workers never get items, and claimed
tasks are terminal.
*/
package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fibreline/piecework-engine/engine"
	"github.com/fibreline/piecework-engine/store/memory"
)

type fixture struct {
	store *memory.Store
	eng   *Engine

	admin   engine.Actor
	worker  engine.Worker
	combing engine.TaskType
	weaving engine.TaskType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	eng := NewEngine(store, store)
	eng.Now = func() time.Time { return time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC) }

	f := &fixture{
		store: store,
		eng:   eng,
		admin: engine.Actor{ID: uuid.New(), Role: engine.RoleAdmin},
		worker: engine.Worker{
			ID: uuid.New(), Code: "W-001", FullName: "Amina Bello",
			Payout: engine.Weekly, AnchorDate: engine.NewDate(2025, time.March, 3), Active: true,
		},
		combing: engine.TaskType{
			ID: uuid.New(), Code: engine.TaskCodeCombing, Name: "Combing", Unit: "kg",
			DefaultRate: engine.MustParseMoney("100.00"),
		},
		weaving: engine.TaskType{
			ID: uuid.New(), Code: engine.TaskCodeWeaving, Name: "Weaving", Unit: "m",
			DefaultRate: engine.MustParseMoney("2.00"),
		},
	}

	require.NoError(t, store.CreateWorker(ctx, f.worker))
	require.NoError(t, store.SaveTaskType(ctx, f.combing))
	require.NoError(t, store.SaveTaskType(ctx, f.weaving))
	return f
}

// approvedTask writes a work day (if needed) and an approved, unpaid task on
// it, bypassing the logging and approval services.
func (f *fixture) approvedTask(t *testing.T, workerID uuid.UUID, date engine.Date, tt engine.TaskType, qty, pay string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	dayID, err := f.store.UpsertWorkDay(ctx, engine.WorkDay{
		ID: uuid.New(), WorkerID: workerID, Date: date, LoggedBy: f.admin.ID,
	})
	require.NoError(t, err)

	taskID := uuid.New()
	decidedBy := f.admin.ID
	decidedAt := time.Date(2025, time.March, 11, 17, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.CreateWorkTask(ctx, engine.WorkTask{
		ID: taskID, WorkDayID: dayID, TaskTypeID: tt.ID,
		Quantity: engine.MustParseQuantity(qty),
		Status:   engine.StatusApproved, DecidedBy: &decidedBy, DecidedAt: &decidedAt,
		SettledPay: engine.MustParseMoney(pay),
	}))
	return taskID
}

// =============================================================================
// RUN CREATION
// =============================================================================

func TestCreateRun_SettlesApprovedWork(t *testing.T) {
	// GIVEN: approved combing and weaving inside the worker's weekly period
	// WHEN: running payroll mid-period
	// THEN: one item aggregates both quantities and their settled pay, and
	//       every claimed task carries the run id
	f := newFixture(t)
	ctx := context.Background()
	comb := f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 10), f.combing, "0.5", "50.00")
	weave := f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 11), f.weaving, "30", "60.00")

	result, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "week 11")
	require.NoError(t, err)

	assert.Equal(t, 1, result.WorkersSettled)
	assert.Empty(t, result.Failures)

	items, err := f.store.ListRunItems(ctx, result.RunID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "110.00", items[0].TotalPay.String())
	assert.Equal(t, "0.5", items[0].CombedKg.String())
	assert.Equal(t, "30", items[0].WovenM.String())
	assert.Equal(t, "2025-03-10", items[0].PeriodStart.String())
	assert.Equal(t, "2025-03-16", items[0].PeriodEnd.String())

	for _, id := range []uuid.UUID{comb, weave} {
		task, err := f.store.GetWorkTask(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, task.PaidRunID)
		assert.Equal(t, result.RunID, *task.PaidRunID)
	}
}

func TestCreateRun_ExactlyOnce(t *testing.T) {
	// A second run over the same period finds nothing left to claim.
	f := newFixture(t)
	ctx := context.Background()
	f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 10), f.combing, "1.0", "100.00")

	first, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "")
	require.NoError(t, err)
	require.Equal(t, 1, first.WorkersSettled)

	second, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "")
	require.NoError(t, err)

	assert.Zero(t, second.WorkersSettled)
	items, err := f.store.ListRunItems(ctx, second.RunID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateRun_PendingAndRejectedNotEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dayID, err := f.store.UpsertWorkDay(ctx, engine.WorkDay{
		ID: uuid.New(), WorkerID: f.worker.ID, Date: engine.NewDate(2025, time.March, 10), LoggedBy: f.admin.ID,
	})
	require.NoError(t, err)
	pending := uuid.New()
	require.NoError(t, f.store.CreateWorkTask(ctx, engine.WorkTask{
		ID: pending, WorkDayID: dayID, TaskTypeID: f.combing.ID,
		Quantity: engine.MustParseQuantity("1.0"),
		Status:   engine.StatusPending, SettledPay: engine.ZeroMoney(),
	}))

	result, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "")
	require.NoError(t, err)

	assert.Zero(t, result.WorkersSettled)
	task, err := f.store.GetWorkTask(ctx, pending)
	require.NoError(t, err)
	assert.False(t, task.Paid())
}

func TestCreateRun_OutsidePeriodLeftAlone(t *testing.T) {
	// Work in a previous period is not claimed by a run over the current one.
	f := newFixture(t)
	ctx := context.Background()
	old := f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 5), f.combing, "1.0", "100.00")

	result, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "")
	require.NoError(t, err)

	assert.Zero(t, result.WorkersSettled)
	task, err := f.store.GetWorkTask(ctx, old)
	require.NoError(t, err)
	assert.False(t, task.Paid())
}

func TestCreateRun_InactiveWorkerSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 10), f.combing, "1.0", "100.00")

	active := false
	require.NoError(t, f.store.PatchWorker(ctx, f.worker.ID, engine.WorkerPatch{Active: &active}))

	result, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "")
	require.NoError(t, err)

	assert.Zero(t, result.WorkersSettled)
}

// =============================================================================
// PAYROLL DUE
// =============================================================================

func TestPayrollDue_OnlyEndedPeriods(t *testing.T) {
	// GIVEN: approved work in the week of Mar 10-16
	// WHEN: previewing payroll mid-period and then at the period end
	// THEN: the worker appears only once the period has fully elapsed
	f := newFixture(t)
	ctx := context.Background()
	f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 10), f.combing, "1.0", "100.00")

	due, err := f.eng.PayrollDue(ctx, f.admin, engine.NewDate(2025, time.March, 12))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = f.eng.PayrollDue(ctx, f.admin, engine.NewDate(2025, time.March, 16))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "100.00", due[0].TotalPay.String())
	assert.Equal(t, "2025-03-10", due[0].PeriodStart.String())
	assert.Equal(t, "2025-03-16", due[0].PeriodEnd.String())
}

func TestPayrollDue_SupervisorFactoryScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	factoryA := uuid.New()
	factoryB := uuid.New()
	scoped := engine.Worker{
		ID: uuid.New(), Code: "W-002", FullName: "Ngozi Eze",
		FactoryID: &factoryA, Payout: engine.Weekly,
		AnchorDate: engine.NewDate(2025, time.March, 3), Active: true,
	}
	require.NoError(t, f.store.CreateWorker(ctx, scoped))
	f.approvedTask(t, scoped.ID, engine.NewDate(2025, time.March, 10), f.combing, "1.0", "100.00")

	supervisorA := engine.Actor{ID: uuid.New(), Role: engine.RoleSupervisor, FactoryID: &factoryA}
	supervisorB := engine.Actor{ID: uuid.New(), Role: engine.RoleSupervisor, FactoryID: &factoryB}
	asOf := engine.NewDate(2025, time.March, 16)

	due, err := f.eng.PayrollDue(ctx, supervisorA, asOf)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	due, err = f.eng.PayrollDue(ctx, supervisorB, asOf)
	require.NoError(t, err)
	assert.Empty(t, due)
}

// =============================================================================
// STATEMENTS AND RUN READS
// =============================================================================

func TestWorkerStatement_ProgressPeriodClampedToAsOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 10), f.combing, "0.5", "50.00")
	// Approved work later in the block stays outside the clamped statement.
	f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 14), f.combing, "0.5", "50.00")

	st, err := f.eng.WorkerStatement(ctx, f.worker.ID, engine.NewDate(2025, time.March, 12))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", st.PeriodStart.String())
	assert.Equal(t, "2025-03-12", st.PeriodEnd.String())
	assert.Equal(t, "50.00", st.TotalPay.String())
	assert.Equal(t, "0.5", st.CombedKg.String())
}

func TestWorkerStatement_UnknownWorker(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.WorkerStatement(context.Background(), uuid.New(), engine.NewDate(2025, time.March, 12))

	assert.True(t, engine.IsNotFound(err))
}

func TestGetRun_HeaderWithItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedTask(t, f.worker.ID, engine.NewDate(2025, time.March, 10), f.combing, "1.0", "100.00")

	result, err := f.eng.CreateRun(ctx, f.admin, engine.NewDate(2025, time.March, 12), "week 11")
	require.NoError(t, err)

	detail, err := f.eng.GetRun(ctx, result.RunID)
	require.NoError(t, err)

	assert.Equal(t, "week 11", detail.Run.Note)
	assert.Equal(t, f.admin.ID, detail.Run.CreatedBy)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, f.worker.FullName, detail.Items[0].WorkerName)
}
