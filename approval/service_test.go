/*
service_test.go - Decision state machine tests

Covers pay computation (default rate, worker override, rounding), the
re-decide loop, the two terminal guards (closed day, paid task) and the
bulk decision skip semantics.
*/
package approval

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
	svc   *Service

	admin      engine.Actor
	supervisor engine.Actor
	other      engine.Actor

	worker  engine.Worker
	combing engine.TaskType
	dayID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	svc := NewService(store, store)
	svc.Now = func() time.Time { return time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC) }

	f := &fixture{
		store:      store,
		svc:        svc,
		admin:      engine.Actor{ID: uuid.New(), Role: engine.RoleAdmin},
		supervisor: engine.Actor{ID: uuid.New(), Role: engine.RoleSupervisor},
		other:      engine.Actor{ID: uuid.New(), Role: engine.RoleSupervisor},
		worker: engine.Worker{
			ID: uuid.New(), Code: "W-001", FullName: "Amina Bello",
			Payout: engine.Weekly, AnchorDate: engine.NewDate(2025, time.March, 3), Active: true,
		},
		combing: engine.TaskType{
			ID: uuid.New(), Code: engine.TaskCodeCombing, Name: "Combing", Unit: "kg",
			DefaultRate: engine.MustParseMoney("100.00"),
		},
	}

	require.NoError(t, store.CreateWorker(ctx, f.worker))
	require.NoError(t, store.SaveTaskType(ctx, f.combing))

	f.dayID = f.newDay(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	return f
}

func (f *fixture) newDay(t *testing.T, actor engine.Actor, date engine.Date) uuid.UUID {
	t.Helper()
	id, err := f.store.UpsertWorkDay(context.Background(), engine.WorkDay{
		ID: uuid.New(), WorkerID: f.worker.ID, Date: date, LoggedBy: actor.ID,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) newTask(t *testing.T, dayID uuid.UUID, qty string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.CreateWorkTask(context.Background(), engine.WorkTask{
		ID: id, WorkDayID: dayID, TaskTypeID: f.combing.ID,
		Quantity: engine.MustParseQuantity(qty),
		Status:   engine.StatusPending, SettledPay: engine.ZeroMoney(),
	}))
	return id
}

// =============================================================================
// SINGLE DECISIONS
// =============================================================================

func TestDecide_Approve_DefaultRate(t *testing.T) {
	// GIVEN: 2.5 kg pending at the 100.00/kg default rate
	// WHEN: approving
	// THEN: pay settles at 250.00 and the task stores it
	f := newFixture(t)
	ctx := context.Background()
	taskID := f.newTask(t, f.dayID, "2.5")

	pay, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, "250.00", pay.String())
	task, err := f.store.GetWorkTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, task.Status)
	assert.Equal(t, "250.00", task.SettledPay.String())
	assert.Equal(t, f.supervisor.ID, *task.DecidedBy)
}

func TestDecide_Approve_WorkerOverrideWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertWorkerRate(ctx, engine.WorkerRate{
		ID: uuid.New(), WorkerID: f.worker.ID, TaskTypeID: f.combing.ID,
		Rate: engine.MustParseMoney("120.00"),
	}))
	taskID := f.newTask(t, f.dayID, "2.5")

	pay, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, "300.00", pay.String())
}

func TestDecide_Approve_RoundsHalfUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertWorkerRate(ctx, engine.WorkerRate{
		ID: uuid.New(), WorkerID: f.worker.ID, TaskTypeID: f.combing.ID,
		Rate: engine.MustParseMoney("1.00"),
	}))
	taskID := f.newTask(t, f.dayID, "1.005")

	pay, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, "1.01", pay.String())
}

func TestDecide_Reject_ZeroPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	taskID := f.newTask(t, f.dayID, "2.5")

	pay, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusRejected, "quantity implausible")
	require.NoError(t, err)

	assert.True(t, pay.IsZero())
	task, err := f.store.GetWorkTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, task.Status)
	assert.Equal(t, "quantity implausible", task.DecisionReason)
	assert.True(t, task.SettledPay.IsZero())
}

func TestDecide_Redecide_RecomputesPay(t *testing.T) {
	// Approve, reject, approve again: each decision recomputes from scratch
	// and lands on the same figure.
	f := newFixture(t)
	ctx := context.Background()
	taskID := f.newTask(t, f.dayID, "2.5")

	_, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")
	require.NoError(t, err)
	pay, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusRejected, "second look")
	require.NoError(t, err)
	assert.True(t, pay.IsZero())

	pay, err = f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, "250.00", pay.String())
}

func TestDecide_InvalidTarget(t *testing.T) {
	f := newFixture(t)
	taskID := f.newTask(t, f.dayID, "2.5")

	_, err := f.svc.Decide(context.Background(), f.supervisor, taskID, engine.StatusPending, "")

	assert.True(t, engine.IsValidation(err))
}

func TestDecide_ClosedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	taskID := f.newTask(t, f.dayID, "2.5")
	require.NoError(t, f.store.SetDayClosed(ctx, f.dayID, true, f.supervisor.ID, time.Now()))

	_, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")

	assert.True(t, engine.IsConflict(err))
}

func TestDecide_PaidTaskIsTerminal(t *testing.T) {
	// Once a payroll run claims a task, no decision can ever touch it again.
	f := newFixture(t)
	ctx := context.Background()
	taskID := f.newTask(t, f.dayID, "2.5")
	_, err := f.svc.Decide(ctx, f.supervisor, taskID, engine.StatusApproved, "")
	require.NoError(t, err)

	claimed, err := f.store.ClaimTask(ctx, taskID, uuid.New(), time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.svc.Decide(ctx, f.admin, taskID, engine.StatusRejected, "")
	assert.True(t, engine.IsConflict(err))
}

// =============================================================================
// BULK DECISIONS
// =============================================================================

func TestDecideBulk_SkipsIneligible(t *testing.T) {
	// GIVEN: one decidable task, one on a closed day, one unknown id
	// WHEN: bulk approving all three
	// THEN: exactly one decision applies, the rest are skipped quietly
	f := newFixture(t)
	ctx := context.Background()

	ok := f.newTask(t, f.dayID, "1.0")
	closedDay := f.newDay(t, f.supervisor, engine.NewDate(2025, time.March, 11))
	frozen := f.newTask(t, closedDay, "1.0")
	require.NoError(t, f.store.SetDayClosed(ctx, closedDay, true, f.supervisor.ID, time.Now()))

	updated, err := f.svc.DecideBulk(ctx, f.supervisor, []uuid.UUID{ok, frozen, uuid.New()}, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, 1, updated)
	task, err := f.store.GetWorkTask(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, task.Status)
	assert.Equal(t, "100.00", task.SettledPay.String())
}

func TestDecideBulk_SupervisorSkipsOthersDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine := f.newTask(t, f.dayID, "1.0")
	otherDay := f.newDay(t, f.other, engine.NewDate(2025, time.March, 11))
	theirs := f.newTask(t, otherDay, "1.0")

	updated, err := f.svc.DecideBulk(ctx, f.supervisor, []uuid.UUID{mine, theirs}, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, 1, updated)
	task, err := f.store.GetWorkTask(ctx, theirs)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, task.Status)
}

func TestDecideBulk_AdminDecidesAnything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.newTask(t, f.dayID, "1.0")
	otherDay := f.newDay(t, f.other, engine.NewDate(2025, time.March, 11))
	b := f.newTask(t, otherDay, "1.0")

	updated, err := f.svc.DecideBulk(ctx, f.admin, []uuid.UUID{a, b}, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, 2, updated)
}

func TestDecideBulk_EmptyInput(t *testing.T) {
	f := newFixture(t)

	updated, err := f.svc.DecideBulk(context.Background(), f.supervisor, nil, engine.StatusApproved, "")
	require.NoError(t, err)

	assert.Zero(t, updated)
}
