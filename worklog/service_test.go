/*
service_test.go - Work logging lifecycle tests

Covers the intake rules: idempotent day/task writes for offline replay, the
closed-day freeze, pending-only editability, supervisor day ownership and
the two-way rubric on day views.
*/
package worklog

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
	weaving engine.TaskType
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
			ID:         uuid.New(),
			Code:       "W-001",
			FullName:   "Amina Bello",
			Payout:     engine.Weekly,
			AnchorDate: engine.NewDate(2025, time.March, 3),
			Active:     true,
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

func (f *fixture) day(t *testing.T, actor engine.Actor, date engine.Date) uuid.UUID {
	t.Helper()
	id, err := f.svc.UpsertDay(context.Background(), actor, f.worker.ID, date, "")
	require.NoError(t, err)
	return id
}

func (f *fixture) task(t *testing.T, actor engine.Actor, dayID uuid.UUID, tt engine.TaskType, qty string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := f.svc.AddTask(context.Background(), actor, TaskInput{
		ID: id, WorkDayID: dayID, TaskTypeID: tt.ID, Quantity: engine.MustParseQuantity(qty),
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// DAYS
// =============================================================================

func TestUpsertDay_ReplayReturnsSameDay(t *testing.T) {
	// GIVEN: a day already logged for (worker, date)
	// WHEN: the same upsert is replayed, even by a different user
	// THEN: the original day id and logger are kept
	f := newFixture(t)
	ctx := context.Background()
	date := engine.NewDate(2025, time.March, 10)

	first := f.day(t, f.supervisor, date)
	second, err := f.svc.UpsertDay(ctx, f.other, f.worker.ID, date, "replayed")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	day, err := f.store.GetWorkDay(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, f.supervisor.ID, day.LoggedBy)
	assert.Equal(t, "replayed", day.Note)
}

func TestUpsertDay_UnknownWorker(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpsertDay(context.Background(), f.supervisor, uuid.New(), engine.NewDate(2025, time.March, 10), "")

	assert.True(t, engine.IsNotFound(err))
}

func TestCloseDay_ThenReopen_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))

	require.NoError(t, f.svc.CloseDay(ctx, f.supervisor, dayID))

	// Closing twice is a no-op, not an error.
	require.NoError(t, f.svc.CloseDay(ctx, f.supervisor, dayID))

	// The supervisor who closed it cannot pull it back.
	err := f.svc.ReopenDay(ctx, f.supervisor, dayID)
	assert.True(t, engine.IsForbidden(err))

	require.NoError(t, f.svc.ReopenDay(ctx, f.admin, dayID))
	day, err := f.store.GetWorkDay(ctx, dayID)
	require.NoError(t, err)
	assert.False(t, day.Closed)
}

func TestCloseDay_OtherSupervisorsDay(t *testing.T) {
	f := newFixture(t)
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))

	err := f.svc.CloseDay(context.Background(), f.other, dayID)

	assert.True(t, engine.IsForbidden(err))
}

// =============================================================================
// TASKS
// =============================================================================

func TestAddTask_ReplaySameID_NoDuplicate(t *testing.T) {
	// GIVEN: a task created with a client-generated id
	// WHEN: an offline queue replays the same create
	// THEN: the day still has exactly one task
	f := newFixture(t)
	ctx := context.Background()
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))

	taskID := uuid.New()
	in := TaskInput{ID: taskID, WorkDayID: dayID, TaskTypeID: f.combing.ID, Quantity: engine.MustParseQuantity("0.8")}
	require.NoError(t, f.svc.AddTask(ctx, f.supervisor, in))
	require.NoError(t, f.svc.AddTask(ctx, f.supervisor, in))

	tasks, err := f.store.ListDayTasks(ctx, dayID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, engine.StatusPending, tasks[0].Status)
}

func TestAddTask_ClosedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	require.NoError(t, f.svc.CloseDay(ctx, f.supervisor, dayID))

	err := f.svc.AddTask(ctx, f.supervisor, TaskInput{
		ID: uuid.New(), WorkDayID: dayID, TaskTypeID: f.combing.ID, Quantity: engine.MustParseQuantity("0.5"),
	})

	assert.True(t, engine.IsConflict(err))
}

func TestAddTask_NegativeQuantity(t *testing.T) {
	f := newFixture(t)
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))

	err := f.svc.AddTask(context.Background(), f.supervisor, TaskInput{
		ID: uuid.New(), WorkDayID: dayID, TaskTypeID: f.combing.ID, Quantity: engine.MustParseQuantity("-1"),
	})

	assert.True(t, engine.IsValidation(err))
}

func TestUpdateTask_PendingOnly(t *testing.T) {
	// A decided task is no longer editable through the logging surface.
	f := newFixture(t)
	ctx := context.Background()
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	taskID := f.task(t, f.supervisor, dayID, f.combing, "0.5")

	require.NoError(t, f.store.ApplyDecision(ctx, engine.Decision{
		TaskID: taskID, Status: engine.StatusApproved, DecidedBy: f.supervisor.ID,
		DecidedAt: time.Now(), SettledPay: engine.MustParseMoney("50.00"),
	}))

	qty := engine.MustParseQuantity("0.9")
	err := f.svc.UpdateTask(ctx, f.supervisor, taskID, engine.TaskPatch{Quantity: &qty})

	assert.True(t, engine.IsConflict(err))
}

func TestUpdateTask_OtherSupervisorsDay(t *testing.T) {
	f := newFixture(t)
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	taskID := f.task(t, f.supervisor, dayID, f.combing, "0.5")

	qty := engine.MustParseQuantity("0.9")
	err := f.svc.UpdateTask(context.Background(), f.other, taskID, engine.TaskPatch{Quantity: &qty})

	assert.True(t, engine.IsForbidden(err))
}

func TestUpdateTask_AdminUnrestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	taskID := f.task(t, f.supervisor, dayID, f.combing, "0.5")

	qty := engine.MustParseQuantity("0.9")
	require.NoError(t, f.svc.UpdateTask(ctx, f.admin, taskID, engine.TaskPatch{Quantity: &qty}))

	task, err := f.store.GetWorkTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "0.9", task.Quantity.String())
}

func TestDeleteTask_Pending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dayID := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	taskID := f.task(t, f.supervisor, dayID, f.combing, "0.5")

	require.NoError(t, f.svc.DeleteTask(ctx, f.supervisor, taskID))

	task, err := f.store.GetWorkTask(ctx, taskID)
	require.NoError(t, err)
	assert.Nil(t, task)
}

// =============================================================================
// VIEWS
// =============================================================================

func TestGetDayView_RubricLoggedVsApproved(t *testing.T) {
	// GIVEN: 0.5 kg combing and 30 m weaving logged, only the combing approved
	// WHEN: fetching the day view
	// THEN: the logged rubric hits the target (0.5 + 30/60 = 1.0) but the
	//       approved rubric sits at 0.5
	f := newFixture(t)
	ctx := context.Background()
	date := engine.NewDate(2025, time.March, 10)
	dayID := f.day(t, f.supervisor, date)
	combTask := f.task(t, f.supervisor, dayID, f.combing, "0.5")
	f.task(t, f.supervisor, dayID, f.weaving, "30")

	require.NoError(t, f.store.ApplyDecision(ctx, engine.Decision{
		TaskID: combTask, Status: engine.StatusApproved, DecidedBy: f.supervisor.ID,
		DecidedAt: time.Now(), SettledPay: engine.MustParseMoney("50.00"),
	}))

	view, err := f.svc.GetDayView(ctx, f.worker.ID, date)
	require.NoError(t, err)

	assert.Len(t, view.Tasks, 2)
	assert.True(t, view.RubricLogged.TargetMet)
	assert.Equal(t, "1", view.RubricLogged.ProgressKgEquiv.String())
	assert.False(t, view.RubricApproved.TargetMet)
	assert.Equal(t, "0.5", view.RubricApproved.ProgressKgEquiv.String())
}

func TestGetDayView_NothingLogged(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetDayView(context.Background(), f.worker.ID, engine.NewDate(2025, time.March, 10))

	assert.True(t, engine.IsNotFound(err))
}

func TestPendingTasks_SupervisorSeesOwnDaysOnly(t *testing.T) {
	// Two supervisors log different days; each sees only their own queue,
	// the admin sees both.
	f := newFixture(t)
	ctx := context.Background()

	mine := f.day(t, f.supervisor, engine.NewDate(2025, time.March, 10))
	theirs := f.day(t, f.other, engine.NewDate(2025, time.March, 11))
	f.task(t, f.supervisor, mine, f.combing, "0.5")
	f.task(t, f.other, theirs, f.weaving, "20")

	own, err := f.svc.PendingTasks(ctx, f.supervisor, engine.PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, own, 1)
	assert.Equal(t, engine.TaskCodeCombing, own[0].TaskCode)

	all, err := f.svc.PendingTasks(ctx, f.admin, engine.PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
