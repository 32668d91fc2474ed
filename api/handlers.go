/*
handlers.go - HTTP API handlers for the piecework settlement system

PURPOSE:
  Exposes the settlement engine via REST. Handlers parse and validate
  input, pull the authenticated Actor off the context, delegate to the
  domain services and serialize responses.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                 Exchange credentials for a token

  Workers:
    GET    /api/workers                    List workers
    POST   /api/workers                    Create worker (admin)
    GET    /api/workers/{id}               Worker details
    PATCH  /api/workers/{id}               Partial update (admin)
    GET    /api/workers/{id}/rates         Rate overrides
    PUT    /api/workers/{id}/rates         Set override (admin)
    DELETE /api/workers/{id}/rates/{rateID}
    GET    /api/workers/{id}/days          Day list
    GET    /api/workers/{id}/days/{date}   Day view with rubric
    GET    /api/workers/{id}/payroll       Progress-period statement
    GET    /api/workers/{id}/payroll.csv   Statement export

  Logging and approval:
    POST   /api/days                       Upsert a work day
    POST   /api/days/{dayID}/tasks         Log a task (client-generated id)
    POST   /api/days/{dayID}/close         Freeze a day
    POST   /api/days/{dayID}/reopen        Unfreeze (admin)
    GET    /api/tasks/pending              Approval queue
    PATCH  /api/tasks/{id}                 Edit pending task
    DELETE /api/tasks/{id}                 Delete pending task
    POST   /api/tasks/{id}/decision        Approve/reject one task
    POST   /api/tasks/decisions            Bulk decide

  Payroll:
    GET    /api/payroll/due                Preview of settleable totals
    GET    /api/payroll/due.csv            Preview export
    POST   /api/payroll/runs               Execute a run (admin)
    GET    /api/payroll/runs               Run history
    GET    /api/payroll/runs/{id}          Run detail
    GET    /api/payroll/runs/{id}/csv      Run export

  Admin:
    GET    /api/task-types                 Task-type catalogue
    POST   /api/task-types                 Create/update type (admin)
    GET    /api/reports/task-totals        Approved totals per type
    GET    /api/reports/supervisors        Per-supervisor report (admin)
    GET    /api/audit                      Audit log (admin)
    GET    /api/users                      Accounts (admin)
    POST   /api/users                      Create account (admin)

ERROR HANDLING:
  Domain errors map onto HTTP status through the sentinel taxonomy:
    Validation -> 400, Forbidden -> 403, NotFound -> 404, Conflict -> 409.

SEE ALSO:
  - dto.go: request/response structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fibreline/piecework-engine/approval"
	"github.com/fibreline/piecework-engine/engine"
	"github.com/fibreline/piecework-engine/roster"
	"github.com/fibreline/piecework-engine/settlement"
	"github.com/fibreline/piecework-engine/worklog"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the domain services the HTTP layer delegates to.
type Handler struct {
	Roster     *roster.Service
	Worklog    *worklog.Service
	Approvals  *approval.Service
	Settlement *settlement.Engine
}

func NewHandler(rs *roster.Service, wl *worklog.Service, ap *approval.Service, se *settlement.Engine) *Handler {
	return &Handler{Roster: rs, Worklog: wl, Approvals: ap, Settlement: se}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	workers, err := h.Roster.ListWorkers(r.Context(), includeInactive)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]WorkerDTO, 0, len(workers))
	for _, worker := range workers {
		dtos = append(dtos, workerDTO(worker))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	anchor, err := engine.ParseDate(req.AnchorDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid anchor_date (use YYYY-MM-DD)", err)
		return
	}

	worker, err := h.Roster.CreateWorker(r.Context(), actorFrom(r), roster.NewWorker{
		Code:       req.Code,
		FullName:   req.FullName,
		FactoryID:  parseOptionalUUID(req.FactoryID),
		Payout:     engine.Frequency(req.Payout),
		AnchorDate: anchor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workerDTO(*worker))
}

func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	worker, err := h.Roster.GetWorker(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workerDTO(*worker))
}

func (h *Handler) PatchWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req PatchWorkerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := engine.WorkerPatch{
		Code:     req.Code,
		FullName: req.FullName,
		Active:   req.Active,
	}
	if req.Payout != nil {
		p := engine.Frequency(*req.Payout)
		patch.Payout = &p
	}
	if req.AnchorDate != nil {
		anchor, err := engine.ParseDate(*req.AnchorDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid anchor_date (use YYYY-MM-DD)", err)
			return
		}
		patch.AnchorDate = &anchor
	}
	if req.FactoryID != nil {
		factoryID := parseOptionalUUID(*req.FactoryID)
		patch.FactoryID = &factoryID
	}

	if err := h.Roster.UpdateWorker(r.Context(), actorFrom(r), id, patch); err != nil {
		writeDomainError(w, err)
		return
	}

	worker, err := h.Roster.GetWorker(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workerDTO(*worker))
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

func (h *Handler) ListWorkerRates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	rates, err := h.Roster.ListWorkerRates(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]RateDTO, 0, len(rates))
	for _, rate := range rates {
		dtos = append(dtos, RateDTO{
			ID:         rate.ID.String(),
			TaskTypeID: rate.TaskTypeID.String(),
			Rate:       rate.Rate.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SetWorkerRate(w http.ResponseWriter, r *http.Request) {
	workerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req SetRateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rate, err := parseMoney(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate (use a decimal string)", err)
		return
	}

	taskTypeID, _ := uuid.Parse(req.TaskTypeID)
	if err := h.Roster.SetWorkerRate(r.Context(), actorFrom(r), workerID, taskTypeID, rate); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteWorkerRate(w http.ResponseWriter, r *http.Request) {
	rateID, ok := pathUUID(w, r, "rateID")
	if !ok {
		return
	}
	if err := h.Roster.DeleteWorkerRate(r.Context(), actorFrom(r), rateID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TASK TYPE HANDLERS
// =============================================================================

func (h *Handler) ListTaskTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Roster.ListTaskTypes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]TaskTypeDTO, 0, len(types))
	for _, tt := range types {
		dtos = append(dtos, taskTypeDTO(tt))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveTaskType(w http.ResponseWriter, r *http.Request) {
	var req SaveTaskTypeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rate, err := parseMoney(req.DefaultRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid default_rate (use a decimal string)", err)
		return
	}

	tt := engine.TaskType{
		Code:        req.Code,
		Name:        req.Name,
		Unit:        req.Unit,
		DefaultRate: rate,
	}
	if req.ID != "" {
		tt.ID, _ = uuid.Parse(req.ID)
	}
	if tt.ID == uuid.Nil {
		tt.ID = uuid.New()
	}
	if err := h.Roster.SaveTaskType(r.Context(), actorFrom(r), tt); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskTypeDTO(tt))
}

// =============================================================================
// WORK DAY HANDLERS
// =============================================================================

func (h *Handler) UpsertDay(w http.ResponseWriter, r *http.Request) {
	var req UpsertDayRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	workerID, _ := uuid.Parse(req.WorkerID)
	dayID, err := h.Worklog.UpsertDay(r.Context(), actorFrom(r), workerID, date, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": dayID.String()})
}

func (h *Handler) AddTask(w http.ResponseWriter, r *http.Request) {
	dayID, ok := pathUUID(w, r, "dayID")
	if !ok {
		return
	}
	var req AddTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	qty, err := parseQuantity(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity (use a decimal string)", err)
		return
	}

	taskID, _ := uuid.Parse(req.ID)
	taskTypeID, _ := uuid.Parse(req.TaskTypeID)
	err = h.Worklog.AddTask(r.Context(), actorFrom(r), worklog.TaskInput{
		ID:         taskID,
		WorkDayID:  dayID,
		TaskTypeID: taskTypeID,
		Quantity:   qty,
		Note:       req.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": taskID.String()})
}

func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	dayID, ok := pathUUID(w, r, "dayID")
	if !ok {
		return
	}
	if err := h.Worklog.CloseDay(r.Context(), actorFrom(r), dayID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReopenDay(w http.ResponseWriter, r *http.Request) {
	dayID, ok := pathUUID(w, r, "dayID")
	if !ok {
		return
	}
	if err := h.Worklog.ReopenDay(r.Context(), actorFrom(r), dayID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDays(w http.ResponseWriter, r *http.Request) {
	workerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	days, err := h.Worklog.ListDays(r.Context(), workerID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]DayDTO, 0, len(days))
	for _, d := range days {
		dtos = append(dtos, dayDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetDayView(w http.ResponseWriter, r *http.Request) {
	workerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	date, err := engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	view, err := h.Worklog.GetDayView(r.Context(), workerID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	tasks := make([]TaskDTO, 0, len(view.Tasks))
	for _, t := range view.Tasks {
		tasks = append(tasks, taskDTO(t))
	}
	writeJSON(w, http.StatusOK, DayViewDTO{
		Day:            dayDTO(view.Day),
		Tasks:          tasks,
		RubricLogged:   rubricDTO(view.RubricLogged),
		RubricApproved: rubricDTO(view.RubricApproved),
	})
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

func (h *Handler) ListPendingTasks(w http.ResponseWriter, r *http.Request) {
	var filter engine.PendingFilter
	if s := r.URL.Query().Get("worker_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid worker_id", err)
			return
		}
		filter.WorkerID = &id
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	pending, err := h.Worklog.PendingTasks(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PendingTaskDTO, 0, len(pending))
	for _, p := range pending {
		dtos = append(dtos, PendingTaskDTO{
			TaskID:     p.TaskID.String(),
			WorkDate:   p.WorkDate.String(),
			WorkerID:   p.WorkerID.String(),
			WorkerName: p.WorkerName,
			TaskCode:   p.TaskCode,
			TaskName:   p.TaskName,
			Unit:       p.Unit,
			Quantity:   p.Quantity.String(),
			Note:       p.Note,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) PatchTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req PatchTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var patch engine.TaskPatch
	if req.Quantity != nil {
		qty, err := parseQuantity(*req.Quantity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity (use a decimal string)", err)
			return
		}
		patch.Quantity = &qty
	}
	patch.Note = req.Note
	if req.TaskTypeID != nil {
		id, _ := uuid.Parse(*req.TaskTypeID)
		patch.TaskTypeID = &id
	}

	if err := h.Worklog.UpdateTask(r.Context(), actorFrom(r), taskID, patch); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Worklog.DeleteTask(r.Context(), actorFrom(r), taskID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DecideTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pay, err := h.Approvals.Decide(r.Context(), actorFrom(r), taskID, engine.TaskStatus(req.Status), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DecisionResponse{
		TaskID:     taskID.String(),
		Status:     req.Status,
		SettledPay: pay.String(),
	})
}

func (h *Handler) BulkDecide(w http.ResponseWriter, r *http.Request) {
	var req BulkDecisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.TaskIDs))
	for _, s := range req.TaskIDs {
		id, _ := uuid.Parse(s)
		ids = append(ids, id)
	}

	updated, err := h.Approvals.DecideBulk(r.Context(), actorFrom(r), ids, engine.TaskStatus(req.Status), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkDecisionResponse{Updated: updated})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

func (h *Handler) PayrollDue(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDateDefaultToday(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	due, err := h.Settlement.PayrollDue(r.Context(), actorFrom(r), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DueItemDTO, 0, len(due))
	for _, item := range due {
		dtos = append(dtos, DueItemDTO{
			WorkerID:    item.WorkerID.String(),
			FullName:    item.FullName,
			Payout:      string(item.Payout),
			PeriodStart: item.PeriodStart.String(),
			PeriodEnd:   item.PeriodEnd.String(),
			TotalPay:    item.TotalPay.String(),
			CombedKg:    item.CombedKg.String(),
			WovenM:      item.WovenM.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req CreateRunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	asOf, err := engine.ParseDate(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Settlement.CreateRun(r.Context(), actor, asOf, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	detail, err := h.Settlement.GetRun(r.Context(), result.RunID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CreateRunResponse{
		Run:            runDetailDTO(detail),
		WorkersSettled: result.WorkersSettled,
	}
	for _, f := range result.Failures {
		resp.FailedWorkers = append(resp.FailedWorkers, f.WorkerID.String())
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Settlement.ListRuns(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, runDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.Settlement.GetRun(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runDetailDTO(detail))
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	workerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	asOf, err := queryDateDefaultToday(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	st, err := h.Settlement.WorkerStatement(r.Context(), workerID, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statementDTO(st))
}

func runDetailDTO(detail *settlement.RunDetail) RunDetailDTO {
	items := make([]RunItemDTO, 0, len(detail.Items))
	for _, item := range detail.Items {
		items = append(items, runItemDTO(item))
	}
	return RunDetailDTO{Run: runDTO(detail.Run), Items: items}
}

func statementDTO(st *settlement.Statement) StatementDTO {
	return StatementDTO{
		Worker:      workerDTO(st.Worker),
		PeriodStart: st.PeriodStart.String(),
		PeriodEnd:   st.PeriodEnd.String(),
		TotalPay:    st.TotalPay.String(),
		CombedKg:    st.CombedKg.String(),
		WovenM:      st.WovenM.String(),
	}
}

// =============================================================================
// REPORT, AUDIT AND USER HANDLERS
// =============================================================================

func (h *Handler) TaskTotals(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	totals, err := h.Roster.TaskTotals(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]TaskTotalDTO, 0, len(totals))
	for _, row := range totals {
		dtos = append(dtos, TaskTotalDTO{
			TaskCode:      row.TaskCode,
			TaskName:      row.TaskName,
			Unit:          row.Unit,
			TotalQuantity: row.TotalQuantity.String(),
			TotalPay:      row.TotalPay.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SupervisorTotals(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	totals, err := h.Roster.SupervisorTotals(r.Context(), actorFrom(r), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SupervisorTotalDTO, 0, len(totals))
	for _, row := range totals {
		dtos = append(dtos, SupervisorTotalDTO{
			Email:         row.Email,
			DaysLogged:    row.DaysLogged,
			TasksApproved: row.TasksApproved,
			ApprovedPay:   row.ApprovedPay.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	filter := engine.AuditFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		Limit:      queryInt(r, "limit", 100),
	}
	if s := r.URL.Query().Get("entity_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entity_id", err)
			return
		}
		filter.EntityID = &id
	}

	events, err := h.Roster.QueryAudit(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AuditEventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, AuditEventDTO{
			At:         e.At.Format("2006-01-02T15:04:05Z07:00"),
			ActorID:    e.ActorID.String(),
			ActorRole:  string(e.ActorRole),
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID.String(),
			Metadata:   e.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Roster.ListUsers(r.Context(), actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, UserDTO{
			ID:        u.ID.String(),
			Email:     u.Email,
			Role:      string(u.Role),
			FactoryID: uuidPtrString(u.FactoryID),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Roster.CreateUser(r.Context(), actorFrom(r), roster.NewUser{
		Email:     req.Email,
		Password:  req.Password,
		Role:      engine.Role(req.Role),
		FactoryID: parseOptionalUUID(req.FactoryID),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserDTO{
		ID:        user.ID.String(),
		Email:     user.Email,
		Role:      string(user.Role),
		FactoryID: uuidPtrString(user.FactoryID),
	})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case engine.IsForbidden(err):
		writeError(w, http.StatusForbidden, "Not allowed", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func parseQuantity(s string) (engine.Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return engine.ZeroQuantity(), err
	}
	return engine.QuantityFromDecimal(d), nil
}

func parseMoney(s string) (engine.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return engine.ZeroMoney(), err
	}
	return engine.MoneyFromDecimal(d), nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*engine.Date, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func queryDateDefaultToday(r *http.Request, name string) (engine.Date, error) {
	d, err := queryDate(r, name)
	if err != nil {
		return engine.Date{}, err
	}
	if d == nil {
		return engine.Today(), nil
	}
	return *d, nil
}

func reportRange(r *http.Request) (engine.Date, engine.Date, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return engine.Date{}, engine.Date{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return engine.Date{}, engine.Date{}, err
	}
	end := engine.Today()
	if to != nil {
		end = *to
	}
	start := end.AddDays(-30)
	if from != nil {
		start = *from
	}
	return start, end, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
