/*
dto.go - Data transfer objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the wire contract. Quantities and money cross the wire as decimal
  strings, dates as YYYY-MM-DD.

VALIDATION:
  Request bodies carry validator tags and are checked in decodeBody, so
  handlers only ever see structurally valid input. Domain rules (closed
  days, paid tasks, rate resolution) stay in the services.

SEE ALSO:
  - handlers.go: uses these types
  - auth.go: login request/response
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fibreline/piecework-engine/engine"
)

var validate = validator.New()

// decodeBody parses and validates a JSON request body.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      UserDTO `json:"user"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FactoryID string `json:"factory_id,omitempty"`
}

type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Role      string `json:"role" validate:"required,oneof=admin supervisor"`
	FactoryID string `json:"factory_id,omitempty" validate:"omitempty,uuid"`
}

// =============================================================================
// WORKERS AND RATES
// =============================================================================

type WorkerDTO struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	FullName   string `json:"full_name"`
	FactoryID  string `json:"factory_id,omitempty"`
	Payout     string `json:"payout"`
	AnchorDate string `json:"anchor_date"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type CreateWorkerRequest struct {
	Code       string `json:"code" validate:"required"`
	FullName   string `json:"full_name" validate:"required"`
	FactoryID  string `json:"factory_id,omitempty" validate:"omitempty,uuid"`
	Payout     string `json:"payout" validate:"required,oneof=weekly biweekly monthly"`
	AnchorDate string `json:"anchor_date" validate:"required,datetime=2006-01-02"`
}

// PatchWorkerRequest carries a partial worker update; absent fields stay
// unchanged. An explicit empty factory_id clears the assignment.
type PatchWorkerRequest struct {
	Code       *string `json:"code,omitempty" validate:"omitempty,min=1"`
	FullName   *string `json:"full_name,omitempty" validate:"omitempty,min=1"`
	FactoryID  *string `json:"factory_id,omitempty" validate:"omitempty,uuid|eq="`
	Payout     *string `json:"payout,omitempty" validate:"omitempty,oneof=weekly biweekly monthly"`
	AnchorDate *string `json:"anchor_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Active     *bool   `json:"active,omitempty"`
}

type TaskTypeDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	DefaultRate string `json:"default_rate"`
}

type SaveTaskTypeRequest struct {
	ID          string `json:"id,omitempty" validate:"omitempty,uuid"`
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Unit        string `json:"unit" validate:"required"`
	DefaultRate string `json:"default_rate" validate:"required"`
}

type RateDTO struct {
	ID         string `json:"id"`
	TaskTypeID string `json:"task_type_id"`
	Rate       string `json:"rate"`
}

type SetRateRequest struct {
	TaskTypeID string `json:"task_type_id" validate:"required,uuid"`
	Rate       string `json:"rate" validate:"required"`
}

// =============================================================================
// WORK DAYS AND TASKS
// =============================================================================

type UpsertDayRequest struct {
	WorkerID string `json:"worker_id" validate:"required,uuid"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Note     string `json:"note,omitempty"`
}

type DayDTO struct {
	ID       string `json:"id"`
	WorkerID string `json:"worker_id"`
	Date     string `json:"date"`
	LoggedBy string `json:"logged_by"`
	Note     string `json:"note,omitempty"`
	Closed   bool   `json:"closed"`
}

type TaskDTO struct {
	ID         string `json:"id"`
	WorkDayID  string `json:"work_day_id"`
	TaskTypeID string `json:"task_type_id"`
	Quantity   string `json:"quantity"`
	Note       string `json:"note,omitempty"`
	Status     string `json:"status"`
	SettledPay string `json:"settled_pay"`
	PaidRunID  string `json:"paid_run_id,omitempty"`
}

// RubricDTO reports progress against the daily one-kilogram target.
type RubricDTO struct {
	ProgressKgEquiv string `json:"progress_kg_equiv"`
	TargetMet       bool   `json:"target_met"`
	WeavingNeededM  string `json:"weaving_needed_m"`
	CombingNeededKg string `json:"combing_needed_kg"`
}

type DayViewDTO struct {
	Day            DayDTO    `json:"day"`
	Tasks          []TaskDTO `json:"tasks"`
	RubricLogged   RubricDTO `json:"rubric_logged"`
	RubricApproved RubricDTO `json:"rubric_approved"`
}

// AddTaskRequest carries a client-generated task id so offline queues can
// replay the same create safely.
type AddTaskRequest struct {
	ID         string `json:"id" validate:"required,uuid"`
	TaskTypeID string `json:"task_type_id" validate:"required,uuid"`
	Quantity   string `json:"quantity" validate:"required"`
	Note       string `json:"note,omitempty"`
}

type PatchTaskRequest struct {
	Quantity   *string `json:"quantity,omitempty"`
	Note       *string `json:"note,omitempty"`
	TaskTypeID *string `json:"task_type_id,omitempty" validate:"omitempty,uuid"`
}

type PendingTaskDTO struct {
	TaskID     string `json:"task_id"`
	WorkDate   string `json:"work_date"`
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
	TaskCode   string `json:"task_code"`
	TaskName   string `json:"task_name"`
	Unit       string `json:"unit"`
	Quantity   string `json:"quantity"`
	Note       string `json:"note,omitempty"`
}

// =============================================================================
// DECISIONS
// =============================================================================

type DecisionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Reason string `json:"reason,omitempty"`
}

type DecisionResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	SettledPay string `json:"settled_pay"`
}

type BulkDecisionRequest struct {
	TaskIDs []string `json:"task_ids" validate:"required,min=1,dive,uuid"`
	Status  string   `json:"status" validate:"required,oneof=approved rejected"`
	Reason  string   `json:"reason,omitempty"`
}

type BulkDecisionResponse struct {
	Updated int `json:"updated"`
}

// =============================================================================
// PAYROLL
// =============================================================================

type CreateRunRequest struct {
	AsOf string `json:"as_of" validate:"required,datetime=2006-01-02"`
	Note string `json:"note,omitempty"`
}

type RunDTO struct {
	ID        string `json:"id"`
	AsOf      string `json:"as_of"`
	CreatedBy string `json:"created_by"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type RunItemDTO struct {
	WorkerID    string `json:"worker_id"`
	WorkerName  string `json:"worker_name"`
	Payout      string `json:"payout"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	TotalPay    string `json:"total_pay"`
	CombedKg    string `json:"combed_kg"`
	WovenM      string `json:"woven_m"`
}

type RunDetailDTO struct {
	Run   RunDTO       `json:"run"`
	Items []RunItemDTO `json:"items"`
}

type CreateRunResponse struct {
	Run            RunDetailDTO `json:"run"`
	WorkersSettled int          `json:"workers_settled"`
	FailedWorkers  []string     `json:"failed_workers,omitempty"`
}

type DueItemDTO struct {
	WorkerID    string `json:"worker_id"`
	FullName    string `json:"full_name"`
	Payout      string `json:"payout"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	TotalPay    string `json:"total_pay"`
	CombedKg    string `json:"combed_kg"`
	WovenM      string `json:"woven_m"`
}

type StatementDTO struct {
	Worker      WorkerDTO `json:"worker"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	TotalPay    string    `json:"total_pay"`
	CombedKg    string    `json:"combed_kg"`
	WovenM      string    `json:"woven_m"`
}

// =============================================================================
// REPORTS AND AUDIT
// =============================================================================

type TaskTotalDTO struct {
	TaskCode      string `json:"task_code"`
	TaskName      string `json:"task_name"`
	Unit          string `json:"unit"`
	TotalQuantity string `json:"total_quantity"`
	TotalPay      string `json:"total_pay"`
}

type SupervisorTotalDTO struct {
	Email         string `json:"email"`
	DaysLogged    int    `json:"days_logged"`
	TasksApproved int    `json:"tasks_approved"`
	ApprovedPay   string `json:"approved_pay"`
}

type AuditEventDTO struct {
	At         string         `json:"at"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// =============================================================================
// DOMAIN-TO-DTO CONVERTERS
// =============================================================================

func workerDTO(w engine.Worker) WorkerDTO {
	return WorkerDTO{
		ID:         w.ID.String(),
		Code:       w.Code,
		FullName:   w.FullName,
		FactoryID:  uuidPtrString(w.FactoryID),
		Payout:     string(w.Payout),
		AnchorDate: w.AnchorDate.String(),
		Active:     w.Active,
		CreatedAt:  w.CreatedAt.Format(time.RFC3339),
	}
}

func taskTypeDTO(tt engine.TaskType) TaskTypeDTO {
	return TaskTypeDTO{
		ID:          tt.ID.String(),
		Code:        tt.Code,
		Name:        tt.Name,
		Unit:        tt.Unit,
		DefaultRate: tt.DefaultRate.String(),
	}
}

func dayDTO(d engine.WorkDay) DayDTO {
	return DayDTO{
		ID:       d.ID.String(),
		WorkerID: d.WorkerID.String(),
		Date:     d.Date.String(),
		LoggedBy: d.LoggedBy.String(),
		Note:     d.Note,
		Closed:   d.Closed,
	}
}

func taskDTO(t engine.WorkTask) TaskDTO {
	return TaskDTO{
		ID:         t.ID.String(),
		WorkDayID:  t.WorkDayID.String(),
		TaskTypeID: t.TaskTypeID.String(),
		Quantity:   t.Quantity.String(),
		Note:       t.Note,
		Status:     string(t.Status),
		SettledPay: t.SettledPay.String(),
		PaidRunID:  uuidPtrString(t.PaidRunID),
	}
}

func rubricDTO(r engine.RubricResult) RubricDTO {
	return RubricDTO{
		ProgressKgEquiv: r.ProgressKgEquiv.String(),
		TargetMet:       r.TargetMet,
		WeavingNeededM:  r.WeavingNeededM.String(),
		CombingNeededKg: r.CombingNeededKg.String(),
	}
}

func runDTO(run engine.PayrollRun) RunDTO {
	return RunDTO{
		ID:        run.ID.String(),
		AsOf:      run.AsOf.String(),
		CreatedBy: run.CreatedBy.String(),
		Note:      run.Note,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
	}
}

func runItemDTO(item engine.PayrollRunItem) RunItemDTO {
	return RunItemDTO{
		WorkerID:    item.WorkerID.String(),
		WorkerName:  item.WorkerName,
		Payout:      string(item.Payout),
		PeriodStart: item.PeriodStart.String(),
		PeriodEnd:   item.PeriodEnd.String(),
		TotalPay:    item.TotalPay.String(),
		CombedKg:    item.CombedKg.String(),
		WovenM:      item.WovenM.String(),
	}
}
