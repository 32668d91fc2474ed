/*
csv.go - CSV exports for payroll and statements

PURPOSE:
  The factory office reconciles payroll in spreadsheets, so the payroll
  preview, run details and per-worker statements are all exportable as CSV.
  Amounts are written as plain decimal strings and dates as YYYY-MM-DD so
  the files import cleanly.
*/
package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
)

// PayrollDueCSV exports the run preview.
// GET /api/payroll/due.csv
func (h *Handler) PayrollDueCSV(w http.ResponseWriter, r *http.Request) {
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

	rows := [][]string{{"worker", "payout", "period_start", "period_end", "combed_kg", "woven_m", "total_pay"}}
	for _, item := range due {
		rows = append(rows, []string{
			item.FullName,
			string(item.Payout),
			item.PeriodStart.String(),
			item.PeriodEnd.String(),
			item.CombedKg.String(),
			item.WovenM.String(),
			item.TotalPay.String(),
		})
	}
	writeCSV(w, fmt.Sprintf("payroll-due-%s.csv", asOf), rows)
}

// RunCSV exports a run's items.
// GET /api/payroll/runs/{id}/csv
func (h *Handler) RunCSV(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.Settlement.GetRun(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rows := [][]string{{"worker", "payout", "period_start", "period_end", "combed_kg", "woven_m", "total_pay"}}
	for _, item := range detail.Items {
		rows = append(rows, []string{
			item.WorkerName,
			string(item.Payout),
			item.PeriodStart.String(),
			item.PeriodEnd.String(),
			item.CombedKg.String(),
			item.WovenM.String(),
			item.TotalPay.String(),
		})
	}
	writeCSV(w, fmt.Sprintf("payroll-run-%s.csv", detail.Run.AsOf), rows)
}

// StatementCSV exports a worker's unpaid tasks in the current progress
// period, one row per task plus a totals row.
// GET /api/workers/{id}/payroll.csv
func (h *Handler) StatementCSV(w http.ResponseWriter, r *http.Request) {
	workerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	asOf, err := queryDateDefaultToday(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	st, tasks, err := h.Settlement.StatementRows(r.Context(), workerID, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rows := [][]string{{"date", "task", "unit", "quantity", "status", "settled_pay", "note"}}
	for _, t := range tasks {
		rows = append(rows, []string{
			t.Date.String(),
			t.TaskName,
			t.Unit,
			t.Quantity.String(),
			string(t.Status),
			t.SettledPay.String(),
			t.Note,
		})
	}
	rows = append(rows, []string{"TOTAL", "", "", "", "", st.TotalPay.String(), ""})

	name := fmt.Sprintf("statement-%s-%s.csv", st.Worker.Code, st.PeriodEnd)
	writeCSV(w, name, rows)
}

// TaskTotalsCSV exports the approved totals per task type.
// GET /api/reports/task-totals.csv
func (h *Handler) TaskTotalsCSV(w http.ResponseWriter, r *http.Request) {
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

	rows := [][]string{{"task", "unit", "total_quantity", "total_pay"}}
	for _, row := range totals {
		rows = append(rows, []string{row.TaskName, row.Unit, row.TotalQuantity.String(), row.TotalPay.String()})
	}
	writeCSV(w, fmt.Sprintf("task-totals-%s-%s.csv", from, to), rows)
}

// SupervisorTotalsCSV exports the per-supervisor report.
// GET /api/reports/supervisors.csv
func (h *Handler) SupervisorTotalsCSV(w http.ResponseWriter, r *http.Request) {
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

	rows := [][]string{{"supervisor", "days_logged", "tasks_approved", "approved_pay"}}
	for _, row := range totals {
		rows = append(rows, []string{
			row.Email,
			fmt.Sprintf("%d", row.DaysLogged),
			fmt.Sprintf("%d", row.TasksApproved),
			row.ApprovedPay.String(),
		})
	}
	writeCSV(w, fmt.Sprintf("supervisors-%s-%s.csv", from, to), rows)
}

func writeCSV(w http.ResponseWriter, filename string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return
		}
	}
	cw.Flush()
}
