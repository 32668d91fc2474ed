/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router and connects URLs to handlers. Everything under
  /api except login sits behind the bearer-token middleware; per-route
  admin checks live in the handlers and services.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the supervisor frontend

ROUTE GROUPS:
  /api/auth/*         Login
  /api/workers/*      Roster, rates, day history, statements
  /api/task-types/*   Task-type catalogue
  /api/days/*         Work-day logging and close/reopen
  /api/tasks/*        Task edits, approval queue, decisions
  /api/payroll/*      Run preview, execution, history, exports
  /api/reports/*      Aggregate reports
  /api/audit          Audit log
  /api/users/*        Login accounts

SEE ALSO:
  - handlers.go: handler implementations
  - auth.go: token middleware
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Auth, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", auth.Login)

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Route("/workers", func(r chi.Router) {
				r.Get("/", h.ListWorkers)
				r.Post("/", h.CreateWorker)
				r.Get("/{id}", h.GetWorker)
				r.Patch("/{id}", h.PatchWorker)
				r.Get("/{id}/rates", h.ListWorkerRates)
				r.Put("/{id}/rates", h.SetWorkerRate)
				r.Delete("/{id}/rates/{rateID}", h.DeleteWorkerRate)
				r.Get("/{id}/days", h.ListDays)
				r.Get("/{id}/days/{date}", h.GetDayView)
				r.Get("/{id}/payroll", h.GetStatement)
				r.Get("/{id}/payroll.csv", h.StatementCSV)
			})

			r.Route("/task-types", func(r chi.Router) {
				r.Get("/", h.ListTaskTypes)
				r.Post("/", h.SaveTaskType)
			})

			r.Route("/days", func(r chi.Router) {
				r.Post("/", h.UpsertDay)
				r.Post("/{dayID}/tasks", h.AddTask)
				r.Post("/{dayID}/close", h.CloseDay)
				r.Post("/{dayID}/reopen", h.ReopenDay)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/pending", h.ListPendingTasks)
				r.Post("/decisions", h.BulkDecide)
				r.Patch("/{id}", h.PatchTask)
				r.Delete("/{id}", h.DeleteTask)
				r.Post("/{id}/decision", h.DecideTask)
			})

			r.Route("/payroll", func(r chi.Router) {
				r.Get("/due", h.PayrollDue)
				r.Get("/due.csv", h.PayrollDueCSV)
				r.Get("/runs", h.ListRuns)
				r.Post("/runs", h.CreateRun)
				r.Get("/runs/{id}", h.GetRun)
				r.Get("/runs/{id}/csv", h.RunCSV)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/task-totals", h.TaskTotals)
				r.Get("/task-totals.csv", h.TaskTotalsCSV)
				r.Get("/supervisors", h.SupervisorTotals)
				r.Get("/supervisors.csv", h.SupervisorTotalsCSV)
			})

			r.Get("/audit", h.QueryAudit)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
			})
		})
	})

	return r
}
