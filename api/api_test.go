/*
api_test.go - HTTP surface tests

Drives the real router over httptest with the in-memory store: login, token
enforcement, and the logging -> approval -> statement flow as a client
would see it.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fibreline/piecework-engine/approval"
	"github.com/fibreline/piecework-engine/engine"
	"github.com/fibreline/piecework-engine/roster"
	"github.com/fibreline/piecework-engine/settlement"
	"github.com/fibreline/piecework-engine/store/memory"
	"github.com/fibreline/piecework-engine/worklog"
)

type testServer struct {
	*httptest.Server
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(context.Background(), engine.AppUser{
		ID: uuid.New(), Email: "admin@example.com", PasswordHash: string(hash),
		Role: engine.RoleAdmin, Active: true, CreatedAt: time.Now(),
	}))

	auth := NewAuth(store, []byte("test-secret"), time.Hour)
	handler := NewHandler(
		roster.NewService(store, store, store),
		worklog.NewService(store, store),
		approval.NewService(store, store),
		settlement.NewEngine(store, store),
	)

	srv := httptest.NewServer(NewRouter(handler, auth, []string{"*"}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

// call sends a JSON request and decodes the JSON response into out (when
// out is non-nil).
func (s *testServer) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	var resp LoginResponse
	status := s.call(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "admin@example.com", Password: "correct-horse",
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// =============================================================================
// AUTH
// =============================================================================

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)

	status := s.call(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "admin@example.com", Password: "wrong",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogin_UnknownEmail_SameResponse(t *testing.T) {
	// Unknown email and wrong password are indistinguishable to the client.
	s := newTestServer(t)

	status := s.call(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "nobody@example.com", Password: "correct-horse",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/workers", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/workers", "not-a-token", nil, nil))
}

// =============================================================================
// END TO END
// =============================================================================

func TestWorkflow_LogApproveStatement(t *testing.T) {
	// GIVEN: an admin, a task type and a weekly worker
	// WHEN: a day is logged, a task added and approved
	// THEN: the worker's statement carries the settled pay
	s := newTestServer(t)
	token := s.login(t)

	var tt TaskTypeDTO
	status := s.call(t, http.MethodPost, "/api/task-types", token, SaveTaskTypeRequest{
		Code: "COMBING", Name: "Combing", Unit: "kg", DefaultRate: "100.00",
	}, &tt)
	require.Equal(t, http.StatusOK, status)

	var worker WorkerDTO
	status = s.call(t, http.MethodPost, "/api/workers", token, CreateWorkerRequest{
		Code: "W-001", FullName: "Amina Bello", Payout: "weekly", AnchorDate: "2025-03-03",
	}, &worker)
	require.Equal(t, http.StatusCreated, status)

	var day map[string]string
	status = s.call(t, http.MethodPost, "/api/days", token, UpsertDayRequest{
		WorkerID: worker.ID, Date: "2025-03-10",
	}, &day)
	require.Equal(t, http.StatusOK, status)

	taskID := uuid.New().String()
	status = s.call(t, http.MethodPost, "/api/days/"+day["id"]+"/tasks", token, AddTaskRequest{
		ID: taskID, TaskTypeID: tt.ID, Quantity: "2.5",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var decision DecisionResponse
	status = s.call(t, http.MethodPost, "/api/tasks/"+taskID+"/decision", token, DecisionRequest{
		Status: "approved",
	}, &decision)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "250.00", decision.SettledPay)

	var st StatementDTO
	status = s.call(t, http.MethodGet, "/api/workers/"+worker.ID+"/payroll?as_of=2025-03-12", token, nil, &st)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "250.00", st.TotalPay)
	assert.Equal(t, "2025-03-10", st.PeriodStart)
	assert.Equal(t, "2025-03-12", st.PeriodEnd)
}

func TestCreateWorker_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	// Unknown payout frequency is rejected before the service sees it.
	status := s.call(t, http.MethodPost, "/api/workers", token, CreateWorkerRequest{
		Code: "W-001", FullName: "Amina Bello", Payout: "fortnightly", AnchorDate: "2025-03-03",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = s.call(t, http.MethodPost, "/api/workers", token, CreateWorkerRequest{
		Code: "W-001", FullName: "Amina Bello", Payout: "weekly", AnchorDate: "03/03/2025",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDecideTask_Unknown_NotFound(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	path := fmt.Sprintf("/api/tasks/%s/decision", uuid.New())
	status := s.call(t, http.MethodPost, path, token, DecisionRequest{Status: "approved"}, nil)

	assert.Equal(t, http.StatusNotFound, status)
}
