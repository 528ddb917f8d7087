package apihandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"crmai/internal/logging"
	"crmai/internal/models"
	"crmai/internal/realtime"
	"crmai/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockEmail struct{ mock.Mock }

func (m *mockEmail) GenerateEmailContent(ctx context.Context, leadName, tone, additionalContext, user string) (*services.GeneratedEmail, error) {
	args := m.Called(leadName, tone, additionalContext, user)
	e, _ := args.Get(0).(*services.GeneratedEmail)
	return e, args.Error(1)
}

func (m *mockEmail) SendTestEmail(ctx context.Context, leadName, content, subject, recipient, user string) (string, error) {
	args := m.Called(leadName, content, subject, recipient, user)
	return args.String(0), args.Error(1)
}

func (m *mockEmail) SendAIEmail(ctx context.Context, p services.SendAIEmailParams) (string, error) {
	args := m.Called(p)
	return args.String(0), args.Error(1)
}

func (m *mockEmail) GetEmailPreference(ctx context.Context) (*services.EmailPreference, error) {
	args := m.Called()
	p, _ := args.Get(0).(*services.EmailPreference)
	return p, args.Error(1)
}

func (m *mockEmail) SetEmailPreference(ctx context.Context, preference string) (string, error) {
	args := m.Called(preference)
	return args.String(0), args.Error(1)
}

func (m *mockEmail) GetAPIStatus() services.APIStatus {
	return m.Called().Get(0).(services.APIStatus)
}

func (m *mockEmail) EmailDiagnostics(ctx context.Context) *services.EmailDiagnostics {
	return m.Called().Get(0).(*services.EmailDiagnostics)
}

func (m *mockEmail) SendTestEmailViaSystem(ctx context.Context, recipient, user string) (string, error) {
	args := m.Called(recipient, user)
	return args.String(0), args.Error(1)
}

type mockBulk struct{ mock.Mock }

func (m *mockBulk) StartBulk(ctx context.Context, req services.BulkRequest) (*services.BulkStarted, error) {
	args := m.Called(req)
	s, _ := args.Get(0).(*services.BulkStarted)
	return s, args.Error(1)
}

func (m *mockBulk) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	args := m.Called(jobID)
	s, _ := args.Get(0).(*models.JobStatus)
	return s, args.Error(1)
}

func (m *mockBulk) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	args := m.Called()
	s, _ := args.Get(0).([]models.JobSummary)
	return s, args.Error(1)
}

func (m *mockBulk) GetLastBulkLeads(ctx context.Context) ([]*models.Lead, error) {
	args := m.Called()
	s, _ := args.Get(0).([]*models.Lead)
	return s, args.Error(1)
}

func (m *mockBulk) DebugFailedJob(ctx context.Context, jobID string) (*services.JobDebug, error) {
	args := m.Called(jobID)
	s, _ := args.Get(0).(*services.JobDebug)
	return s, args.Error(1)
}

type mockCalls struct{ mock.Mock }

func (m *mockCalls) CallLead(ctx context.Context, leadName, user string) (*models.CallRecord, error) {
	args := m.Called(leadName, user)
	r, _ := args.Get(0).(*models.CallRecord)
	return r, args.Error(1)
}

func (m *mockCalls) GetCallStatus(ctx context.Context, callID string) (*models.CallRecord, error) {
	args := m.Called(callID)
	r, _ := args.Get(0).(*models.CallRecord)
	return r, args.Error(1)
}

type mockLeads struct{ mock.Mock }

func (m *mockLeads) GetLeadStructure(ctx context.Context, leadName string) (map[string]interface{}, error) {
	args := m.Called(leadName)
	f, _ := args.Get(0).(map[string]interface{})
	return f, args.Error(1)
}

func (m *mockLeads) GetAILogs(limit int) ([]logging.Entry, error) {
	args := m.Called(limit)
	e, _ := args.Get(0).([]logging.Entry)
	return e, args.Error(1)
}

type staticEvents struct {
	msgs []realtime.Message
}

func (s *staticEvents) Subscribe(ctx context.Context) (<-chan realtime.Message, error) {
	ch := make(chan realtime.Message, len(s.msgs))
	for _, m := range s.msgs {
		ch <- m
	}
	close(ch)
	return ch, nil
}

// --- Helpers ---

type testServer struct {
	router *gin.Engine
	email  *mockEmail
	bulk   *mockBulk
	calls  *mockCalls
	leads  *mockLeads
}

var testNow = time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{email: &mockEmail{}, bulk: &mockBulk{}, calls: &mockCalls{}, leads: &mockLeads{}}
	h := NewAPIHandler(Deps{
		Email:       ts.email,
		Bulk:        ts.bulk,
		Calls:       ts.calls,
		Leads:       ts.leads,
		Events:      &staticEvents{msgs: []realtime.Message{{Event: realtime.EventBulkEmailProgress, Data: json.RawMessage(`{"progress":40}`)}}},
		DefaultUser: "Administrator",
		Now:         func() time.Time { return testNow },
	})
	ts.router = NewRouter(h, "http://crm.localhost:8000")
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && strings.HasPrefix(strings.TrimSpace(body), "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// --- Tests ---

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("x: %w", models.ErrValidation):       http.StatusBadRequest,
		fmt.Errorf("x: %w", models.ErrInvalidFilter):    http.StatusBadRequest,
		fmt.Errorf("%w matching", models.ErrNoLeads):    http.StatusBadRequest,
		fmt.Errorf("x: %w", models.ErrNotFound):         http.StatusNotFound,
		fmt.Errorf("x: %w", models.ErrNotConfigured):    http.StatusServiceUnavailable,
		fmt.Errorf("x: %w", models.ErrGenerationFailed): http.StatusBadGateway,
		errors.New("boom"):                              http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := statusFor(err)
		assert.Equal(t, want, got, err.Error())
	}
}

func TestGenerateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.email.On("GenerateEmailContent", "CRM-LEAD-1", "friendly", "", "sam@sinx.ai").
		Return(&services.GeneratedEmail{Subject: "Hi", Content: "<p>Hi</p>"}, nil).Once()

	w := ts.do(http.MethodPost, "/api/v1/email/generate", `{"lead_name":"CRM-LEAD-1","tone":"friendly"}`,
		map[string]string{UserHeader: "sam@sinx.ai"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Hi", body["subject"])
	ts.email.AssertExpectations(t)

	w = ts.do(http.MethodPost, "/api/v1/email/generate", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestGenerateEmail_ServiceErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.email.On("GenerateEmailContent", "CRM-LEAD-9", "", "", "Administrator").
		Return(nil, fmt.Errorf("failed to load lead CRM-LEAD-9: %w", models.ErrNotFound)).Once()

	w := ts.do(http.MethodPost, "/api/v1/email/generate", "lead_name=CRM-LEAD-9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "CRM-LEAD-9")
}

func TestSendAIEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.email.On("SendAIEmail", mock.MatchedBy(func(p services.SendAIEmailParams) bool {
		return p.Recipients == "ada@engines.io" && p.Name == "CRM-LEAD-1" && p.User == "Administrator"
	})).Return("COMM-1", nil).Once()

	w := ts.do(http.MethodPost, "/api/v1/email/send",
		`{"recipients":"ada@engines.io","subject":"Hi","content":"<p>x</p>","doctype":"CRM Lead","name":"CRM-LEAD-1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "COMM-1", decode(t, w)["communication_id"])
}

func TestEmailPreference(t *testing.T) {
	ts := newTestServer(t)
	ts.email.On("GetEmailPreference").Return(&services.EmailPreference{EmailPreference: "smtp", FrappeEmailConfigured: true}, nil).Once()
	ts.email.On("SetEmailPreference", "frappe").Return("smtp", nil).Once()
	ts.email.On("SetEmailPreference", "fax").Return("", fmt.Errorf("%w: Invalid preference. Use 'resend' or 'frappe'.", models.ErrValidation)).Once()

	w := ts.do(http.MethodGet, "/api/v1/email/preference", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "smtp", decode(t, w)["email_preference"])

	w = ts.do(http.MethodPut, "/api/v1/email/preference", `{"preference":"frappe"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Email preference set to smtp", decode(t, w)["message"])

	w = ts.do(http.MethodPut, "/api/v1/email/preference", `{"preference":"fax"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	ts.email.AssertExpectations(t)
}

func TestStartBulk_FilterForms(t *testing.T) {
	ts := newTestServer(t)
	ts.bulk.On("StartBulk", mock.MatchedBy(func(r services.BulkRequest) bool {
		return r.FilterJSON == `{"status":"New"}` && !r.TestMode && r.Tone == "formal"
	})).Return(&services.BulkStarted{JobID: "job-1", LeadsCount: 2, Message: "started"}, nil).Twice()

	// Filters as an object, test_mode as a bool.
	w := ts.do(http.MethodPost, "/api/v1/bulk", `{"filters":{"status":"New"},"tone":"formal","test_mode":false}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "job-1", decode(t, w)["job_id"])

	// Filters as JSON text in a form, test_mode as "0".
	form := url.Values{"filters": {`{"status":"New"}`}, "tone": {"formal"}, "test_mode": {"0"}}
	w = ts.do(http.MethodPost, "/api/v1/bulk", form.Encode(), nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ts.bulk.AssertExpectations(t)

	w = ts.do(http.MethodPost, "/api/v1/bulk", `{"test_mode":"maybe"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartBulk_DefaultsToTestMode(t *testing.T) {
	ts := newTestServer(t)
	ts.bulk.On("StartBulk", mock.MatchedBy(func(r services.BulkRequest) bool {
		return r.TestMode && r.FilterJSON == `{"status":"Lost"}`
	})).Return(nil, fmt.Errorf("%w matching the filters", models.ErrNoLeads)).Once()

	w := ts.do(http.MethodPost, "/api/v1/bulk", `{"filters":"{\"status\":\"Lost\"}"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	ts.bulk.AssertExpectations(t)
}

func TestJobStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.bulk.On("GetJobStatus", "job-1").Return(&models.JobStatus{JobID: "job-1", Status: models.JobStatusRunning, Progress: 40}, nil).Once()
	ts.bulk.On("GetJobStatus", "nope").Return(&models.JobStatus{JobID: "nope", Status: models.JobStatusNotFound}, nil).Once()

	w := ts.do(http.MethodGet, "/api/v1/bulk/job-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	job := decode(t, w)["job"].(map[string]interface{})
	assert.Equal(t, float64(40), job["progress"])

	w = ts.do(http.MethodGet, "/api/v1/bulk/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["status"])
}

func TestLastLeadsRouteIsNotAJobID(t *testing.T) {
	ts := newTestServer(t)
	ts.bulk.On("GetLastBulkLeads").Return([]*models.Lead{{Name: "L1"}}, nil).Once()
	w := ts.do(http.MethodGet, "/api/v1/bulk/last-leads", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["leads_count"])
	ts.bulk.AssertNotCalled(t, "GetJobStatus", mock.Anything)
}

func TestCallLead(t *testing.T) {
	ts := newTestServer(t)
	ts.calls.On("CallLead", "CRM-LEAD-1", "Administrator").Return(&models.CallRecord{CallID: "call-1", Status: "queued"}, nil).Once()
	ts.calls.On("CallLead", "CRM-LEAD-2", "Administrator").Return(nil, fmt.Errorf("%w: lead is missing phone number or id", models.ErrValidation)).Once()

	w := ts.do(http.MethodPost, "/api/v1/leads/CRM-LEAD-1/call", "", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "call-1", decode(t, w)["call_id"])

	w = ts.do(http.MethodPost, "/api/v1/leads/CRM-LEAD-2/call", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallsNotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewAPIHandler(Deps{}), "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/call-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t)
	ts.leads.On("GetAILogs", 100).Return([]logging.Entry{{Level: "info", Message: "hello"}}, nil).Once()
	ts.leads.On("GetAILogs", 5).Return(nil, fmt.Errorf("%w: AI email log file not found", models.ErrNotFound)).Once()

	w := ts.do(http.MethodGet, "/api/v1/logs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["logs"], 1)

	w = ts.do(http.MethodGet, "/api/v1/logs?limit=5", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/logs?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeadStructure(t *testing.T) {
	ts := newTestServer(t)
	ts.leads.On("GetLeadStructure", "CRM-LEAD-1").Return(map[string]interface{}{"first_name": "Ada"}, nil).Once()
	w := ts.do(http.MethodGet, "/api/v1/leads/CRM-LEAD-1/structure", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decode(t, w)["lead_data"].(map[string]interface{})["first_name"])
}

func TestHelloAndDataviz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/hello", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello from the backend! Current time: 2025-03-12 09:30:00", decode(t, w)["message"])

	w = ts.do(http.MethodGet, "/api/v1/dataviz/forecast", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["forecast_data"], 14)

	w = ts.do(http.MethodGet, "/api/v1/dataviz/segments", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["segments"], 5)

	w = ts.do(http.MethodGet, "/api/v1/dataviz/sentiment", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["daily_data"], 30)
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/v1/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, w.Body.String(), "event:bulk_email_progress")
	assert.Contains(t, w.Body.String(), `"progress":40`)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bulk", nil)
	req.Header.Set("Origin", "http://crm.localhost:8000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", UserHeader)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, "http://crm.localhost:8000", w.Header().Get("Access-Control-Allow-Origin"))
}
