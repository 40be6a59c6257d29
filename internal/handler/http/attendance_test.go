package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	handlerTestSecret = "test-secret-key-for-jwt"
	testEmployeeID    = "0190a1b2-7c3d-7e4f-8a9b-0c1d2e3f4a5b"
	testRequestID     = "0190a1b2-7c3d-7e4f-8a9b-0000000000aa"
)

type fakeAttendanceService struct {
	enqueueErr error
	lastNote   string
	lastDate   time.Time
	waited     bool
}

func (f *fakeAttendanceService) CheckIn(_ context.Context, req attendance.CheckInRequest) (attendance.EnqueueResponse, error) {
	f.lastNote = req.Note
	if f.enqueueErr != nil {
		return attendance.EnqueueResponse{}, f.enqueueErr
	}
	return attendance.EnqueueResponse{RequestID: testRequestID, Status: string(queue.StatusPending)}, nil
}

func (f *fakeAttendanceService) CheckOut(ctx context.Context, req attendance.CheckOutRequest) (attendance.EnqueueResponse, error) {
	return f.CheckIn(ctx, attendance.CheckInRequest(req))
}

func (f *fakeAttendanceService) WaitForRequest(_ context.Context, requestID string) (attendance.RequestStatusResponse, error) {
	f.waited = true
	return attendance.RequestStatusResponse{RequestID: requestID, Status: string(queue.StatusCompleted), Completed: true}, nil
}

func (f *fakeAttendanceService) GetRequestStatus(_ context.Context, requestID string) (attendance.RequestStatusResponse, error) {
	if requestID == "" {
		return attendance.RequestStatusResponse{}, attendance.ErrRequestIDRequired
	}
	return attendance.RequestStatusResponse{RequestID: requestID, Status: string(queue.StatusUnknown)}, nil
}

func (f *fakeAttendanceService) GetStatus(_ context.Context, employeeID string) attendance.StatusSnapshot {
	return attendance.StatusSnapshot{
		EmployeeID: employeeID,
		Validation: period.StateValidation{Code: period.ReasonScheduleMissing},
		Degraded:   true,
	}
}

func (f *fakeAttendanceService) GetDayPeriods(_ context.Context, _ string, date time.Time) (attendance.DayPeriodsResponse, error) {
	f.lastDate = date
	return attendance.DayPeriodsResponse{Date: date.Format("2006-01-02")}, nil
}

func (f *fakeAttendanceService) AutoCompleteOpenRecords(context.Context) (int, error) { return 0, nil }

type testServer struct {
	handler http.Handler
	svc     *fakeAttendanceService
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	jwtService := jwt.NewJWTService(handlerTestSecret, 30*time.Second)
	token, _, err := jwtService.GenerateAccessToken(jwt.Claims{UserID: "u-1", EmployeeID: testEmployeeID}, time.Hour)
	require.NoError(t, err)

	svc := &fakeAttendanceService{}
	router := NewRouter(RouterConfig{
		Env:            "test",
		AllowedOrigins: []string{"*"},
		RatePerSecond:  0.001,
		RateBurst:      3,
	}, jwtService, NewAttendanceHandler(svc, nil))

	return &testServer{handler: router, svc: svc, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestAttendanceRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	rec, _ := s.do(t, http.MethodGet, "/api/v1/attendance/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckIn_Accepted(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v1/attendance/check-in", map[string]string{"note": "on site"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, testRequestID, data["request_id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "on site", s.svc.lastNote)
	assert.False(t, s.svc.waited)
}

func TestCheckOut_WaitReturnsSettledStatus(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v1/attendance/check-out?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.svc.waited)
	assert.Equal(t, "completed", body["data"].(map[string]any)["status"])
}

func TestCheckIn_QueueFull(t *testing.T) {
	s := newTestServer(t)
	s.svc.enqueueErr = queue.ErrQueueFull

	rec, body := s.do(t, http.MethodPost, "/api/v1/attendance/check-in", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["error"].(map[string]any)["code"])
}

func TestCheckIn_RateLimited(t *testing.T) {
	s := newTestServer(t)

	for range 3 {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/attendance/check-in", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec, _ := s.do(t, http.MethodPost, "/api/v1/attendance/check-in", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/attendance/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not rate limited")
}

func TestGetRequestStatus(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/v1/attendance/requests/"+testRequestID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, testRequestID, data["request_id"])
	assert.Equal(t, "unknown", data["status"])
}

func TestGetStatus_DegradedIsNotAnError(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/v1/attendance/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, testEmployeeID, data["employee_id"])
	assert.Equal(t, true, data["degraded"])
}

func TestGetDayPeriods(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/v1/attendance/periods?date=2024-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-04", s.svc.lastDate.Format("2006-01-02"))

	rec, body := s.do(t, http.MethodGet, "/api/v1/attendance/periods?date=04-03-2024", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}
