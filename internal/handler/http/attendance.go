package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type AttendanceHandler interface {
	CheckIn(w http.ResponseWriter, r *http.Request)
	CheckOut(w http.ResponseWriter, r *http.Request)
	GetRequestStatus(w http.ResponseWriter, r *http.Request)
	GetStatus(w http.ResponseWriter, r *http.Request)
	GetDayPeriods(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	attendanceService attendance.AttendanceService
	logger            *slog.Logger
}

func NewAttendanceHandler(attendanceService attendance.AttendanceService, logger *slog.Logger) AttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
		logger:            logger,
	}
}

type notePayload struct {
	Note string `json:"note"`
}

// decodeNote reads the optional JSON body. An empty body is allowed.
func decodeNote(r *http.Request) (string, error) {
	var body notePayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return body.Note, nil
}

func wantsWait(r *http.Request) bool {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return wait
}

// CheckIn implements AttendanceHandler.
func (h *attendanceHandlerImpl) CheckIn(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	note, err := decodeNote(r)
	if err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	result, err := h.attendanceService.CheckIn(r.Context(), attendance.CheckInRequest{EmployeeID: claims.EmployeeID, Note: note})
	if err != nil {
		response.HandleError(w, err)
		return
	}
	h.respondEnqueued(w, r, "Check-in queued", result)
}

// CheckOut implements AttendanceHandler.
func (h *attendanceHandlerImpl) CheckOut(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	note, err := decodeNote(r)
	if err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	result, err := h.attendanceService.CheckOut(r.Context(), attendance.CheckOutRequest{EmployeeID: claims.EmployeeID, Note: note})
	if err != nil {
		response.HandleError(w, err)
		return
	}
	h.respondEnqueued(w, r, "Check-out queued", result)
}

// respondEnqueued answers 202 right away, or with the settled status when ?wait=true.
func (h *attendanceHandlerImpl) respondEnqueued(w http.ResponseWriter, r *http.Request, message string, result attendance.EnqueueResponse) {
	if !wantsWait(r) {
		response.Accepted(w, message, result)
		return
	}

	status, err := h.attendanceService.WaitForRequest(r.Context(), result.RequestID)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	if !status.Completed && status.Status != string(queue.StatusFailed) {
		response.Accepted(w, message, status)
		return
	}
	response.Success(w, status)
}

// GetRequestStatus implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	status, err := h.attendanceService.GetRequestStatus(r.Context(), requestID)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, status)
}

// GetStatus implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	response.Success(w, h.attendanceService.GetStatus(r.Context(), claims.EmployeeID))
}

// GetDayPeriods implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetDayPeriods(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	date, ok := validator.IsValidDate(r.URL.Query().Get("date"))
	if !ok {
		response.HandleError(w, validator.ValidationErrors{{Field: "date", Message: "date must be in YYYY-MM-DD format"}})
		return
	}

	periods, err := h.attendanceService.GetDayPeriods(r.Context(), claims.EmployeeID, date)
	if err != nil {
		h.logger.Debug("Failed to get day periods", "employee_id", claims.EmployeeID, "error", err)
		response.HandleError(w, err)
		return
	}
	response.Success(w, periods)
}
