/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization and input shape checks, and delegates every business
  rule to leave.Engine.

ENDPOINTS:
  Requests:
    POST   /api/requests/validate         Dry-run validation of a draft
    POST   /api/requests                  Validate and submit a draft
    GET    /api/requests/{id}             Request with its approval chain
    POST   /api/requests/{id}/decisions   Act on a request (If-Match: version)
    POST   /api/requests/{id}/resubmit    Edit a RETURNED request and resubmit
    GET    /api/requests/{id}/audit       Audit trail, oldest first

  Employees:
    GET    /api/employees                 List directory
    POST   /api/employees                 Create or update an employee
    GET    /api/employees/{id}            Employee details
    GET    /api/employees/{id}/requests   Requests filed by the employee
    GET    /api/employees/{id}/balances   Balances for ?year= (default: this year)

  Calendar & policies:
    GET    /api/holidays                  Holidays in ?from=&to= or ?year=
    POST   /api/holidays                  Add a holiday
    GET    /api/policies                  Effective policy table
    POST   /api/pay-bands/preview         Disability pay split for a date pair

  Admin:
    POST   /api/admin/accruals/run        Post one month of accruals
    POST   /api/admin/carry-forward       Carry a year's balances forward

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine:    request lifecycle and ledger
  - Roster:    employee directory (also the engine's Directory)
  - Calendar:  holiday calendar (also the engine's HolidaySource)
  - Scheduler: accrual jobs, reused for the manual admin runs

REQUEST FLOW:
  1. Decode the JSON body
  2. Shape-check it with validator tags (400 on failure)
  3. Call the engine
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  - 400: Malformed body, unknown leave type / role / action
  - 403: Actor role does not match the directory
  - 404: Request or employee not found
  - 409: Transition not allowed, or someone else acted first
  - 422: Business rule violations (per-field list), ledger overdraft
  - 428: Decision without a version
  - 500: Internal errors, transition/ledger mismatch

VERSIONING:
  Every request response carries ETag: "<version>". Decisions and
  resubmissions must send it back, as If-Match or as "version" in the body.
  A stale version fails with 409 and nothing is written.

SECURITY NOTE:
  No authentication. Actor ID and role are taken from the request body;
  the engine rejects a role the directory does not list for that actor.

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Roster is the employee directory the API administers.
type Roster interface {
	leave.Directory
	SaveEmployee(ctx context.Context, emp leave.Employee) error
	ListEmployees(ctx context.Context) ([]leave.Employee, error)
}

// HolidayAdmin is the holiday calendar the API administers.
type HolidayAdmin interface {
	leave.HolidaySource
	AddHoliday(ctx context.Context, h calendar.Holiday) error
}

var errUnknownScenario = errors.New("unknown scenario")

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *leave.Engine
	Roster    Roster
	Calendar  HolidayAdmin
	Scheduler *AccrualScheduler

	// Today is the business date used for notice and backdate checks.
	Today func() calendar.Date

	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler. Business dates are taken in loc.
func NewHandler(engine *leave.Engine, roster Roster, cal HolidayAdmin, scheduler *AccrualScheduler, logger *zap.Logger, loc *time.Location) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Engine:    engine,
		Roster:    roster,
		Calendar:  cal,
		Scheduler: scheduler,
		Today:     func() calendar.Date { return calendar.Today(loc) },
		logger:    logger.Named("api"),
		validate:  v,
	}
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ValidateRequest runs every submission rule without writing anything.
// Rule violations are a normal answer here: 200 with valid=false.
func (h *Handler) ValidateRequest(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid draft", err)
		return
	}

	v, err := h.Engine.ValidateSubmission(r.Context(), draft, h.Today())
	var verrs leave.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusOK, ValidationResultDTO{Valid: false, Errors: verrs})
		return
	case err != nil:
		h.writeDomainError(w, err)
		return
	}

	breakdown := v.Charge.Breakdown
	writeJSON(w, http.StatusOK, ValidationResultDTO{
		Valid:         true,
		DaysCharged:   v.Charge.Days,
		Breakdown:     &breakdown,
		RequesterRole: string(v.RequesterRole),
		Route:         v.Route,
		PayBands:      v.PayBands,
	})
}

// SubmitRequest validates a draft and files it. The request enters
// PENDING at the first hop of its route.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid draft", err)
		return
	}

	v, err := h.Engine.ValidateSubmission(r.Context(), draft, h.Today())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	created, err := h.Engine.Submit(r.Context(), v)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("request submitted",
		zap.String("request_id", created.ID),
		zap.String("employee_id", created.EmployeeID),
		zap.String("leave_type", string(created.LeaveType)),
		zap.Int("days", created.WorkingDaysCharged))
	writeRequest(w, http.StatusCreated, *created)
}

// GetRequest returns one request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeRequest(w, http.StatusOK, *req)
}

// DecideRequest applies one actor decision.
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := leave.ParseRole(req.ActorRole)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid actor role", err)
		return
	}
	action, err := leave.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action", err)
		return
	}
	version, ok := expectedVersion(w, r, req.Version)
	if !ok {
		return
	}

	updated, err := h.Engine.Decide(r.Context(), leave.DecideCommand{
		RequestID:       id,
		ActorID:         req.ActorID,
		ActorRole:       role,
		Action:          action,
		Comment:         req.Comment,
		ExpectedVersion: version,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("request decided",
		zap.String("request_id", id),
		zap.String("actor_id", req.ActorID),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)))
	writeRequest(w, http.StatusOK, *updated)
}

// ResubmitRequest edits a RETURNED request and restarts its approval.
func (h *Handler) ResubmitRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := req.Draft.ToDraft()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid draft", err)
		return
	}
	version, ok := expectedVersion(w, r, req.Version)
	if !ok {
		return
	}

	updated, err := h.Engine.Resubmit(r.Context(), id, req.ActorID, draft, h.Today(), version)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("request resubmitted", zap.String("request_id", id), zap.Int("round", updated.Round))
	writeRequest(w, http.StatusOK, *updated)
}

// GetRequestAudit returns the audit trail of a request.
func (h *Handler) GetRequestAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Engine.Get(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	entries, err := h.Engine.History(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Roster.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates or replaces an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := leave.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid role", err)
		return
	}
	emp := leave.Employee{ID: req.ID, Name: req.Name, Role: role, ServiceYears: req.ServiceYears}
	if err := h.Roster.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee returns one employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Roster.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// ListEmployeeRequests returns the employee's requests.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	if _, err := h.Roster.Lookup(r.Context(), employeeID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	reqs, err := h.Engine.ListByEmployee(r.Context(), employeeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalances returns one balance per leave type for ?year=.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	year := h.Today().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	if _, err := h.Roster.Lookup(r.Context(), employeeID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	entries, err := h.Engine.Balances(r.Context(), employeeID, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]BalanceDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toBalanceDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays in [from, to], or in ?year= (default: this year).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := h.Today().Year()
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	from := calendar.NewDate(year, time.January, 1)
	to := calendar.NewDate(year, time.December, 31)

	var err error
	if s := q.Get("from"); s != "" {
		if from, err = calendar.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = calendar.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}

	holidays, err := h.Calendar.Holidays(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds or renames a holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	hol := calendar.Holiday{Date: date, Name: req.Name, IsOptional: req.IsOptional}
	if err := h.Calendar.AddHoliday(r.Context(), hol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns the effective policy table in policy-file form, so
// the output can be edited and loaded back with POLICY_FILE.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON(h.Engine.Policies()))
}

// PreviewPayBands splits total_days of disability leave into pay tiers.
func (h *Handler) PreviewPayBands(w http.ResponseWriter, r *http.Request) {
	var req PayBandPreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	incident, err := calendar.ParseDate(req.IncidentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid incident date", err)
		return
	}
	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	if start.Before(incident) {
		writeError(w, http.StatusBadRequest, "start_date must not be before incident_date", nil)
		return
	}

	rule := leave.DefaultPayBands
	if p, ok := h.Engine.Policies()[leave.SpecialDisability]; ok && p.PayBands != nil {
		rule = *p.PayBands
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rule":      rule,
		"pay_bands": rule.Compute(incident, start, req.TotalDays),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunAccruals posts one month of accruals for the whole directory. Reruns
// for the same month post nothing.
func (h *Handler) RunAccruals(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualsRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.Scheduler.RunAccruals(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Accrual run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RunCarryForward carries from_year's balances into the next year.
func (h *Handler) RunCarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.Scheduler.RunCarryForward(r.Context(), req.FromYear)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Carry forward failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads the body into dst and runs its validator tags. It writes
// the 400 itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "Invalid request", err)
			return false
		}
		details := make([]string, len(verrs))
		for i, fe := range verrs {
			if fe.Tag() == "required" {
				details[i] = fe.Field() + " is required"
			} else {
				details[i] = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
			}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Code: "BAD_REQUEST", Details: details})
		return false
	}
	return true
}

// expectedVersion takes the version from If-Match, falling back to the
// body. Neither present is 428.
func expectedVersion(w http.ResponseWriter, r *http.Request, fromBody int) (int, bool) {
	if tag := r.Header.Get("If-Match"); tag != "" {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		v, err := strconv.Atoi(strings.Trim(tag, `"`))
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "Invalid If-Match header", err)
			return 0, false
		}
		return v, true
	}
	if fromBody > 0 {
		return fromBody, true
	}
	writeError(w, http.StatusPreconditionRequired, "version required: send If-Match or \"version\"", nil)
	return 0, false
}

func writeRequest(w http.ResponseWriter, status int, req leave.LeaveRequest) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(req.Version)))
	writeJSON(w, status, toRequestDTO(req))
}

// writeDomainError maps engine errors to HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		verrs     leave.ValidationErrors
		terr      *leave.TransitionError
		overdraft *leave.LedgerOverdraftError
	)
	switch {
	case leave.IsFatal(err):
		h.logger.Error("transition and ledger out of step", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal consistency error", Code: "LEDGER_MISMATCH"})
	case leave.IsRetryable(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "already decided by someone else; refresh and retry",
			Code:    "CONCURRENT_MODIFICATION",
			Details: err.Error(),
		})
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Validation failed", Code: "VALIDATION_FAILED", Fields: verrs})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: terr.Error(), Code: "TRANSITION_NOT_ALLOWED"})
	case errors.As(err, &overdraft):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: overdraft.Error(), Code: "LEDGER_OVERDRAFT"})
	case errors.Is(err, leave.ErrActorRoleMismatch):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "ACTOR_ROLE_MISMATCH"})
	case leave.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, leave.ErrUnknownLeaveType), errors.Is(err, errUnknownScenario):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "BAD_REQUEST"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

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
