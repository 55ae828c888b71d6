/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Shape errors (missing
  field, malformed date) are rejected with 400 before the engine runs;
  business rules (notice, balance, certificates) come back from the engine
  as ValidationErrors and map to 422.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// DraftRequest is a leave application as typed into the form.
type DraftRequest struct {
	EmployeeID            string `json:"employee_id" validate:"required"`
	LeaveType             string `json:"leave_type" validate:"required"`
	StartDate             string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate               string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason                string `json:"reason"`
	IncidentDate          string `json:"incident_date" validate:"omitempty,datetime=2006-01-02"`
	CertificateRef        string `json:"certificate_ref"`
	FitnessCertificateRef string `json:"fitness_certificate_ref"`
}

// ToDraft converts after validator has checked the date formats.
func (r DraftRequest) ToDraft() (leave.Draft, error) {
	lt, err := leave.ParseLeaveType(r.LeaveType)
	if err != nil {
		return leave.Draft{}, err
	}
	d := leave.Draft{
		EmployeeID:            r.EmployeeID,
		LeaveType:             lt,
		Reason:                r.Reason,
		CertificateRef:        r.CertificateRef,
		FitnessCertificateRef: r.FitnessCertificateRef,
	}
	if d.StartDate, err = calendar.ParseDate(r.StartDate); err != nil {
		return leave.Draft{}, err
	}
	if d.EndDate, err = calendar.ParseDate(r.EndDate); err != nil {
		return leave.Draft{}, err
	}
	if r.IncidentDate != "" {
		if d.IncidentDate, err = calendar.ParseDate(r.IncidentDate); err != nil {
			return leave.Draft{}, err
		}
	}
	return d, nil
}

// DecisionRequest acts on a request. Version may instead come from If-Match.
type DecisionRequest struct {
	ActorID   string `json:"actor_id" validate:"required"`
	ActorRole string `json:"actor_role" validate:"required"`
	Action    string `json:"action" validate:"required"`
	Comment   string `json:"comment"`
	Version   int    `json:"version" validate:"omitempty,min=1"`
}

// ResubmitRequest edits a RETURNED request and sends it back for approval.
type ResubmitRequest struct {
	ActorID string       `json:"actor_id" validate:"required"`
	Version int          `json:"version" validate:"omitempty,min=1"`
	Draft   DraftRequest `json:"draft"`
}

type CreateEmployeeRequest struct {
	ID           string `json:"id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Role         string `json:"role" validate:"required"`
	ServiceYears int    `json:"service_years" validate:"min=0"`
}

type CreateHolidayRequest struct {
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Name       string `json:"name" validate:"required"`
	IsOptional bool   `json:"is_optional"`
}

type PayBandPreviewRequest struct {
	IncidentDate string `json:"incident_date" validate:"required,datetime=2006-01-02"`
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	TotalDays    int    `json:"total_days" validate:"required,min=1"`
}

type RunAccrualsRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

type CarryForwardRequest struct {
	FromYear int `json:"from_year" validate:"required,min=2000,max=2100"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type EmployeeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ServiceYears int    `json:"service_years"`
}

type HolidayDTO struct {
	Date       string `json:"date"`
	Name       string `json:"name"`
	IsOptional bool   `json:"is_optional"`
}

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID                    string               `json:"id"`
	EmployeeID            string               `json:"employee_id"`
	RequesterRole         string               `json:"requester_role"`
	LeaveType             string               `json:"leave_type"`
	StartDate             string               `json:"start_date"`
	EndDate               string               `json:"end_date"`
	WorkingDaysCharged    int                  `json:"working_days_charged"`
	Breakdown             calendar.Breakdown   `json:"breakdown"`
	Reason                string               `json:"reason"`
	IncidentDate          string               `json:"incident_date,omitempty"`
	CertificateRef        string               `json:"certificate_ref,omitempty"`
	FitnessCertificateRef string               `json:"fitness_certificate_ref,omitempty"`
	PayBands              *leave.PayBands      `json:"pay_bands,omitempty"`
	Status                string               `json:"status"`
	Route                 leave.Route          `json:"route"`
	Chain                 []leave.ApprovalStep `json:"chain"`
	Round                 int                  `json:"round"`
	Version               int                  `json:"version"`
	CreatedAt             string               `json:"created_at"`
	UpdatedAt             string               `json:"updated_at"`
}

// ValidationResultDTO answers a dry-run validation.
type ValidationResultDTO struct {
	Valid         bool                   `json:"valid"`
	DaysCharged   int                    `json:"days_charged,omitempty"`
	Breakdown     *calendar.Breakdown    `json:"breakdown,omitempty"`
	RequesterRole string                 `json:"requester_role,omitempty"`
	Route         leave.Route            `json:"route,omitempty"`
	PayBands      *leave.PayBands        `json:"pay_bands,omitempty"`
	Errors        leave.ValidationErrors `json:"errors,omitempty"`
}

type BalanceDTO struct {
	LeaveType      string  `json:"leave_type"`
	Year           int     `json:"year"`
	Allocated      float64 `json:"allocated"`
	CarriedForward float64 `json:"carried_forward"`
	Used           float64 `json:"used"`
	Available      float64 `json:"available"`
	AffectsBalance bool    `json:"affects_balance"`
}

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details any                    `json:"details,omitempty"`
	Fields  leave.ValidationErrors `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRequestDTO(r leave.LeaveRequest) RequestDTO {
	dto := RequestDTO{
		ID:                    r.ID,
		EmployeeID:            r.EmployeeID,
		RequesterRole:         string(r.RequesterRole),
		LeaveType:             string(r.LeaveType),
		StartDate:             r.StartDate.String(),
		EndDate:               r.EndDate.String(),
		WorkingDaysCharged:    r.WorkingDaysCharged,
		Breakdown:             r.Breakdown,
		Reason:                r.Reason,
		CertificateRef:        r.CertificateRef,
		FitnessCertificateRef: r.FitnessCertificateRef,
		PayBands:              r.PayBands,
		Status:                string(r.Status),
		Route:                 r.Route,
		Chain:                 r.Chain,
		Round:                 r.Round,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             r.UpdatedAt.Format(time.RFC3339),
	}
	if !r.IncidentDate.IsZero() {
		dto.IncidentDate = r.IncidentDate.String()
	}
	if dto.Chain == nil {
		dto.Chain = []leave.ApprovalStep{}
	}
	return dto
}

func toBalanceDTO(e leave.Entry) BalanceDTO {
	return BalanceDTO{
		LeaveType:      string(e.LeaveType),
		Year:           e.Year,
		Allocated:      e.Allocated.Float64(),
		CarriedForward: e.CarriedForward.Float64(),
		Used:           e.Used.Float64(),
		Available:      e.Available().Float64(),
		AffectsBalance: e.AffectsBalance,
	}
}

func toAuditDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		Payload:   e.Payload,
	}
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{ID: e.ID, Name: e.Name, Role: string(e.Role), ServiceYears: e.ServiceYears}
}

func toHolidayDTO(h calendar.Holiday) HolidayDTO {
	return HolidayDTO{Date: h.Date.String(), Name: h.Name, IsOptional: h.IsOptional}
}
