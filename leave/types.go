// Package leave implements the leave-request lifecycle: policy validation,
// approval routing, and the balance ledger, on top of the generic engine.
package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPE - The resource type for this domain
// =============================================================================

// LeaveType implements generic.ResourceType.
type LeaveType string

func (t LeaveType) ResourceID() string     { return string(t) }
func (t LeaveType) ResourceDomain() string { return "leave" }

var _ generic.ResourceType = LeaveType("")

const (
	Earned            LeaveType = "EARNED"
	Casual            LeaveType = "CASUAL"
	Medical           LeaveType = "MEDICAL"
	Maternity         LeaveType = "MATERNITY"
	Paternity         LeaveType = "PATERNITY"
	Study             LeaveType = "STUDY"
	SpecialDisability LeaveType = "SPECIAL_DISABILITY"
	Quarantine        LeaveType = "QUARANTINE"
	ExtraWithPay      LeaveType = "EXTRA_WITH_PAY"
	ExtraWithoutPay   LeaveType = "EXTRA_WITHOUT_PAY"
)

// AllLeaveTypes lists every type in display order.
var AllLeaveTypes = []LeaveType{
	Earned, Casual, Medical, Maternity, Paternity, Study,
	SpecialDisability, Quarantine, ExtraWithPay, ExtraWithoutPay,
}

func init() {
	for _, t := range AllLeaveTypes {
		generic.RegisterResource(t)
	}
}

// ParseLeaveType accepts any casing.
func ParseLeaveType(s string) (LeaveType, error) {
	t := LeaveType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllLeaveTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLeaveType, s)
}

// =============================================================================
// STATUS / DECISION
// =============================================================================

type Status string

const (
	StatusSubmitted             Status = "SUBMITTED"
	StatusPending               Status = "PENDING"
	StatusForwarded             Status = "FORWARDED" // legacy; read as PENDING
	StatusReturned              Status = "RETURNED"
	StatusApproved              Status = "APPROVED"
	StatusRejected              Status = "REJECTED"
	StatusCancellationRequested Status = "CANCELLATION_REQUESTED"
	StatusCancelled             Status = "CANCELLED"
	StatusRecalled              Status = "RECALLED"
)

// Normalize folds the legacy FORWARDED request status into PENDING.
// FORWARDED survives only as a step decision.
func (s Status) Normalize() Status {
	if s == StatusForwarded {
		return StatusPending
	}
	return s
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusRecalled:
		return true
	}
	return false
}

// IsOpen reports whether an approval step is awaiting a decision.
func (s Status) IsOpen() bool {
	switch s.Normalize() {
	case StatusSubmitted, StatusPending:
		return true
	}
	return false
}

type Decision string

const (
	DecisionPending   Decision = "PENDING"
	DecisionForwarded Decision = "FORWARDED"
	DecisionApproved  Decision = "APPROVED"
	DecisionRejected  Decision = "REJECTED"
	DecisionReturned  Decision = "RETURNED"
)

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// ApprovalStep is one hop in the chain. Steps are never removed; a
// resubmission starts a new Round at Index 0.
type ApprovalStep struct {
	Index        int        `json:"index"`
	Round        int        `json:"round"`
	RequiredRole Role       `json:"required_role"`
	CanApprove   bool       `json:"can_approve"`
	Decision     Decision   `json:"decision"`
	ActorID      string     `json:"actor_id,omitempty"`
	Comment      string     `json:"comment,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

// LeaveRequest is one employee's time-off ask.
type LeaveRequest struct {
	ID            string
	EmployeeID    string
	RequesterRole Role
	LeaveType     LeaveType

	StartDate          calendar.Date
	EndDate            calendar.Date
	WorkingDaysCharged int
	Breakdown          calendar.Breakdown

	Reason                string
	IncidentDate          calendar.Date
	CertificateRef        string
	FitnessCertificateRef string
	PayBands              *PayBands

	Status Status
	Route  Route
	Chain  []ApprovalStep
	Round  int

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Year is the ledger year the request is charged to.
func (r *LeaveRequest) Year() int { return r.StartDate.Year() }

// OpenStep returns the index into Chain of the PENDING step, or -1.
func (r *LeaveRequest) OpenStep() int {
	for i := len(r.Chain) - 1; i >= 0; i-- {
		if r.Chain[i].Decision == DecisionPending {
			return i
		}
	}
	return -1
}

// CurrentRound returns the steps of the latest submission round.
func (r *LeaveRequest) CurrentRound() []ApprovalStep {
	var out []ApprovalStep
	for _, s := range r.Chain {
		if s.Round == r.Round {
			out = append(out, s)
		}
	}
	return out
}

// FinalApprover is the role holding terminal approval authority.
func (r *LeaveRequest) FinalApprover() Role {
	if len(r.Route) == 0 {
		return ""
	}
	return r.Route[len(r.Route)-1].Role
}

// Clone deep-copies the mutable parts.
func (r LeaveRequest) Clone() LeaveRequest {
	out := r
	out.Route = append(Route(nil), r.Route...)
	out.Chain = make([]ApprovalStep, len(r.Chain))
	for i, s := range r.Chain {
		if s.DecidedAt != nil {
			t := *s.DecidedAt
			s.DecidedAt = &t
		}
		out.Chain[i] = s
	}
	if r.PayBands != nil {
		pb := *r.PayBands
		out.PayBands = &pb
	}
	return out
}

// Employee is what the directory knows about a requester or actor.
type Employee struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	ServiceYears int    `json:"service_years"`
}
