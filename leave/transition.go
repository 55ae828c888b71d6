/*
transition.go - The approval state machine

PURPOSE:
  Transition is a pure function from (request, command) to the next
  request plus the ledger effect the caller must commit alongside it.
  Persistence, versions and the ledger are the Engine's business.

STATES:
  SUBMITTED --seed--> PENDING

  PENDING (one PENDING step, role = route[i])
    FORWARD  -> next hop appended, PENDING
             -> last hop with authority: APPROVED  (debit)
    APPROVE  -> APPROVED (last hop only)           (debit)
    REJECT   -> REJECTED (comment)
    RETURN   -> RETURNED (comment)
    CANCEL   -> CANCELLED (employee)

  RETURNED
    CANCEL   -> CANCELLED (employee)
    (resubmission is Engine.Resubmit, it re-validates)

  APPROVED
    REQUEST_CANCELLATION -> CANCELLATION_REQUESTED (employee)
    RECALL               -> RECALLED (HR_ADMIN and above, comment) (credit)

  CANCELLATION_REQUESTED
    CONFIRM_CANCELLATION -> CANCELLED (final approver) (credit)
    REJECT               -> APPROVED  (final approver, comment)

  REJECTED, CANCELLED, RECALLED are terminal.

Every illegal command yields a *TransitionError. Nothing is ignored.
*/
package leave

import (
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionForward             Action = "FORWARD"
	ActionApprove             Action = "APPROVE"
	ActionReject              Action = "REJECT"
	ActionReturn              Action = "RETURN"
	ActionRequestCancellation Action = "REQUEST_CANCELLATION"
	ActionConfirmCancellation Action = "CONFIRM_CANCELLATION"
	ActionRecall              Action = "RECALL"
	ActionCancel              Action = "CANCEL"
)

// ParseAction accepts any casing.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionForward, ActionApprove, ActionReject, ActionReturn,
		ActionRequestCancellation, ActionConfirmCancellation, ActionRecall, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func (a Action) requiresComment() bool {
	return a == ActionReject || a == ActionReturn || a == ActionRecall
}

// Command is one actor decision.
type Command struct {
	Action    Action
	ActorID   string
	ActorRole Role
	Comment   string
}

// LedgerEffect is what the ledger must do when the transition commits.
type LedgerEffect int

const (
	EffectNone LedgerEffect = iota
	EffectDebit
	EffectCredit
)

func (e LedgerEffect) String() string {
	switch e {
	case EffectDebit:
		return "debit"
	case EffectCredit:
		return "credit"
	}
	return "none"
}

// Outcome is the result of a legal transition.
type Outcome struct {
	Request LeaveRequest
	From    Status
	Effect  LedgerEffect
}

// Seed moves a SUBMITTED request to PENDING with step 0 of the current
// round open for the route's first role.
func Seed(req LeaveRequest, now time.Time) LeaveRequest {
	next := req.Clone()
	next.Chain = append(next.Chain, newStep(next.Route, 0, next.Round))
	next.Status = StatusPending
	next.UpdatedAt = now
	return next
}

func newStep(route Route, idx, round int) ApprovalStep {
	return ApprovalStep{
		Index:        idx,
		Round:        round,
		RequiredRole: route[idx].Role,
		CanApprove:   route[idx].CanApprove,
		Decision:     DecisionPending,
	}
}

// Transition applies cmd to req. req is not modified.
func Transition(req LeaveRequest, cmd Command, now time.Time) (Outcome, error) {
	from := req.Status.Normalize()
	deny := func(format string, args ...any) (Outcome, error) {
		return Outcome{}, &TransitionError{
			RequestID: req.ID,
			Status:    from,
			Action:    cmd.Action,
			Reason:    fmt.Sprintf(format, args...),
		}
	}

	if from.IsTerminal() {
		return deny("request is closed")
	}
	if cmd.Action.requiresComment() && strings.TrimSpace(cmd.Comment) == "" {
		return deny("a comment is required")
	}

	next := req.Clone()
	next.Status = from
	next.Version = req.Version + 1
	next.UpdatedAt = now
	out := Outcome{From: from}
	isOwner := cmd.ActorID != "" && cmd.ActorID == req.EmployeeID

	switch from {
	case StatusSubmitted, StatusPending:
		idx := next.OpenStep()
		if idx < 0 {
			return deny("no approval step is open")
		}
		step := &next.Chain[idx]

		if cmd.Action == ActionCancel {
			if !isOwner {
				return deny("only the requesting employee can cancel")
			}
			closeStep(step, DecisionRejected, cmd.ActorID, withDefault(cmd.Comment, "withdrawn by employee"), now)
			next.Status = StatusCancelled
			break
		}
		if isOwner {
			return deny("employees cannot decide their own request")
		}
		if cmd.ActorRole != step.RequiredRole {
			return deny("step %d awaits %s, not %s", step.Index, step.RequiredRole, cmd.ActorRole)
		}

		switch cmd.Action {
		case ActionForward:
			closeStep(step, DecisionForwarded, cmd.ActorID, cmd.Comment, now)
			switch {
			case step.Index+1 < len(next.Route):
				next.Chain = append(next.Chain, newStep(next.Route, step.Index+1, next.Round))
				next.Status = StatusPending
			case step.CanApprove:
				next.Status = StatusApproved
				out.Effect = EffectDebit
			default:
				return deny("%s is the last hop and cannot approve", step.RequiredRole)
			}
		case ActionApprove:
			if !step.CanApprove {
				return deny("%s cannot issue a terminal approval at step %d", step.RequiredRole, step.Index)
			}
			closeStep(step, DecisionApproved, cmd.ActorID, cmd.Comment, now)
			next.Status = StatusApproved
			out.Effect = EffectDebit
		case ActionReject:
			closeStep(step, DecisionRejected, cmd.ActorID, cmd.Comment, now)
			next.Status = StatusRejected
		case ActionReturn:
			closeStep(step, DecisionReturned, cmd.ActorID, cmd.Comment, now)
			next.Status = StatusReturned
		default:
			return deny("action not allowed while a step is open")
		}

	case StatusReturned:
		if cmd.Action != ActionCancel {
			return deny("returned requests must be resubmitted or cancelled")
		}
		if !isOwner {
			return deny("only the requesting employee can cancel")
		}
		next.Status = StatusCancelled

	case StatusApproved:
		switch cmd.Action {
		case ActionRequestCancellation:
			if !isOwner {
				return deny("only the requesting employee can ask to cancel")
			}
			next.Status = StatusCancellationRequested
		case ActionRecall:
			if !cmd.ActorRole.HasApprovalAuthority() {
				return deny("%s cannot recall an approved request", cmd.ActorRole)
			}
			if isOwner {
				return deny("employees cannot recall their own request")
			}
			next.Status = StatusRecalled
			out.Effect = EffectCredit
		default:
			return deny("action not allowed on an approved request")
		}

	case StatusCancellationRequested:
		if cmd.Action != ActionConfirmCancellation && cmd.Action != ActionReject {
			return deny("cancellation request awaits confirmation or rejection")
		}
		if cmd.ActorRole != req.FinalApprover() || isOwner {
			return deny("cancellation must be decided by %s", req.FinalApprover())
		}
		if cmd.Action == ActionConfirmCancellation {
			next.Status = StatusCancelled
			out.Effect = EffectCredit
		} else {
			next.Status = StatusApproved
		}

	default:
		return deny("unknown status")
	}

	out.Request = next
	return out, nil
}

func closeStep(step *ApprovalStep, d Decision, actorID, comment string, now time.Time) {
	at := now
	step.Decision = d
	step.ActorID = actorID
	step.Comment = comment
	step.DecidedAt = &at
}

func withDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
