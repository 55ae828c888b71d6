/*
errors.go - Error taxonomy for the leave lifecycle

  ValidationErrors              user-correctable, returned as a list
  TransitionError               role/state mismatch, never retried
  ErrActorRoleMismatch          claimed role is not the actor's directory role
  ErrConcurrentModification     stale version, re-fetch and retry
  LedgerOverdraftError          business rule, surfaced, not retried
  TransitionLedgerMismatchError consistency fault, logged and escalated

Only ErrConcurrentModification is safe to retry automatically.
*/
package leave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
)

var (
	ErrValidation               = errors.New("validation failed")
	ErrTransition               = errors.New("transition not allowed")
	ErrConcurrentModification   = generic.ErrConcurrentModification
	ErrLedgerOverdraft          = errors.New("ledger overdraft")
	ErrTransitionLedgerMismatch = errors.New("transition and ledger out of step")
	ErrRequestNotFound          = errors.New("leave request not found")
	ErrEmployeeNotFound         = errors.New("employee not found")
	ErrUnknownLeaveType         = errors.New("unknown leave type")
	ErrActorRoleMismatch        = errors.New("actor does not hold the claimed role")
)

// =============================================================================
// VALIDATION
// =============================================================================

type ErrorKind string

const (
	MissingField            ErrorKind = "MissingField"
	InvalidRange            ErrorKind = "InvalidRange"
	EndpointOnNonWorkingDay ErrorKind = "EndpointOnNonWorkingDay"
	ConsecutiveDaysExceeded ErrorKind = "ConsecutiveDaysExceeded"
	InsufficientNotice      ErrorKind = "InsufficientNotice"
	CertificateRequired     ErrorKind = "CertificateRequired"
	InsufficientBalance     ErrorKind = "InsufficientBalance"
	IncidentDateOutOfWindow ErrorKind = "IncidentDateOutOfWindow"
	BackdateNotAllowed      ErrorKind = "BackdateNotAllowed"
	NotEligible             ErrorKind = "NotEligible"
)

// ValidationError is one rule violation, tied to the offending field.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every violation found in one pass.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrValidation }

// Has reports whether any violation is of kind k.
func (v ValidationErrors) Has(k ErrorKind) bool {
	for _, e := range v {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func (v *ValidationErrors) add(kind ErrorKind, field, format string, args ...any) {
	*v = append(*v, ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)})
}

// =============================================================================
// TRANSITION
// =============================================================================

type TransitionError struct {
	RequestID string
	Status    Status
	Action    Action
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s: %s", e.Action, e.RequestID, e.Status, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrTransition }

// =============================================================================
// LEDGER
// =============================================================================

type LedgerOverdraftError struct {
	EmployeeID string
	LeaveType  LeaveType
	Year       int
	Available  generic.Amount
	Requested  generic.Amount
}

func (e *LedgerOverdraftError) Error() string {
	return fmt.Sprintf("ledger overdraft: %s %s/%d has %v days, %v requested",
		e.EmployeeID, e.LeaveType, e.Year, e.Available.Value, e.Requested.Value)
}

func (e *LedgerOverdraftError) Unwrap() []error {
	return []error{ErrLedgerOverdraft, generic.ErrInsufficientBalance}
}

// TransitionLedgerMismatchError means a status change could not be matched
// by its ledger posting. The whole unit of work was rolled back.
type TransitionLedgerMismatchError struct {
	RequestID string
	Status    Status
	Err       error
}

func (e *TransitionLedgerMismatchError) Error() string {
	return fmt.Sprintf("request %s reached %s but ledger posting failed: %v", e.RequestID, e.Status, e.Err)
}

func (e *TransitionLedgerMismatchError) Unwrap() []error {
	return []error{ErrTransitionLedgerMismatch, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the caller may re-fetch and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsFatal returns true for internal consistency faults.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTransitionLedgerMismatch)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) || errors.Is(err, ErrEmployeeNotFound)
}
