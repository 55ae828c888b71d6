/*
errors.go - Sentinel errors of the ledger kernel

PURPOSE:
  The ledger and its stores report failures with these sentinels. The
  leave package wraps them in domain errors that carry the request, the
  employee and the leave type.

USAGE:
    if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
        // the posting is already in the ledger; nothing to do
    }

SEE ALSO:
  - ledger.go: Overdraft and idempotency checks
  - store.go: Store contract
  - leave/errors.go: Domain errors built on these sentinels
*/
package generic

import "errors"

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. Retries hit this and treat it as done.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientBalance is returned when a debit would take the
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)
