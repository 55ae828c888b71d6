/*
store.go - Persistence interface for transactions and audit entries

PURPOSE:
  Defines the interface between the ledger logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Implementations exist for SQLite, PostgreSQL and in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write includes an idempotency key. If the key already exists,
  the write is rejected with ErrDuplicateIdempotencyKey. Leave postings
  key on (request, transition) so a retried approval cannot debit twice.

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - store/sqlite, store/postgres, generic/store: Implementations
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via reversal transactions.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for entity+policy, ordered by EffectiveAt.
	Load(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error)

	// LoadRange returns transactions in [from, to].
	LoadRange(ctx context.Context, entityID EntityID, policyID PolicyID, from, to TimePoint) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID          string
	Timestamp   time.Time
	ActorID     string
	Action      AuditAction
	EntityID    EntityID
	ReferenceID string // request the entry belongs to, empty for ledger jobs
	Payload     map[string]any
}

type AuditAction string

const (
	AuditRequestSubmitted   AuditAction = "request_submitted"
	AuditRequestResubmitted AuditAction = "request_resubmitted"
	AuditRequestDecided     AuditAction = "request_decided"
	AuditLedgerAccrual      AuditAction = "ledger_accrual"
	AuditLedgerCarryForward AuditAction = "ledger_carry_forward"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityID    *EntityID
	ReferenceID *string
	Actions     []AuditAction
}

// Matches reports whether e satisfies every populated field of f.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityID != nil && *f.EntityID != e.EntityID {
		return false
	}
	if f.ReferenceID != nil && *f.ReferenceID != e.ReferenceID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}
