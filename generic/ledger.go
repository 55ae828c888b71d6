/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the immutable source of truth for all balance changes.
  Every allocation, accrual, carry-forward, consumption and reversal is
  recorded here. Balance is always computed by replaying transactions;
  there is no separate "balance" column that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A cancelled or recalled leave is not erased. A Reversal transaction
  with the opposite sign is appended and both stay in the log.

EXAMPLE FLOW:
  1. Employee allocated 10 casual days: TxAllocation +10
  2. Takes 3 days off:                  TxConsumption -3
  3. Leave recalled:                    TxReversal +3

  CASUAL/2025 ledger: [+10, -3, +3] = 10 days

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/ledger.go: Leave-specific wrapper (overdraft, caps, idempotency keys)
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for all balance changes.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for entity+policy, chronologically.
	Transactions(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error)

	// BalanceFor replays the transactions of entity+policy inside period.
	BalanceFor(ctx context.Context, entityID EntityID, policyID PolicyID, period Period) (Balance, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	// Check all idempotency keys first
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID, policyID)
}

func (l *DefaultLedger) BalanceFor(ctx context.Context, entityID EntityID, policyID PolicyID, period Period) (Balance, error) {
	if err := period.Validate(); err != nil {
		return Balance{}, err
	}
	txs, err := l.Store.LoadRange(ctx, entityID, policyID, period.Start, period.End)
	if err != nil {
		return Balance{}, err
	}
	b := ReplayBalance(txs, UnitDays)
	b.EntityID = entityID
	b.PolicyID = policyID
	b.Period = period
	return b, nil
}
