/*
Package generic provides the ledger engine underneath leave balances.

PURPOSE:
  This package contains domain-agnostic types and algorithms for keeping
  an append-only record of day-denominated balances. The leave package
  layers entitlement rules on top; this package only knows about
  amounts, transactions and how to replay them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days)
  - Transaction: An immutable ledger entry recording a balance change
  - Entity/Policy IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing entity/policy IDs
  4. Idempotency: Every write carries an idempotency key

USAGE:
  tx := generic.Transaction{
      EntityID: "emp-123",
      PolicyID: "EARNED/2025",
      Delta:    generic.NewAmountFromInt(-3, generic.UnitDays),
      Type:     generic.TxConsumption,
  }

SEE ALSO:
  - balance.go: Balance calculation from transactions
  - ledger.go: Transaction persistence interface
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays Unit = "days"
)

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for an integral day amount.
func Days(n int) Amount { return NewAmountFromInt(n, UnitDays) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) IntPart() int              { return int(a.Value.IntPart()) }
func (a Amount) Float64() float64          { f, _ := a.Value.Float64(); return f }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type PolicyID string
type TransactionID string

// ResourceType identifies what kind of resource is being tracked.
// Domain packages define their own concrete types; the leave package
// implements it with its LeaveType enumeration.
type ResourceType interface {
	// ResourceID returns the unique identifier for this resource type.
	ResourceID() string

	// ResourceDomain returns which domain this resource belongs to.
	ResourceDomain() string
}

// =============================================================================
// TRANSACTION - Atomic change to resource balance
// =============================================================================

type TransactionType string

const (
	TxAllocation   TransactionType = "allocation"    // Annual upfront entitlement
	TxAccrual      TransactionType = "accrual"       // Periodic increment (e.g. monthly)
	TxCarryForward TransactionType = "carry_forward" // Days rolled over from the prior year
	TxConsumption  TransactionType = "consumption"   // Approved request
	TxReversal     TransactionType = "reversal"      // Undo a consumption (cancel, recall)
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	PolicyID       PolicyID
	ResourceType   ResourceType
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt TimePoint
}
