/*
ledger.go - Leave balances on top of the generic append-only ledger

PURPOSE:
  Wraps generic.Store with the leave rules: one balance per
  (employee, leave type, year), overdraft protection on debit, a floor of
  zero on credit, capped carry-forward, and idempotent postings.

KEYING:
  EntityID = employee, PolicyID = "<TYPE>/<year>". Entries come into
  existence with the first posting; Snapshot of an untouched tuple
  reports the policy's annual allocation without writing anything.

IDEMPOTENCY:
  Every posting carries a deterministic key. Request postings key on
  (request, transition); scheduler postings key on
  (employee, type, year[, month]). A repeated key is a successful no-op,
  so at-least-once callers never double count.

EXEMPT TYPES:
  Types with AffectsBalance=false (EXTRA_WITHOUT_PAY) accept debits and
  credits as no-ops.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
)

// Entry is the balance of one (employee, leave type, year) tuple.
type Entry struct {
	EmployeeID     string
	LeaveType      LeaveType
	Year           int
	Allocated      generic.Amount
	CarriedForward generic.Amount
	Used           generic.Amount
	AffectsBalance bool
}

// Available = Allocated + CarriedForward - Used.
func (e Entry) Available() generic.Amount {
	return e.Allocated.Add(e.CarriedForward).Sub(e.Used)
}

// Posting describes a request-driven debit or credit.
type Posting struct {
	EmployeeID   string
	LeaveType    LeaveType
	Year         int
	Days         int
	EffectiveAt  calendar.Date
	RequestID    string
	TransitionID string
	Actor        string
}

// BalanceLedger is not safe for use across store transactions; build one
// per unit of work from the transaction's generic.Store.
type BalanceLedger struct {
	store    generic.Store
	ledger   *generic.DefaultLedger
	policies PolicyTable
	now      func() time.Time
}

func NewBalanceLedger(store generic.Store, policies PolicyTable) *BalanceLedger {
	return &BalanceLedger{
		store:    store,
		ledger:   generic.NewLedger(store),
		policies: policies,
		now:      time.Now,
	}
}

// PolicyKey is the ledger partition for a leave type and year.
func PolicyKey(t LeaveType, year int) generic.PolicyID {
	return generic.PolicyID(fmt.Sprintf("%s/%d", t, year))
}

// PostingKey is the idempotency key of a request posting.
func PostingKey(requestID, transitionID string, effect LedgerEffect) string {
	return fmt.Sprintf("leave:%s:%s:%s", requestID, transitionID, effect)
}

// =============================================================================
// READS
// =============================================================================

// Snapshot replays the tuple. An annual allocation that has not been
// posted yet is included so callers see the real entitlement.
func (l *BalanceLedger) Snapshot(ctx context.Context, employeeID string, t LeaveType, year int) (Entry, error) {
	policy, err := l.policies.Get(t)
	if err != nil {
		return Entry{}, err
	}
	b, err := l.ledger.BalanceFor(ctx, generic.EntityID(employeeID), PolicyKey(t, year), generic.CalendarYear(year))
	if err != nil {
		return Entry{}, fmt.Errorf("snapshot %s %s/%d: %w", employeeID, t, year, err)
	}
	if !b.HasAllocation && policy.AnnualAllocation > 0 {
		b.Allocated = b.Allocated.Add(generic.Days(policy.AnnualAllocation))
	}
	return Entry{
		EmployeeID:     employeeID,
		LeaveType:      t,
		Year:           year,
		Allocated:      b.Allocated,
		CarriedForward: b.CarriedForward,
		Used:           b.Used,
		AffectsBalance: policy.AffectsBalance,
	}, nil
}

// =============================================================================
// REQUEST POSTINGS
// =============================================================================

// Debit consumes p.Days. Returns *LedgerOverdraftError if the balance
// would go negative.
func (l *BalanceLedger) Debit(ctx context.Context, p Posting) error {
	policy, err := l.policies.Get(p.LeaveType)
	if err != nil {
		return err
	}
	if !policy.AffectsBalance {
		return nil
	}
	key := PostingKey(p.RequestID, p.TransitionID, EffectDebit)
	if done, err := l.store.Exists(ctx, key); err != nil || done {
		return err
	}
	if _, err := l.Allocate(ctx, p.EmployeeID, p.LeaveType, p.Year); err != nil {
		return err
	}

	entry, err := l.Snapshot(ctx, p.EmployeeID, p.LeaveType, p.Year)
	if err != nil {
		return err
	}
	requested := generic.Days(p.Days)
	if entry.Available().Sub(requested).IsNegative() {
		return &LedgerOverdraftError{
			EmployeeID: p.EmployeeID,
			LeaveType:  p.LeaveType,
			Year:       p.Year,
			Available:  entry.Available(),
			Requested:  requested,
		}
	}
	return l.post(ctx, p, generic.TxConsumption, requested.Neg(), key)
}

// Credit reverses up to p.Days of usage. Used never drops below zero.
func (l *BalanceLedger) Credit(ctx context.Context, p Posting) error {
	policy, err := l.policies.Get(p.LeaveType)
	if err != nil {
		return err
	}
	if !policy.AffectsBalance {
		return nil
	}
	key := PostingKey(p.RequestID, p.TransitionID, EffectCredit)
	if done, err := l.store.Exists(ctx, key); err != nil || done {
		return err
	}
	entry, err := l.Snapshot(ctx, p.EmployeeID, p.LeaveType, p.Year)
	if err != nil {
		return err
	}
	return l.post(ctx, p, generic.TxReversal, generic.Days(p.Days).Min(entry.Used), key)
}

func (l *BalanceLedger) post(ctx context.Context, p Posting, typ generic.TransactionType, delta generic.Amount, key string) error {
	effective := generic.TimePointOf(p.EffectiveAt.Time())
	if p.EffectiveAt.IsZero() {
		effective = generic.StartOfYear(p.Year)
	}
	return l.append(ctx, generic.Transaction{
		ID:             generic.TransactionID(key),
		EntityID:       generic.EntityID(p.EmployeeID),
		PolicyID:       PolicyKey(p.LeaveType, p.Year),
		ResourceType:   p.LeaveType,
		EffectiveAt:    effective,
		Delta:          delta,
		Type:           typ,
		ReferenceID:    p.RequestID,
		Reason:         string(typ) + " for request " + p.RequestID,
		IdempotencyKey: key,
		CreatedBy:      p.Actor,
		CreatedAt:      generic.TimePointOf(l.now()),
	})
}

// append swallows duplicate keys: another writer got there first.
func (l *BalanceLedger) append(ctx context.Context, tx generic.Transaction) error {
	err := l.ledger.Append(ctx, tx)
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return nil
	}
	return err
}

// =============================================================================
// SCHEDULED POSTINGS
// =============================================================================

// Allocate posts the annual allocation for the year once. Reports whether
// a transaction was written.
func (l *BalanceLedger) Allocate(ctx context.Context, employeeID string, t LeaveType, year int) (bool, error) {
	policy, err := l.policies.Get(t)
	if err != nil {
		return false, err
	}
	if policy.AnnualAllocation <= 0 {
		return false, nil
	}
	key := fmt.Sprintf("allocation:%s:%s:%d", employeeID, t, year)
	return l.postOnce(ctx, key, generic.Transaction{
		EntityID:     generic.EntityID(employeeID),
		PolicyID:     PolicyKey(t, year),
		ResourceType: t,
		EffectiveAt:  generic.StartOfYear(year),
		Delta:        generic.Days(policy.AnnualAllocation),
		Type:         generic.TxAllocation,
		Reason:       fmt.Sprintf("%d annual allocation", year),
	})
}

// Accrue posts one month of accrual. Calling it again for the same month
// is a no-op.
func (l *BalanceLedger) Accrue(ctx context.Context, employeeID string, t LeaveType, year int, month time.Month) (bool, error) {
	policy, err := l.policies.Get(t)
	if err != nil {
		return false, err
	}
	if policy.MonthlyAccrual <= 0 {
		return false, nil
	}
	key := fmt.Sprintf("accrual:%s:%s:%04d-%02d", employeeID, t, year, int(month))
	return l.postOnce(ctx, key, generic.Transaction{
		EntityID:     generic.EntityID(employeeID),
		PolicyID:     PolicyKey(t, year),
		ResourceType: t,
		EffectiveAt:  generic.StartOfMonth(year, month),
		Delta:        generic.Days(policy.MonthlyAccrual),
		Type:         generic.TxAccrual,
		Reason:       fmt.Sprintf("accrual %04d-%02d", year, int(month)),
	})
}

// CarryForward moves the unused balance of fromYear into fromYear+1,
// capped by policy. Returns the days carried; a repeat run returns 0.
func (l *BalanceLedger) CarryForward(ctx context.Context, employeeID string, t LeaveType, fromYear int) (int, error) {
	policy, err := l.policies.Get(t)
	if err != nil {
		return 0, err
	}
	if policy.CarryForwardCap == nil {
		return 0, nil
	}
	entry, err := l.Snapshot(ctx, employeeID, t, fromYear)
	if err != nil {
		return 0, err
	}
	days := entry.Available().IntPart()
	if days > *policy.CarryForwardCap {
		days = *policy.CarryForwardCap
	}
	if days <= 0 {
		return 0, nil
	}
	toYear := fromYear + 1
	key := fmt.Sprintf("carry_forward:%s:%s:%d", employeeID, t, toYear)
	posted, err := l.postOnce(ctx, key, generic.Transaction{
		EntityID:     generic.EntityID(employeeID),
		PolicyID:     PolicyKey(t, toYear),
		ResourceType: t,
		EffectiveAt:  generic.StartOfYear(toYear),
		Delta:        generic.Days(days),
		Type:         generic.TxCarryForward,
		Reason:       fmt.Sprintf("carried forward from %d", fromYear),
	})
	if err != nil || !posted {
		return 0, err
	}
	return days, nil
}

func (l *BalanceLedger) postOnce(ctx context.Context, key string, tx generic.Transaction) (bool, error) {
	done, err := l.store.Exists(ctx, key)
	if err != nil || done {
		return false, err
	}
	tx.ID = generic.TransactionID(key)
	tx.IdempotencyKey = key
	tx.CreatedBy = "system"
	tx.CreatedAt = generic.TimePointOf(l.now())
	if err := l.append(ctx, tx); err != nil {
		return false, err
	}
	return true, nil
}
