package generic

// =============================================================================
// BALANCE - Computed for a PERIOD by replaying transactions
// =============================================================================

// Balance is the replayed state of one entity+policy inside a period.
//
//	Available = Allocated + CarriedForward - Used
//
// Allocated covers both upfront allocation and periodic accrual.
// Used is consumption net of reversals and never negative.
type Balance struct {
	EntityID EntityID
	PolicyID PolicyID
	Period   Period

	Allocated      Amount
	CarriedForward Amount
	Used           Amount

	// HasAllocation is true once an explicit TxAllocation has been posted.
	HasAllocation bool
}

// Available returns what can still be consumed.
func (b Balance) Available() Amount {
	return b.Allocated.Add(b.CarriedForward).Sub(b.Used)
}

// ReplayBalance folds txs into a Balance. Order does not matter.
func ReplayBalance(txs []Transaction, unit Unit) Balance {
	zero := NewAmountFromInt(0, unit)
	b := Balance{Allocated: zero, CarriedForward: zero, Used: zero}
	for _, tx := range txs {
		switch tx.Type {
		case TxAllocation:
			b.Allocated = b.Allocated.Add(tx.Delta)
			b.HasAllocation = true
		case TxAccrual:
			b.Allocated = b.Allocated.Add(tx.Delta)
		case TxCarryForward:
			b.CarriedForward = b.CarriedForward.Add(tx.Delta)
		case TxConsumption, TxReversal:
			// consumption deltas are negative, reversals positive
			b.Used = b.Used.Sub(tx.Delta)
		}
	}
	if b.Used.IsNegative() {
		b.Used = zero
	}
	return b
}
