package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/generic/store"
)

func tx(id string, typ generic.TransactionType, delta int, day generic.TimePoint) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		EntityID:       "emp-1",
		PolicyID:       "CASUAL/2025",
		ResourceType:   generic.StringResource{ID: "CASUAL", Domain: "leave"},
		EffectiveAt:    day,
		Delta:          generic.Days(delta),
		Type:           typ,
		IdempotencyKey: id,
	}
}

func TestLedger_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	// GIVEN: A consumption already posted under key "k-1"
	// WHEN: The same key is appended again
	// THEN: ErrDuplicateIdempotencyKey, balance unchanged

	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	jan := generic.NewTimePoint(2025, time.January, 5)

	require.NoError(t, ledger.Append(ctx, tx("alloc", generic.TxAllocation, 10, jan)))
	require.NoError(t, ledger.Append(ctx, tx("k-1", generic.TxConsumption, -3, jan)))

	err := ledger.Append(ctx, tx("k-1", generic.TxConsumption, -3, jan))
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	b, err := ledger.BalanceFor(ctx, "emp-1", "CASUAL/2025", generic.CalendarYear(2025))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Used.IntPart())
	assert.Equal(t, 7, b.Available().IntPart())
}

func TestLedger_AppendBatch_DuplicateWithinBatch(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	day := generic.NewTimePoint(2025, time.March, 2)

	err := ledger.AppendBatch(ctx, []generic.Transaction{
		tx("a", generic.TxAccrual, 2, day),
		tx("a", generic.TxAccrual, 2, day),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	txs, err := ledger.Transactions(ctx, "emp-1", "CASUAL/2025")
	require.NoError(t, err)
	assert.Empty(t, txs, "batch must be all-or-nothing")
}

func TestReplayBalance_Components(t *testing.T) {
	day := generic.NewTimePoint(2025, time.June, 1)
	b := generic.ReplayBalance([]generic.Transaction{
		tx("1", generic.TxAccrual, 2, day),
		tx("2", generic.TxAccrual, 2, day),
		tx("3", generic.TxCarryForward, 15, day),
		tx("4", generic.TxConsumption, -5, day),
		tx("5", generic.TxReversal, 2, day),
	}, generic.UnitDays)

	assert.Equal(t, 4, b.Allocated.IntPart())
	assert.Equal(t, 15, b.CarriedForward.IntPart())
	assert.Equal(t, 3, b.Used.IntPart())
	assert.Equal(t, 16, b.Available().IntPart())
	assert.False(t, b.HasAllocation)
}

func TestReplayBalance_UsedNeverNegative(t *testing.T) {
	day := generic.NewTimePoint(2025, time.June, 1)
	b := generic.ReplayBalance([]generic.Transaction{
		tx("1", generic.TxReversal, 4, day),
	}, generic.UnitDays)
	assert.Equal(t, 0, b.Used.IntPart())
	assert.False(t, b.Used.IsNegative())
}

func TestBalanceFor_InvalidPeriod(t *testing.T) {
	ledger := generic.NewLedger(store.NewMemory())
	_, err := ledger.BalanceFor(context.Background(), "emp-1", "CASUAL/2025", generic.Period{
		Start: generic.NewTimePoint(2025, time.December, 31),
		End:   generic.NewTimePoint(2025, time.January, 1),
	})
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestStaged_InvisibleUntilCommit(t *testing.T) {
	// GIVEN: A unit of work that has staged a consumption
	ctx := context.Background()
	mem := store.NewMemory()
	day := generic.NewTimePoint(2025, time.May, 4)
	require.NoError(t, mem.Append(ctx, tx("alloc", generic.TxAllocation, 10, day)))

	unit := mem.Begin()
	require.NoError(t, unit.Append(ctx, tx("x", generic.TxConsumption, -3, day)))

	// THEN: The unit sees its own write, outside readers do not
	inside, err := generic.NewLedger(unit).BalanceFor(ctx, "emp-1", "CASUAL/2025", generic.CalendarYear(2025))
	require.NoError(t, err)
	assert.Equal(t, 7, inside.Available().IntPart())

	outside, err := generic.NewLedger(mem).BalanceFor(ctx, "emp-1", "CASUAL/2025", generic.CalendarYear(2025))
	require.NoError(t, err)
	assert.Equal(t, 10, outside.Available().IntPart())
	exists, err := mem.Exists(ctx, "x")
	require.NoError(t, err)
	assert.False(t, exists)

	// AND: A duplicate key inside the unit is caught before commit
	assert.ErrorIs(t, unit.Append(ctx, tx("x", generic.TxConsumption, -3, day)), generic.ErrDuplicateIdempotencyKey)
	assert.ErrorIs(t, unit.Append(ctx, tx("alloc", generic.TxAllocation, 10, day)), generic.ErrDuplicateIdempotencyKey)

	// WHEN: Committed
	require.NoError(t, unit.Commit(ctx))

	// THEN: Published once
	outside, err = generic.NewLedger(mem).BalanceFor(ctx, "emp-1", "CASUAL/2025", generic.CalendarYear(2025))
	require.NoError(t, err)
	assert.Equal(t, 7, outside.Available().IntPart())
	require.NoError(t, unit.Commit(ctx), "empty commit is a no-op")
}

func TestStaged_AbandonedUnitWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	day := generic.NewTimePoint(2025, time.May, 4)

	unit := mem.Begin()
	require.NoError(t, unit.Append(ctx, tx("y", generic.TxConsumption, -1, day)))

	txs, err := mem.Load(ctx, "emp-1", "CASUAL/2025")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMemory_LoadRange_Inclusive(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for i, day := range []int{1, 15, 31} {
		require.NoError(t, mem.Append(ctx, tx(string(rune('a'+i)), generic.TxAccrual, 1, generic.NewTimePoint(2025, time.March, day))))
	}
	require.NoError(t, mem.Append(ctx, tx("d", generic.TxAccrual, 1, generic.NewTimePoint(2025, time.April, 1))))

	txs, err := mem.LoadRange(ctx, "emp-1", "CASUAL/2025",
		generic.NewTimePoint(2025, time.March, 1), generic.NewTimePoint(2025, time.March, 31))
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestTimePointOf_UsesLocalDay(t *testing.T) {
	dhaka := time.FixedZone("BST", 6*3600)
	late := time.Date(2025, time.March, 10, 23, 30, 0, 0, dhaka)
	assert.Equal(t, "2025-03-10", generic.TimePointOf(late).String())
}
