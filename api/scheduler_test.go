package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func newSchedulerFixture(t *testing.T, now time.Time) (*AccrualScheduler, *leave.Engine) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	for _, e := range []leave.Employee{
		{ID: "emp-2", Name: "Karim", Role: leave.RoleEmployee, ServiceYears: 1},
		{ID: "emp-1", Name: "Nadia", Role: leave.RoleEmployee, ServiceYears: 5},
	} {
		require.NoError(t, st.SaveEmployee(ctx, e))
	}
	engine := leave.NewEngine(st, st, st,
		leave.WithLogger(zap.NewNop()),
		leave.WithClock(func() time.Time { return now }),
	)
	s := NewAccrualScheduler(engine, st, zap.NewNop())
	s.now = func() time.Time { return now }
	return s, engine
}

func earnedAllocated(t *testing.T, engine *leave.Engine, emp string, year int) int {
	t.Helper()
	entry, err := engine.Balance(context.Background(), emp, leave.Earned, year)
	require.NoError(t, err)
	return entry.Allocated.IntPart()
}

func TestScheduler_RunAccruals_Idempotent(t *testing.T) {
	s, engine := newSchedulerFixture(t, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// WHEN: Three months are posted, March twice
	for _, m := range []time.Month{time.January, time.February, time.March, time.March} {
		_, err := s.RunAccruals(ctx, 2025, m)
		require.NoError(t, err)
	}

	// THEN: 3 x 2 EARNED days each
	assert.Equal(t, 6, earnedAllocated(t, engine, "emp-1", 2025))
	assert.Equal(t, 6, earnedAllocated(t, engine, "emp-2", 2025))
}

func TestScheduler_SingleWorkerMatchesParallel(t *testing.T) {
	s, engine := newSchedulerFixture(t, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	s.Workers = 1

	summary, err := s.RunAccruals(context.Background(), 2025, time.May)
	require.NoError(t, err)
	assert.Equal(t, AccrualSummary{Year: 2025, Month: 5, Employees: 2, Postings: 2}, summary)
	assert.Equal(t, 2, earnedAllocated(t, engine, "emp-2", 2025))
}

func TestScheduler_CancelledContext(t *testing.T) {
	s, engine := newSchedulerFixture(t, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunAccruals(ctx, 2025, time.January)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, earnedAllocated(t, engine, "emp-1", 2025))
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	// GIVEN: A scheduler whose clock reads January 2026, with 2025 accrued
	s, engine := newSchedulerFixture(t, time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC))
	_, err := s.RunAccruals(context.Background(), 2025, time.December)
	require.NoError(t, err)
	s.Interval = time.Hour

	// WHEN: Started
	s.Start(context.Background())
	defer s.Stop()

	// THEN: 2025 is carried forward and January 2026 accrued without waiting
	assert.Eventually(t, func() bool {
		entry, err := engine.Balance(context.Background(), "emp-1", leave.Earned, 2026)
		return err == nil && entry.CarriedForward.IntPart() == 2 && entry.Allocated.IntPart() == 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestScheduler_ZeroIntervalDisables(t *testing.T) {
	s, engine := newSchedulerFixture(t, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	s.Interval = 0

	s.Start(context.Background())
	s.Stop()

	assert.Zero(t, earnedAllocated(t, engine, "emp-1", 2025))
}
