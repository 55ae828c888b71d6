package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	leavemock "github.com/warp/leave-engine/leave/mock"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// HARNESS
// =============================================================================

var today = march(2)

type harness struct {
	ctx    context.Context
	engine *leave.Engine
	store  *memory.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	for _, e := range []leave.Employee{
		{ID: "emp-1", Name: "Nadia", Role: leave.RoleEmployee, ServiceYears: 5},
		{ID: "emp-2", Name: "Karim", Role: leave.RoleEmployee, ServiceYears: 1},
		{ID: "dh-1", Name: "Farhan", Role: leave.RoleDeptHead, ServiceYears: 8},
		{ID: "dh-2", Name: "Lina", Role: leave.RoleDeptHead, ServiceYears: 6},
		{ID: "hr-1", Name: "Rumana", Role: leave.RoleHRAdmin, ServiceYears: 4},
		{ID: "hrh-1", Name: "Tanvir", Role: leave.RoleHRHead, ServiceYears: 10},
	} {
		require.NoError(t, st.SaveEmployee(ctx, e))
	}
	engine := leave.NewEngine(st, st, st,
		leave.WithLogger(zap.NewNop()),
		leave.WithClock(func() time.Time { return time.Date(2025, time.March, 2, 10, 0, 0, 0, time.UTC) }),
	)
	return &harness{ctx: ctx, engine: engine, store: st}
}

func (h *harness) submit(t *testing.T, d leave.Draft) *leave.LeaveRequest {
	t.Helper()
	v, err := h.engine.ValidateSubmission(h.ctx, d, today)
	require.NoError(t, err)
	req, err := h.engine.Submit(h.ctx, v)
	require.NoError(t, err)
	return req
}

func (h *harness) decide(t *testing.T, req *leave.LeaveRequest, actor string, role leave.Role, a leave.Action, comment string) *leave.LeaveRequest {
	t.Helper()
	next, err := h.engine.Decide(h.ctx, leave.DecideCommand{
		RequestID: req.ID, ActorID: actor, ActorRole: role, Action: a, Comment: comment,
		ExpectedVersion: req.Version,
	})
	require.NoError(t, err)
	return next
}

func (h *harness) used(t *testing.T, emp string, lt leave.LeaveType) int {
	t.Helper()
	entry, err := h.engine.Balance(h.ctx, emp, lt, 2025)
	require.NoError(t, err)
	return entry.Used.IntPart()
}

func casualDraft(emp string) leave.Draft {
	d := draft(leave.Casual, march(10), march(11))
	d.EmployeeID = emp
	return d
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestEngine_SubmitForwardApprove_DebitsOnce(t *testing.T) {
	h := newHarness(t)

	// GIVEN: A 2-day CASUAL request from an employee
	req := h.submit(t, casualDraft("emp-1"))
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, []leave.Role{leave.RoleDeptHead, leave.RoleHRAdmin}, req.Route.Roles())
	assert.Equal(t, 1, req.Version)
	assert.Equal(t, 2, req.WorkingDaysCharged)

	// WHEN: Forwarded by the dept head and approved by HR
	req = h.decide(t, req, "dh-1", leave.RoleDeptHead, leave.ActionForward, "")
	assert.Zero(t, h.used(t, "emp-1", leave.Casual), "forwarding does not touch the ledger")
	req = h.decide(t, req, "hr-1", leave.RoleHRAdmin, leave.ActionApprove, "")

	// THEN: Approved at version 3, 2 days used
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.Equal(t, 3, req.Version)
	assert.Equal(t, 2, h.used(t, "emp-1", leave.Casual))

	stored, err := h.engine.Get(h.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, stored.Status)

	history, err := h.engine.History(h.ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, generic.AuditRequestSubmitted, history[0].Action)
	assert.Equal(t, "APPROVED", history[2].Payload["to"])
	assert.Equal(t, "debit", history[2].Payload["effect"])
}

func TestEngine_ConcurrentForward_ExactlyOneWins(t *testing.T) {
	// GIVEN: A request awaiting DEPT_HEAD, seen at version 1 by two dept heads
	// WHEN: Both forward at the same time
	// THEN: One succeeds, the other gets ErrConcurrentModification
	h := newHarness(t)
	req := h.submit(t, casualDraft("emp-1"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []string{"dh-1", "dh-2"} {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			_, errs[i] = h.engine.Decide(h.ctx, leave.DecideCommand{
				RequestID: req.ID, ActorID: actor, ActorRole: leave.RoleDeptHead,
				Action: leave.ActionForward, ExpectedVersion: 1,
			})
		}(i, actor)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, leave.ErrConcurrentModification)
			assert.True(t, leave.IsRetryable(err))
		}
	}
	assert.Equal(t, 1, failures)

	stored, err := h.engine.Get(h.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Len(t, stored.Chain, 2)
}

func TestEngine_StaleDecisionFromAnotherRole(t *testing.T) {
	// GIVEN: DEPT_HEAD and HR_ADMIN both opened the request at version 1
	h := newHarness(t)
	req := h.submit(t, casualDraft("emp-1"))
	h.decide(t, req, "dh-1", leave.RoleDeptHead, leave.ActionForward, "")

	// WHEN: HR_ADMIN acts on the stale copy
	_, err := h.engine.Decide(h.ctx, leave.DecideCommand{
		RequestID: req.ID, ActorID: "hr-1", ActorRole: leave.RoleHRAdmin,
		Action: leave.ActionApprove, ExpectedVersion: 1,
	})

	// THEN: Rejected as a concurrent modification, nothing debited
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
	assert.Zero(t, h.used(t, "emp-1", leave.Casual))
}

func TestEngine_ClaimedRoleMustMatchDirectory(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t, casualDraft("emp-1"))

	cases := []struct {
		name  string
		actor string
		role  leave.Role
	}{
		{"employee claims dept head", "emp-2", leave.RoleDeptHead},
		{"hr admin claims dept head", "hr-1", leave.RoleDeptHead},
		{"unknown actor", "ghost", leave.RoleDeptHead},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			// WHEN: The actor forwards under a role the directory does not list
			_, err := h.engine.Decide(h.ctx, leave.DecideCommand{
				RequestID: req.ID, ActorID: tc.actor, ActorRole: tc.role,
				Action: leave.ActionForward, ExpectedVersion: req.Version,
			})

			// THEN: Refused before any transition
			assert.ErrorIs(t, err, leave.ErrActorRoleMismatch)
			assert.False(t, leave.IsRetryable(err))
		})
	}

	stored, err := h.engine.Get(h.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, leave.StatusPending, stored.Status)
}

func TestEngine_InsufficientBalanceAtSubmit(t *testing.T) {
	// GIVEN: 3 EARNED days available
	h := newHarness(t)
	require.NoError(t, h.store.Ledger().Append(h.ctx, generic.Transaction{
		ID: "alloc-1", EntityID: "emp-1", PolicyID: leave.PolicyKey(leave.Earned, 2025),
		ResourceType: leave.Earned, EffectiveAt: generic.StartOfYear(2025),
		Delta: generic.Days(3), Type: generic.TxAllocation, IdempotencyKey: "alloc-1",
	}))

	// WHEN: A 5-day EARNED request is validated
	d := draft(leave.Earned, march(16), march(20))
	_, err := h.engine.ValidateSubmission(h.ctx, d, today)

	// THEN: InsufficientBalance, ledger untouched
	var verrs leave.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has(leave.InsufficientBalance))
	assert.Zero(t, h.used(t, "emp-1", leave.Earned))
}

func TestEngine_SubmitRevalidates(t *testing.T) {
	h := newHarness(t)
	v, err := h.engine.ValidateSubmission(h.ctx, casualDraft("emp-1"), today)
	require.NoError(t, err)

	// The draft is tampered with after validation.
	v.Draft.EndDate = march(6)
	_, err = h.engine.Submit(h.ctx, v)
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestEngine_StudyRequiresService(t *testing.T) {
	h := newHarness(t)
	d := draft(leave.Study, calendar.NewDate(2025, time.June, 1), calendar.NewDate(2025, time.June, 10))
	d.EmployeeID = "emp-2"

	_, err := h.engine.ValidateSubmission(h.ctx, d, today)
	var verrs leave.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has(leave.NotEligible))

	d.EmployeeID = "emp-1"
	v, err := h.engine.ValidateSubmission(h.ctx, d, today)
	require.NoError(t, err)
	assert.Equal(t, []leave.Role{leave.RoleDeptHead, leave.RoleHRAdmin, leave.RoleHRHead, leave.RoleCEO}, v.Route.Roles())
}

func TestEngine_ResubmitStartsNewRound(t *testing.T) {
	// GIVEN: A request returned by the dept head
	h := newHarness(t)
	req := h.submit(t, casualDraft("emp-1"))
	req = h.decide(t, req, "dh-1", leave.RoleDeptHead, leave.ActionReturn, "attach handover note")
	require.Equal(t, leave.StatusReturned, req.Status)
	assert.Equal(t, -1, req.OpenStep(), "a returned chain has no open step")

	// WHEN: The employee resubmits with unchanged dates
	d := casualDraft("emp-1")
	d.Reason = "family matters, handover with Lina"
	next, err := h.engine.Resubmit(h.ctx, req.ID, "emp-1", d, today, req.Version)
	require.NoError(t, err)

	// THEN: A new round opens at step 0, the returned step survives
	assert.Equal(t, leave.StatusPending, next.Status)
	assert.Equal(t, 1, next.Round)
	assert.Equal(t, 3, next.Version)
	require.Len(t, next.Chain, 2)
	assert.Equal(t, leave.DecisionReturned, next.Chain[0].Decision)
	assert.Equal(t, "attach handover note", next.Chain[0].Comment)
	assert.Equal(t, 0, next.Chain[0].Round)
	assert.Equal(t, leave.DecisionPending, next.Chain[1].Decision)
	assert.Equal(t, 0, next.Chain[1].Index)
	assert.Equal(t, 1, next.Chain[1].Round)
	assert.Len(t, next.CurrentRound(), 1)

	// The new round can be approved as usual.
	next = h.decide(t, next, "dh-1", leave.RoleDeptHead, leave.ActionForward, "")
	next = h.decide(t, next, "hr-1", leave.RoleHRAdmin, leave.ActionApprove, "")
	assert.Equal(t, 2, h.used(t, "emp-1", leave.Casual))
}

func TestEngine_ResubmitGuards(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t, casualDraft("emp-1"))

	_, err := h.engine.Resubmit(h.ctx, req.ID, "emp-1", casualDraft("emp-1"), today, 0)
	assert.ErrorIs(t, err, leave.ErrTransition, "pending requests cannot be resubmitted")

	req = h.decide(t, req, "dh-1", leave.RoleDeptHead, leave.ActionReturn, "fix")
	_, err = h.engine.Resubmit(h.ctx, req.ID, "dh-1", casualDraft("emp-1"), today, 0)
	assert.ErrorIs(t, err, leave.ErrTransition, "only the owner")

	_, err = h.engine.Resubmit(h.ctx, req.ID, "emp-1", casualDraft("emp-1"), today, 1)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
}

func TestEngine_OverdraftAtApprovalRollsBack(t *testing.T) {
	// GIVEN: Four 3-day CASUAL requests, each valid against the untouched 10 days
	h := newHarness(t)
	var reqs []*leave.LeaveRequest
	for i := 0; i < 4; i++ {
		d := draft(leave.Casual, march(10), march(12))
		d.EmployeeID = "dh-1"
		reqs = append(reqs, h.submit(t, d))
	}
	for _, r := range reqs[:3] {
		h.decide(t, r, "hr-1", leave.RoleHRAdmin, leave.ActionApprove, "")
	}
	require.Equal(t, 9, h.used(t, "dh-1", leave.Casual))

	// WHEN: The fourth is approved
	_, err := h.engine.Decide(h.ctx, leave.DecideCommand{
		RequestID: reqs[3].ID, ActorID: "hr-1", ActorRole: leave.RoleHRAdmin, Action: leave.ActionApprove,
	})

	// THEN: Overdraft, the request stays PENDING at its old version
	var od *leave.LedgerOverdraftError
	require.ErrorAs(t, err, &od)
	assert.False(t, leave.IsFatal(err))

	stored, err := h.engine.Get(h.ctx, reqs[3].ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, 9, h.used(t, "dh-1", leave.Casual))
}

func TestEngine_RecallCreditsBack(t *testing.T) {
	h := newHarness(t)
	d := casualDraft("dh-1")
	req := h.submit(t, d)
	req = h.decide(t, req, "hr-1", leave.RoleHRAdmin, leave.ActionApprove, "")
	require.Equal(t, 2, h.used(t, "dh-1", leave.Casual))

	req = h.decide(t, req, "hrh-1", leave.RoleHRHead, leave.ActionRecall, "office move")
	assert.Equal(t, leave.StatusRecalled, req.Status)
	assert.Zero(t, h.used(t, "dh-1", leave.Casual))
}

func TestEngine_HRHeadRoutesToCEO(t *testing.T) {
	h := newHarness(t)
	d := draft(leave.ExtraWithoutPay, march(20), march(30))
	d.EmployeeID = "hrh-1"
	req := h.submit(t, d)
	assert.Equal(t, []leave.Role{leave.RoleCEO}, req.Route.Roles())
}

// =============================================================================
// LEDGER FAILURE
// =============================================================================

type brokenLedger struct{ generic.Store }

func (brokenLedger) Append(context.Context, generic.Transaction) error {
	return errors.New("disk full")
}

type brokenTx struct{ leave.Tx }

func (b brokenTx) Ledger() generic.Store { return brokenLedger{b.Tx.Ledger()} }

type brokenStore struct{ *memory.Store }

func (s brokenStore) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx leave.Tx) error { return fn(brokenTx{tx}) })
}

func TestEngine_LedgerFailureIsFatalAndRollsBack(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t, casualDraft("dh-1"))

	engine := leave.NewEngine(brokenStore{h.store}, h.store, h.store)
	_, err := engine.Decide(h.ctx, leave.DecideCommand{
		RequestID: req.ID, ActorID: "hr-1", ActorRole: leave.RoleHRAdmin, Action: leave.ActionApprove,
	})

	var mismatch *leave.TransitionLedgerMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.True(t, leave.IsFatal(err))
	assert.Equal(t, leave.StatusApproved, mismatch.Status)

	stored, err := h.engine.Get(h.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

func TestEngine_UsesDirectoryAndHolidaySource(t *testing.T) {
	ctrl := gomock.NewController(t)
	directory := leavemock.NewMockDirectory(ctrl)
	holidays := leavemock.NewMockHolidaySource(ctrl)
	engine := leave.NewEngine(memory.New(), directory, holidays)
	ctx := context.Background()

	directory.EXPECT().Lookup(gomock.Any(), "emp-1").
		Return(leave.Employee{ID: "emp-1", Role: leave.RoleEmployee}, nil)
	holidays.EXPECT().Holidays(gomock.Any(), today, march(11)).
		Return([]calendar.Holiday{{Date: march(10), Name: "Shab-e-Barat"}}, nil)

	_, err := engine.ValidateSubmission(ctx, casualDraft("emp-1"), today)
	var verrs leave.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has(leave.EndpointOnNonWorkingDay))

	directory.EXPECT().Lookup(gomock.Any(), "ghost").
		Return(leave.Employee{}, leave.ErrEmployeeNotFound)
	_, err = engine.ValidateSubmission(ctx, casualDraft("ghost"), today)
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
	assert.True(t, leave.IsNotFound(err))
}

// =============================================================================
// SCHEDULED JOBS
// =============================================================================

func TestEngine_AccrueAndCarryForward(t *testing.T) {
	h := newHarness(t)

	for m := time.January; m <= time.December; m++ {
		n, err := h.engine.Accrue(h.ctx, "emp-1", 2025, m)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	n, err := h.engine.Accrue(h.ctx, "emp-1", 2025, time.March)
	require.NoError(t, err)
	assert.Zero(t, n, "rerun posts nothing")

	carried, err := h.engine.CarryForward(h.ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, map[leave.LeaveType]int{leave.Earned: 24}, carried)

	entries, err := h.engine.Balances(h.ctx, "emp-1", 2026)
	require.NoError(t, err)
	require.Len(t, entries, len(leave.AllLeaveTypes))
	assert.Equal(t, leave.Earned, entries[0].LeaveType)
	assert.Equal(t, 24, entries[0].CarriedForward.IntPart())

	audit, err := h.store.QueryAudit(h.ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditLedgerCarryForward}})
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestEngine_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Get(h.ctx, "nope")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)

	_, err = h.engine.Decide(h.ctx, leave.DecideCommand{RequestID: "nope", Action: leave.ActionApprove})
	assert.True(t, leave.IsNotFound(err))
}
