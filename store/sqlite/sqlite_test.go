package sqlite_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func march(day int) calendar.Date { return calendar.NewDate(2025, time.March, day) }

func seedDirectory(t *testing.T, st *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []leave.Employee{
		{ID: "emp-1", Name: "Nadia", Role: leave.RoleEmployee, ServiceYears: 5},
		{ID: "dh-1", Name: "Farhan", Role: leave.RoleDeptHead, ServiceYears: 8},
		{ID: "hr-1", Name: "Rumana", Role: leave.RoleHRAdmin, ServiceYears: 4},
	} {
		require.NoError(t, st.SaveEmployee(ctx, e))
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestStore_AppendAndLoad(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	policyID := leave.PolicyKey(leave.Casual, 2025)

	require.NoError(t, st.Append(ctx, generic.Transaction{
		ID: "tx-1", EntityID: "emp-1", PolicyID: policyID, ResourceType: leave.Casual,
		EffectiveAt: generic.StartOfYear(2025), Delta: generic.Days(10),
		Type: generic.TxAllocation, IdempotencyKey: "alloc-1",
		Metadata: map[string]string{"source": "test"},
	}))

	txs, err := st.Load(ctx, "emp-1", policyID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, leave.Casual, txs[0].ResourceType)
	assert.Equal(t, 10, txs[0].Delta.IntPart())
	assert.Equal(t, "test", txs[0].Metadata["source"])

	err = st.Append(ctx, generic.Transaction{
		ID: "tx-2", EntityID: "emp-1", PolicyID: policyID, ResourceType: leave.Casual,
		EffectiveAt: generic.StartOfYear(2025), Delta: generic.Days(10),
		Type: generic.TxAllocation, IdempotencyKey: "alloc-1",
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	ok, err := st.Exists(ctx, "alloc-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_AppendBatchAllOrNothing(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	policyID := leave.PolicyKey(leave.Earned, 2025)
	tx := func(id, key string) generic.Transaction {
		return generic.Transaction{
			ID: generic.TransactionID(id), EntityID: "emp-1", PolicyID: policyID,
			ResourceType: leave.Earned, EffectiveAt: generic.StartOfYear(2025),
			Delta: generic.Days(2), Type: generic.TxAccrual, IdempotencyKey: key,
		}
	}

	require.NoError(t, st.Append(ctx, tx("a", "k-1")))
	err := st.AppendBatch(ctx, []generic.Transaction{tx("b", "k-2"), tx("c", "k-1")})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	txs, err := st.Load(ctx, "emp-1", policyID)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "failed batch leaves no rows")
}

// =============================================================================
// REQUESTS
// =============================================================================

func sampleRequest() leave.LeaveRequest {
	now := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	return leave.LeaveRequest{
		ID: "req-1", EmployeeID: "emp-1", RequesterRole: leave.RoleEmployee,
		LeaveType: leave.Medical, StartDate: march(10), EndDate: march(12),
		WorkingDaysCharged: 3,
		Breakdown:          calendar.Breakdown{Total: 3, WorkingCount: 3},
		Reason:             "flu and fever, doctor visit",
		CertificateRef:     "cert-77",
		Status:             leave.StatusPending,
		Route:              leave.Route{{Role: leave.RoleDeptHead}, {Role: leave.RoleHRAdmin}},
		Chain: []leave.ApprovalStep{
			{Index: 0, Round: 0, RequiredRole: leave.RoleDeptHead, Decision: leave.DecisionPending},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_RequestRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	req := sampleRequest()
	req.PayBands = &leave.PayBands{FullPayDays: 3}

	require.NoError(t, st.WithTx(ctx, func(tx leave.Tx) error {
		return tx.CreateRequest(ctx, req)
	}))

	got, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, req.StartDate, got.StartDate)
	assert.Equal(t, req.Breakdown, got.Breakdown)
	assert.Equal(t, req.Route.Roles(), got.Route.Roles())
	assert.Equal(t, "cert-77", got.CertificateRef)
	assert.True(t, got.IncidentDate.IsZero())
	require.NotNil(t, got.PayBands)
	assert.Equal(t, 3, got.PayBands.FullPayDays)
	require.Len(t, got.Chain, 1)
	assert.Equal(t, leave.DecisionPending, got.Chain[0].Decision)

	list, err := st.ListRequestsByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = st.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

func TestStore_UpdateRequestChecksVersion(t *testing.T) {
	// GIVEN: A stored request at version 1
	st := newStore(t)
	ctx := context.Background()
	req := sampleRequest()
	require.NoError(t, st.WithTx(ctx, func(tx leave.Tx) error { return tx.CreateRequest(ctx, req) }))

	// WHEN: One writer moves it to version 2 and another writes from version 1
	next := req.Clone()
	next.Status = leave.StatusApproved
	next.Version = 2
	require.NoError(t, st.WithTx(ctx, func(tx leave.Tx) error { return tx.UpdateRequest(ctx, next, 1) }))

	stale := req.Clone()
	stale.Status = leave.StatusRejected
	stale.Version = 2
	err := st.WithTx(ctx, func(tx leave.Tx) error { return tx.UpdateRequest(ctx, stale, 1) })

	// THEN: The stale write is refused and the first one stands
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
	got, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, 2, got.Version)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	policyID := leave.PolicyKey(leave.Casual, 2025)

	err := st.WithTx(ctx, func(tx leave.Tx) error {
		if err := tx.CreateRequest(ctx, sampleRequest()); err != nil {
			return err
		}
		if err := tx.Ledger().Append(ctx, generic.Transaction{
			ID: "tx-1", EntityID: "emp-1", PolicyID: policyID, ResourceType: leave.Casual,
			EffectiveAt: generic.StartOfYear(2025), Delta: generic.Days(-2),
			Type: generic.TxConsumption, IdempotencyKey: "debit-1",
		}); err != nil {
			return err
		}
		// reads inside the unit of work see its own writes
		ok, err := tx.Ledger().Exists(ctx, "debit-1")
		if err != nil {
			return err
		}
		assert.True(t, ok)
		return leave.ErrLedgerOverdraft
	})
	assert.ErrorIs(t, err, leave.ErrLedgerOverdraft)

	_, err = st.GetRequest(ctx, "req-1")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
	ok, err := st.Exists(ctx, "debit-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// DIRECTORY, HOLIDAYS, AUDIT
// =============================================================================

func TestStore_Directory(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedDirectory(t, st)

	emp, err := st.Lookup(ctx, "dh-1")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleDeptHead, emp.Role)

	require.NoError(t, st.SaveEmployee(ctx, leave.Employee{ID: "dh-1", Name: "Farhan", Role: leave.RoleHRHead, ServiceYears: 9}))
	emp, err = st.Lookup(ctx, "dh-1")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleHRHead, emp.Role)

	all, err := st.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dh-1", all[0].ID)

	_, err = st.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

func TestStore_HolidaysInRange(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddHoliday(ctx, calendar.Holiday{Date: march(17), Name: "Birthday of the Father of the Nation"}))
	require.NoError(t, st.AddHoliday(ctx, calendar.Holiday{Date: march(26), Name: "Independence Day"}))
	require.NoError(t, st.AddHoliday(ctx, calendar.Holiday{Date: march(31), Name: "Eid", IsOptional: true}))

	got, err := st.Holidays(ctx, march(1), march(26))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, march(17), got[0].Date)
	assert.Equal(t, "Independence Day", got[1].Name)
}

func TestStore_AuditQuery(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)

	for i, a := range []generic.AuditAction{generic.AuditRequestSubmitted, generic.AuditRequestDecided} {
		require.NoError(t, st.AppendAudit(ctx, generic.AuditEntry{
			ID: "a-" + string(a), Timestamp: base.Add(time.Duration(i) * time.Minute),
			ActorID: "emp-1", Action: a, EntityID: "emp-1", ReferenceID: "req-1",
			Payload: map[string]any{"version": i + 1},
		}))
	}

	ref := "req-1"
	entries, err := st.QueryAudit(ctx, generic.AuditFilter{ReferenceID: &ref})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.AuditRequestSubmitted, entries[0].Action)
	assert.EqualValues(t, 2, entries[1].Payload["version"])

	entries, err = st.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRequestDecided}})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestStore_EngineLifecycle(t *testing.T) {
	// GIVEN: A SQLite-backed engine and a public holiday on Tuesday Mar 11
	st := newStore(t)
	ctx := context.Background()
	seedDirectory(t, st)
	require.NoError(t, st.AddHoliday(ctx, calendar.Holiday{Date: march(11), Name: "Shab-e-Barat"}))
	engine := leave.NewEngine(st, st, st,
		leave.WithClock(func() time.Time { return time.Date(2025, time.March, 2, 10, 0, 0, 0, time.UTC) }),
	)

	// WHEN: A Mon-Wed CASUAL request is submitted, forwarded and approved
	v, err := engine.ValidateSubmission(ctx, leave.Draft{
		EmployeeID: "emp-1", LeaveType: leave.Casual,
		StartDate: march(10), EndDate: march(12), Reason: "family matters at home",
	}, march(2))
	require.NoError(t, err)
	req, err := engine.Submit(ctx, v)
	require.NoError(t, err)

	req, err = engine.Decide(ctx, leave.DecideCommand{
		RequestID: req.ID, ActorID: "dh-1", ActorRole: leave.RoleDeptHead,
		Action: leave.ActionForward, ExpectedVersion: req.Version,
	})
	require.NoError(t, err)
	req, err = engine.Decide(ctx, leave.DecideCommand{
		RequestID: req.ID, ActorID: "hr-1", ActorRole: leave.RoleHRAdmin,
		Action: leave.ActionApprove, ExpectedVersion: req.Version,
	})
	require.NoError(t, err)

	// THEN: The holiday inside the range is charged and the debit is persisted
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.Equal(t, 3, req.WorkingDaysCharged)
	entry, err := engine.Balance(ctx, "emp-1", leave.Casual, 2025)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Used.IntPart())
	assert.Equal(t, 7, entry.Available().IntPart())

	history, err := engine.History(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

// =============================================================================
// OPTIMISTIC LOCKING (sqlmock)
// =============================================================================

func TestUpdateRequest_ZeroRowsDistinguishesMissingFromStale(t *testing.T) {
	cases := []struct {
		name    string
		present int
		want    error
	}{
		{"stale version", 1, leave.ErrConcurrentModification},
		{"missing row", 0, leave.ErrRequestNotFound},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			st := sqlite.NewWithDB(db)

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE leave_requests SET").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM leave_requests WHERE id = ?")).
				WithArgs("req-1").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tc.present))
			mock.ExpectRollback()

			err = st.WithTx(context.Background(), func(tx leave.Tx) error {
				return tx.UpdateRequest(context.Background(), sampleRequest(), 1)
			})

			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
