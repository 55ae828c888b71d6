/*
engine.go - Orchestrates validation, routing and the ledger over a store

PURPOSE:
  The Engine is the only entry point that writes. Each public method is
  one unit of work: read, compute with the pure functions in this
  package, then commit the request row, ledger postings and audit entry
  in a single store transaction.

CONCURRENCY:
  Decide and Resubmit are linearised per request by version. The request
  is read at version v; UpdateRequest commits only if the stored version
  is still v. The loser gets ErrConcurrentModification and nothing it
  computed is written.

LEDGER FAILURES:
  An overdraft at approval rolls back and surfaces LedgerOverdraftError.
  Any other ledger error rolls back and surfaces
  TransitionLedgerMismatchError, logged at error level.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
)

type Engine struct {
	store     Store
	directory Directory
	holidays  HolidaySource
	policies  PolicyTable
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l.Named("leave.engine") }
}

// WithClock sets the clock used for timestamps. It never decides "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func WithPolicies(p PolicyTable) Option {
	return func(e *Engine) { e.policies = p }
}

func NewEngine(store Store, directory Directory, holidays HolidaySource, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		directory: directory,
		holidays:  holidays,
		policies:  DefaultPolicies(),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policies returns the table the engine validates against.
func (e *Engine) Policies() PolicyTable { return e.policies }

// =============================================================================
// VALIDATE / SUBMIT
// =============================================================================

// ValidatedRequest is a draft that passed every rule on ValidatedOn.
type ValidatedRequest struct {
	Draft         Draft
	RequesterRole Role
	Charge        Charge
	PayBands      *PayBands
	Route         Route
	ValidatedOn   calendar.Date
}

// ValidateSubmission loads the requester, holidays and balance and runs the
// validator. A failed validation returns ValidationErrors.
func (e *Engine) ValidateSubmission(ctx context.Context, d Draft, today calendar.Date) (*ValidatedRequest, error) {
	policy, err := e.policies.Get(d.LeaveType)
	if err != nil {
		return nil, ValidationErrors{{Kind: MissingField, Field: "leave_type", Message: err.Error()}}
	}

	var requester Employee
	if d.EmployeeID != "" {
		requester, err = e.directory.Lookup(ctx, d.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("validate: %w", err)
		}
	}

	holidays := calendar.HolidaySet{}
	available := generic.Days(0)
	if !d.StartDate.IsZero() && !d.EndDate.IsZero() {
		holidays, err = e.loadHolidays(ctx, d.StartDate, d.EndDate, today)
		if err != nil {
			return nil, err
		}
		entry, err := NewBalanceLedger(e.store.Ledger(), e.policies).Snapshot(ctx, d.EmployeeID, d.LeaveType, d.StartDate.Year())
		if err != nil {
			return nil, fmt.Errorf("validate: %w", err)
		}
		available = entry.Available()
	}

	charge, verrs := Validate(policy, d, available, holidays, today)
	if d.EmployeeID != "" && requester.ServiceYears < policy.MinServiceYears {
		verrs.add(NotEligible, "leave_type", "%s leave requires %d years of service, %s has %d",
			policy.LeaveType, policy.MinServiceYears, requester.ID, requester.ServiceYears)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	route, err := ResolveRoute(policy.Chain, requester.Role)
	if err != nil {
		return nil, err
	}
	v := &ValidatedRequest{
		Draft:         d,
		RequesterRole: requester.Role,
		Charge:        charge,
		Route:         route,
		ValidatedOn:   today,
	}
	if policy.PayBands != nil {
		pb := policy.PayBands.Compute(d.IncidentDate, d.StartDate, charge.Breakdown.Total)
		v.PayBands = &pb
	}
	return v, nil
}

// loadHolidays covers both the leave range and the notice/backdate window.
func (e *Engine) loadHolidays(ctx context.Context, start, end, today calendar.Date) (calendar.HolidaySet, error) {
	from, to := start, end
	if today.Before(from) {
		from = today
	}
	if today.After(to) {
		to = today
	}
	list, err := e.holidays.Holidays(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	return calendar.NewHolidaySet(list...), nil
}

// Submit persists a validated request and opens its first approval step.
// The draft is re-validated against the current balance so a stale
// ValidatedRequest cannot bypass the rules.
func (e *Engine) Submit(ctx context.Context, v *ValidatedRequest) (*LeaveRequest, error) {
	if v == nil {
		return nil, errors.New("submit: nil request")
	}
	fresh, err := e.ValidateSubmission(ctx, v.Draft, v.ValidatedOn)
	if err != nil {
		return nil, err
	}

	now := e.now()
	req := LeaveRequest{
		ID:                    e.newID(),
		EmployeeID:            fresh.Draft.EmployeeID,
		RequesterRole:         fresh.RequesterRole,
		LeaveType:             fresh.Draft.LeaveType,
		StartDate:             fresh.Draft.StartDate,
		EndDate:               fresh.Draft.EndDate,
		WorkingDaysCharged:    fresh.Charge.Days,
		Breakdown:             fresh.Charge.Breakdown,
		Reason:                fresh.Draft.Reason,
		IncidentDate:          fresh.Draft.IncidentDate,
		CertificateRef:        fresh.Draft.CertificateRef,
		FitnessCertificateRef: fresh.Draft.FitnessCertificateRef,
		PayBands:              fresh.PayBands,
		Status:                StatusSubmitted,
		Route:                 fresh.Route,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	req = Seed(req, now)

	err = e.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, e.audit(req, req.EmployeeID, generic.AuditRequestSubmitted, map[string]any{
			"leave_type": string(req.LeaveType),
			"days":       req.WorkingDaysCharged,
			"route":      req.Route.Roles(),
			"status":     string(req.Status),
			"version":    req.Version,
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	e.logger.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("employee_id", req.EmployeeID),
		zap.String("leave_type", string(req.LeaveType)),
		zap.Int("days", req.WorkingDaysCharged))
	return &req, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// DecideCommand is one actor decision on one request. ExpectedVersion is
// the version the actor saw; zero skips the early check.
type DecideCommand struct {
	RequestID       string
	ActorID         string
	ActorRole       Role
	Action          Action
	Comment         string
	ExpectedVersion int
}

func (e *Engine) Decide(ctx context.Context, cmd DecideCommand) (*LeaveRequest, error) {
	current, err := e.store.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != current.Version {
		return nil, fmt.Errorf("request %s is at version %d, not %d: %w",
			current.ID, current.Version, cmd.ExpectedVersion, ErrConcurrentModification)
	}
	if err := e.checkActor(ctx, cmd.ActorID, cmd.ActorRole); err != nil {
		return nil, err
	}

	out, err := Transition(current, Command{
		Action:    cmd.Action,
		ActorID:   cmd.ActorID,
		ActorRole: cmd.ActorRole,
		Comment:   cmd.Comment,
	}, e.now())
	if err != nil {
		return nil, err
	}
	next := out.Request

	err = e.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.UpdateRequest(ctx, next, current.Version); err != nil {
			return err
		}
		if err := e.applyEffect(ctx, tx, next, out.Effect, cmd.ActorID); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, e.audit(next, cmd.ActorID, generic.AuditRequestDecided, map[string]any{
			"action":     string(cmd.Action),
			"actor_role": string(cmd.ActorRole),
			"comment":    cmd.Comment,
			"from":       string(out.From),
			"to":         string(next.Status),
			"effect":     out.Effect.String(),
			"version":    next.Version,
		}))
	})
	if err != nil {
		if IsFatal(err) {
			e.logger.Error("transition rolled back, ledger posting failed",
				zap.String("request_id", next.ID),
				zap.String("status", string(next.Status)),
				zap.Error(err))
		}
		return nil, err
	}

	e.logger.Info("request decided",
		zap.String("request_id", next.ID),
		zap.String("action", string(cmd.Action)),
		zap.String("from", string(out.From)),
		zap.String("to", string(next.Status)),
		zap.Int("version", next.Version))
	return &next, nil
}

// checkActor confirms the directory lists actorID with the claimed role.
func (e *Engine) checkActor(ctx context.Context, actorID string, role Role) error {
	emp, err := e.directory.Lookup(ctx, actorID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return fmt.Errorf("actor %q is not in the directory: %w", actorID, ErrActorRoleMismatch)
	}
	if err != nil {
		return fmt.Errorf("lookup actor: %w", err)
	}
	if emp.Role != role {
		return fmt.Errorf("actor %q is %s, not %s: %w", actorID, emp.Role, role, ErrActorRoleMismatch)
	}
	return nil
}

// applyEffect posts the debit or credit a transition requires.
func (e *Engine) applyEffect(ctx context.Context, tx Tx, req LeaveRequest, effect LedgerEffect, actor string) error {
	if effect == EffectNone {
		return nil
	}
	ledger := NewBalanceLedger(tx.Ledger(), e.policies)
	ledger.now = e.now
	p := Posting{
		EmployeeID:   req.EmployeeID,
		LeaveType:    req.LeaveType,
		Year:         req.Year(),
		Days:         req.WorkingDaysCharged,
		EffectiveAt:  req.StartDate,
		RequestID:    req.ID,
		TransitionID: fmt.Sprintf("r%d-v%d", req.Round, req.Version),
		Actor:        actor,
	}

	var err error
	if effect == EffectDebit {
		err = ledger.Debit(ctx, p)
	} else {
		err = ledger.Credit(ctx, p)
	}
	if err == nil || errors.Is(err, ErrLedgerOverdraft) {
		return err
	}
	return &TransitionLedgerMismatchError{RequestID: req.ID, Status: req.Status, Err: err}
}

// =============================================================================
// RESUBMIT
// =============================================================================

// Resubmit re-validates an edited draft for a RETURNED request and opens a
// new round at step 0. Earlier rounds stay in the chain.
func (e *Engine) Resubmit(ctx context.Context, requestID, actorID string, d Draft, today calendar.Date, expectedVersion int) (*LeaveRequest, error) {
	current, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != current.Version {
		return nil, fmt.Errorf("request %s is at version %d, not %d: %w",
			current.ID, current.Version, expectedVersion, ErrConcurrentModification)
	}
	deny := func(reason string) error {
		return &TransitionError{RequestID: current.ID, Status: current.Status.Normalize(), Action: "RESUBMIT", Reason: reason}
	}
	if current.Status.Normalize() != StatusReturned {
		return nil, deny("only returned requests can be resubmitted")
	}
	if actorID != current.EmployeeID {
		return nil, deny("only the requesting employee can resubmit")
	}

	d.EmployeeID = current.EmployeeID
	d.LeaveType = current.LeaveType
	v, err := e.ValidateSubmission(ctx, d, today)
	if err != nil {
		return nil, err
	}

	now := e.now()
	next := current.Clone()
	next.StartDate = d.StartDate
	next.EndDate = d.EndDate
	next.Reason = d.Reason
	next.IncidentDate = d.IncidentDate
	next.CertificateRef = d.CertificateRef
	next.FitnessCertificateRef = d.FitnessCertificateRef
	next.WorkingDaysCharged = v.Charge.Days
	next.Breakdown = v.Charge.Breakdown
	next.PayBands = v.PayBands
	next.Route = v.Route
	next.RequesterRole = v.RequesterRole
	next.Round++
	next.Status = StatusSubmitted
	next.Version = current.Version + 1
	next = Seed(next, now)

	err = e.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.UpdateRequest(ctx, next, current.Version); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, e.audit(next, actorID, generic.AuditRequestResubmitted, map[string]any{
			"round":   next.Round,
			"days":    next.WorkingDaysCharged,
			"from":    string(StatusReturned),
			"to":      string(next.Status),
			"version": next.Version,
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("resubmit: %w", err)
	}
	e.logger.Info("request resubmitted", zap.String("request_id", next.ID), zap.Int("round", next.Round))
	return &next, nil
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Get(ctx context.Context, requestID string) (*LeaveRequest, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (e *Engine) ListByEmployee(ctx context.Context, employeeID string) ([]LeaveRequest, error) {
	return e.store.ListRequestsByEmployee(ctx, employeeID)
}

func (e *Engine) Balance(ctx context.Context, employeeID string, t LeaveType, year int) (Entry, error) {
	return NewBalanceLedger(e.store.Ledger(), e.policies).Snapshot(ctx, employeeID, t, year)
}

// Balances returns one entry per configured leave type, in display order.
func (e *Engine) Balances(ctx context.Context, employeeID string, year int) ([]Entry, error) {
	ledger := NewBalanceLedger(e.store.Ledger(), e.policies)
	var out []Entry
	for _, t := range AllLeaveTypes {
		if _, ok := e.policies[t]; !ok {
			continue
		}
		entry, err := ledger.Snapshot(ctx, employeeID, t, year)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// History returns the audit trail of a request, oldest first.
func (e *Engine) History(ctx context.Context, requestID string) ([]generic.AuditEntry, error) {
	entries, err := e.store.QueryAudit(ctx, generic.AuditFilter{ReferenceID: &requestID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	return entries, nil
}

// =============================================================================
// SCHEDULED JOBS
// =============================================================================

// Accrue posts month's accrual for every accruing type. Reruns post nothing.
func (e *Engine) Accrue(ctx context.Context, employeeID string, year int, month time.Month) (int, error) {
	posted := 0
	err := e.store.WithTx(ctx, func(tx Tx) error {
		posted = 0
		ledger := NewBalanceLedger(tx.Ledger(), e.policies)
		ledger.now = e.now
		for _, t := range e.policies.Accruing() {
			ok, err := ledger.Accrue(ctx, employeeID, t, year, month)
			if err != nil {
				return err
			}
			if ok {
				posted++
			}
		}
		if posted == 0 {
			return nil
		}
		return tx.AppendAudit(ctx, e.jobAudit(employeeID, generic.AuditLedgerAccrual, map[string]any{
			"year": year, "month": int(month), "postings": posted,
		}))
	})
	if err != nil {
		return 0, fmt.Errorf("accrue %s %04d-%02d: %w", employeeID, year, int(month), err)
	}
	return posted, nil
}

// CarryForward moves capped unused balances of fromYear into fromYear+1.
func (e *Engine) CarryForward(ctx context.Context, employeeID string, fromYear int) (map[LeaveType]int, error) {
	carried := map[LeaveType]int{}
	err := e.store.WithTx(ctx, func(tx Tx) error {
		clear(carried)
		ledger := NewBalanceLedger(tx.Ledger(), e.policies)
		ledger.now = e.now
		for _, t := range e.policies.CarryingForward() {
			days, err := ledger.CarryForward(ctx, employeeID, t, fromYear)
			if err != nil {
				return err
			}
			if days > 0 {
				carried[t] = days
			}
		}
		if len(carried) == 0 {
			return nil
		}
		payload := map[string]any{"from_year": fromYear}
		for t, d := range carried {
			payload[string(t)] = d
		}
		return tx.AppendAudit(ctx, e.jobAudit(employeeID, generic.AuditLedgerCarryForward, payload))
	})
	if err != nil {
		return nil, fmt.Errorf("carry forward %s from %d: %w", employeeID, fromYear, err)
	}
	return carried, nil
}

func (e *Engine) audit(req LeaveRequest, actor string, action generic.AuditAction, payload map[string]any) generic.AuditEntry {
	return generic.AuditEntry{
		ID:          e.newID(),
		Timestamp:   e.now(),
		ActorID:     actor,
		Action:      action,
		EntityID:    generic.EntityID(req.EmployeeID),
		ReferenceID: req.ID,
		Payload:     payload,
	}
}

func (e *Engine) jobAudit(employeeID string, action generic.AuditAction, payload map[string]any) generic.AuditEntry {
	return generic.AuditEntry{
		ID:        e.newID(),
		Timestamp: e.now(),
		ActorID:   "system",
		Action:    action,
		EntityID:  generic.EntityID(employeeID),
		Payload:   payload,
	}
}
