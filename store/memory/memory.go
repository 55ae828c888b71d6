// Package memory is an in-process leave.Store, leave.Directory and
// leave.HolidaySource for development and tests. Nothing survives a
// restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	gstore "github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
)

type Store struct {
	ledger *gstore.Memory
	txMu   sync.Mutex

	mu        sync.RWMutex
	requests  map[string]leave.LeaveRequest
	audit     []generic.AuditEntry
	employees map[string]leave.Employee
	holidays  calendar.HolidaySet
}

var (
	_ leave.Store         = (*Store)(nil)
	_ leave.Directory     = (*Store)(nil)
	_ leave.HolidaySource = (*Store)(nil)
)

func New() *Store {
	return &Store{
		ledger:    gstore.NewMemory(),
		requests:  make(map[string]leave.LeaveRequest),
		employees: make(map[string]leave.Employee),
		holidays:  calendar.HolidaySet{},
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) GetRequest(_ context.Context, id string) (leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return leave.LeaveRequest{}, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	return req.Clone(), nil
}

func (s *Store) ListRequestsByEmployee(_ context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.LeaveRequest
	for _, req := range s.requests {
		if req.EmployeeID == employeeID {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Ledger() generic.Store { return s.ledger }

// =============================================================================
// AUDIT
// =============================================================================

func (s *Store) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range s.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx runs fn against staged ledger, request and audit writes and
// publishes them only if fn succeeds. Readers outside the unit never see
// a posting that is later abandoned. Units of work are serialized, so the
// version check in UpdateRequest is exact.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, ledger: s.ledger.Begin(), requests: map[string]leave.LeaveRequest{}}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.ledger.Commit(ctx); err != nil {
		return err
	}
	for id, req := range tx.requests {
		s.requests[id] = req
	}
	s.audit = append(s.audit, tx.audit...)
	return nil
}

type memTx struct {
	store    *Store
	ledger   *gstore.Staged
	requests map[string]leave.LeaveRequest
	audit    []generic.AuditEntry
}

func (t *memTx) current(id string) (leave.LeaveRequest, bool) {
	if req, ok := t.requests[id]; ok {
		return req, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	req, ok := t.store.requests[id]
	return req, ok
}

func (t *memTx) CreateRequest(_ context.Context, req leave.LeaveRequest) error {
	if _, exists := t.current(req.ID); exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	t.requests[req.ID] = req.Clone()
	return nil
}

func (t *memTx) UpdateRequest(_ context.Context, req leave.LeaveRequest, expectedVersion int) error {
	stored, ok := t.current(req.ID)
	if !ok {
		return fmt.Errorf("request %s: %w", req.ID, leave.ErrRequestNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("request %s is at version %d, not %d: %w",
			req.ID, stored.Version, expectedVersion, leave.ErrConcurrentModification)
	}
	t.requests[req.ID] = req.Clone()
	return nil
}

func (t *memTx) Ledger() generic.Store { return t.ledger }

func (t *memTx) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	t.audit = append(t.audit, entry)
	return nil
}

// =============================================================================
// DIRECTORY / HOLIDAYS
// =============================================================================

func (s *Store) Lookup(_ context.Context, employeeID string) (leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[employeeID]
	if !ok {
		return leave.Employee{}, fmt.Errorf("employee %s: %w", employeeID, leave.ErrEmployeeNotFound)
	}
	return emp, nil
}

func (s *Store) SaveEmployee(_ context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[emp.ID] = emp
	return nil
}

func (s *Store) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leave.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Holidays(_ context.Context, from, to calendar.Date) ([]calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []calendar.Holiday
	for _, h := range s.holidays.List() {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) AddHoliday(_ context.Context, h calendar.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[h.Date] = h
	return nil
}

func (s *Store) Close() error { return nil }
