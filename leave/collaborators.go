package leave

import (
	"context"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
)

//go:generate mockgen -source=collaborators.go -destination=mock/collaborators_mock.go -package=mock Directory,HolidaySource

// Directory resolves employees. Returns ErrEmployeeNotFound for unknown IDs.
type Directory interface {
	Lookup(ctx context.Context, employeeID string) (Employee, error)
}

// HolidaySource supplies public holidays overlapping [from, to].
type HolidaySource interface {
	Holidays(ctx context.Context, from, to calendar.Date) ([]calendar.Holiday, error)
}

// Store persists requests, the ledger and the audit trail.
//
// Every write goes through WithTx: the request row, its ledger posting and
// its audit entry commit together or not at all.
type Store interface {
	GetRequest(ctx context.Context, id string) (LeaveRequest, error)
	ListRequestsByEmployee(ctx context.Context, employeeID string) ([]LeaveRequest, error)
	Ledger() generic.Store
	generic.AuditLog

	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write side of one unit of work.
type Tx interface {
	CreateRequest(ctx context.Context, req LeaveRequest) error

	// UpdateRequest writes req only if the stored version still equals
	// expectedVersion, otherwise ErrConcurrentModification.
	UpdateRequest(ctx context.Context, req LeaveRequest, expectedVersion int) error

	Ledger() generic.Store
	AppendAudit(ctx context.Context, entry generic.AuditEntry) error
}
