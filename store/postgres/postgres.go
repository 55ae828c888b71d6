/*
Package postgres provides a PostgreSQL-backed implementation of the storage interfaces.

PURPOSE:
  Same contract as store/sqlite for multi-instance deployments. Selected
  when DATABASE_URL is set.

DIFFERENCES FROM SQLITE:
  - Connection pool (pgxpool) instead of a process-wide mutex
  - Units of work run at SERIALIZABLE isolation so two approvals for the
    same employee cannot both pass the balance check
  - Serialization failures (SQLSTATE 40001) surface as
    leave.ErrConcurrentModification, which callers already retry
  - JSON columns use JSONB

USAGE:
  store, err := postgres.Connect(ctx, cfg.DatabaseURL)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
)

// Store implements all storage interfaces on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ leave.Store         = (*Store)(nil)
	_ leave.Directory     = (*Store)(nil)
	_ leave.HolidaySource = (*Store)(nil)
	_ generic.Store       = (*Store)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool and migrates the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	effective_at TIMESTAMPTZ NOT NULL,
	delta_value TEXT NOT NULL,
	delta_unit TEXT NOT NULL,
	tx_type TEXT NOT NULL,
	reference_id TEXT,
	reason TEXT,
	idempotency_key TEXT UNIQUE,
	metadata_json JSONB,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	seq BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_transactions_entity_policy_date
	ON transactions(entity_id, policy_id, effective_at);

CREATE TABLE IF NOT EXISTS leave_requests (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	requester_role TEXT NOT NULL,
	leave_type TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	days_charged INTEGER NOT NULL,
	breakdown_json JSONB NOT NULL,
	reason TEXT NOT NULL,
	incident_date TEXT,
	certificate_ref TEXT,
	fitness_certificate_ref TEXT,
	pay_bands_json JSONB,
	status TEXT NOT NULL,
	route_json JSONB NOT NULL,
	chain_json JSONB NOT NULL,
	round INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
	ON leave_requests(employee_id, created_at);

CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	service_years INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS holidays (
	date TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	is_optional BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	reference_id TEXT,
	payload_json JSONB,
	seq BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_audit_reference ON audit_log(reference_id);
`

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const selectTransactions = `
SELECT id, entity_id, policy_id, resource_type, effective_at, delta_value, delta_unit,
       tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at
FROM transactions
`

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, s.pool, tx)
}

func appendTx(ctx context.Context, q querier, tx generic.Transaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	createdAt := tx.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = q.Exec(ctx, `
		INSERT INTO transactions
		(id, entity_id, policy_id, resource_type, effective_at, delta_value, delta_unit,
		 tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		string(tx.ID), string(tx.EntityID), string(tx.PolicyID), tx.ResourceType.ResourceID(),
		tx.EffectiveAt.Time, tx.Delta.Value.String(), string(tx.Delta.Unit), string(tx.Type),
		nullable(tx.ReferenceID), tx.Reason, nullable(tx.IdempotencyKey), metadata,
		nullable(tx.CreatedBy), createdAt.UTC(),
	)
	if err != nil {
		if hasCode(err, sqlStateUniqueViolation) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, t := range txs {
			if err := appendTx(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	return queryTransactions(ctx, s.pool, selectTransactions+`
		WHERE entity_id = $1 AND policy_id = $2 ORDER BY effective_at, seq`,
		string(entityID), string(policyID))
}

func (s *Store) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return loadRange(ctx, s.pool, entityID, policyID, from, to)
}

func loadRange(ctx context.Context, q querier, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return queryTransactions(ctx, q, selectTransactions+`
		WHERE entity_id = $1 AND policy_id = $2 AND effective_at >= $3 AND effective_at <= $4
		ORDER BY effective_at, seq`,
		string(entityID), string(policyID), from.Time, to.Time)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, s.pool, idempotencyKey)
}

func exists(ctx context.Context, q querier, key string) (bool, error) {
	var found bool
	err := q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM transactions WHERE idempotency_key = $1)", key).Scan(&found)
	return found, err
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		var (
			id, entityID, policyID, resourceID string
			deltaValue, deltaUnit, txType      string
			effectiveAt, createdAt             time.Time
			referenceID, reason, key, by       *string
			metadata                           []byte
		)
		if err := rows.Scan(&id, &entityID, &policyID, &resourceID, &effectiveAt, &deltaValue, &deltaUnit,
			&txType, &referenceID, &reason, &key, &metadata, &by, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx := generic.Transaction{
			ID:             generic.TransactionID(id),
			EntityID:       generic.EntityID(entityID),
			PolicyID:       generic.PolicyID(policyID),
			ResourceType:   generic.GetOrCreateResource(resourceID),
			EffectiveAt:    generic.TimePoint{Time: effectiveAt.UTC()},
			Delta:          generic.Amount{Value: generic.MustParseDecimal(deltaValue), Unit: generic.Unit(deltaUnit)},
			Type:           generic.TransactionType(txType),
			ReferenceID:    deref(referenceID),
			Reason:         deref(reason),
			IdempotencyKey: deref(key),
			CreatedBy:      deref(by),
			CreatedAt:      generic.TimePoint{Time: createdAt.UTC()},
		}
		if len(metadata) > 0 && string(metadata) != "null" {
			if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("transaction %s metadata: %w", id, err)
			}
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (s *Store) Ledger() generic.Store { return s }

const selectRequests = `
SELECT id, employee_id, requester_role, leave_type, start_date, end_date, days_charged,
       breakdown_json, reason, incident_date, certificate_ref, fitness_certificate_ref,
       pay_bands_json, status, route_json, chain_json, round, version, created_at, updated_at
FROM leave_requests
`

func (s *Store) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	rows, err := s.pool.Query(ctx, selectRequests+" WHERE id = $1", id)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to query request: %w", err)
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	if len(reqs) == 0 {
		return leave.LeaveRequest{}, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	return reqs[0], nil
}

func (s *Store) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	rows, err := s.pool.Query(ctx, selectRequests+" WHERE employee_id = $1 ORDER BY created_at, id", employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	return collectRequests(rows)
}

func collectRequests(rows pgx.Rows) ([]leave.LeaveRequest, error) {
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		var (
			req                               leave.LeaveRequest
			role, leaveType, status           string
			start, end                        string
			incident, certRef, fitnessRef     *string
			breakdown, payBands, route, chain []byte
		)
		err := rows.Scan(&req.ID, &req.EmployeeID, &role, &leaveType, &start, &end, &req.WorkingDaysCharged,
			&breakdown, &req.Reason, &incident, &certRef, &fitnessRef,
			&payBands, &status, &route, &chain, &req.Round, &req.Version, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req.RequesterRole = leave.Role(role)
		req.LeaveType = leave.LeaveType(leaveType)
		req.Status = leave.Status(status).Normalize()
		req.CertificateRef = deref(certRef)
		req.FitnessCertificateRef = deref(fitnessRef)

		if req.StartDate, err = calendar.ParseDate(start); err != nil {
			return nil, err
		}
		if req.EndDate, err = calendar.ParseDate(end); err != nil {
			return nil, err
		}
		if incident != nil {
			if req.IncidentDate, err = calendar.ParseDate(*incident); err != nil {
				return nil, err
			}
		}
		if err := json.Unmarshal(breakdown, &req.Breakdown); err != nil {
			return nil, fmt.Errorf("request %s breakdown: %w", req.ID, err)
		}
		if err := json.Unmarshal(route, &req.Route); err != nil {
			return nil, fmt.Errorf("request %s route: %w", req.ID, err)
		}
		if err := json.Unmarshal(chain, &req.Chain); err != nil {
			return nil, fmt.Errorf("request %s chain: %w", req.ID, err)
		}
		if len(payBands) > 0 && string(payBands) != "null" {
			req.PayBands = &leave.PayBands{}
			if err := json.Unmarshal(payBands, req.PayBands); err != nil {
				return nil, fmt.Errorf("request %s pay bands: %w", req.ID, err)
			}
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func requestArgs(req leave.LeaveRequest) ([]any, error) {
	breakdown, err := json.Marshal(req.Breakdown)
	if err != nil {
		return nil, err
	}
	route, err := json.Marshal(req.Route)
	if err != nil {
		return nil, err
	}
	chain, err := json.Marshal(req.Chain)
	if err != nil {
		return nil, err
	}
	var payBands []byte
	if req.PayBands != nil {
		if payBands, err = json.Marshal(req.PayBands); err != nil {
			return nil, err
		}
	}
	var incident *string
	if !req.IncidentDate.IsZero() {
		d := req.IncidentDate.String()
		incident = &d
	}
	return []any{
		req.ID, req.EmployeeID, string(req.RequesterRole), string(req.LeaveType),
		req.StartDate.String(), req.EndDate.String(), req.WorkingDaysCharged,
		breakdown, req.Reason, incident, nullable(req.CertificateRef), nullable(req.FitnessCertificateRef),
		payBands, string(req.Status), route, chain, req.Round, req.Version, req.UpdatedAt.UTC(),
	}, nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx runs fn in a SERIALIZABLE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
	if hasCode(err, sqlStateSerializationFailure) {
		return fmt.Errorf("%w: %v", leave.ErrConcurrentModification, err)
	}
	return err
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) Ledger() generic.Store { return ts }

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, t := range txs {
		if err := appendTx(ctx, ts.tx, t); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	return queryTransactions(ctx, ts.tx, selectTransactions+`
		WHERE entity_id = $1 AND policy_id = $2 ORDER BY effective_at, seq`,
		string(entityID), string(policyID))
}

func (ts *txStore) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return loadRange(ctx, ts.tx, entityID, policyID, from, to)
}

func (ts *txStore) Exists(ctx context.Context, key string) (bool, error) {
	return exists(ctx, ts.tx, key)
}

func (ts *txStore) CreateRequest(ctx context.Context, req leave.LeaveRequest) error {
	args, err := requestArgs(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	args = append(args, req.CreatedAt.UTC())
	_, err = ts.tx.Exec(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, requester_role, leave_type, start_date, end_date, days_charged,
		 breakdown_json, reason, incident_date, certificate_ref, fitness_certificate_ref,
		 pay_bands_json, status, route_json, chain_json, round, version, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateRequest(ctx context.Context, req leave.LeaveRequest, expectedVersion int) error {
	args, err := requestArgs(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	args = append(args, expectedVersion)
	tag, err := ts.tx.Exec(ctx, `
		UPDATE leave_requests SET
			employee_id = $2, requester_role = $3, leave_type = $4, start_date = $5, end_date = $6,
			days_charged = $7, breakdown_json = $8, reason = $9, incident_date = $10,
			certificate_ref = $11, fitness_certificate_ref = $12, pay_bands_json = $13, status = $14,
			route_json = $15, chain_json = $16, round = $17, version = $18, updated_at = $19
		WHERE id = $1 AND version = $20
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var found bool
	if err := ts.tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM leave_requests WHERE id = $1)", req.ID).Scan(&found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("request %s: %w", req.ID, leave.ErrRequestNotFound)
	}
	return fmt.Errorf("request %s moved past version %d: %w", req.ID, expectedVersion, leave.ErrConcurrentModification)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return appendAudit(ctx, s.pool, entry)
}

func appendAudit(ctx context.Context, q querier, entry generic.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_id, reference_id, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.Timestamp.UTC(), entry.ActorID, string(entry.Action), string(entry.EntityID),
		nullable(entry.ReferenceID), payload)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.EntityID != nil {
		args = append(args, string(*filter.EntityID))
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.ReferenceID != nil {
		args = append(args, *filter.ReferenceID)
		where = append(where, fmt.Sprintf("reference_id = $%d", len(args)))
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		args = append(args, actions)
		where = append(where, fmt.Sprintf("action = ANY($%d)", len(args)))
	}

	query := "SELECT id, timestamp, actor_id, action, entity_id, reference_id, payload_json FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, seq"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                generic.AuditEntry
			action, entityID string
			referenceID      *string
			payload          []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &action, &entityID, &referenceID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = generic.AuditAction(action)
		e.EntityID = generic.EntityID(entityID)
		e.ReferenceID = deref(referenceID)
		if len(payload) > 0 && string(payload) != "null" {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("audit %s payload: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// DIRECTORY AND HOLIDAYS
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (id, name, role, service_years) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role,
			service_years = EXCLUDED.service_years
	`, emp.ID, emp.Name, string(emp.Role), emp.ServiceYears)
	return err
}

func (s *Store) Lookup(ctx context.Context, employeeID string) (leave.Employee, error) {
	var (
		emp  leave.Employee
		role string
	)
	err := s.pool.QueryRow(ctx, "SELECT id, name, role, service_years FROM employees WHERE id = $1", employeeID).
		Scan(&emp.ID, &emp.Name, &role, &emp.ServiceYears)
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.Employee{}, fmt.Errorf("employee %s: %w", employeeID, leave.ErrEmployeeNotFound)
	}
	emp.Role = leave.Role(role)
	return emp, err
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, role, service_years FROM employees ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		var (
			emp  leave.Employee
			role string
		)
		if err := rows.Scan(&emp.ID, &emp.Name, &role, &emp.ServiceYears); err != nil {
			return nil, err
		}
		emp.Role = leave.Role(role)
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) AddHoliday(ctx context.Context, h calendar.Holiday) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO holidays (date, name, is_optional) VALUES ($1, $2, $3)
		ON CONFLICT (date) DO UPDATE SET name = EXCLUDED.name, is_optional = EXCLUDED.is_optional
	`, h.Date.String(), h.Name, h.IsOptional)
	return err
}

func (s *Store) Holidays(ctx context.Context, from, to calendar.Date) ([]calendar.Holiday, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT date, name, is_optional FROM holidays WHERE date >= $1 AND date <= $2 ORDER BY date",
		from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []calendar.Holiday
	for rows.Next() {
		var (
			h    calendar.Holiday
			date string
		)
		if err := rows.Scan(&date, &h.Name, &h.IsOptional); err != nil {
			return nil, err
		}
		if h.Date, err = calendar.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
