/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the leave engine needs using a
  single SQLite file. The PostgreSQL store in store/postgres follows the
  same schema with dialect changes only.

INTERFACES IMPLEMENTED:
  leave.Store:         Requests, unit of work, ledger and audit
  leave.Directory:     Employee lookup
  leave.HolidaySource: Public holidays
  generic.Store:       Transaction persistence

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on the transactions table
  - No UPDATE or DELETE statements on the audit_log table
  - Corrections via reversal transactions only

OPTIMISTIC CONCURRENCY:
  leave_requests carries a version column. UpdateRequest issues
    UPDATE ... WHERE id = ? AND version = ?
  and treats zero affected rows as ErrConcurrentModification.

KEY TABLES:
  transactions:   Immutable ledger of all balance changes
  leave_requests: One row per request, route and chain as JSON
  employees:      Directory (role, service years)
  holidays:       Public holidays keyed by date
  audit_log:      Who did what when

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := leave.NewEngine(store, store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Ledger interface definitions
  - leave/collaborators.go: Engine-facing interfaces
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ leave.Store         = (*Store)(nil)
	_ leave.Directory     = (*Store)(nil)
	_ leave.HolidaySource = (*Store)(nil)
	_ generic.Store       = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an open handle without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the database schema.
func (s *Store) Migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Composite index for period-based balance queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_entity_policy_date
		ON transactions(entity_id, policy_id, effective_at);

	-- For request tracking
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Leave requests (versioned, optimistic concurrency)
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		requester_role TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_charged INTEGER NOT NULL,
		breakdown_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		incident_date TEXT,
		certificate_ref TEXT,
		fitness_certificate_ref TEXT,
		pay_bands_json TEXT,
		status TEXT NOT NULL,
		route_json TEXT NOT NULL,
		chain_json TEXT NOT NULL,
		round INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(employee_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	-- Employees (directory)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		service_years INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_optional BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		reference_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_reference
		ON audit_log(reference_id) WHERE reference_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

const selectTransactions = `
	SELECT id, entity_id, policy_id, resource_type, effective_at, delta_value, delta_unit,
	       tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at
	FROM transactions
`

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db querier, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	createdAt := tx.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO transactions
		(id, entity_id, policy_id, resource_type, effective_at, delta_value, delta_unit,
		 tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.EntityID,
		tx.PolicyID,
		tx.ResourceType.ResourceID(), // Store as string
		tx.EffectiveAt.Time.Format(time.RFC3339),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		nullString(tx.ReferenceID),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		nullString(tx.CreatedBy),
		createdAt.UTC().Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkBatchKeys(txs); err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func checkBatchKeys(txs []generic.Transaction) error {
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}
	return nil
}

// Load returns all transactions for an entity+policy.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadTx(ctx, s.db, entityID, policyID)
}

func loadTx(ctx context.Context, db querier, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	query := selectTransactions + `
		WHERE entity_id = ? AND policy_id = ?
		ORDER BY effective_at ASC, created_at ASC
	`
	return queryTransactions(ctx, db, query, entityID, policyID)
}

// LoadRange returns transactions in a time range.
func (s *Store) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadRangeTx(ctx, s.db, entityID, policyID, from, to)
}

func loadRangeTx(ctx context.Context, db querier, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	query := selectTransactions + `
		WHERE entity_id = ? AND policy_id = ?
		  AND effective_at >= ? AND effective_at <= ?
		ORDER BY effective_at ASC, created_at ASC
	`
	return queryTransactions(ctx, db, query, entityID, policyID,
		from.Time.Format(time.RFC3339), to.Time.Format(time.RFC3339))
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return existsTx(ctx, s.db, idempotencyKey)
}

func existsTx(ctx context.Context, db querier, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func queryTransactions(ctx context.Context, db querier, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		resourceTypeID string // Scan as string, convert to interface
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EntityID, &tx.PolicyID, &resourceTypeID,
		&effectiveAt, &deltaValue, &deltaUnit, &tx.Type,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	// Convert string to ResourceType via registry
	tx.ResourceType = generic.GetOrCreateResource(resourceTypeID)
	t, _ := time.Parse(time.RFC3339, effectiveAt)
	tx.EffectiveAt = generic.TimePoint{Time: t}
	tx.Delta = parseAmount(deltaValue, deltaUnit)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	c, _ := time.Parse(time.RFC3339, createdAt)
	tx.CreatedAt = generic.TimePoint{Time: c}

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// LEAVE REQUESTS (leave.Store interface)
// =============================================================================

// Ledger returns the store itself; outside a unit of work reads go
// straight to the database.
func (s *Store) Ledger() generic.Store { return s }

const selectRequests = `
	SELECT id, employee_id, requester_role, leave_type, start_date, end_date, days_charged,
	       breakdown_json, reason, incident_date, certificate_ref, fitness_certificate_ref,
	       pay_bands_json, status, route_json, chain_json, round, version, created_at, updated_at
	FROM leave_requests
`

// GetRequest loads one request.
func (s *Store) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRequests+" WHERE id = ?", id)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to query request: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return leave.LeaveRequest{}, err
		}
		return leave.LeaveRequest{}, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	return scanRequest(rows)
}

// ListRequestsByEmployee returns an employee's requests, oldest first.
func (s *Store) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRequests+" WHERE employee_id = ? ORDER BY created_at ASC, id ASC", employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(rows *sql.Rows) (leave.LeaveRequest, error) {
	var (
		req                      leave.LeaveRequest
		startDate, endDate       string
		breakdownJSON, routeJSON string
		chainJSON                string
		incidentDate             sql.NullString
		certRef, fitnessRef      sql.NullString
		payBandsJSON             sql.NullString
		createdAt, updatedAt     string
	)
	err := rows.Scan(
		&req.ID, &req.EmployeeID, &req.RequesterRole, &req.LeaveType, &startDate, &endDate,
		&req.WorkingDaysCharged, &breakdownJSON, &req.Reason, &incidentDate, &certRef, &fitnessRef,
		&payBandsJSON, &req.Status, &routeJSON, &chainJSON, &req.Round, &req.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return req, fmt.Errorf("failed to scan request: %w", err)
	}

	if req.StartDate, err = calendar.ParseDate(startDate); err != nil {
		return req, err
	}
	if req.EndDate, err = calendar.ParseDate(endDate); err != nil {
		return req, err
	}
	if incidentDate.Valid {
		if req.IncidentDate, err = calendar.ParseDate(incidentDate.String); err != nil {
			return req, err
		}
	}
	req.CertificateRef = certRef.String
	req.FitnessCertificateRef = fitnessRef.String
	req.Status = req.Status.Normalize()

	if err := json.Unmarshal([]byte(breakdownJSON), &req.Breakdown); err != nil {
		return req, fmt.Errorf("request %s breakdown: %w", req.ID, err)
	}
	if err := json.Unmarshal([]byte(routeJSON), &req.Route); err != nil {
		return req, fmt.Errorf("request %s route: %w", req.ID, err)
	}
	if err := json.Unmarshal([]byte(chainJSON), &req.Chain); err != nil {
		return req, fmt.Errorf("request %s chain: %w", req.ID, err)
	}
	if payBandsJSON.Valid && payBandsJSON.String != "" {
		req.PayBands = &leave.PayBands{}
		if err := json.Unmarshal([]byte(payBandsJSON.String), req.PayBands); err != nil {
			return req, fmt.Errorf("request %s pay bands: %w", req.ID, err)
		}
	}
	req.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	req.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return req, nil
}

// requestColumns renders the mutable columns of req in table order.
func requestColumns(req leave.LeaveRequest) ([]any, error) {
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
	var payBands sql.NullString
	if req.PayBands != nil {
		raw, err := json.Marshal(req.PayBands)
		if err != nil {
			return nil, err
		}
		payBands = sql.NullString{String: string(raw), Valid: true}
	}
	return []any{
		req.EmployeeID, string(req.RequesterRole), string(req.LeaveType),
		req.StartDate.String(), req.EndDate.String(), req.WorkingDaysCharged,
		string(breakdown), req.Reason, nullDate(req.IncidentDate),
		nullString(req.CertificateRef), nullString(req.FitnessCertificateRef),
		payBands, string(req.Status), string(route), string(chain), req.Round, req.Version,
		req.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// =============================================================================
// UNIT OF WORK (leave.Tx interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore reads and writes through the open sql.Tx so ledger checks see
// the postings made earlier in the same unit of work.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Ledger() generic.Store { return ts }

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	if err := checkBatchKeys(txs); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := appendTx(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	return loadTx(ctx, ts.tx, entityID, policyID)
}

func (ts *txStore) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return loadRangeTx(ctx, ts.tx, entityID, policyID, from, to)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return existsTx(ctx, ts.tx, idempotencyKey)
}

func (ts *txStore) CreateRequest(ctx context.Context, req leave.LeaveRequest) error {
	cols, err := requestColumns(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	args := append([]any{req.ID}, cols...)
	args = append(args, req.CreatedAt.UTC().Format(time.RFC3339Nano))

	_, err = ts.tx.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, requester_role, leave_type, start_date, end_date, days_charged,
		 breakdown_json, reason, incident_date, certificate_ref, fitness_certificate_ref,
		 pay_bands_json, status, route_json, chain_json, round, version, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateRequest(ctx context.Context, req leave.LeaveRequest, expectedVersion int) error {
	cols, err := requestColumns(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	args := append(cols, req.ID, expectedVersion)

	res, err := ts.tx.ExecContext(ctx, `
		UPDATE leave_requests SET
			employee_id = ?, requester_role = ?, leave_type = ?, start_date = ?, end_date = ?,
			days_charged = ?, breakdown_json = ?, reason = ?, incident_date = ?,
			certificate_ref = ?, fitness_certificate_ref = ?, pay_bands_json = ?, status = ?,
			route_json = ?, chain_json = ?, round = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := ts.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM leave_requests WHERE id = ?", req.ID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("request %s: %w", req.ID, leave.ErrRequestNotFound)
	}
	return fmt.Errorf("request %s moved past version %d: %w", req.ID, expectedVersion, leave.ErrConcurrentModification)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, db querier, entry generic.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_id, reference_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.ActorID,
		string(entry.Action),
		string(entry.EntityID),
		nullString(entry.ReferenceID),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, timestamp, actor_id, action, entity_id, reference_id, payload_json FROM audit_log WHERE 1=1"
	var args []any
	if filter.EntityID != nil {
		query += " AND entity_id = ?"
		args = append(args, string(*filter.EntityID))
	}
	if filter.ReferenceID != nil {
		query += " AND reference_id = ?"
		args = append(args, *filter.ReferenceID)
	}
	if len(filter.Actions) > 0 {
		query += " AND action IN (?" + strings.Repeat(", ?", len(filter.Actions)-1) + ")"
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	query += " ORDER BY timestamp ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e           generic.AuditEntry
			ts          string
			referenceID sql.NullString
			payload     sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &e.EntityID, &referenceID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.ReferenceID = referenceID.String
		if payload.Valid && payload.String != "" && payload.String != "null" {
			json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// DIRECTORY (leave.Directory interface)
// =============================================================================

// SaveEmployee creates or updates an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, role, service_years, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			service_years = excluded.service_years
	`, emp.ID, emp.Name, string(emp.Role), emp.ServiceYears, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Lookup returns the employee or leave.ErrEmployeeNotFound.
func (s *Store) Lookup(ctx context.Context, employeeID string) (leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emp leave.Employee
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, service_years FROM employees WHERE id = ?", employeeID,
	).Scan(&emp.ID, &emp.Name, &emp.Role, &emp.ServiceYears)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, fmt.Errorf("employee %s: %w", employeeID, leave.ErrEmployeeNotFound)
	}
	return emp, err
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, role, service_years FROM employees ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		var emp leave.Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Role, &emp.ServiceYears); err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// HOLIDAYS (leave.HolidaySource interface)
// =============================================================================

// AddHoliday creates or renames the holiday on h.Date.
func (s *Store) AddHoliday(ctx context.Context, h calendar.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (date, name, is_optional) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name, is_optional = excluded.is_optional
	`, h.Date.String(), h.Name, h.IsOptional)
	return err
}

// Holidays returns the holidays in [from, to], ordered by date.
func (s *Store) Holidays(ctx context.Context, from, to calendar.Date) ([]calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT date, name, is_optional FROM holidays WHERE date >= ? AND date <= ? ORDER BY date",
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

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d calendar.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
