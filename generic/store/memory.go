// Package store provides an in-memory generic.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[key][]generic.Transaction
	idempotency  map[string]bool
}

type key struct {
	EntityID generic.EntityID
	PolicyID generic.PolicyID
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[key][]generic.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) {
	k := key{EntityID: tx.EntityID, PolicyID: tx.PolicyID}
	txs := m.transactions[k]

	// keep EffectiveAt order; equal days stay in insertion order
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})

	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{EntityID: entityID, PolicyID: policyID}
	result := make([]generic.Transaction, len(m.transactions[k]))
	copy(result, m.transactions[k])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return inPeriod(m.transactions[key{EntityID: entityID, PolicyID: policyID}], generic.Period{Start: from, End: to}), nil
}

func inPeriod(txs []generic.Transaction, p generic.Period) []generic.Transaction {
	var result []generic.Transaction
	for _, tx := range txs {
		if p.Contains(tx.EffectiveAt) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// STAGED WRITES - Unit of work over a Memory
// =============================================================================

// Staged buffers appends against a Memory. Reads through it see the
// committed contents plus its own pending writes; readers of the Memory
// see nothing until Commit, which applies the whole batch at once.
//
// Staged is not safe for concurrent use. Callers serialize units of work
// themselves so a Commit cannot collide with another unit's keys.
type Staged struct {
	base    *Memory
	pending []generic.Transaction
	keys    map[string]bool
}

var _ generic.Store = (*Staged)(nil)

// Begin opens a unit of work.
func (m *Memory) Begin() *Staged {
	return &Staged{base: m, keys: make(map[string]bool)}
}

func (s *Staged) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

func (s *Staged) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		exists, err := s.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}
	for _, tx := range txs {
		s.pending = append(s.pending, tx)
		if tx.IdempotencyKey != "" {
			s.keys[tx.IdempotencyKey] = true
		}
	}
	return nil
}

func (s *Staged) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	result, err := s.base.Load(ctx, entityID, policyID)
	if err != nil {
		return nil, err
	}
	for _, tx := range s.pending {
		if tx.EntityID == entityID && tx.PolicyID == policyID {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EffectiveAt.Before(result[j].EffectiveAt)
	})
	return result, nil
}

func (s *Staged) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	txs, err := s.Load(ctx, entityID, policyID)
	if err != nil {
		return nil, err
	}
	return inPeriod(txs, generic.Period{Start: from, End: to}), nil
}

func (s *Staged) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	if s.keys[idempotencyKey] {
		return true, nil
	}
	return s.base.Exists(ctx, idempotencyKey)
}

// Commit publishes the pending writes. A nil-error Commit leaves the
// unit empty; a failed one writes nothing.
func (s *Staged) Commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.base.AppendBatch(ctx, s.pending); err != nil {
		return err
	}
	s.pending = nil
	s.keys = make(map[string]bool)
	return nil
}
