// Package memory provides an in-memory audit store for tests and local
// development. Semantics mirror the postgres store, including atomic
// entry+snapshot appends.
package memory

import (
	"context"
	"sync"
	"time"

	"veritrail/internal/audit/merkle"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

type tenantState struct {
	entries []models.AuditEntry
	roots   []models.RootSnapshot
}

// InMemoryStore keeps per-tenant entry and snapshot slices under a RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[domain.TenantID]*tenantState
	nextID  int64

	// failNext forces the next AppendEntry to fail; used to exercise the
	// trail's rollback path.
	failNext error
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tenants: make(map[domain.TenantID]*tenantState)}
}

// Clear drops all tenants.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[domain.TenantID]*tenantState)
}

// FailNextAppend makes the next AppendEntry return err, simulating a storage
// fault.
func (s *InMemoryStore) FailNextAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *InMemoryStore) state(tenantID domain.TenantID) *tenantState {
	st, ok := s.tenants[tenantID]
	if !ok {
		st = &tenantState{}
		s.tenants[tenantID] = st
	}
	return st
}

func (s *InMemoryStore) AppendEntry(_ context.Context, entry *models.AuditEntry, root models.RootSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	st := s.state(entry.TenantID)
	st.entries = append(st.entries, cloneEntry(*entry))

	s.nextID++
	root.ID = s.nextID
	if root.CreatedAt.IsZero() {
		root.CreatedAt = time.Now().UTC()
	}
	st.roots = append(st.roots, root)
	return nil
}

func (s *InMemoryStore) GetEntry(_ context.Context, tenantID domain.TenantID, entryID domain.EntryID) (*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	for i := range st.entries {
		if st.entries[i].ID == entryID {
			e := cloneEntry(st.entries[i])
			return &e, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) LatestEntryHash(_ context.Context, tenantID domain.TenantID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tenants[tenantID]
	if !ok || len(st.entries) == 0 {
		return "", nil
	}
	return st.entries[len(st.entries)-1].EntryHash, nil
}

func (s *InMemoryStore) ListEntries(_ context.Context, tenantID domain.TenantID, f store.Filter) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	st, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	var out []models.AuditEntry
	for i := len(st.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := st.entries[i]
		if !matches(e, f) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (s *InMemoryStore) ListEntriesAsc(_ context.Context, tenantID domain.TenantID, limit int) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	n := len(st.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cloneEntry(st.entries[i]))
	}
	return out, nil
}

func (s *InMemoryStore) LeafHashes(_ context.Context, tenantID domain.TenantID) ([]merkle.Leaf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	leaves := make([]merkle.Leaf, 0, len(st.entries))
	for i := range st.entries {
		leaves = append(leaves, merkle.Leaf{EntryID: st.entries[i].ID, Hash: st.entries[i].EntryHash})
	}
	return leaves, nil
}

func (s *InMemoryStore) ListRoots(_ context.Context, tenantID domain.TenantID, limit int) ([]models.RootSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	var out []models.RootSnapshot
	for i := len(st.roots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, st.roots[i])
	}
	return out, nil
}

// Corrupt overwrites the stored details of an entry in place, bypassing the
// append-only contract. It exists so tamper-detection tests can simulate an
// attacker editing the backing store out-of-band. Returns false if the entry
// does not exist.
func (s *InMemoryStore) Corrupt(tenantID domain.TenantID, entryID domain.EntryID, details map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tenants[tenantID]
	if !ok {
		return false
	}
	for i := range st.entries {
		if st.entries[i].ID == entryID {
			st.entries[i].Details = details
			return true
		}
	}
	return false
}

func matches(e models.AuditEntry, f store.Filter) bool {
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	return true
}

func cloneEntry(e models.AuditEntry) models.AuditEntry {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	if e.MerklePath != nil {
		path := make([]merkle.ProofStep, len(e.MerklePath))
		copy(path, e.MerklePath)
		e.MerklePath = path
	}
	return e
}
