// Package manager routes audit operations to per-tenant trails, creating
// each trail lazily on first use.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/internal/audit/trail"
	"veritrail/pkg/domain"
)

// Manager caches exactly one Trail per tenant. Construction is idempotent
// under concurrent first access: the cache lock covers lookups and inserts,
// and singleflight collapses racing constructions for the same tenant.
type Manager struct {
	store     store.Store
	trailOpts []trail.Option
	logger    *slog.Logger

	mu     sync.RWMutex
	trails map[domain.TenantID]*trail.Trail
	group  singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTrailOptions passes options through to every constructed trail.
func WithTrailOptions(opts ...trail.Option) Option {
	return func(m *Manager) { m.trailOpts = opts }
}

// New constructs a Manager over a shared store.
func New(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		logger: slog.Default(),
		trails: make(map[domain.TenantID]*trail.Trail),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Trail resolves the tenant's trail, constructing and caching it on first
// use.
func (m *Manager) Trail(ctx context.Context, tenantID domain.TenantID) (*trail.Trail, error) {
	m.mu.RLock()
	t, ok := m.trails[tenantID]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := m.group.Do(tenantID.String(), func() (any, error) {
		// Re-check under the group: a racing caller may have finished
		// construction between our cache miss and this call.
		m.mu.RLock()
		existing, ok := m.trails[tenantID]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := trail.New(ctx, tenantID, m.store, m.trailOpts...)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.trails[tenantID] = created
		m.mu.Unlock()

		m.logger.InfoContext(ctx, "audit trail initialized",
			"tenant_id", tenantID,
			"leaf_count", created.LeafCount(),
		)
		return created, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve trail for tenant %s: %w", tenantID, err)
	}
	return v.(*trail.Trail), nil
}

// AddEntry appends an entry to the tenant's trail.
func (m *Manager) AddEntry(ctx context.Context, tenantID domain.TenantID, req trail.AddRequest) (*models.AuditEntry, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.AddEntry(ctx, req)
}

// GetEntry loads a single entry from the tenant's trail.
func (m *Manager) GetEntry(ctx context.Context, tenantID domain.TenantID, entryID domain.EntryID) (*models.AuditEntry, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.GetEntry(ctx, entryID)
}

// GetTrail returns the tenant's entries matching the filter, most recent
// first.
func (m *Manager) GetTrail(ctx context.Context, tenantID domain.TenantID, f store.Filter) ([]models.AuditEntry, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.GetTrail(ctx, f)
}

// VerifyEntry verifies a single entry in the tenant's trail.
func (m *Manager) VerifyEntry(ctx context.Context, tenantID domain.TenantID, entryID domain.EntryID) (bool, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return t.VerifyEntry(ctx, entryID)
}

// VerifyTenant runs a full-trail verification for the tenant.
func (m *Manager) VerifyTenant(ctx context.Context, tenantID domain.TenantID) (trail.Report, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return trail.Report{}, err
	}
	return t.VerifyTrail(ctx)
}

// RootHistory returns the tenant's root snapshot history, most recent first.
func (m *Manager) RootHistory(ctx context.Context, tenantID domain.TenantID, limit int) ([]models.RootSnapshot, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.RootHistory(ctx, limit)
}

// Export renders the tenant's trail in the requested format.
func (m *Manager) Export(ctx context.Context, tenantID domain.TenantID, opts trail.ExportOptions) ([]byte, error) {
	t, err := m.Trail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return t.Export(ctx, opts)
}
