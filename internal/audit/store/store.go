// Package store defines the durable persistence contract for audit trails.
package store

import (
	"context"
	"time"

	"veritrail/internal/audit/merkle"
	"veritrail/internal/audit/models"
	"veritrail/pkg/domain"
)

// Filter narrows a trail read. All set fields are combined with AND.
type Filter struct {
	Start        *time.Time
	End          *time.Time
	Action       string
	ResourceType string
	// Limit caps the number of returned entries; <= 0 falls back to the
	// store default.
	Limit int
}

// DefaultListLimit bounds unfiltered trail reads.
const DefaultListLimit = 100

// Store persists audit entries and Merkle root snapshots, partitioned by
// tenant. Implementations must make AppendEntry atomic: the entry row and
// its root snapshot commit together or not at all.
type Store interface {
	// AppendEntry persists a sealed entry and the root snapshot produced by
	// its insertion as a single logical write.
	AppendEntry(ctx context.Context, entry *models.AuditEntry, root models.RootSnapshot) error

	// GetEntry loads one entry by ID. Returns sentinel.ErrNotFound if the
	// tenant has no such entry.
	GetEntry(ctx context.Context, tenantID domain.TenantID, entryID domain.EntryID) (*models.AuditEntry, error)

	// LatestEntryHash returns the entry hash of the tenant's most recent
	// entry, or "" if the tenant has none.
	LatestEntryHash(ctx context.Context, tenantID domain.TenantID) (string, error)

	// ListEntries returns entries matching the filter, most recent first.
	ListEntries(ctx context.Context, tenantID domain.TenantID, f Filter) ([]models.AuditEntry, error)

	// ListEntriesAsc returns up to limit entries in insertion order, oldest
	// first. Verification walks the chain in this order.
	ListEntriesAsc(ctx context.Context, tenantID domain.TenantID, limit int) ([]models.AuditEntry, error)

	// LeafHashes returns the tenant's (entry ID, entry hash) pairs in
	// insertion order, for Merkle tree reconstruction.
	LeafHashes(ctx context.Context, tenantID domain.TenantID) ([]merkle.Leaf, error)

	// ListRoots returns up to limit root snapshots, most recent first.
	ListRoots(ctx context.Context, tenantID domain.TenantID, limit int) ([]models.RootSnapshot, error)
}
