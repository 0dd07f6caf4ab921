// Package trail implements the per-tenant secure audit trail: it seals
// entries into a hash chain, maintains the tenant's Merkle tree, persists
// entries and root snapshots, and answers verification, query, and export
// requests.
package trail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritrail/internal/audit/export"
	"veritrail/internal/audit/merkle"
	"veritrail/internal/audit/metrics"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// DefaultVerifyLimit bounds full-trail verification scans.
const DefaultVerifyLimit = 10_000

// EntrySink receives sealed entries for downstream fan-out. Implementations
// must not block the caller; delivery is best-effort and failures stay out
// of the write path.
type EntrySink interface {
	Publish(ctx context.Context, entry *models.AuditEntry)
}

// RootAnnouncer receives committed root snapshots so external monitors can
// track root evolution independently of the store.
type RootAnnouncer interface {
	AnnounceRoot(ctx context.Context, snap models.RootSnapshot)
}

// Trail is the orchestrator for one tenant. All mutating operations
// serialize on an exclusive lock; reads share it.
type Trail struct {
	tenantID domain.TenantID
	store    store.Store

	mu   sync.RWMutex
	tree *merkle.Tree

	logger      *slog.Logger
	metrics     *metrics.Metrics
	sink        EntrySink
	announcer   RootAnnouncer
	verifyLimit int
	tracer      trace.Tracer
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the trail logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

// WithSink sets the entry fan-out sink.
func WithSink(s EntrySink) Option {
	return func(t *Trail) { t.sink = s }
}

// WithAnnouncer sets the root snapshot announcer.
func WithAnnouncer(a RootAnnouncer) Option {
	return func(t *Trail) { t.announcer = a }
}

// WithVerifyLimit overrides the trail verification scan bound.
func WithVerifyLimit(n int) Option {
	return func(t *Trail) {
		if n > 0 {
			t.verifyLimit = n
		}
	}
}

// New constructs the trail for a tenant, rebuilding the Merkle tree from the
// persisted leaf hashes.
func New(ctx context.Context, tenantID domain.TenantID, st store.Store, opts ...Option) (*Trail, error) {
	leaves, err := st.LeafHashes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load leaf hashes for tenant %s: %w", tenantID, err)
	}

	t := &Trail{
		tenantID:    tenantID,
		store:       st,
		tree:        merkle.NewFromLeaves(leaves),
		logger:      slog.Default(),
		verifyLimit: DefaultVerifyLimit,
		tracer:      otel.Tracer("veritrail/audit"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TenantID returns the owning tenant.
func (t *Trail) TenantID() domain.TenantID { return t.tenantID }

// AddRequest carries the caller-supplied fields of a new entry.
type AddRequest struct {
	Action       string
	ResourceType string
	Details      map[string]any
	UserID       string
	ResourceID   string
}

func (r AddRequest) validate() error {
	if r.Action == "" {
		return fmt.Errorf("action is required")
	}
	if r.ResourceType == "" {
		return fmt.Errorf("resource type is required")
	}
	return nil
}

// AddEntry seals a new entry: it chains the content hash to the tenant's
// latest hash, inserts the hash into the Merkle tree, records the inclusion
// path, and persists the entry together with the new root snapshot. The
// whole sequence holds the trail's exclusive lock; a storage fault rolls the
// in-memory tree back so memory and disk never diverge.
func (t *Trail) AddEntry(ctx context.Context, req AddRequest) (*models.AuditEntry, error) {
	ctx, span := t.tracer.Start(ctx, "trail.AddEntry",
		trace.WithAttributes(attribute.String("tenant_id", t.tenantID.String())))
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	entry, snap, err := t.seal(ctx, req)
	if err != nil {
		if t.metrics != nil {
			t.metrics.AppendFailures.Inc()
		}
		return nil, err
	}

	if t.metrics != nil {
		t.metrics.EntriesAppended.Inc()
		t.metrics.ObserveAppend(start)
	}
	t.logger.DebugContext(ctx, "audit entry sealed",
		"tenant_id", t.tenantID,
		"entry_id", entry.ID,
		"action", entry.Action,
		"leaf_count", snap.LeafCount,
	)

	// Fan-out happens outside the lock; both targets are fire-and-forget.
	if t.sink != nil {
		t.sink.Publish(ctx, entry)
	}
	if t.announcer != nil {
		t.announcer.AnnounceRoot(ctx, snap)
	}
	return entry, nil
}

func (t *Trail) seal(ctx context.Context, req AddRequest) (*models.AuditEntry, models.RootSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, err := t.store.LatestEntryHash(ctx, t.tenantID)
	if err != nil {
		return nil, models.RootSnapshot{}, fmt.Errorf("read latest entry hash: %w", err)
	}

	// Seal at microsecond precision: TIMESTAMPTZ round-trips microseconds,
	// and a hashed timestamp the store cannot reproduce would fail every
	// re-read verification.
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &models.AuditEntry{
		ID:           domain.NewEntryID(),
		Timestamp:    now,
		TenantID:     t.tenantID,
		UserID:       req.UserID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Details:      req.Details,
		PreviousHash: prev,
		CreatedAt:    now,
	}
	entry.EntryHash = models.ComputeEntryHash(entry, prev)

	t.tree.AddLeaf(entry.EntryHash, entry.ID)
	entry.MerklePath = t.tree.Path(entry.ID)
	if entry.MerklePath == nil {
		// A single-leaf proof is an empty list, not an absent one.
		entry.MerklePath = []merkle.ProofStep{}
	}

	snap := models.RootSnapshot{
		TenantID:  t.tenantID,
		RootHash:  t.tree.RootHash(),
		LeafCount: t.tree.LeafCount(),
		Timestamp: now,
		CreatedAt: now,
	}

	if err := t.store.AppendEntry(ctx, entry, snap); err != nil {
		// The durable write failed, so the in-memory insertion never
		// happened as far as callers are concerned.
		t.tree.RemoveLastLeaf()
		return nil, models.RootSnapshot{}, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, snap, nil
}

// VerifyEntry checks one entry's integrity: its content hash must match its
// stored fields, every entry before it in the chain must be unbroken, and
// its recomputed hash must fold through the current Merkle tree to the
// current root. A missing entry is a plain false, not an error. An entry
// that exists but sits beyond the verification scan limit fails with
// sentinel.ErrUnavailable so callers never mistake the bound for tampering;
// only that case and storage faults surface as errors.
func (t *Trail) VerifyEntry(ctx context.Context, entryID domain.EntryID) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.metrics != nil {
		t.metrics.VerificationsRun.Inc()
	}

	entries, err := t.store.ListEntriesAsc(ctx, t.tenantID, t.verifyLimit)
	if err != nil {
		return false, fmt.Errorf("list entries for verification: %w", err)
	}

	idx := -1
	for i := range entries {
		if entries[i].ID == entryID {
			idx = i
			break
		}
	}
	if idx == -1 {
		// Only a nonexistent entry is a plain false. An existing entry
		// outside the scan window is unverifiable, not tampered.
		if len(entries) >= t.verifyLimit {
			_, err := t.store.GetEntry(ctx, t.tenantID, entryID)
			switch {
			case err == nil:
				return false, fmt.Errorf("entry %s is beyond the verification scan limit of %d: %w",
					entryID, t.verifyLimit, sentinel.ErrUnavailable)
			case !errors.Is(err, sentinel.ErrNotFound):
				return false, fmt.Errorf("locate entry for verification: %w", err)
			}
		}
		return false, nil
	}

	firstCorrupt := firstChainBreak(entries)
	chainOK := firstCorrupt == -1 || idx < firstCorrupt
	ok := chainOK && t.merkleValid(&entries[idx])
	if !ok && t.metrics != nil {
		t.metrics.VerificationFailures.Inc()
	}
	return ok, nil
}

// Report summarizes a full-trail verification.
type Report struct {
	TenantID        domain.TenantID  `json:"tenant_id"`
	TotalEntries    int              `json:"total_entries"`
	VerifiedEntries int              `json:"verified_entries"`
	FailedEntries   int              `json:"failed_entries"`
	FailedEntryIDs  []domain.EntryID `json:"failed_entry_ids,omitempty"`
	// ChainIntact is false once any entry's content no longer matches its
	// sealed hash or a link is broken; everything after the first break is
	// unattested.
	ChainIntact       bool           `json:"chain_intact"`
	FirstCorruptEntry domain.EntryID `json:"first_corrupt_entry,omitempty"`
	Intact            bool           `json:"intact"`
	VerifiedAt        time.Time      `json:"verified_at"`
}

// VerifyTrail verifies every entry of the tenant in one forward pass,
// bounded by the verification limit. Each entry costs one O(height) Merkle
// path verification; the chain walk is amortized across the pass.
func (t *Trail) VerifyTrail(ctx context.Context) (Report, error) {
	ctx, span := t.tracer.Start(ctx, "trail.VerifyTrail",
		trace.WithAttributes(attribute.String("tenant_id", t.tenantID.String())))
	defer span.End()

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.metrics != nil {
		t.metrics.VerificationsRun.Inc()
	}

	report := Report{
		TenantID:    t.tenantID,
		ChainIntact: true,
		Intact:      true,
		VerifiedAt:  time.Now().UTC(),
	}

	entries, err := t.store.ListEntriesAsc(ctx, t.tenantID, t.verifyLimit)
	if err != nil {
		return Report{}, fmt.Errorf("list entries for verification: %w", err)
	}
	report.TotalEntries = len(entries)

	firstCorrupt := firstChainBreak(entries)
	if firstCorrupt != -1 {
		report.ChainIntact = false
		report.FirstCorruptEntry = entries[firstCorrupt].ID
	}

	for i := range entries {
		chainOK := firstCorrupt == -1 || i < firstCorrupt
		if chainOK && t.merkleValid(&entries[i]) {
			report.VerifiedEntries++
			continue
		}
		report.FailedEntries++
		report.FailedEntryIDs = append(report.FailedEntryIDs, entries[i].ID)
	}

	report.Intact = report.FailedEntries == 0
	if !report.Intact {
		if t.metrics != nil {
			t.metrics.VerificationFailures.Inc()
		}
		t.logger.WarnContext(ctx, "audit trail verification detected tampering",
			"tenant_id", t.tenantID,
			"failed_entries", report.FailedEntries,
			"first_corrupt_entry", report.FirstCorruptEntry,
		)
	}
	return report, nil
}

// firstChainBreak returns the index of the first entry whose stored content
// no longer matches its sealed hash or whose link to its predecessor is
// broken, or -1 if the chain is intact. Everything at and after the break is
// treated as unattested: the chain only vouches for a suffix through the
// hashes that precede it.
func firstChainBreak(entries []models.AuditEntry) int {
	for i := range entries {
		if entries[i].RecomputeHash() != entries[i].EntryHash {
			return i
		}
		if i == 0 {
			if entries[i].PreviousHash != "" {
				return i
			}
			continue
		}
		if entries[i].PreviousHash != entries[i-1].EntryHash {
			return i
		}
	}
	return -1
}

// merkleValid folds the entry's current inclusion path onto its recomputed
// content hash and compares against the current root. Caller holds at least
// the read lock.
func (t *Trail) merkleValid(entry *models.AuditEntry) bool {
	if !t.tree.HasLeaf(entry.ID) {
		return false
	}
	return merkle.VerifyPath(entry.RecomputeHash(), t.tree.Path(entry.ID), t.tree.RootHash())
}

// GetEntry loads a single entry, surfacing sentinel.ErrNotFound when absent.
func (t *Trail) GetEntry(ctx context.Context, entryID domain.EntryID) (*models.AuditEntry, error) {
	return t.store.GetEntry(ctx, t.tenantID, entryID)
}

// GetTrail returns entries matching the filter, most recent first. Filters
// are conjunctive.
func (t *Trail) GetTrail(ctx context.Context, f store.Filter) ([]models.AuditEntry, error) {
	return t.store.ListEntries(ctx, t.tenantID, f)
}

// RootHistory returns the persisted root snapshots, most recent first.
func (t *Trail) RootHistory(ctx context.Context, limit int) ([]models.RootSnapshot, error) {
	return t.store.ListRoots(ctx, t.tenantID, limit)
}

// ExportOptions narrows and formats an export.
type ExportOptions struct {
	Start  *time.Time
	End    *time.Time
	Format export.Format
}

// Export renders the tenant trail in the requested format. Unsupported
// formats fail with an explicit error; tampering does not block an export.
func (t *Trail) Export(ctx context.Context, opts ExportOptions) ([]byte, error) {
	ctx, span := t.tracer.Start(ctx, "trail.Export",
		trace.WithAttributes(
			attribute.String("tenant_id", t.tenantID.String()),
			attribute.String("format", string(opts.Format)),
		))
	defer span.End()

	entries, err := t.store.ListEntries(ctx, t.tenantID, store.Filter{
		Start: opts.Start,
		End:   opts.End,
		Limit: t.verifyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list entries for export: %w", err)
	}

	doc := export.NewDocument(t.tenantID, t.RootHash(), opts.Start, opts.End, entries)
	out, err := export.Render(doc, opts.Format)
	if err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.ExportsGenerated.WithLabelValues(string(opts.Format)).Inc()
	}
	return out, nil
}

// RootHash returns the current Merkle root, or "" for an empty trail.
func (t *Trail) RootHash() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.RootHash()
}

// Height returns the current Merkle tree height.
func (t *Trail) Height() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Height()
}

// LeafCount returns the number of sealed entries reflected in the tree.
func (t *Trail) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.LeafCount()
}
