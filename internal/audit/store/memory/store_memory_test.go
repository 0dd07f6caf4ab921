package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

func newEntry(tenantID domain.TenantID, i int, action string) *models.AuditEntry {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return &models.AuditEntry{
		ID:           domain.EntryID(fmt.Sprintf("00000000-0000-0000-0000-%012d", i)),
		Timestamp:    ts,
		TenantID:     tenantID,
		UserID:       "user-1",
		Action:       action,
		ResourceType: "invoice",
		ResourceID:   fmt.Sprintf("inv-%d", i),
		Details:      map[string]any{"seq": i},
		EntryHash:    fmt.Sprintf("%064d", i),
		CreatedAt:    ts,
	}
}

func snapshot(tenantID domain.TenantID, entry *models.AuditEntry, leaves int) models.RootSnapshot {
	return models.RootSnapshot{
		TenantID:  tenantID,
		RootHash:  entry.EntryHash,
		LeafCount: leaves,
		Timestamp: entry.Timestamp,
	}
}

func seed(t *testing.T, s *InMemoryStore, tenantID domain.TenantID, n int) []*models.AuditEntry {
	t.Helper()
	ctx := context.Background()
	entries := make([]*models.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		e := newEntry(tenantID, i, "invoice.created")
		require.NoError(t, s.AppendEntry(ctx, e, snapshot(tenantID, e, i+1)))
		entries = append(entries, e)
	}
	return entries
}

func TestInMemoryStore_AppendAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")

	t.Run("get missing entry returns ErrNotFound", func(t *testing.T) {
		_, err := s.GetEntry(ctx, tenant, domain.EntryID("nope"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	entries := seed(t, s, tenant, 3)

	t.Run("round-trips an appended entry", func(t *testing.T) {
		got, err := s.GetEntry(ctx, tenant, entries[1].ID)
		require.NoError(t, err)
		assert.Equal(t, *entries[1], *got)
	})

	t.Run("returned entries are copies", func(t *testing.T) {
		got, err := s.GetEntry(ctx, tenant, entries[0].ID)
		require.NoError(t, err)
		got.Details["seq"] = 999

		again, err := s.GetEntry(ctx, tenant, entries[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Details["seq"])
	})

	t.Run("unknown tenant returns ErrNotFound", func(t *testing.T) {
		_, err := s.GetEntry(ctx, domain.TenantID("other"), entries[0].ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryStore_LatestEntryHash(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")

	t.Run("empty tenant yields empty hash", func(t *testing.T) {
		hash, err := s.LatestEntryHash(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, "", hash)
	})

	entries := seed(t, s, tenant, 3)

	t.Run("tracks the last appended entry", func(t *testing.T) {
		hash, err := s.LatestEntryHash(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, entries[2].EntryHash, hash)
	})
}

func TestInMemoryStore_ListEntries(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")

	for i := 0; i < 5; i++ {
		action := "invoice.created"
		if i%2 == 1 {
			action = "invoice.deleted"
		}
		e := newEntry(tenant, i, action)
		require.NoError(t, s.AppendEntry(ctx, e, snapshot(tenant, e, i+1)))
	}

	t.Run("returns newest first", func(t *testing.T) {
		got, err := s.ListEntries(ctx, tenant, store.Filter{})
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.True(t, got[0].Timestamp.After(got[4].Timestamp))
	})

	t.Run("filters by action", func(t *testing.T) {
		got, err := s.ListEntries(ctx, tenant, store.Filter{Action: "invoice.deleted"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, e := range got {
			assert.Equal(t, "invoice.deleted", e.Action)
		}
	})

	t.Run("filters by time range inclusive", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
		end := time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC)
		got, err := s.ListEntries(ctx, tenant, store.Filter{Start: &start, End: &end})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("applies limit", func(t *testing.T) {
		got, err := s.ListEntries(ctx, tenant, store.Filter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("unknown tenant lists empty", func(t *testing.T) {
		got, err := s.ListEntries(ctx, domain.TenantID("other"), store.Filter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestInMemoryStore_ListEntriesAsc(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")
	entries := seed(t, s, tenant, 4)

	got, err := s.ListEntriesAsc(ctx, tenant, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := range got {
		assert.Equal(t, entries[i].ID, got[i].ID)
	}

	limited, err := s.ListEntriesAsc(ctx, tenant, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, entries[0].ID, limited[0].ID)
}

func TestInMemoryStore_LeafHashes(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")
	entries := seed(t, s, tenant, 3)

	leaves, err := s.LeafHashes(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	for i, l := range leaves {
		assert.Equal(t, entries[i].ID, l.EntryID)
		assert.Equal(t, entries[i].EntryHash, l.Hash)
	}
}

func TestInMemoryStore_ListRoots(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")
	seed(t, s, tenant, 3)

	roots, err := s.ListRoots(ctx, tenant, 0)
	require.NoError(t, err)
	require.Len(t, roots, 3)
	// Newest first, with assigned IDs and leaf counts intact.
	assert.Equal(t, 3, roots[0].LeafCount)
	assert.Equal(t, 1, roots[2].LeafCount)
	assert.Greater(t, roots[0].ID, roots[1].ID)

	limited, err := s.ListRoots(ctx, tenant, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 3, limited[0].LeafCount)
}

func TestInMemoryStore_TenantIsolation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	seed(t, s, domain.TenantID("acme"), 2)
	seed(t, s, domain.TenantID("globex"), 3)

	acme, err := s.ListEntriesAsc(ctx, domain.TenantID("acme"), 0)
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	globex, err := s.ListEntriesAsc(ctx, domain.TenantID("globex"), 0)
	require.NoError(t, err)
	assert.Len(t, globex, 3)
}

func TestInMemoryStore_FailNextAppend(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tenant := domain.TenantID("acme")

	boom := errors.New("disk on fire")
	s.FailNextAppend(boom)

	e := newEntry(tenant, 0, "invoice.created")
	err := s.AppendEntry(ctx, e, snapshot(tenant, e, 1))
	assert.ErrorIs(t, err, boom)

	// The fault is single-shot and the failed append left no trace.
	entries, err := s.ListEntriesAsc(ctx, tenant, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.AppendEntry(ctx, e, snapshot(tenant, e, 1)))
}

func TestInMemoryStore_Corrupt(t *testing.T) {
	s := NewInMemoryStore()
	tenant := domain.TenantID("acme")
	entries := seed(t, s, tenant, 2)

	assert.False(t, s.Corrupt(tenant, domain.EntryID("missing"), nil))
	assert.True(t, s.Corrupt(tenant, entries[0].ID, map[string]any{"amount": "999999"}))

	got, err := s.GetEntry(context.Background(), tenant, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "999999", got.Details["amount"])
	// The stored hash is untouched; corruption is content-only.
	assert.Equal(t, entries[0].EntryHash, got.EntryHash)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const goroutines = 20
	const appendsPerGoroutine = 10

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			tenant := domain.TenantID(fmt.Sprintf("tenant-%d", g%4))
			for j := 0; j < appendsPerGoroutine; j++ {
				e := newEntry(tenant, g*appendsPerGoroutine+j, "invoice.created")
				assert.NoError(t, s.AppendEntry(ctx, e, snapshot(tenant, e, 1)))
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		entries, err := s.ListEntriesAsc(ctx, domain.TenantID(fmt.Sprintf("tenant-%d", i)), 0)
		require.NoError(t, err)
		total += len(entries)
	}
	assert.Equal(t, goroutines*appendsPerGoroutine, total)
}
