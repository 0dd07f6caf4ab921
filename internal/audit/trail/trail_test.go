package trail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audit/export"
	"veritrail/internal/audit/merkle"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/internal/audit/store/memory"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

func newTestTrail(t *testing.T, opts ...Option) (*Trail, *memory.InMemoryStore) {
	t.Helper()
	st := memory.NewInMemoryStore()
	tr, err := New(context.Background(), domain.TenantID("acme"), st, opts...)
	require.NoError(t, err)
	return tr, st
}

func addEntries(t *testing.T, tr *Trail, n int) []*models.AuditEntry {
	t.Helper()
	entries := make([]*models.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := tr.AddEntry(context.Background(), AddRequest{
			Action:       "invoice.created",
			ResourceType: "invoice",
			ResourceID:   fmt.Sprintf("inv-%d", i),
			UserID:       "user-1",
			Details:      map[string]any{"amount": fmt.Sprintf("%d.00", 100+i)},
		})
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return entries
}

func TestAddEntry_SealsAndChains(t *testing.T) {
	tr, _ := newTestTrail(t)
	entries := addEntries(t, tr, 3)

	t.Run("first entry anchors the chain", func(t *testing.T) {
		assert.Equal(t, "", entries[0].PreviousHash)
		assert.Len(t, entries[0].EntryHash, 64)
	})

	t.Run("each entry links to its predecessor", func(t *testing.T) {
		for i := 1; i < len(entries); i++ {
			assert.Equal(t, entries[i-1].EntryHash, entries[i].PreviousHash, "entry %d", i)
		}
	})

	t.Run("entries carry a verifiable inclusion path", func(t *testing.T) {
		last := entries[2]
		assert.True(t, merkle.VerifyPath(last.EntryHash, last.MerklePath, tr.RootHash()))
	})

	t.Run("single-leaf path is an empty list, not null", func(t *testing.T) {
		require.NotNil(t, entries[0].MerklePath)
		assert.Len(t, entries[0].MerklePath, 0)

		payload, err := json.Marshal(entries[0])
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"merkle_path":[]`)
	})

	t.Run("timestamps are sealed at microsecond precision", func(t *testing.T) {
		for i, e := range entries {
			assert.True(t, e.Timestamp.Equal(e.Timestamp.Truncate(time.Microsecond)), "entry %d", i)
		}
	})

	t.Run("tree state tracks insertions", func(t *testing.T) {
		assert.Equal(t, 3, tr.LeafCount())
		assert.Equal(t, 2, tr.Height())
		assert.NotEmpty(t, tr.RootHash())
	})
}

func TestAddEntry_Validation(t *testing.T) {
	tr, _ := newTestTrail(t)
	ctx := context.Background()

	_, err := tr.AddEntry(ctx, AddRequest{ResourceType: "invoice"})
	assert.ErrorContains(t, err, "action is required")

	_, err = tr.AddEntry(ctx, AddRequest{Action: "invoice.created"})
	assert.ErrorContains(t, err, "resource type is required")

	assert.Equal(t, 0, tr.LeafCount())
}

func TestAddEntry_StorageFaultRollsBackTree(t *testing.T) {
	tr, st := newTestTrail(t)
	ctx := context.Background()
	addEntries(t, tr, 2)
	rootBefore := tr.RootHash()

	st.FailNextAppend(errors.New("connection reset"))
	_, err := tr.AddEntry(ctx, AddRequest{Action: "invoice.created", ResourceType: "invoice"})
	require.Error(t, err)

	assert.Equal(t, rootBefore, tr.RootHash(), "failed append must not move the root")
	assert.Equal(t, 2, tr.LeafCount())

	// The trail stays usable and consistent after the fault.
	addEntries(t, tr, 1)
	report, err := tr.VerifyTrail(ctx)
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, 3, report.TotalEntries)
}

func TestVerifyEntry(t *testing.T) {
	tr, st := newTestTrail(t)
	ctx := context.Background()
	entries := addEntries(t, tr, 5)

	t.Run("every sealed entry verifies", func(t *testing.T) {
		for i, e := range entries {
			ok, err := tr.VerifyEntry(ctx, e.ID)
			require.NoError(t, err)
			assert.True(t, ok, "entry %d", i)
		}
	})

	t.Run("unknown entry is false, not an error", func(t *testing.T) {
		ok, err := tr.VerifyEntry(ctx, domain.EntryID("does-not-exist"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tampering fails the entry and its successors", func(t *testing.T) {
		require.True(t, st.Corrupt(tr.TenantID(), entries[2].ID, map[string]any{"amount": "1000000.00"}))

		for i, e := range entries {
			ok, err := tr.VerifyEntry(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, i < 2, ok, "entry %d", i)
		}
	})
}

// microsecondStore stores timestamps at microsecond precision, the way a
// TIMESTAMPTZ column round-trips them.
type microsecondStore struct {
	*memory.InMemoryStore
}

func (s *microsecondStore) AppendEntry(ctx context.Context, entry *models.AuditEntry, root models.RootSnapshot) error {
	stored := *entry
	stored.Timestamp = stored.Timestamp.Truncate(time.Microsecond)
	stored.CreatedAt = stored.CreatedAt.Truncate(time.Microsecond)
	root.Timestamp = root.Timestamp.Truncate(time.Microsecond)
	return s.InMemoryStore.AppendEntry(ctx, &stored, root)
}

func TestVerify_SurvivesMicrosecondTimestampStorage(t *testing.T) {
	st := &microsecondStore{memory.NewInMemoryStore()}
	tr, err := New(context.Background(), domain.TenantID("acme"), st)
	require.NoError(t, err)
	ctx := context.Background()

	entries := addEntries(t, tr, 5)

	// Re-read hashes must match the sealed ones even though the store can
	// only hold microseconds.
	for i, e := range entries {
		ok, err := tr.VerifyEntry(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, ok, "entry %d", i)
	}

	report, err := tr.VerifyTrail(ctx)
	require.NoError(t, err)
	assert.True(t, report.ChainIntact)
	assert.True(t, report.Intact)
	assert.Equal(t, 5, report.VerifiedEntries)

	reopened, err := New(ctx, tr.TenantID(), st)
	require.NoError(t, err)
	report, err = reopened.VerifyTrail(ctx)
	require.NoError(t, err)
	assert.True(t, report.Intact, "verification must survive a reload from stored state")
}

func TestVerifyEntry_BeyondScanLimit(t *testing.T) {
	tr, _ := newTestTrail(t, WithVerifyLimit(2))
	ctx := context.Background()
	entries := addEntries(t, tr, 3)

	t.Run("entry outside the window is unavailable, not tampered", func(t *testing.T) {
		ok, err := tr.VerifyEntry(ctx, entries[2].ID)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.False(t, ok)
	})

	t.Run("entries inside the window still verify", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			ok, err := tr.VerifyEntry(ctx, entries[i].ID)
			require.NoError(t, err)
			assert.True(t, ok, "entry %d", i)
		}
	})

	t.Run("nonexistent entry stays a plain false", func(t *testing.T) {
		ok, err := tr.VerifyEntry(ctx, domain.EntryID("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerifyTrail_Intact(t *testing.T) {
	tr, _ := newTestTrail(t)
	addEntries(t, tr, 10)

	report, err := tr.VerifyTrail(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.TenantID("acme"), report.TenantID)
	assert.Equal(t, 10, report.TotalEntries)
	assert.Equal(t, 10, report.VerifiedEntries)
	assert.Equal(t, 0, report.FailedEntries)
	assert.Empty(t, report.FailedEntryIDs)
	assert.True(t, report.ChainIntact)
	assert.True(t, report.Intact)
	assert.Empty(t, report.FirstCorruptEntry)
	assert.False(t, report.VerifiedAt.IsZero())
}

func TestVerifyTrail_EmptyTrailIsIntact(t *testing.T) {
	tr, _ := newTestTrail(t)

	report, err := tr.VerifyTrail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalEntries)
	assert.True(t, report.ChainIntact)
	assert.True(t, report.Intact)
}

func TestVerifyTrail_CorruptionCascades(t *testing.T) {
	tr, st := newTestTrail(t)
	entries := addEntries(t, tr, 10)

	require.True(t, st.Corrupt(tr.TenantID(), entries[4].ID, map[string]any{"amount": "tampered"}))

	report, err := tr.VerifyTrail(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, report.TotalEntries)
	assert.Equal(t, 4, report.VerifiedEntries)
	assert.Equal(t, 6, report.FailedEntries)
	assert.False(t, report.ChainIntact)
	assert.False(t, report.Intact)
	assert.Equal(t, entries[4].ID, report.FirstCorruptEntry)

	require.Len(t, report.FailedEntryIDs, 6)
	for i, id := range report.FailedEntryIDs {
		assert.Equal(t, entries[4+i].ID, id)
	}
}

func TestNew_RebuildsTreeFromStore(t *testing.T) {
	tr, st := newTestTrail(t)
	addEntries(t, tr, 7)

	reopened, err := New(context.Background(), tr.TenantID(), st)
	require.NoError(t, err)

	assert.Equal(t, tr.RootHash(), reopened.RootHash())
	assert.Equal(t, tr.LeafCount(), reopened.LeafCount())
	assert.Equal(t, tr.Height(), reopened.Height())

	report, err := reopened.VerifyTrail(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Intact)
}

func TestGetEntry(t *testing.T) {
	tr, _ := newTestTrail(t)
	entries := addEntries(t, tr, 2)
	ctx := context.Background()

	got, err := tr.GetEntry(ctx, entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, entries[1].EntryHash, got.EntryHash)

	_, err = tr.GetEntry(ctx, domain.EntryID("missing"))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestGetTrail_Filters(t *testing.T) {
	tr, _ := newTestTrail(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		action := "invoice.created"
		if i%2 == 1 {
			action = "payment.recorded"
		}
		_, err := tr.AddEntry(ctx, AddRequest{Action: action, ResourceType: "invoice"})
		require.NoError(t, err)
	}

	all, err := tr.GetTrail(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.False(t, all[0].Timestamp.Before(all[3].Timestamp), "most recent first")

	payments, err := tr.GetTrail(ctx, store.Filter{Action: "payment.recorded"})
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	limited, err := tr.GetTrail(ctx, store.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRootHistory(t *testing.T) {
	tr, _ := newTestTrail(t)
	addEntries(t, tr, 3)

	roots, err := tr.RootHistory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, roots, 3)

	assert.Equal(t, 3, roots[0].LeafCount)
	assert.Equal(t, tr.RootHash(), roots[0].RootHash)
	assert.Equal(t, 1, roots[2].LeafCount)
}

func TestExport(t *testing.T) {
	tr, _ := newTestTrail(t)
	addEntries(t, tr, 3)
	ctx := context.Background()

	t.Run("json document carries trail state", func(t *testing.T) {
		out, err := tr.Export(ctx, ExportOptions{Format: export.FormatJSON})
		require.NoError(t, err)
		assert.Contains(t, string(out), tr.RootHash())
		assert.Contains(t, string(out), `"total_entries": 3`)
	})

	t.Run("csv has header plus one row per entry", func(t *testing.T) {
		out, err := tr.Export(ctx, ExportOptions{Format: export.FormatCSV})
		require.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
		assert.Len(t, lines, 4)
	})

	t.Run("date range narrows the export", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		out, err := tr.Export(ctx, ExportOptions{Format: export.FormatCSV, End: &past})
		require.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
		assert.Len(t, lines, 1, "only the header")
	})

	t.Run("unsupported format is rejected", func(t *testing.T) {
		_, err := tr.Export(ctx, ExportOptions{Format: export.Format("pdf")})
		assert.ErrorIs(t, err, sentinel.ErrUnsupportedFormat)
	})
}

type capturingSink struct {
	entries []*models.AuditEntry
}

func (c *capturingSink) Publish(_ context.Context, entry *models.AuditEntry) {
	c.entries = append(c.entries, entry)
}

type capturingAnnouncer struct {
	snaps []models.RootSnapshot
}

func (c *capturingAnnouncer) AnnounceRoot(_ context.Context, snap models.RootSnapshot) {
	c.snaps = append(c.snaps, snap)
}

func TestAddEntry_FanOut(t *testing.T) {
	sink := &capturingSink{}
	announcer := &capturingAnnouncer{}
	tr, st := newTestTrail(t, WithSink(sink), WithAnnouncer(announcer))

	entries := addEntries(t, tr, 2)

	require.Len(t, sink.entries, 2)
	assert.Equal(t, entries[1].ID, sink.entries[1].ID)

	require.Len(t, announcer.snaps, 2)
	assert.Equal(t, 2, announcer.snaps[1].LeafCount)
	assert.Equal(t, tr.RootHash(), announcer.snaps[1].RootHash)

	// A failed append publishes nothing.
	st.FailNextAppend(errors.New("boom"))
	_, err := tr.AddEntry(context.Background(), AddRequest{Action: "x", ResourceType: "y"})
	require.Error(t, err)
	assert.Len(t, sink.entries, 2)
	assert.Len(t, announcer.snaps, 2)
}
