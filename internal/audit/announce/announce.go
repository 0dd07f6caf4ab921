// Package announce publishes committed Merkle root snapshots to Redis so
// external monitors can track a tenant's root evolution without reading the
// store. A tampered store cannot silently rewrite history that an outside
// observer already gossiped.
package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"veritrail/internal/audit/models"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// Channel receives every announced snapshot.
const Channel = "veritrail:roots"

func rootKey(tenantID domain.TenantID) string {
	return "veritrail:root:" + tenantID.String()
}

// Notice is the wire form of an announced root snapshot.
type Notice struct {
	TenantID  domain.TenantID `json:"tenant_id"`
	RootHash  string          `json:"root_hash"`
	LeafCount int             `json:"leaf_count"`
	Timestamp string          `json:"timestamp"`
}

// Announcer writes root snapshots to Redis: the latest root per tenant under
// a key, and every transition on a pub/sub channel.
type Announcer struct {
	client *redis.Client
	logger *slog.Logger
}

// New constructs an Announcer over an established Redis client.
func New(client *redis.Client, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{client: client, logger: logger}
}

// AnnounceRoot records the snapshot in Redis. Fire-and-forget: failures are
// logged and never surface into the audit write path.
func (a *Announcer) AnnounceRoot(ctx context.Context, snap models.RootSnapshot) {
	notice := Notice{
		TenantID:  snap.TenantID,
		RootHash:  snap.RootHash,
		LeafCount: snap.LeafCount,
		Timestamp: snap.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		a.logger.ErrorContext(ctx, "marshal root notice", "tenant_id", snap.TenantID, "error", err)
		return
	}

	pipe := a.client.Pipeline()
	pipe.Set(ctx, rootKey(snap.TenantID), payload, 0)
	pipe.Publish(ctx, Channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.WarnContext(ctx, "announce root snapshot",
			"tenant_id", snap.TenantID,
			"root_hash", snap.RootHash,
			"error", err,
		)
	}
}

// CurrentRoot returns the most recently announced root for a tenant.
func (a *Announcer) CurrentRoot(ctx context.Context, tenantID domain.TenantID) (Notice, error) {
	raw, err := a.client.Get(ctx, rootKey(tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Notice{}, sentinel.ErrNotFound
		}
		return Notice{}, fmt.Errorf("get announced root: %w", err)
	}
	var notice Notice
	if err := json.Unmarshal(raw, &notice); err != nil {
		return Notice{}, fmt.Errorf("unmarshal root notice: %w", err)
	}
	return notice, nil
}
