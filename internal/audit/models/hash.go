package models

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/sha3"
)

// ComputeEntryHash produces the content hash for an entry given the hash of
// its predecessor (empty for the first entry of a tenant).
//
// The hash input is a canonical JSON serialization of the auditable fields:
// encoding/json writes map keys in sorted order, so identical field values
// always produce identical bytes. Timestamps are normalized to UTC
// RFC 3339 nanoseconds before serialization. The digest is SHA3-256, hex
// encoded. Pure computation, no clock, no randomness.
func ComputeEntryHash(entry *AuditEntry, previousHash string) string {
	canonical := map[string]any{
		"id":            entry.ID.String(),
		"timestamp":     entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"tenant_id":     entry.TenantID.String(),
		"user_id":       entry.UserID,
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"details":       entry.Details,
		"previous_hash": previousHash,
	}

	// Marshal cannot fail here: every value is a string or a map that came
	// through JSON decoding in the first place.
	serialized, err := json.Marshal(canonical)
	if err != nil {
		panic("audit: canonical serialization failed: " + err.Error())
	}

	sum := sha3.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// RecomputeHash re-derives the content hash from the entry's stored fields
// and stored previous hash. A mismatch with EntryHash means the stored
// content was altered after sealing.
func (e *AuditEntry) RecomputeHash() string {
	return ComputeEntryHash(e, e.PreviousHash)
}
