// Package models defines the audit entry data model and its hashing contract.
//
// An entry carries two independent integrity anchors: EntryHash, a content
// hash chained to the previous entry's hash, and MerklePath, the inclusion
// proof captured when the entry's hash was inserted into the tenant's Merkle
// tree. Entries are append-only; the core never mutates or deletes them.
package models

import (
	"time"

	"veritrail/internal/audit/merkle"
	"veritrail/pkg/domain"
)

// AuditEntry is a single tamper-evident record in a tenant's trail.
type AuditEntry struct {
	ID           domain.EntryID     `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	TenantID     domain.TenantID    `json:"tenant_id"`
	UserID       string             `json:"user_id,omitempty"`
	Action       string             `json:"action"`
	ResourceType string             `json:"resource_type"`
	ResourceID   string             `json:"resource_id,omitempty"`
	Details      map[string]any     `json:"details"`
	PreviousHash string             `json:"previous_hash,omitempty"`
	EntryHash    string             `json:"entry_hash"`
	MerklePath   []merkle.ProofStep `json:"merkle_path"`
	// Signature is reserved for an external signer; the core never sets it.
	Signature string    `json:"signature,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RootSnapshot records the tenant's Merkle root immediately after an
// insertion. The snapshot history is an append-only ledger of root evolution,
// independent of the entries themselves.
type RootSnapshot struct {
	ID        int64           `json:"id,omitempty"`
	TenantID  domain.TenantID `json:"tenant_id"`
	RootHash  string          `json:"root_hash"`
	LeafCount int             `json:"leaf_count"`
	Timestamp time.Time       `json:"timestamp"`
	CreatedAt time.Time       `json:"created_at"`
}
