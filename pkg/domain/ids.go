package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TenantID identifies the owning tenant of an audit trail. It is the partition
// key for every store read and write and for the per-tenant Merkle tree.
// Upstream systems mint tenant identifiers, so this stays an opaque string
// rather than forcing a UUID shape on callers.
type TenantID string

func (t TenantID) String() string { return string(t) }

// ParseTenantID validates an externally supplied tenant identifier.
func ParseTenantID(raw string) (TenantID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("tenant id must not be empty")
	}
	if len(trimmed) > 128 {
		return "", fmt.Errorf("tenant id exceeds 128 characters")
	}
	return TenantID(trimmed), nil
}

// EntryID identifies a single audit entry. Generated at creation time and
// never reused.
type EntryID string

func (e EntryID) String() string { return string(e) }

// NewEntryID mints a fresh entry identifier.
func NewEntryID() EntryID {
	return EntryID(uuid.NewString())
}

// ParseEntryID validates an externally supplied entry identifier.
func ParseEntryID(raw string) (EntryID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("entry id must be a valid UUID: %w", err)
	}
	if parsed == uuid.Nil {
		return "", fmt.Errorf("entry id must not be the nil UUID")
	}
	return EntryID(parsed.String()), nil
}
