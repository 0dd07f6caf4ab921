// Package export renders an audit trail into its two interchange formats: a
// structured JSON document and a flat CSV table.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"veritrail/internal/audit/merkle"
	"veritrail/internal/audit/models"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// Format selects the serialization of an export.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates an externally supplied format string.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("export format %q: %w", raw, sentinel.ErrUnsupportedFormat)
	}
}

// Document is the structured export of a tenant trail.
type Document struct {
	TenantID     domain.TenantID `json:"tenant_id"`
	ExportDate   time.Time       `json:"export_date"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	TotalEntries int             `json:"total_entries"`
	MerkleRoot   string          `json:"merkle_root"`
	Entries      []EntryRecord   `json:"entries"`
}

// EntryRecord is the exported view of a single entry.
type EntryRecord struct {
	ID           domain.EntryID     `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	UserID       string             `json:"user_id,omitempty"`
	Action       string             `json:"action"`
	ResourceType string             `json:"resource_type"`
	ResourceID   string             `json:"resource_id,omitempty"`
	Details      map[string]any     `json:"details"`
	EntryHash    string             `json:"entry_hash"`
	MerklePath   []merkle.ProofStep `json:"merkle_path"`
}

// NewDocument builds an export document from trail state.
func NewDocument(tenantID domain.TenantID, root string, start, end *time.Time, entries []models.AuditEntry) Document {
	records := make([]EntryRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, EntryRecord{
			ID:           e.ID,
			Timestamp:    e.Timestamp,
			UserID:       e.UserID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Details:      e.Details,
			EntryHash:    e.EntryHash,
			MerklePath:   e.MerklePath,
		})
	}
	return Document{
		TenantID:     tenantID,
		ExportDate:   time.Now().UTC(),
		StartDate:    start,
		EndDate:      end,
		TotalEntries: len(records),
		MerkleRoot:   root,
		Entries:      records,
	}
}

// Render serializes the document in the requested format. Unrecognized
// formats fail with sentinel.ErrUnsupportedFormat naming the offender;
// there is no silent default.
func Render(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(doc)
	case FormatCSV:
		return renderCSV(doc)
	default:
		return nil, fmt.Errorf("export format %q: %w", format, sentinel.ErrUnsupportedFormat)
	}
}

func renderJSON(doc Document) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export document: %w", err)
	}
	return out, nil
}

var csvHeader = []string{
	"ID", "Timestamp", "User ID", "Action", "Resource Type", "Resource ID",
	"Details", "Entry Hash", "Merkle Path",
}

func renderCSV(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range doc.Entries {
		details, err := json.Marshal(rec.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details for entry %s: %w", rec.ID, err)
		}
		path, err := json.Marshal(rec.MerklePath)
		if err != nil {
			return nil, fmt.Errorf("marshal merkle path for entry %s: %w", rec.ID, err)
		}
		row := []string{
			rec.ID.String(),
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			rec.UserID,
			rec.Action,
			rec.ResourceType,
			rec.ResourceID,
			string(details),
			rec.EntryHash,
			string(path),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row for entry %s: %w", rec.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
