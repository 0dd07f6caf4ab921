// Package postgres persists audit trails in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veritrail/internal/audit/merkle"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	txcontext "veritrail/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Migrate applies the audit schema. Idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Store implements store.Store on top of database/sql with the pq driver.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `
	id, timestamp, tenant_id, user_id, action, resource_type, resource_id,
	details, previous_hash, entry_hash, merkle_path, signature, created_at`

// AppendEntry writes the entry row and its root snapshot in one transaction.
// If the context carries an outer transaction, both inserts join it so the
// audit write commits together with the caller's business write.
func (s *Store) AppendEntry(ctx context.Context, entry *models.AuditEntry, root models.RootSnapshot) error {
	if outer, ok := txcontext.From(ctx); ok {
		return s.appendIn(ctx, outer, entry, root)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	if err := s.appendIn(ctx, tx, entry, root); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}
	return nil
}

func (s *Store) appendIn(ctx context.Context, tx *sql.Tx, entry *models.AuditEntry, root models.RootSnapshot) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal entry details: %w", err)
	}
	path, err := json.Marshal(entry.MerklePath)
	if err != nil {
		return fmt.Errorf("marshal merkle path: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, timestamp, tenant_id, user_id, action, resource_type,
			resource_id, details, previous_hash, entry_hash, merkle_path,
			signature, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		entry.ID.String(),
		entry.Timestamp,
		entry.TenantID.String(),
		nullable(entry.UserID),
		entry.Action,
		entry.ResourceType,
		nullable(entry.ResourceID),
		details,
		nullable(entry.PreviousHash),
		entry.EntryHash,
		path,
		nullable(entry.Signature),
		entry.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("insert audit entry %s: %w", entry.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO merkle_roots (tenant_id, root_hash, leaf_count, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		root.TenantID.String(),
		root.RootHash,
		root.LeafCount,
		root.Timestamp,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert merkle root snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, tenantID domain.TenantID, entryID domain.EntryID) (*models.AuditEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM audit_entries
		WHERE tenant_id = $1 AND id = $2
	`, tenantID.String(), entryID.String())

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

func (s *Store) LatestEntryHash(ctx context.Context, tenantID domain.TenantID) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_hash
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, tenantID.String()).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("latest entry hash: %w", err)
	}
	return hash, nil
}

func (s *Store) ListEntries(ctx context.Context, tenantID domain.TenantID, f store.Filter) ([]models.AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE tenant_id = $1`
	args := []any{tenantID.String()}

	if f.Start != nil {
		args = append(args, *f.Start)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if f.End != nil {
		args = append(args, *f.End)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *Store) ListEntriesAsc(ctx context.Context, tenantID domain.TenantID, limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY seq ASC`
	args := []any{tenantID.String()}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries ascending: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *Store) LeafHashes(ctx context.Context, tenantID domain.TenantID) ([]merkle.Leaf, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_hash
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY seq ASC
	`, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list leaf hashes: %w", err)
	}
	defer rows.Close()

	var leaves []merkle.Leaf
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan leaf hash: %w", err)
		}
		leaves = append(leaves, merkle.Leaf{EntryID: domain.EntryID(id), Hash: hash})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaf hashes: %w", err)
	}
	return leaves, nil
}

func (s *Store) ListRoots(ctx context.Context, tenantID domain.TenantID, limit int) ([]models.RootSnapshot, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, root_hash, leaf_count, timestamp, created_at
		FROM merkle_roots
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, tenantID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list merkle roots: %w", err)
	}
	defer rows.Close()

	var roots []models.RootSnapshot
	for rows.Next() {
		var (
			snap   models.RootSnapshot
			tenant string
		)
		if err := rows.Scan(&snap.ID, &tenant, &snap.RootHash, &snap.LeafCount, &snap.Timestamp, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan merkle root: %w", err)
		}
		snap.TenantID = domain.TenantID(tenant)
		roots = append(roots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merkle roots: %w", err)
	}
	return roots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.AuditEntry, error) {
	var (
		entry        models.AuditEntry
		id, tenant   string
		userID       sql.NullString
		resourceID   sql.NullString
		previousHash sql.NullString
		signature    sql.NullString
		details      []byte
		path         []byte
	)
	err := row.Scan(
		&id,
		&entry.Timestamp,
		&tenant,
		&userID,
		&entry.Action,
		&entry.ResourceType,
		&resourceID,
		&details,
		&previousHash,
		&entry.EntryHash,
		&path,
		&signature,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ID = domain.EntryID(id)
	entry.TenantID = domain.TenantID(tenant)
	entry.UserID = userID.String
	entry.ResourceID = resourceID.String
	entry.PreviousHash = previousHash.String
	entry.Signature = signature.String

	if err := json.Unmarshal(details, &entry.Details); err != nil {
		return nil, fmt.Errorf("unmarshal entry details: %w", err)
	}
	if err := json.Unmarshal(path, &entry.MerklePath); err != nil {
		return nil, fmt.Errorf("unmarshal merkle path: %w", err)
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
