package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/audit/export"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store"
	"veritrail/internal/audit/trail"
	"veritrail/pkg/domain"
)

//go:generate mockgen -source=handlers_audit.go -destination=mocks/audit-mocks.go -package=mocks AuditService

// AuditService is the manager-backed surface the transport delegates to.
// Handlers embed no audit logic.
type AuditService interface {
	AddEntry(ctx context.Context, tenantID domain.TenantID, req trail.AddRequest) (*models.AuditEntry, error)
	GetEntry(ctx context.Context, tenantID domain.TenantID, entryID domain.EntryID) (*models.AuditEntry, error)
	GetTrail(ctx context.Context, tenantID domain.TenantID, f store.Filter) ([]models.AuditEntry, error)
	VerifyEntry(ctx context.Context, tenantID domain.TenantID, entryID domain.EntryID) (bool, error)
	VerifyTenant(ctx context.Context, tenantID domain.TenantID) (trail.Report, error)
	RootHistory(ctx context.Context, tenantID domain.TenantID, limit int) ([]models.RootSnapshot, error)
	Export(ctx context.Context, tenantID domain.TenantID, opts trail.ExportOptions) ([]byte, error)
}

// AuditHandler handles the audit trail endpoints.
type AuditHandler struct {
	audit  AuditService
	logger *slog.Logger
}

// NewAuditHandler creates the handler.
func NewAuditHandler(audit AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// Register mounts the audit routes on the given router.
func (h *AuditHandler) Register(r chi.Router) {
	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/entries", h.handleAddEntry)
		r.Get("/entries", h.handleGetTrail)
		r.Get("/entries/{entryID}", h.handleGetEntry)
		r.Get("/entries/{entryID}/verify", h.handleVerifyEntry)
		r.Get("/verify", h.handleVerifyTenant)
		r.Get("/roots", h.handleRootHistory)
		r.Get("/export", h.handleExport)
	})
}

// AddEntryRequest is the JSON body of POST /entries.
type AddEntryRequest struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	Details      map[string]any `json:"details"`
	UserID       string         `json:"user_id,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
}

func (h *AuditHandler) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}
	if req.ResourceType == "" {
		writeBadRequest(w, "resource_type is required")
		return
	}

	entry, err := h.audit.AddEntry(r.Context(), tenantID, trail.AddRequest{
		Action:       req.Action,
		ResourceType: req.ResourceType,
		Details:      req.Details,
		UserID:       req.UserID,
		ResourceID:   req.ResourceID,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to add audit entry",
			"tenant_id", tenantID,
			"action", req.Action,
			"error", err,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (h *AuditHandler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}

	entry, err := h.audit.GetEntry(r.Context(), tenantID, entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *AuditHandler) handleGetTrail(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := h.audit.GetTrail(r.Context(), tenantID, f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read audit trail",
			"tenant_id", tenantID,
			"error", err,
		)
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"entries":   entries,
	})
}

func (h *AuditHandler) handleVerifyEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}

	valid, err := h.audit.VerifyEntry(r.Context(), tenantID, entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"entry_id":  entryID,
		"valid":     valid,
	})
}

func (h *AuditHandler) handleVerifyTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	report, err := h.audit.VerifyTenant(r.Context(), tenantID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to verify audit trail",
			"tenant_id", tenantID,
			"error", err,
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AuditHandler) handleRootHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	roots, err := h.audit.RootHistory(r.Context(), tenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if roots == nil {
		roots = []models.RootSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"roots":     roots,
	})
}

func (h *AuditHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	out, err := h.audit.Export(r.Context(), tenantID, trail.ExportOptions{
		Start:  start,
		End:    end,
		Format: format,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to export audit trail",
			"tenant_id", tenantID,
			"format", format,
			"error", err,
		)
		writeError(w, err)
		return
	}

	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *AuditHandler) tenantID(w http.ResponseWriter, r *http.Request) (domain.TenantID, bool) {
	tenantID, err := domain.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", false
	}
	return tenantID, true
}

func (h *AuditHandler) entryID(w http.ResponseWriter, r *http.Request) (domain.EntryID, bool) {
	entryID, err := domain.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", false
	}
	return entryID, true
}

func parseFilter(r *http.Request) (store.Filter, error) {
	var f store.Filter
	q := r.URL.Query()

	start, end, err := parseRange(r)
	if err != nil {
		return f, err
	}
	f.Start = start
	f.End = end
	f.Action = q.Get("action")
	f.ResourceType = q.Get("resource_type")

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errInvalidLimit
		}
		f.Limit = n
	}
	return f, nil
}

var errInvalidLimit = &badParamError{"limit must be a positive integer"}

type badParamError struct{ msg string }

func (e *badParamError) Error() string { return e.msg }

func parseRange(r *http.Request) (*time.Time, *time.Time, error) {
	q := r.URL.Query()
	var start, end *time.Time
	if raw := q.Get("start"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, &badParamError{"start must be RFC 3339"}
		}
		start = &ts
	}
	if raw := q.Get("end"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, &badParamError{"end must be RFC 3339"}
		}
		end = &ts
	}
	return start, end, nil
}
