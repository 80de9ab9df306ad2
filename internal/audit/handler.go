package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/auth"
	"github.com/proteus/scrapecore/internal/httpserver"
)

// ListStore lists audit entries scoped to a tenant.
type ListStore interface {
	ListAuditLog(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Entry, error)
}

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	store  ListStore
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(store ListStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "a valid X-API-Key header is required")
		return
	}

	entries, err := h.store.ListAuditLog(r.Context(), id.TenantID, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, entries)
}
