// Package job implements the submit/status/results HTTP contract (spec
// §6.1): the only surface the dispatcher and workers are driven from.
package job

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/audit"
	"github.com/proteus/scrapecore/internal/auth"
	"github.com/proteus/scrapecore/internal/httpserver"
	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/internal/telemetry"
	"github.com/proteus/scrapecore/pkg/coord"
	"github.com/proteus/scrapecore/pkg/ssrf"
)

// Handler serves job submission, status, and results.
type Handler struct {
	queries *store.Queries
	coord   *coord.Store
	ssrf    *ssrf.Guard
	audit   *audit.Writer
	logger  *slog.Logger
}

func NewHandler(queries *store.Queries, coordStore *coord.Store, ssrfGuard *ssrf.Guard, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{queries: queries, coord: coordStore, ssrf: ssrfGuard, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with the job lifecycle routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleSubmit)
	r.Get("/{id}", h.handleStatus)
	r.Get("/{id}/results", h.handleResults)
	return r
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tenant, ok := h.resolveTenant(w, r, req.Tenant)
	if !ok {
		return
	}

	if err := h.ssrf.EnsureURLAllowed(ctx, req.URL); err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "ssrf_denied", err.Error())
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = store.PriorityStandard
	}

	params := store.CreateJobParams{
		ID:       uuid.New(),
		URL:      req.URL,
		Priority: priority,
	}
	if req.SchemaID != "" {
		params.SchemaID = &req.SchemaID
	}
	if tenant != "" {
		params.Tenant = &tenant
	}
	if req.Engine != "" {
		params.Engine = &req.Engine
	}

	created, err := h.queries.CreateJob(ctx, params)
	if err != nil {
		h.logger.Error("creating job", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create job")
		return
	}

	if err := h.coord.PushPriority(ctx, priority, created.ID.String()); err != nil {
		h.logger.Error("pushing job to priority queue", "job_id", created.ID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to queue job")
		return
	}

	telemetry.JobsSubmittedTotal.WithLabelValues(tenant).Inc()
	h.audit.LogFromRequest(r, "submit", "job", created.ID.String(), nil)

	httpserver.Respond(w, http.StatusAccepted, SubmitResponse{JobID: created.ID.String(), State: created.State})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.parseJobID(w, r)
	if !ok {
		return
	}

	j, err := h.queries.GetJob(ctx, id)
	if err != nil {
		h.respondLookupError(w, id, err)
		return
	}
	if !h.authorizedForJob(r, j) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	httpserver.Respond(w, http.StatusOK, StatusResponse{
		JobID: j.ID.String(), State: j.State, Priority: j.Priority,
		Engine: j.Engine, SchemaID: j.SchemaID, Tenant: j.Tenant,
		CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt,
	})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.parseJobID(w, r)
	if !ok {
		return
	}

	j, err := h.queries.GetJob(ctx, id)
	if err != nil {
		h.respondLookupError(w, id, err)
		return
	}
	if !h.authorizedForJob(r, j) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	artifacts, err := h.queries.ListArtifacts(ctx, id)
	if err != nil {
		h.logger.Error("listing artifacts", "job_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list artifacts")
		return
	}

	out := make([]ArtifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		ar := ArtifactResponse{Type: a.Type, Location: a.Location}
		if a.Checksum != nil {
			ar.Checksum = *a.Checksum
		}
		out = append(out, ar)
	}

	httpserver.Respond(w, http.StatusOK, ResultsResponse{
		JobID: j.ID.String(), State: j.State, Data: j.Result, Artifacts: out, Error: j.Error,
	})
}

func (h *Handler) parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid job id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) respondLookupError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	h.logger.Error("loading job", "job_id", id, "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load job")
}

// resolveTenant derives the tenant to scope the job under. A tenant-scoped
// caller's requested tenant must match its authenticated identity.
func (h *Handler) resolveTenant(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		return requested, true
	}
	tenantID := identity.TenantID.String()
	if requested != "" && requested != tenantID {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "tenant_mismatch", "requested tenant does not match authenticated tenant")
		return "", false
	}
	return tenantID, true
}

// authorizedForJob reports whether the request's authenticated tenant (if
// any) may see this job. Untenanted jobs and unauthenticated requests are
// visible to anyone who has the job id.
func (h *Handler) authorizedForJob(r *http.Request, j store.Job) bool {
	identity := auth.FromContext(r.Context())
	if identity == nil || j.Tenant == nil {
		return true
	}
	return *j.Tenant == identity.TenantID.String()
}
