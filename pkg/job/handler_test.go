package job

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/internal/auth"
	"github.com/proteus/scrapecore/internal/store"
)

func TestResolveTenant_UnauthenticatedUsesRequested(t *testing.T) {
	h := &Handler{}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()

	tenant, ok := h.resolveTenant(w, r, "some-tenant")
	require.True(t, ok)
	require.Equal(t, "some-tenant", tenant)
}

func TestResolveTenant_AuthenticatedNoRequestedUsesIdentity(t *testing.T) {
	h := &Handler{}
	id := &auth.Identity{TenantID: uuid.New()}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r = r.WithContext(auth.NewContext(r.Context(), id))
	w := httptest.NewRecorder()

	tenant, ok := h.resolveTenant(w, r, "")
	require.True(t, ok)
	require.Equal(t, id.TenantID.String(), tenant)
}

func TestResolveTenant_AuthenticatedMatchingRequestedSucceeds(t *testing.T) {
	h := &Handler{}
	id := &auth.Identity{TenantID: uuid.New()}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r = r.WithContext(auth.NewContext(r.Context(), id))
	w := httptest.NewRecorder()

	tenant, ok := h.resolveTenant(w, r, id.TenantID.String())
	require.True(t, ok)
	require.Equal(t, id.TenantID.String(), tenant)
}

func TestResolveTenant_AuthenticatedMismatchRejected(t *testing.T) {
	h := &Handler{}
	id := &auth.Identity{TenantID: uuid.New()}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r = r.WithContext(auth.NewContext(r.Context(), id))
	w := httptest.NewRecorder()

	_, ok := h.resolveTenant(w, r, uuid.New().String())
	require.False(t, ok)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAuthorizedForJob_UnauthenticatedAlwaysAllowed(t *testing.T) {
	h := &Handler{}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	tenant := uuid.New().String()

	require.True(t, h.authorizedForJob(r, store.Job{Tenant: &tenant}))
}

func TestAuthorizedForJob_UntenantedJobAlwaysAllowed(t *testing.T) {
	h := &Handler{}
	id := &auth.Identity{TenantID: uuid.New()}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(auth.NewContext(r.Context(), id))

	require.True(t, h.authorizedForJob(r, store.Job{Tenant: nil}))
}

func TestAuthorizedForJob_MatchingTenantAllowed(t *testing.T) {
	h := &Handler{}
	id := &auth.Identity{TenantID: uuid.New()}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(auth.NewContext(r.Context(), id))
	tenant := id.TenantID.String()

	require.True(t, h.authorizedForJob(r, store.Job{Tenant: &tenant}))
}

func TestAuthorizedForJob_MismatchedTenantDenied(t *testing.T) {
	h := &Handler{}
	id := &auth.Identity{TenantID: uuid.New()}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(auth.NewContext(r.Context(), id))
	other := uuid.New().String()

	require.False(t, h.authorizedForJob(r, store.Job{Tenant: &other}))
}
