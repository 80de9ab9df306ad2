// Package auth implements the submit/status/results surface's API-key
// authentication: a tenant is identified by a hashed key, never by a session
// or OIDC token. There is no RBAC tier here — every authenticated caller may
// submit jobs and read back its own tenant's results.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	TenantID  uuid.UUID
	APIKeyID  uuid.UUID
	KeyPrefix string
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key. Only the hash
// is ever persisted or compared.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
