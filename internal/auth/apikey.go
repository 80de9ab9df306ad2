package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyRecord is the persisted shape of a tenant API key.
type APIKeyRecord struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	KeyPrefix string
	ExpiresAt *time.Time
}

// APIKeyStore is the lookup the authenticator needs from the persistent store.
// Defined here, consumed by store implementations, so this package does not
// import the store package.
type APIKeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (APIKeyRecord, error)
	TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// APIKeyAuthenticator validates raw API keys against the persistent store.
type APIKeyAuthenticator struct {
	Store APIKeyStore
}

// Authenticate hashes rawKey, looks it up, and rejects expired keys.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	rec, err := a.Store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", rec.ExpiresAt)
	}

	go func() {
		_ = a.Store.TouchAPIKeyLastUsed(context.Background(), rec.ID)
	}()

	return &Identity{
		TenantID:  rec.TenantID,
		APIKeyID:  rec.ID,
		KeyPrefix: rec.KeyPrefix,
	}, nil
}
