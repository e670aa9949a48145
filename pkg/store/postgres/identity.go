package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/domain/identity"
)

// IdentityStore persists User, ApiKey, and TokenRecord rows. Credential
// verification (JWT signing, password hashing) happens upstream; this
// store only carries the resolved identities and their expiry windows.
type IdentityStore struct {
	read *sqlx.DB
}

// NewIdentityStore builds an IdentityStore.
func NewIdentityStore(read *sqlx.DB) *IdentityStore {
	return &IdentityStore{read: read}
}

// InsertUser builds a Mutation registering a new user.
func (s *IdentityStore) InsertUser(u identity.User, at time.Time) cqrs.Mutation {
	u.CreatedAt = at
	return cqrs.Mutation{
		EntityName: "User",
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, name, email, is_deleted, created_at)
				VALUES ($1,$2,$3,$4,$5)
			`, u.ID, u.Name, u.Email, u.IsDeleted, u.CreatedAt)
			if err != nil {
				return "", nil, nil, fmt.Errorf("insert user: %w", err)
			}
			after := map[string]any{"id": u.ID, "name": u.Name, "email": u.Email}
			return u.ID, nil, after, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, name, email, is_deleted, created_at)
				VALUES ($1,$2,$3,$4,$5)
			`, u.ID, u.Name, u.Email, u.IsDeleted, u.CreatedAt)
			return err
		},
	}
}

// InsertAPIKey builds a Mutation issuing a new long-lived credential.
func (s *IdentityStore) InsertAPIKey(k identity.ApiKey) cqrs.Mutation {
	return cqrs.Mutation{
		EntityName: "ApiKey",
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO api_keys (id, user_id, key_hash, expires_at, is_revoked, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, k.ID, k.UserID, k.KeyHash, k.ExpiresAt, k.IsRevoked, k.CreatedAt)
			if err != nil {
				return "", nil, nil, fmt.Errorf("insert api key: %w", err)
			}
			after := map[string]any{"id": k.ID, "user_id": k.UserID}
			return k.ID, nil, after, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO api_keys (id, user_id, key_hash, expires_at, is_revoked, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, k.ID, k.UserID, k.KeyHash, k.ExpiresAt, k.IsRevoked, k.CreatedAt)
			return err
		},
	}
}

// ResolveByKeyHash looks up the user and role an API key resolves to,
// implementing the upstream auth layer's lookup boundary.
func (s *IdentityStore) ResolveByKeyHash(_ context.Context, keyHash string) (identity.User, bool, error) {
	var u identity.User
	err := s.read.QueryRow(`
		SELECT u.id, u.name, u.email, u.is_deleted, u.created_at
		FROM api_keys k JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = $1 AND k.is_revoked = false AND u.is_deleted = false
	`, keyHash).Scan(&u.ID, &u.Name, &u.Email, &u.IsDeleted, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return identity.User{}, false, nil
	}
	if err != nil {
		return identity.User{}, false, err
	}
	return u, true, nil
}
