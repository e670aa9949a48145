package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/domain/whitelist"
)

// WhitelistStore persists AccountWhitelistLink rows.
type WhitelistStore struct {
	read *sqlx.DB
}

// NewWhitelistStore builds a WhitelistStore.
func NewWhitelistStore(read *sqlx.DB) *WhitelistStore {
	return &WhitelistStore{read: read}
}

// Insert builds a Mutation admitting a transfer edge between two accounts.
func (s *WhitelistStore) Insert(l whitelist.Link) cqrs.Mutation {
	return cqrs.Mutation{
		EntityName: l.EntityName(),
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO account_whitelist_links (id, source_account_id, target_account_id, is_deleted, created_at)
				VALUES ($1, $2, $3, false, $4)
				ON CONFLICT (id) DO UPDATE SET is_deleted = false
			`, l.ID, l.SourceAccountID, l.TargetAccountID, l.CreatedAt)
			if err != nil {
				return "", nil, nil, fmt.Errorf("insert whitelist link: %w", err)
			}
			after := map[string]any{"id": l.ID, "source_account_id": l.SourceAccountID, "target_account_id": l.TargetAccountID}
			return l.ID, nil, after, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO account_whitelist_links (id, source_account_id, target_account_id, is_deleted, created_at)
				VALUES ($1, $2, $3, false, $4)
				ON CONFLICT (id) DO UPDATE SET is_deleted = false
			`, l.ID, l.SourceAccountID, l.TargetAccountID, l.CreatedAt)
			return err
		},
	}
}

// Revoke builds a Mutation soft-deleting a transfer edge.
func (s *WhitelistStore) Revoke(id string) cqrs.Mutation {
	return cqrs.Mutation{
		EntityName: "AccountWhitelistLink",
		EventType:  event.TypeDelete,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if _, err := tx.ExecContext(ctx, `UPDATE account_whitelist_links SET is_deleted = true WHERE id = $1`, id); err != nil {
				return "", nil, nil, fmt.Errorf("revoke whitelist link: %w", err)
			}
			before := map[string]any{"id": id, "is_deleted": false}
			return id, before, nil, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			_, err := tx.ExecContext(ctx, `UPDATE account_whitelist_links SET is_deleted = true WHERE id = $1`, id)
			return err
		},
	}
}

// Linked implements whitelistgate.LinkLookup.
func (s *WhitelistStore) Linked(_ context.Context, sourceAccountID, targetAccountID string) (bool, error) {
	var exists bool
	err := s.read.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM account_whitelist_links
			WHERE source_account_id = $1 AND target_account_id = $2 AND is_deleted = false
		)
	`, sourceAccountID, targetAccountID).Scan(&exists)
	return exists, err
}
