package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/account"
	"github.com/gcregistry/registry/internal/domain/event"
)

// AccountStore persists Account and UserLink rows.
type AccountStore struct {
	read *sqlx.DB
}

// NewAccountStore builds an AccountStore.
func NewAccountStore(read *sqlx.DB) *AccountStore {
	return &AccountStore{read: read}
}

func accountAttrs(a account.Account) map[string]any {
	return map[string]any{"id": a.ID, "account_name": a.AccountName, "is_deleted": a.IsDeleted}
}

func execAccountUpsert(ctx context.Context, exec execer, a account.Account) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO accounts (id, account_name, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			is_deleted = EXCLUDED.is_deleted,
			updated_at = EXCLUDED.updated_at
	`, a.ID, a.AccountName, a.IsDeleted, a.CreatedAt, a.UpdatedAt)
	return err
}

// Insert builds a Mutation creating a new account.
func (s *AccountStore) Insert(a account.Account, at time.Time) cqrs.Mutation {
	a.CreatedAt, a.UpdatedAt = at, at
	return cqrs.Mutation{
		EntityName: a.EntityName(),
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execAccountUpsert(ctx, tx, a); err != nil {
				return "", nil, nil, fmt.Errorf("insert account: %w", err)
			}
			return a.ID, nil, accountAttrs(a), nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execAccountUpsert(ctx, tx, a)
		},
	}
}

// Update builds a Mutation persisting an already-mutated account.
func (s *AccountStore) Update(before, after account.Account, at time.Time) cqrs.Mutation {
	after.UpdatedAt = at
	return cqrs.Mutation{
		EntityName: after.EntityName(),
		EventType:  event.TypeUpdate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execAccountUpsert(ctx, tx, after); err != nil {
				return "", nil, nil, fmt.Errorf("update account: %w", err)
			}
			return after.ID, accountAttrs(before), accountAttrs(after), nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execAccountUpsert(ctx, tx, after)
		},
	}
}

// GetByID fetches a single account from the read store.
func (s *AccountStore) GetByID(_ context.Context, id string) (account.Account, bool, error) {
	var a account.Account
	err := s.read.QueryRow(`
		SELECT id, account_name, is_deleted, created_at, updated_at
		FROM accounts WHERE id = $1 AND is_deleted = false
	`, id).Scan(&a.ID, &a.AccountName, &a.IsDeleted, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return account.Account{}, false, nil
	}
	if err != nil {
		return account.Account{}, false, err
	}
	return a, true, nil
}

// GetByName resolves an account by its normalized name, enforcing the
// case-insensitive uniqueness invariant.
func (s *AccountStore) GetByName(_ context.Context, normalizedName string) (account.Account, bool, error) {
	var a account.Account
	err := s.read.QueryRow(`
		SELECT id, account_name, is_deleted, created_at, updated_at
		FROM accounts WHERE LOWER(account_name) = $1 AND is_deleted = false
	`, normalizedName).Scan(&a.ID, &a.AccountName, &a.IsDeleted, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return account.Account{}, false, nil
	}
	if err != nil {
		return account.Account{}, false, err
	}
	return a, true, nil
}

// InsertUserLink builds a Mutation linking a user to an account.
func (s *AccountStore) InsertUserLink(l account.UserLink) cqrs.Mutation {
	return cqrs.Mutation{
		EntityName: "AccountUserLink",
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO account_user_links (user_id, account_id, is_deleted)
				VALUES ($1, $2, false)
				ON CONFLICT (user_id, account_id) DO UPDATE SET is_deleted = false
			`, l.UserID, l.AccountID)
			if err != nil {
				return "", nil, nil, fmt.Errorf("insert user link: %w", err)
			}
			id := l.UserID + ":" + l.AccountID
			after := map[string]any{"user_id": l.UserID, "account_id": l.AccountID}
			return id, nil, after, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO account_user_links (user_id, account_id, is_deleted)
				VALUES ($1, $2, false)
				ON CONFLICT (user_id, account_id) DO UPDATE SET is_deleted = false
			`, l.UserID, l.AccountID)
			return err
		},
	}
}

// UserLinked implements whitelistgate.UserLinkLookup.
func (s *AccountStore) UserLinked(_ context.Context, userID, accountID string) (bool, error) {
	var exists bool
	err := s.read.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM account_user_links WHERE user_id = $1 AND account_id = $2 AND is_deleted = false)
	`, userID, accountID).Scan(&exists)
	return exists, err
}
