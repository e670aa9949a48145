// Package whitelistgate implements the transfer admission gate: may one
// account's bundles move to another, and does the acting user hold
// sufficient standing on the source account to ask?
package whitelistgate

import (
	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/identity"
)

// LinkLookup resolves whether a non-deleted whitelist link admits transfers
// from source to target. Implementations back this with a read-store query.
type LinkLookup func(sourceAccountID, targetAccountID string) (bool, error)

// UserLinkLookup resolves whether a user holds a non-deleted link to an
// account, i.e. may act on its behalf at all.
type UserLinkLookup func(userID, accountID string) (bool, error)

// Gate evaluates transfer admission and role sufficiency.
type Gate struct {
	links     LinkLookup
	userLinks UserLinkLookup
}

// New builds a Gate. Neither lookup may be nil.
func New(links LinkLookup, userLinks UserLinkLookup) *Gate {
	return &Gate{links: links, userLinks: userLinks}
}

// MayTransfer reports whether a whitelist link admits a transfer from
// source to target. Admins bypass the whitelist check entirely; every
// other role requires an active Link between the two accounts.
func (g *Gate) MayTransfer(actor identity.Actor, sourceAccountID, targetAccountID string) error {
	if actor.Role == identity.RoleAdmin {
		return nil
	}
	ok, err := g.links(sourceAccountID, targetAccountID)
	if err != nil {
		return apperrors.Internal("", err)
	}
	if !ok {
		return apperrors.Forbidden("no whitelist link admits a transfer between these accounts").
			WithDetails("source_account_id", sourceAccountID).
			WithDetails("target_account_id", targetAccountID)
	}
	return nil
}

// MayActOnAccount reports whether actor may act on behalf of accountID at
// all: an admin may always act; any other role needs a non-deleted
// AccountUserLink and a role at least as high as required. A missing link
// is Forbidden, so the check fails closed, never open.
func (g *Gate) MayActOnAccount(actor identity.Actor, accountID string, required identity.Role) error {
	if actor.Role == identity.RoleAdmin {
		return nil
	}
	linked, err := g.userLinks(actor.UserID, accountID)
	if err != nil {
		return apperrors.Internal("", err)
	}
	if !linked {
		return apperrors.Forbidden("actor has no standing on this account").
			WithDetails("account_id", accountID)
	}
	if !actor.Role.AtLeast(required) {
		return apperrors.Forbidden("actor's role does not meet the required standing for this action").
			WithDetails("account_id", accountID).
			WithDetails("actor_role", actor.Role.String()).
			WithDetails("required_role", required.String())
	}
	return nil
}
