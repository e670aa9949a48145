// Package account defines the Account entity: a uniquely-named, case
// insensitive holder of certificate bundles.
package account

import (
	"strings"
	"time"
)

// Account is a holder of GranularCertificateBundles. It owns zero or more
// Devices and is linked to zero or more Users via AccountUserLink.
type Account struct {
	ID          string
	AccountName string
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeName lower-cases and trims an account name so uniqueness checks
// are case-insensitive.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UserLink is the many-to-many link entity between User and Account:
// accounts and users reference each other via a join table, not a direct
// struct-level cycle.
type UserLink struct {
	UserID    string
	AccountID string
	IsDeleted bool
}

// EntityName reports the event-log entity name for Account.
func (Account) EntityName() string { return "Account" }

// EntityID reports the identity the event log keys on.
func (a Account) EntityID() string { return a.ID }
