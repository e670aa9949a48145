// Package whitelist defines AccountWhitelistLink: a directed transfer
// admission edge between two accounts.
package whitelist

import "time"

// Link is a directed admission edge: a bundle may transfer from
// SourceAccountID to TargetAccountID only while a non-deleted Link exists.
type Link struct {
	ID              string
	SourceAccountID string
	TargetAccountID string
	IsDeleted       bool
	CreatedAt       time.Time
}

// EntityName reports the event-log entity name for Link.
func (Link) EntityName() string { return "AccountWhitelistLink" }

// EntityID reports the identity the event log keys on.
func (l Link) EntityID() string { return l.ID }
