// Package identity holds the User/ApiKey/TokenRecord entities, plus the
// Role type the Action Processor and the whitelist access gate check
// against. Actual credential verification (JWT signing, password hashing)
// is out of scope here — these types only carry the resolved identity an
// upstream auth layer places on the request context.
package identity

import "time"

// Role ranks a user's authority on an account for the role gate.
type Role int

const (
	RoleViewer Role = iota
	RoleTradingUser
	RoleAdmin
)

// ParseRole maps a stored role string to a Role, defaulting to RoleViewer.
func ParseRole(s string) Role {
	switch s {
	case "ADMIN":
		return RoleAdmin
	case "TRADING_USER":
		return RoleTradingUser
	default:
		return RoleViewer
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleTradingUser:
		return "TRADING_USER"
	default:
		return "VIEWER"
	}
}

// AtLeast reports whether r meets or exceeds the required role.
func (r Role) AtLeast(required Role) bool { return r >= required }

// User is an identity that may be linked to one or more Accounts.
type User struct {
	ID        string
	Name      string
	Email     string
	IsDeleted bool
	CreatedAt time.Time
}

// ApiKey is a long-lived credential issued to a User for programmatic access.
type ApiKey struct {
	ID         string
	UserID     string
	KeyHash    string // caller-supplied digest; the registry never sees a raw secret
	ExpiresAt  time.Time
	IsRevoked  bool
	CreatedAt  time.Time
}

// Expired reports whether the key is past its expiry window.
func (k ApiKey) Expired(now time.Time) bool { return now.After(k.ExpiresAt) }

// TokenRecord tracks a short-lived session token issued to a User.
type TokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry window.
func (t TokenRecord) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }

// Actor is the resolved caller a request carries: who they are, and what
// role they hold on the account the action targets.
type Actor struct {
	UserID string
	Role   Role
}
