package certificate

import "time"

// ActionType is one of the six state-machine actions the Action Processor supports.
type ActionType string

const (
	ActionTransfer  ActionType = "TRANSFER"
	ActionCancel    ActionType = "CANCEL"
	ActionClaim     ActionType = "CLAIM"
	ActionWithdraw  ActionType = "WITHDRAW"
	ActionLock      ActionType = "LOCK"
	ActionReserve   ActionType = "RESERVE"
)

// ActionOutcome records whether an action request succeeded.
type ActionOutcome string

const (
	ActionOutcomeSuccess ActionOutcome = "SUCCESS"
	ActionOutcomeFailed  ActionOutcome = "FAILED"
)

// Action is a GranularCertificateAction: an immutable record of one
// lifecycle-action request and its completion, successful or not, with
// request and completion timestamps.
type Action struct {
	ID                         string
	ActionType                 ActionType
	SourceAccountID            string
	TargetAccountID            string // only meaningful for TRANSFER
	ActorUserID                string
	BundleIDs                  []string
	CertificateQuantity        *int64
	CertificateBundlePercentage *float64
	Beneficiary                string
	Outcome                    ActionOutcome
	FailureReason              string
	RequestedAt                time.Time
	CompletedAt                time.Time
}

// EntityName reports the event-log entity name for Action.
func (Action) EntityName() string { return "GranularCertificateAction" }

// EntityID reports the identity the event log keys on.
func (a Action) EntityID() string { return a.ID }
