// Package actions implements the Action Processor: the six lifecycle
// actions (TRANSFER, CANCEL, CLAIM, WITHDRAW, LOCK, RESERVE) a bundle can
// be subjected to, including partial-selector splitting and role gating.
package actions

import (
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/identity"
	"github.com/gcregistry/registry/internal/splitengine"
	"github.com/gcregistry/registry/internal/whitelistgate"
)

// Selector is the optional partial-selector a request carries. Exactly one
// of Quantity or Percentage may be set; a zero Selector means "act on the
// full targeted bundle".
type Selector struct {
	Quantity   *int64
	Percentage *float64
}

// Validate enforces that the two selector kinds are mutually exclusive.
func (s Selector) Validate() error {
	if s.Quantity != nil && s.Percentage != nil {
		return apperrors.MutuallyExclusive("certificate_quantity", "certificate_bundle_percentage")
	}
	if s.Percentage != nil && (*s.Percentage <= 0 || *s.Percentage > 1) {
		return apperrors.OutOfRange("certificate_bundle_percentage", 0, 1)
	}
	return nil
}

// resolvedQuantity returns how many certificates, counted from the bundle's
// range start, the selector names for the given bundle.
func (s Selector) resolvedQuantity(b certificate.GranularCertificateBundle) int64 {
	switch {
	case s.Quantity != nil:
		return *s.Quantity
	case s.Percentage != nil:
		return int64(float64(b.BundleQuantity()) * *s.Percentage)
	default:
		return b.BundleQuantity()
	}
}

// Request is one action call against a set of target bundles.
type Request struct {
	ActionType      certificate.ActionType
	Actor           identity.Actor
	SourceAccountID string
	TargetAccountID string // only meaningful for TRANSFER
	Targets         []certificate.GranularCertificateBundle
	Selector        Selector
	Beneficiary     string
	NewActionID     string
	NewSplitIDs     func() (string, string)
	Now             time.Time
}

// BundleOutcome is what happened to one targeted bundle: either it was
// acted on whole, or split first with Remainder left untouched and Acted
// carrying the new status.
type BundleOutcome struct {
	Acted     certificate.GranularCertificateBundle
	Split     bool
	Parent    certificate.GranularCertificateBundle // only set when Split
	Remainder certificate.GranularCertificateBundle // only set when Split
}

// Result is a completed action call.
type Result struct {
	Outcomes []BundleOutcome
	Action   certificate.Action
}

// roleRequirement is the minimum role each action type needs on the source
// account; WITHDRAW requires RoleAdmin.
var roleRequirement = map[certificate.ActionType]identity.Role{
	certificate.ActionTransfer: identity.RoleTradingUser,
	certificate.ActionCancel:   identity.RoleTradingUser,
	certificate.ActionClaim:    identity.RoleTradingUser,
	certificate.ActionLock:     identity.RoleTradingUser,
	certificate.ActionReserve:  identity.RoleTradingUser,
	certificate.ActionWithdraw: identity.RoleAdmin,
}

// targetStatus is the status a bundle moves to on a successful action; for
// TRANSFER the status is unchanged (only account_id moves).
var targetStatus = map[certificate.ActionType]certificate.Status{
	certificate.ActionCancel:   certificate.StatusCancelled,
	certificate.ActionClaim:    certificate.StatusClaimed,
	certificate.ActionWithdraw: certificate.StatusWithdrawn,
	certificate.ActionLock:     certificate.StatusLocked,
	certificate.ActionReserve:  certificate.StatusReserved,
}

// AccountHolderNameLookup resolves the display name of an account's holder,
// used to default a CANCEL's beneficiary when the caller doesn't supply one.
type AccountHolderNameLookup func(accountID string) (string, error)

// Processor evaluates and applies lifecycle actions.
type Processor struct {
	gate              *whitelistgate.Gate
	accountHolderName AccountHolderNameLookup
}

// New builds a Processor.
func New(gate *whitelistgate.Gate, accountHolderName AccountHolderNameLookup) *Processor {
	return &Processor{gate: gate, accountHolderName: accountHolderName}
}

// Process evaluates req against every targeted bundle's preconditions,
// splitting off a partial selector first where needed, and returns the
// resulting bundle mutations plus the GranularCertificateAction record —
// built whether the call succeeds or fails, per the audit requirement that
// every action attempt is recorded.
func (p *Processor) Process(req Request) (Result, error) {
	action := certificate.Action{
		ID:                  req.NewActionID,
		ActionType:          req.ActionType,
		SourceAccountID:     req.SourceAccountID,
		TargetAccountID:     req.TargetAccountID,
		ActorUserID:         req.Actor.UserID,
		BundleIDs:           bundleIDs(req.Targets),
		CertificateQuantity: req.Selector.Quantity,
		CertificateBundlePercentage: req.Selector.Percentage,
		Beneficiary:         req.Beneficiary,
		RequestedAt:         req.Now,
	}

	outcomes, err := p.process(req)
	action.CompletedAt = req.Now
	if err != nil {
		action.Outcome = certificate.ActionOutcomeFailed
		if re, ok := apperrors.As(err); ok {
			action.FailureReason = re.Message
		} else {
			action.FailureReason = err.Error()
		}
		return Result{Action: action}, err
	}

	action.Outcome = certificate.ActionOutcomeSuccess
	return Result{Outcomes: outcomes, Action: action}, nil
}

func (p *Processor) process(req Request) ([]BundleOutcome, error) {
	if err := req.Selector.Validate(); err != nil {
		return nil, err
	}

	required, ok := roleRequirement[req.ActionType]
	if !ok {
		return nil, apperrors.Validation("VAL_UNKNOWN_ACTION", "unsupported action type").
			WithDetails("action_type", string(req.ActionType))
	}
	if err := p.gate.MayActOnAccount(req.Actor, req.SourceAccountID, required); err != nil {
		return nil, err
	}

	if req.ActionType == certificate.ActionTransfer {
		if err := p.gate.MayTransfer(req.Actor, req.SourceAccountID, req.TargetAccountID); err != nil {
			return nil, err
		}
	}

	beneficiary, err := p.resolveBeneficiary(req)
	if err != nil {
		return nil, err
	}

	outcomes := make([]BundleOutcome, 0, len(req.Targets))
	for _, b := range req.Targets {
		if err := checkPrecondition(req.ActionType, b); err != nil {
			return nil, err
		}

		selected := req.Selector.resolvedQuantity(b)
		if selected <= 0 {
			return nil, apperrors.OutOfRange("certificate_quantity", 1, b.BundleQuantity())
		}

		outcome, err := applyAction(req, b, selected, beneficiary)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// resolveBeneficiary returns the beneficiary name a CANCEL should stamp on
// its targets: the caller-supplied name if given, otherwise the source
// account holder's name resolved through the injected lookup. Every other
// action type passes req.Beneficiary through untouched (it's unused by
// them).
func (p *Processor) resolveBeneficiary(req Request) (string, error) {
	if req.ActionType != certificate.ActionCancel || req.Beneficiary != "" {
		return req.Beneficiary, nil
	}
	name, err := p.accountHolderName(req.SourceAccountID)
	if err != nil {
		return "", apperrors.Internal("", err)
	}
	return name, nil
}

func checkPrecondition(actionType certificate.ActionType, b certificate.GranularCertificateBundle) error {
	switch actionType {
	case certificate.ActionTransfer:
		if b.CertificateBundleStatus != certificate.StatusActive {
			return apperrors.State("bundle must be ACTIVE to transfer").WithDetails("bundle_id", b.ID)
		}
	case certificate.ActionCancel:
		if b.CertificateBundleStatus != certificate.StatusActive && b.CertificateBundleStatus != certificate.StatusReserved {
			return apperrors.State("bundle must be ACTIVE or RESERVED to cancel").WithDetails("bundle_id", b.ID)
		}
	case certificate.ActionClaim:
		if b.CertificateBundleStatus != certificate.StatusCancelled {
			return apperrors.State("bundle must be CANCELLED to claim").WithDetails("bundle_id", b.ID)
		}
	}
	return nil
}

func applyAction(req Request, b certificate.GranularCertificateBundle, selected int64, beneficiary string) (BundleOutcome, error) {
	if selected < b.BundleQuantity() {
		res, err := splitengine.SplitForQuantity(b, selected, req.NewSplitIDs)
		if err != nil {
			return BundleOutcome{}, err
		}
		acted := mutate(req, res.Children[0], beneficiary)
		return BundleOutcome{Acted: acted, Split: true, Parent: res.Parent, Remainder: res.Children[1]}, nil
	}
	return BundleOutcome{Acted: mutate(req, b, beneficiary)}, nil
}

func mutate(req Request, b certificate.GranularCertificateBundle, beneficiary string) certificate.GranularCertificateBundle {
	switch req.ActionType {
	case certificate.ActionTransfer:
		b.AccountID = req.TargetAccountID
	case certificate.ActionCancel:
		b.CertificateBundleStatus = certificate.StatusCancelled
		b.Beneficiary = beneficiary
	default:
		if s, ok := targetStatus[req.ActionType]; ok {
			b.CertificateBundleStatus = s
		}
	}
	return b
}

func bundleIDs(bundles []certificate.GranularCertificateBundle) []string {
	ids := make([]string, len(bundles))
	for i, b := range bundles {
		ids[i] = b.ID
	}
	return ids
}
