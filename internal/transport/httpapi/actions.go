package httpapi

import (
	"net/http"

	"github.com/gcregistry/registry/internal/actions"
	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
)

type certificateActionKind certificate.ActionType

const (
	certificateActionTransfer = certificateActionKind(certificate.ActionTransfer)
	certificateActionCancel   = certificateActionKind(certificate.ActionCancel)
	certificateActionClaim    = certificateActionKind(certificate.ActionClaim)
	certificateActionWithdraw = certificateActionKind(certificate.ActionWithdraw)
	certificateActionLock     = certificateActionKind(certificate.ActionLock)
	certificateActionReserve  = certificateActionKind(certificate.ActionReserve)
)

// actionRequestBody is the wire shape every lifecycle action endpoint
// accepts: a set of target bundle ids plus an optional partial selector.
type actionRequestBody struct {
	SourceAccountID string   `json:"source_account_id"`
	TargetAccountID string   `json:"target_account_id,omitempty"` // TRANSFER only
	BundleIDs       []string `json:"bundle_ids"`
	Quantity        *int64   `json:"certificate_quantity,omitempty"`
	Percentage      *float64 `json:"certificate_bundle_percentage,omitempty"`
	Beneficiary     string   `json:"beneficiary,omitempty"` // CANCEL only
}

type actionResponse struct {
	Action   certificate.Action       `json:"action"`
	Outcomes []actions.BundleOutcome  `json:"outcomes,omitempty"`
}

// action builds the POST handler for one lifecycle action kind.
func (h *handler) action(kind certificateActionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body actionRequestBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if len(body.BundleIDs) == 0 {
			writeError(w, apperrors.Validation("VAL_BUNDLE_IDS_REQUIRED", "bundle_ids must name at least one target"))
			return
		}

		targets, err := h.deps.ResolveBundles(r.Context(), body.BundleIDs)
		if err != nil {
			writeError(w, err)
			return
		}

		req := actions.Request{
			ActionType:      certificate.ActionType(kind),
			Actor:           actorFromRequest(r),
			SourceAccountID: body.SourceAccountID,
			TargetAccountID: body.TargetAccountID,
			Targets:         targets,
			Selector:        actions.Selector{Quantity: body.Quantity, Percentage: body.Percentage},
			Beneficiary:     body.Beneficiary,
			NewActionID:     h.deps.NewActionID(),
			NewSplitIDs:     func() (string, string) { return h.deps.NewBundleID(), h.deps.NewBundleID() },
			Now:             h.deps.Now(),
		}

		result, procErr := h.deps.Actions.Process(req)
		if commitErr := h.deps.CommitAction(r.Context(), result); commitErr != nil {
			writeError(w, commitErr)
			return
		}
		if procErr != nil {
			writeError(w, procErr)
			return
		}

		writeJSON(w, http.StatusOK, actionResponse{Action: result.Action, Outcomes: result.Outcomes})
	}
}
