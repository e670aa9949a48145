package httpapi

import (
	"net/http"
	"strings"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/importer"
)

// importSummaryResponse is the wire shape of an import call's outcome.
type importSummaryResponse struct {
	Accepted int                  `json:"accepted_count"`
	Rejected []rejectedRowResponse `json:"rejected"`
}

type rejectedRowResponse struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
}

// importBundles serves POST /certificate/import. The body is either a CSV
// document (Content-Type: text/csv) or a JSON array of rows
// (Content-Type: application/json); account_id names the owning account.
func (h *handler) importBundles(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, apperrors.Validation("VAL_ACCOUNT_ID_REQUIRED", "account_id query param is required"))
		return
	}

	imp := h.deps.NewImporter(accountID)

	var (
		summary importer.Summary
		err     error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		body, readErr := readAll(r)
		if readErr != nil {
			writeError(w, readErr)
			return
		}
		summary, err = imp.ImportJSON(body)
	} else {
		summary, err = imp.ImportCSV(r.Body)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	// Mutations apply only what was accepted; rejected rows are reported
	// back without aborting the batch.
	if len(summary.Accepted) > 0 {
		if err := h.deps.CommitImport(r.Context(), summary); err != nil {
			writeError(w, err)
			return
		}
	}

	resp := importSummaryResponse{Accepted: len(summary.Accepted)}
	for _, rej := range summary.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedRowResponse{RowIndex: rej.RowIndex, Reason: rej.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}
