package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gcregistry/registry/internal/apperrors"
)

// handler holds the dependencies every route method dispatches to.
type handler struct {
	deps Deps
}

// errorBody is the JSON shape every non-2xx response carries.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to an HTTP status via apperrors and writes the
// resulting error envelope. Errors that aren't a *RegistryError surface as
// a bare 500 with no code, so callers never leak internal error text.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	body := errorBody{Message: "internal error"}
	if re, ok := apperrors.As(err); ok {
		body = errorBody{Code: re.Code, Message: re.Message, Details: re.Details}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "VAL_BODY_UNDECODABLE", "request body could not be decoded", err)
	}
	return nil
}

var errInvalidIssuanceKey = apperrors.Validation("VAL_ISSUANCE_ID_QUERY", `issuance_id query param must be "<device_id>@<RFC3339 timestamp>"`)

func invalidQueryParam(field string) error {
	return apperrors.Validation("VAL_QUERY_PARAM", "query parameter is malformed").WithDetails("field", field)
}
