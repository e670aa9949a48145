package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/identity"
	"github.com/gcregistry/registry/internal/query"
)

// queryBundles serves GET /certificate/query. Filter fields arrive as query
// string parameters; certificate_period_start/_end must be RFC3339 UTC.
func (h *handler) queryBundles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := query.Filter{
		SourceAccountID:         q.Get("source_id"),
		DeviceID:                q.Get("device_id"),
		EnergySource:            q.Get("energy_source"),
		CertificateBundleStatus: certificate.Status(q.Get("certificate_bundle_status")),
	}

	if err := h.deps.Gate.MayActOnAccount(actorFromRequest(r), f.SourceAccountID, identity.RoleViewer); err != nil {
		writeError(w, err)
		return
	}

	if raw := q.Get("certificate_period_start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, invalidQueryParam("certificate_period_start"))
			return
		}
		f.CertificatePeriodStart = &t
	}
	if raw := q.Get("certificate_period_end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, invalidQueryParam("certificate_period_end"))
			return
		}
		f.CertificatePeriodEnd = &t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, invalidQueryParam("limit"))
			return
		}
		f.Limit = limit
	}

	for _, pair := range q["issuance_id"] {
		deviceID, startingInterval, err := parseIssuanceKey(pair)
		if err != nil {
			writeError(w, invalidQueryParam("issuance_id"))
			return
		}
		f.IssuanceIDs = append(f.IssuanceIDs, query.IssuanceKey{DeviceID: deviceID, StartingInterval: startingInterval})
	}

	bundles, err := h.deps.Query.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundles)
}

// parseIssuanceKey splits an "issuance_id=<device_id>@<RFC3339>" pair.
func parseIssuanceKey(raw string) (string, time.Time, error) {
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '@' {
			t, err := time.Parse(time.RFC3339, raw[i+1:])
			if err != nil {
				return "", time.Time{}, err
			}
			return raw[:i], t, nil
		}
	}
	return "", time.Time{}, errInvalidIssuanceKey
}
