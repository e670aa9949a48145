// Package issuanceid implements the issuance-id encoder:
//
//	issuance_id = "{device_id}-{ISO8601 production_starting_interval}"
//
// The id is deliberately not globally unique across splits: every child of
// a split shares its parent's issuance id.
package issuanceid

import (
	"fmt"
	"strings"
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
)

const isoLayout = time.RFC3339

// Encode builds the canonical issuance id for a device/interval pair.
func Encode(deviceID string, startingInterval time.Time) string {
	return fmt.Sprintf("%s-%s", deviceID, startingInterval.UTC().Format(isoLayout))
}

// Decode splits an issuance id back into its device id and starting
// interval. Decoding splits on the first "-" that leaves a parseable
// ISO-8601 datetime in the remainder, since device ids themselves may
// contain hyphens (e.g. UUIDs).
func Decode(issuanceID string) (deviceID string, startingInterval time.Time, err error) {
	parts := strings.Split(issuanceID, "-")
	if len(parts) < 2 {
		return "", time.Time{}, apperrors.InvalidIssuanceID(issuanceID)
	}

	// Try splitting at every "-" boundary from the left, since the
	// datetime itself contains hyphens (date separators); the device id
	// is whatever comes before the first successfully-parsed remainder.
	for i := 1; i < len(parts); i++ {
		candidateDevice := strings.Join(parts[:i], "-")
		candidateTime := strings.Join(parts[i:], "-")
		if t, parseErr := time.Parse(isoLayout, candidateTime); parseErr == nil {
			return candidateDevice, t.UTC(), nil
		}
	}
	return "", time.Time{}, apperrors.InvalidIssuanceID(issuanceID)
}
