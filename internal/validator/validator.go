// Package validator implements the Bundle Validator: the
// quantity/range/capacity/continuity checks a candidate bundle must pass
// at issuance time.
package validator

import (
	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
)

// DeviceCapacity carries the device attributes a capacity check needs.
type DeviceCapacity struct {
	PowerMW float64
}

// CapacityMargin and GranularityHours come from config.RegistryConfig but
// are threaded explicitly here so this package stays free of a config
// dependency.
type Params struct {
	CapacityMargin   float64
	GranularityHours float64
}

// maxCapacityWh returns power_mw × 1e6 × hours × CAPACITY_MARGIN, the
// capacity ceiling.
func maxCapacityWh(device DeviceCapacity, p Params) float64 {
	return device.PowerMW * 1e6 * p.GranularityHours * p.CapacityMargin
}

// Validate runs the three issuance-time checks a candidate bundle must pass:
//   - bundle_quantity < capacity ceiling (strict)
//   - bundle_quantity == range_end − range_start + 1
//   - range_start == max_certificate_id(device) + 1 (continuity, excluding WITHDRAWN)
//
// lastRangeEnd is the highest range_end among the device's non-WITHDRAWN
// bundles, or -1 if the device has never been issued to.
func Validate(b certificate.GranularCertificateBundle, device DeviceCapacity, p Params, lastRangeEnd int64) error {
	quantity := b.BundleQuantity()

	if quantity != b.RangeEnd-b.RangeStart+1 {
		return apperrors.Integrity("bundle_quantity disagrees with range").
			WithDetails("bundle_quantity", quantity).
			WithDetails("range_start", b.RangeStart).
			WithDetails("range_end", b.RangeEnd)
	}

	ceiling := maxCapacityWh(device, p)
	if float64(quantity) >= ceiling {
		return apperrors.Validation("VAL_CAPACITY_EXCEEDED", "bundle quantity exceeds device capacity for the interval").
			WithDetails("bundle_quantity", quantity).
			WithDetails("capacity_ceiling", ceiling)
	}

	if b.RangeStart != lastRangeEnd+1 {
		return apperrors.State("range_start must continue the device's monotonic certificate counter").
			WithDetails("expected_range_start", lastRangeEnd+1).
			WithDetails("actual_range_start", b.RangeStart)
	}

	return nil
}

// ValidateImportRange checks only that a candidate import range doesn't
// overlap any existing range for the import-device:
// "On import from an external registry, range continuity is waived but the
// candidate range must not overlap any existing range for that
// import-device."
func ValidateImportRange(candidateStart, candidateEnd int64, existing []Range) error {
	for _, r := range existing {
		if candidateStart <= r.End && r.Start <= candidateEnd {
			return apperrors.Integrity("import range overlaps an existing bundle range").
				WithDetails("candidate_start", candidateStart).
				WithDetails("candidate_end", candidateEnd).
				WithDetails("existing_start", r.Start).
				WithDetails("existing_end", r.End)
		}
	}
	return nil
}

// Range is a half-open-free [start, end] interval used for overlap checks.
type Range struct {
	Start int64
	End   int64
}
