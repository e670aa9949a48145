package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
)

func newBundle(start, end int64) certificate.GranularCertificateBundle {
	return certificate.GranularCertificateBundle{
		RangeStart:                 start,
		RangeEnd:                   end,
		ProductionStartingInterval: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ProductionEndingInterval:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
	}
}

func TestValidate_AcceptsContinuousRangeWithinCapacity(t *testing.T) {
	b := newBundle(1, 1000)
	err := Validate(b, DeviceCapacity{PowerMW: 1}, Params{CapacityMargin: 1.1, GranularityHours: 1}, 0)
	require.NoError(t, err)
}

func TestValidate_RejectsQuantityRangeMismatch(t *testing.T) {
	b := newBundle(1, 1000)
	b.RangeEnd = 2000 // bundle_quantity no longer matches range_end-range_start+1
	err := Validate(b, DeviceCapacity{PowerMW: 1}, Params{CapacityMargin: 1.1, GranularityHours: 1}, 0)
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindIntegrity, re.Kind)
}

func TestValidate_RejectsCapacityOverrun(t *testing.T) {
	// 1 MW for 1 hour at 1.1 margin ceiling is 1.1e6 Wh; ask for more.
	b := newBundle(1, 2_000_000)
	err := Validate(b, DeviceCapacity{PowerMW: 1}, Params{CapacityMargin: 1.1, GranularityHours: 1}, 0)
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, re.Kind)
}

func TestValidate_RejectsDiscontinuousRangeStart(t *testing.T) {
	b := newBundle(500, 1000)
	err := Validate(b, DeviceCapacity{PowerMW: 10}, Params{CapacityMargin: 1.1, GranularityHours: 1}, 0)
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindState, re.Kind)
}

func TestValidate_AcceptsContinuationFromLastRangeEnd(t *testing.T) {
	b := newBundle(1001, 2000)
	err := Validate(b, DeviceCapacity{PowerMW: 10}, Params{CapacityMargin: 1.1, GranularityHours: 1}, 1000)
	require.NoError(t, err)
}

func TestValidateImportRange_AcceptsNonOverlapping(t *testing.T) {
	existing := []Range{{Start: 1, End: 100}, {Start: 101, End: 200}}
	err := ValidateImportRange(201, 300, existing)
	require.NoError(t, err)
}

func TestValidateImportRange_RejectsOverlap(t *testing.T) {
	existing := []Range{{Start: 1, End: 100}}
	err := ValidateImportRange(50, 150, existing)
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindIntegrity, re.Kind)
}
