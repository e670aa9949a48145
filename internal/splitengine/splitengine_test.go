package splitengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/hashing"
)

func sequentialIDs(ids ...string) func() (string, string) {
	return func() (string, string) { return ids[0], ids[1] }
}

func baseParent() certificate.GranularCertificateBundle {
	b := certificate.GranularCertificateBundle{
		ID:                         "parent-1",
		IssuanceID:                 "device-1-2026-01-01T00:00:00Z",
		AccountID:                  "acct-1",
		DeviceID:                   "device-1",
		MetadataID:                 "meta-1",
		RangeStart:                 1,
		RangeEnd:                   1000,
		CertificateBundleStatus:    certificate.StatusActive,
		ProductionStartingInterval: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ProductionEndingInterval:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		ExpiryDatestamp:            time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
		EnergyCarrier:              certificate.EnergyCarrierElectricity,
		EnergySource:               "WIND",
	}
	h, err := hashing.Hash(b, "")
	if err != nil {
		panic(err)
	}
	b.Hash = h
	return b
}

func TestSplitAt_ProducesTwoContiguousChildrenCoveringParentRange(t *testing.T) {
	parent := baseParent()
	res, err := SplitAt(parent, 500, sequentialIDs("child-1", "child-2"))
	require.NoError(t, err)

	require.Equal(t, int64(1), res.Children[0].RangeStart)
	require.Equal(t, int64(500), res.Children[0].RangeEnd)
	require.Equal(t, int64(501), res.Children[1].RangeStart)
	require.Equal(t, int64(1000), res.Children[1].RangeEnd)
	require.Equal(t, parent.BundleQuantity(), res.Children[0].BundleQuantity()+res.Children[1].BundleQuantity())
}

func TestSplitAt_PreservesIssuanceIDAndChainsHash(t *testing.T) {
	parent := baseParent()
	res, err := SplitAt(parent, 500, sequentialIDs("child-1", "child-2"))
	require.NoError(t, err)

	require.Equal(t, parent.IssuanceID, res.Children[0].IssuanceID)
	require.Equal(t, parent.IssuanceID, res.Children[1].IssuanceID)
	require.NotEqual(t, parent.Hash, res.Children[0].Hash)
	require.NotEqual(t, parent.Hash, res.Children[1].Hash)
	// Ranges are excluded from the canonical form, so both children chain
	// the same hash off the same parent.
	require.Equal(t, res.Children[0].Hash, res.Children[1].Hash)
}

func TestSplitAt_MarksParentSplitAndSoftDeleted(t *testing.T) {
	parent := baseParent()
	res, err := SplitAt(parent, 500, sequentialIDs("child-1", "child-2"))
	require.NoError(t, err)

	require.Equal(t, certificate.StatusBundleSplit, res.Parent.CertificateBundleStatus)
	require.True(t, res.Parent.IsDeleted)
}

func TestSplitAt_RejectsSplitPointOutsideRange(t *testing.T) {
	parent := baseParent()
	_, err := SplitAt(parent, 1000, sequentialIDs("child-1", "child-2"))
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, re.Kind)
}

func TestSplitAt_RejectsNonSplittableStatus(t *testing.T) {
	parent := baseParent()
	parent.CertificateBundleStatus = certificate.StatusWithdrawn
	_, err := SplitAt(parent, 500, sequentialIDs("child-1", "child-2"))
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindState, re.Kind)
}

func TestSplitForQuantity_SplitsHeadOfRange(t *testing.T) {
	parent := baseParent()
	res, err := SplitForQuantity(parent, 300, sequentialIDs("taken", "remainder"))
	require.NoError(t, err)

	require.Equal(t, int64(300), res.Children[0].BundleQuantity())
	require.Equal(t, int64(700), res.Children[1].BundleQuantity())
}

func TestSplitForQuantity_RejectsOutOfBoundsQuantity(t *testing.T) {
	parent := baseParent()
	_, err := SplitForQuantity(parent, 1000, sequentialIDs("taken", "remainder"))
	require.Error(t, err)

	_, err = SplitForQuantity(parent, 0, sequentialIDs("taken", "remainder"))
	require.Error(t, err)
}
