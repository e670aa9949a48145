// Package splitengine implements the deterministic bundle split: a parent
// bundle is replaced by two children that partition its certificate range,
// each carrying a freshly-minted lineage hash chained to the parent's.
package splitengine

import (
	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/hashing"
)

// Result is a completed split: the parent marked BUNDLE_SPLIT and
// soft-deleted, plus its two new ACTIVE children.
type Result struct {
	Parent   certificate.GranularCertificateBundle
	Children [2]certificate.GranularCertificateBundle
}

// SplitAt splits parent into two children at splitPoint: the first child
// covers [range_start, splitPoint], the second [splitPoint+1, range_end].
// splitPoint must leave both children non-empty. Both children preserve the
// parent's issuance id and derive a fresh hash chained to the parent's hash,
// so lineage survives the split.
func SplitAt(parent certificate.GranularCertificateBundle, splitPoint int64, newIDs func() (string, string)) (Result, error) {
	if !parent.CertificateBundleStatus.CanTransition(certificate.StatusBundleSplit) {
		return Result{}, apperrors.State("bundle is not in a splittable state").
			WithDetails("bundle_id", parent.ID).
			WithDetails("status", string(parent.CertificateBundleStatus))
	}
	if splitPoint < parent.RangeStart || splitPoint >= parent.RangeEnd {
		return Result{}, apperrors.Validation("VAL_SPLIT_POINT_OUT_OF_RANGE", "split point must leave both children non-empty").
			WithDetails("range_start", parent.RangeStart).
			WithDetails("range_end", parent.RangeEnd).
			WithDetails("split_point", splitPoint)
	}

	firstID, secondID := newIDs()

	first := parent.WithRange(parent.RangeStart, splitPoint)
	first.ID = firstID
	first.CertificateBundleStatus = certificate.StatusActive
	first.AllocatedStorageRecordID = nil

	second := parent.WithRange(splitPoint+1, parent.RangeEnd)
	second.ID = secondID
	second.CertificateBundleStatus = certificate.StatusActive
	second.AllocatedStorageRecordID = nil

	firstHash, err := hashing.Hash(first, parent.Hash)
	if err != nil {
		return Result{}, apperrors.Internal("", err)
	}
	first.Hash = firstHash

	secondHash, err := hashing.Hash(second, parent.Hash)
	if err != nil {
		return Result{}, apperrors.Internal("", err)
	}
	second.Hash = secondHash

	splitParent := parent
	splitParent.CertificateBundleStatus = certificate.StatusBundleSplit
	splitParent.IsDeleted = true

	return Result{Parent: splitParent, Children: [2]certificate.GranularCertificateBundle{first, second}}, nil
}

// SplitForQuantity is a convenience wrapper for splitting off exactly n
// certificates from the head of the parent's range, the shape every
// partial-selector action (TRANSFER/CANCEL/CLAIM/etc. on less than the full
// bundle) needs: a "taken" child of quantity n and a "remainder" child with
// whatever is left.
func SplitForQuantity(parent certificate.GranularCertificateBundle, n int64, newIDs func() (string, string)) (Result, error) {
	if n <= 0 || n >= parent.BundleQuantity() {
		return Result{}, apperrors.Validation("VAL_SPLIT_QUANTITY_INVALID", "split quantity must be strictly between 0 and the bundle quantity").
			WithDetails("bundle_quantity", parent.BundleQuantity()).
			WithDetails("requested_quantity", n)
	}
	return SplitAt(parent, parent.RangeStart+n-1, newIDs)
}
