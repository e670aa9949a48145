// Package storageallocator implements the Storage Allocator: matching
// Storage Charge Records (SCR) against Storage Discharge Records (SDR),
// optionally against a cancelled production bundle, to mint Storage
// Discharge Granular Certificates.
package storageallocator

import (
	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/hashing"
	"github.com/gcregistry/registry/internal/issuanceid"
)

// Row is one submitted allocation request: a validator-id pair identifying
// an existing SCR/SDR, and optionally a cancelled production bundle to
// retire into the allocation.
type Row struct {
	SCRValidatorID          string
	SDRValidatorID          string
	GCBundleID              string // empty when no cancelled GC is being retired
	SDRProportion           float64
	StorageEfficiencyFactor float64
}

// RecordLookup resolves a StorageRecord by validator id, returning the
// matches found — exactly one match is required, so the caller's store
// query fans this out rather than the allocator guessing cardinality.
type RecordLookup func(validatorID string) ([]storagerecord.StorageRecord, error)

// BundleLookup resolves a candidate cancelled production bundle by id.
type BundleLookup func(bundleID string) (certificate.GranularCertificateBundle, bool, error)

// Allocator matches SCR/SDR pairs and mints SD-GCs.
type Allocator struct {
	scrByValidator RecordLookup
	sdrByValidator RecordLookup
	bundle         BundleLookup
}

// New builds an Allocator.
func New(scrByValidator, sdrByValidator RecordLookup, bundle BundleLookup) *Allocator {
	return &Allocator{scrByValidator: scrByValidator, sdrByValidator: sdrByValidator, bundle: bundle}
}

// MintParams carries the identifiers and counters needed to produce the new
// SD-GC and its AllocatedStorageRecord row.
type MintParams struct {
	NewAllocatedRecordID string
	NewBundleID          string
	StorageDeviceID      string
	LastRangeEnd         int64 // storage device's monotonic counter, -1 if none issued yet
	Methodology          string
}

// Result is a completed allocation: the new AllocatedStorageRecord and,
// when a cancelled GC was retired, the minted SD-GC.
type Result struct {
	Allocation storagerecord.AllocatedStorageRecord
	SDGC       *certificate.GranularCertificateBundle
}

// Allocate resolves row against existing SCR/SDR records and, if a
// cancelled bundle is named, mints the resulting SD-GC.
func (a *Allocator) Allocate(row Row, p MintParams) (Result, error) {
	scr, err := resolveExactlyOne(a.scrByValidator, row.SCRValidatorID, "SCR")
	if err != nil {
		return Result{}, err
	}
	sdr, err := resolveExactlyOne(a.sdrByValidator, row.SDRValidatorID, "SDR")
	if err != nil {
		return Result{}, err
	}

	if !scr.IsCharging {
		return Result{}, apperrors.Integrity("referenced SCR record is not a charging flow").
			WithDetails("scr_validator_id", row.SCRValidatorID)
	}
	if sdr.IsCharging {
		return Result{}, apperrors.Integrity("referenced SDR record is a charging flow, not a discharge").
			WithDetails("sdr_validator_id", row.SDRValidatorID)
	}
	if sdr.FlowStartDatetime.Before(scr.FlowEndDatetime) {
		return Result{}, apperrors.Integrity("discharge flow starts before the charge flow ends").
			WithDetails("scr_flow_end", scr.FlowEndDatetime).
			WithDetails("sdr_flow_start", sdr.FlowStartDatetime)
	}

	allocation := storagerecord.AllocatedStorageRecord{
		ID:                       p.NewAllocatedRecordID,
		SCRID:                    scr.ID,
		SDRID:                    sdr.ID,
		SDRProportion:            row.SDRProportion,
		StorageEfficiencyFactor:  row.StorageEfficiencyFactor,
		SCRAllocationMethodology: p.Methodology,
		EfficiencyIntervalStart:  scr.FlowStartDatetime,
		EfficiencyIntervalEnd:    sdr.FlowEndDatetime,
	}

	if row.GCBundleID == "" {
		return Result{Allocation: allocation}, nil
	}

	gc, found, err := a.bundle(row.GCBundleID)
	if err != nil {
		return Result{}, apperrors.Internal("", err)
	}
	if !found {
		return Result{}, apperrors.NotFound("GranularCertificateBundle", row.GCBundleID)
	}
	if gc.CertificateBundleStatus != certificate.StatusCancelled {
		return Result{}, apperrors.State("allocated GC must be CANCELLED").
			WithDetails("bundle_id", gc.ID).
			WithDetails("status", string(gc.CertificateBundleStatus))
	}

	expectedQuantity := int64(row.SDRProportion * float64(scr.FlowEnergy))
	if gc.BundleQuantity() != expectedQuantity {
		return Result{}, apperrors.Integrity("allocated GC quantity does not match sdr_proportion × scr.flow_energy").
			WithDetails("bundle_quantity", gc.BundleQuantity()).
			WithDetails("expected_quantity", expectedQuantity)
	}
	if gc.ProductionStartingInterval.Before(scr.FlowStartDatetime) || gc.ProductionEndingInterval.After(scr.FlowEndDatetime) {
		return Result{}, apperrors.Integrity("allocated GC production interval falls outside the charge flow window").
			WithDetails("bundle_id", gc.ID)
	}

	allocation.GCAllocationID = &gc.ID

	sdgc := gc
	sdgc.ID = p.NewBundleID
	sdgc.IsStorage = true
	sdgc.DeviceID = p.StorageDeviceID
	sdgc.AllocatedStorageRecordID = &allocation.ID
	sdgc.StorageEfficiencyFactor = &allocation.StorageEfficiencyFactor
	sdgc.RangeStart = p.LastRangeEnd + 1
	sdgc.RangeEnd = p.LastRangeEnd + gc.BundleQuantity()
	sdgc.CertificateBundleStatus = certificate.StatusActive
	sdgc.IssuanceID = issuanceid.Encode(p.StorageDeviceID, sdgc.ProductionStartingInterval)

	hash, herr := hashing.Hash(sdgc, gc.Hash)
	if herr != nil {
		return Result{}, apperrors.Internal("", herr)
	}
	sdgc.Hash = hash

	allocation.SDGCAllocationID = &sdgc.ID

	return Result{Allocation: allocation, SDGC: &sdgc}, nil
}

func resolveExactlyOne(lookup RecordLookup, validatorID, label string) (storagerecord.StorageRecord, error) {
	matches, err := lookup(validatorID)
	if err != nil {
		return storagerecord.StorageRecord{}, apperrors.Internal("", err)
	}
	if len(matches) == 0 {
		return storagerecord.StorageRecord{}, apperrors.NotFound(label, validatorID)
	}
	if len(matches) > 1 {
		return storagerecord.StorageRecord{}, apperrors.Integrity("validator id matches more than one "+label+" record").
			WithDetails("validator_id", validatorID).
			WithDetails("match_count", len(matches))
	}
	return matches[0], nil
}
