package storageallocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/hashing"
)

func baseSCR() storagerecord.StorageRecord {
	return storagerecord.StorageRecord{
		ID:                "scr-1",
		DeviceID:          "storage-device-1",
		IsCharging:        true,
		FlowStartDatetime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FlowEndDatetime:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		FlowEnergy:        1000,
	}
}

func baseSDR() storagerecord.StorageRecord {
	return storagerecord.StorageRecord{
		ID:                "sdr-1",
		DeviceID:          "storage-device-1",
		IsCharging:        false,
		FlowStartDatetime: time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		FlowEndDatetime:   time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC),
		FlowEnergy:        500,
	}
}

func cancelledGC(quantity int64) certificate.GranularCertificateBundle {
	b := certificate.GranularCertificateBundle{
		ID:                         "gc-1",
		IssuanceID:                 "prod-device-1-2026-01-01T00:00:00Z",
		DeviceID:                   "prod-device-1",
		RangeStart:                 1,
		RangeEnd:                   quantity,
		CertificateBundleStatus:    certificate.StatusCancelled,
		ProductionStartingInterval: time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC),
		ProductionEndingInterval:   time.Date(2026, 1, 1, 0, 45, 0, 0, time.UTC),
	}
	h, _ := hashing.Hash(b, "")
	b.Hash = h
	return b
}

func lookupOne(rec storagerecord.StorageRecord) RecordLookup {
	return func(string) ([]storagerecord.StorageRecord, error) { return []storagerecord.StorageRecord{rec}, nil }
}

func TestAllocate_WithoutGC_ProducesAllocationOnly(t *testing.T) {
	a := New(lookupOne(baseSCR()), lookupOne(baseSDR()), nil)
	res, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2", SDRProportion: 0.5},
		MintParams{NewAllocatedRecordID: "alloc-1", Methodology: "PRO_RATA"})
	require.NoError(t, err)
	require.Nil(t, res.SDGC)
	require.Equal(t, "scr-1", res.Allocation.SCRID)
	require.Equal(t, "sdr-1", res.Allocation.SDRID)
}

func TestAllocate_RejectsWhenSCRNotCharging(t *testing.T) {
	scr := baseSCR()
	scr.IsCharging = false
	a := New(lookupOne(scr), lookupOne(baseSDR()), nil)
	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2"}, MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindIntegrity, re.Kind)
}

func TestAllocate_RejectsWhenSDRIsCharging(t *testing.T) {
	sdr := baseSDR()
	sdr.IsCharging = true
	a := New(lookupOne(baseSCR()), lookupOne(sdr), nil)
	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2"}, MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
}

func TestAllocate_RejectsOverlappingFlows(t *testing.T) {
	sdr := baseSDR()
	sdr.FlowStartDatetime = baseSCR().FlowStartDatetime // starts before scr ends
	a := New(lookupOne(baseSCR()), lookupOne(sdr), nil)
	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2"}, MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
}

func TestAllocate_RejectsMultipleMatchesForValidatorID(t *testing.T) {
	multi := func(string) ([]storagerecord.StorageRecord, error) {
		return []storagerecord.StorageRecord{baseSCR(), baseSCR()}, nil
	}
	a := New(multi, lookupOne(baseSDR()), nil)
	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2"}, MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindIntegrity, re.Kind)
}

func TestAllocate_MintsSDGCWhenGCReferenced(t *testing.T) {
	gc := cancelledGC(500) // 0.5 * 1000 (scr.flow_energy) == 500
	bundleLookup := func(id string) (certificate.GranularCertificateBundle, bool, error) {
		if id == gc.ID {
			return gc, true, nil
		}
		return certificate.GranularCertificateBundle{}, false, nil
	}
	a := New(lookupOne(baseSCR()), lookupOne(baseSDR()), bundleLookup)

	res, err := a.Allocate(
		Row{SCRValidatorID: "v1", SDRValidatorID: "v2", GCBundleID: gc.ID, SDRProportion: 0.5, StorageEfficiencyFactor: 0.9},
		MintParams{NewAllocatedRecordID: "alloc-1", NewBundleID: "sdgc-1", StorageDeviceID: "storage-device-1", LastRangeEnd: 0, Methodology: "PRO_RATA"},
	)
	require.NoError(t, err)
	require.NotNil(t, res.SDGC)
	require.True(t, res.SDGC.IsStorage)
	require.Equal(t, "storage-device-1", res.SDGC.DeviceID)
	require.Equal(t, int64(1), res.SDGC.RangeStart)
	require.Equal(t, int64(500), res.SDGC.RangeEnd)
	require.NotEqual(t, gc.Hash, res.SDGC.Hash)
	require.Equal(t, certificate.StatusActive, res.SDGC.CertificateBundleStatus)
}

func TestAllocate_RejectsGCNotCancelled(t *testing.T) {
	gc := cancelledGC(500)
	gc.CertificateBundleStatus = certificate.StatusActive
	bundleLookup := func(id string) (certificate.GranularCertificateBundle, bool, error) { return gc, true, nil }
	a := New(lookupOne(baseSCR()), lookupOne(baseSDR()), bundleLookup)

	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2", GCBundleID: gc.ID, SDRProportion: 0.5},
		MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindState, re.Kind)
}

func TestAllocate_RejectsQuantityMismatch(t *testing.T) {
	gc := cancelledGC(999) // does not equal 0.5 * 1000
	bundleLookup := func(id string) (certificate.GranularCertificateBundle, bool, error) { return gc, true, nil }
	a := New(lookupOne(baseSCR()), lookupOne(baseSDR()), bundleLookup)

	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2", GCBundleID: gc.ID, SDRProportion: 0.5},
		MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindIntegrity, re.Kind)
}

func TestAllocate_GCNotFound(t *testing.T) {
	bundleLookup := func(id string) (certificate.GranularCertificateBundle, bool, error) {
		return certificate.GranularCertificateBundle{}, false, nil
	}
	a := New(lookupOne(baseSCR()), lookupOne(baseSDR()), bundleLookup)

	_, err := a.Allocate(Row{SCRValidatorID: "v1", SDRValidatorID: "v2", GCBundleID: "missing", SDRProportion: 0.5},
		MintParams{NewAllocatedRecordID: "alloc-1"})
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindNotFound, re.Kind)
}
