// Package issuance implements the Issuance Pipeline: for each device and
// each elapsed production interval, fetch a metered reading, mint a
// candidate certificate bundle, validate it, and hand it to the caller to
// commit through the CQRS coordinator.
package issuance

import (
	"context"
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/device"
	"github.com/gcregistry/registry/internal/hashing"
	"github.com/gcregistry/registry/internal/issuanceid"
	"github.com/gcregistry/registry/internal/meter"
	"github.com/gcregistry/registry/internal/validator"
)

// DeviceState is what the pipeline needs to know about a device's issuance
// history to mint its next bundle.
type DeviceState struct {
	Device       device.Device
	LastRangeEnd int64 // -1 if the device has never been issued to
	MetadataID   string
	Beneficiary  string
}

// Params configures the pipeline run.
type Params struct {
	Granularity        time.Duration
	CapacityMargin     float64
	CertificateExpiry  time.Duration
	NewID              func() string
	EnergyCarrierOf    func(device.Device) certificate.EnergyCarrier
}

// Candidate is a minted, validated bundle awaiting commit, paired with the
// reason it was skipped when no bundle could be minted.
type Candidate struct {
	Bundle     certificate.GranularCertificateBundle
	DeviceID   string
	SkipReason string
}

// Pipeline runs the per-device, per-interval issuance sweep.
type Pipeline struct {
	meter  meter.Client
	params Params
}

// New builds a Pipeline.
func New(m meter.Client, p Params) *Pipeline {
	if p.NewID == nil {
		panic("issuance: Params.NewID is required")
	}
	return &Pipeline{meter: m, params: p}
}

// RunOnce processes one elapsed interval for one device: [intervalStart,
// intervalStart+Granularity). It returns a Candidate with SkipReason set
// (and a zero Bundle) when the meter has no settled reading yet — that is
// not an error, just nothing to mint this sweep.
func (p *Pipeline) RunOnce(ctx context.Context, state DeviceState, intervalStart time.Time) (Candidate, error) {
	intervalEnd := intervalStart.Add(p.params.Granularity)

	reading, err := p.meter.FetchReading(ctx, state.Device.ID, intervalStart, intervalEnd)
	if err != nil {
		return Candidate{}, err
	}
	if reading == nil {
		return Candidate{DeviceID: state.Device.ID, SkipReason: "no settled meter reading for interval"}, nil
	}
	if reading.MeteredQuantity <= 0 {
		return Candidate{DeviceID: state.Device.ID, SkipReason: "meter reading reports zero or negative production"}, nil
	}

	rangeStart := state.LastRangeEnd + 1
	rangeEnd := rangeStart + reading.MeteredQuantity - 1

	carrier := certificate.EnergyCarrierElectricity
	if p.params.EnergyCarrierOf != nil {
		carrier = p.params.EnergyCarrierOf(state.Device)
	}

	bundle := certificate.GranularCertificateBundle{
		ID:                         p.params.NewID(),
		IssuanceID:                 issuanceid.Encode(state.Device.ID, intervalStart),
		AccountID:                  state.Device.AccountID,
		DeviceID:                   state.Device.ID,
		MetadataID:                 state.MetadataID,
		RangeStart:                 rangeStart,
		RangeEnd:                   rangeEnd,
		CertificateBundleStatus:    certificate.StatusActive,
		ProductionStartingInterval: intervalStart,
		ProductionEndingInterval:   intervalEnd,
		ExpiryDatestamp:            intervalStart.Add(p.params.CertificateExpiry),
		EnergyCarrier:              carrier,
		EnergySource:               string(state.Device.EnergySource),
		IsStorage:                  state.Device.IsStorage,
		Beneficiary:                state.Beneficiary,
	}

	if err := validator.Validate(bundle, validator.DeviceCapacity{PowerMW: state.Device.PowerMW}, validator.Params{
		CapacityMargin:   p.params.CapacityMargin,
		GranularityHours: p.params.Granularity.Hours(),
	}, state.LastRangeEnd); err != nil {
		return Candidate{}, err
	}

	hash, err := hashing.Hash(bundle, "")
	if err != nil {
		return Candidate{}, apperrors.Internal("", err)
	}
	bundle.Hash = hash

	return Candidate{Bundle: bundle, DeviceID: state.Device.ID}, nil
}

// PendingIntervals enumerates the [start, start+granularity) windows
// between a device's last-issued interval end and now, inclusive of
// whatever intervals have fully elapsed by now.
func PendingIntervals(lastIntervalEnd, now time.Time, granularity time.Duration) []time.Time {
	var starts []time.Time
	for cursor := lastIntervalEnd; !cursor.Add(granularity).After(now); cursor = cursor.Add(granularity) {
		starts = append(starts, cursor)
	}
	return starts
}
