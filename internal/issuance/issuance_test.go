package issuance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/device"
	"github.com/gcregistry/registry/internal/meter"
)

func testParams(ids ...string) Params {
	i := 0
	return Params{
		Granularity:       time.Hour,
		CapacityMargin:    1.1,
		CertificateExpiry: 2 * 365 * 24 * time.Hour,
		NewID: func() string {
			id := ids[i]
			i++
			return id
		},
	}
}

func testDevice() device.Device {
	return device.Device{
		ID:           "device-1",
		AccountID:    "acct-1",
		EnergySource: device.EnergySourceWind,
		PowerMW:      10,
	}
}

func TestRunOnce_MintsCandidateFromMeterReading(t *testing.T) {
	fake := meter.NewFake()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake.Set("device-1", start, 5000)

	p := New(fake, testParams("bundle-1"))
	state := DeviceState{Device: testDevice(), LastRangeEnd: -1, MetadataID: "meta-1"}

	c, err := p.RunOnce(context.Background(), state, start)
	require.NoError(t, err)
	require.Empty(t, c.SkipReason)
	require.Equal(t, int64(0), c.Bundle.RangeStart)
	require.Equal(t, int64(4999), c.Bundle.RangeEnd)
	require.NotEmpty(t, c.Bundle.Hash)
	require.Equal(t, "bundle-1", c.Bundle.ID)
}

func TestRunOnce_ContinuesRangeFromPriorIssuance(t *testing.T) {
	fake := meter.NewFake()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake.Set("device-1", start, 1000)

	p := New(fake, testParams("bundle-2"))
	state := DeviceState{Device: testDevice(), LastRangeEnd: 5000, MetadataID: "meta-1"}

	c, err := p.RunOnce(context.Background(), state, start)
	require.NoError(t, err)
	require.Equal(t, int64(5001), c.Bundle.RangeStart)
	require.Equal(t, int64(6000), c.Bundle.RangeEnd)
}

func TestRunOnce_SkipsWhenNoMeterReadingYet(t *testing.T) {
	fake := meter.NewFake()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p := New(fake, testParams())
	state := DeviceState{Device: testDevice(), LastRangeEnd: -1, MetadataID: "meta-1"}

	c, err := p.RunOnce(context.Background(), state, start)
	require.NoError(t, err)
	require.NotEmpty(t, c.SkipReason)
	require.Empty(t, c.Bundle.ID)
}

func TestRunOnce_SkipsOnZeroProduction(t *testing.T) {
	fake := meter.NewFake()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake.Set("device-1", start, 0)

	p := New(fake, testParams())
	state := DeviceState{Device: testDevice(), LastRangeEnd: -1, MetadataID: "meta-1"}

	c, err := p.RunOnce(context.Background(), state, start)
	require.NoError(t, err)
	require.NotEmpty(t, c.SkipReason)
}

func TestRunOnce_FailsValidationWhenCapacityExceeded(t *testing.T) {
	fake := meter.NewFake()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// 10MW * 1e6 * 1h * 1.1 margin ceiling ~= 1.1e7 Wh; ask for much more.
	fake.Set("device-1", start, 50_000_000)

	p := New(fake, testParams())
	state := DeviceState{Device: testDevice(), LastRangeEnd: -1, MetadataID: "meta-1"}

	_, err := p.RunOnce(context.Background(), state, start)
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, re.Kind)
}

func TestPendingIntervals_EnumeratesElapsedWindows(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := last.Add(3 * time.Hour)

	starts := PendingIntervals(last, now, time.Hour)
	require.Len(t, starts, 3)
	require.Equal(t, last, starts[0])
	require.Equal(t, last.Add(2*time.Hour), starts[2])
}
