package main

import (
	"context"
	"time"

	"github.com/gcregistry/registry/internal/domain/device"
	"github.com/gcregistry/registry/internal/issuance"
	"github.com/gcregistry/registry/pkg/logger"
)

// deviceLister, lastIntervalEndFunc, and lastRangeEndFunc narrow the
// postgres stores down to what the sweep needs, the same way
// whitelistgate/storageallocator take lookup closures instead of whole
// store types.
type deviceLister func(ctx context.Context) ([]device.Device, error)
type lastRangeEndFunc func(ctx context.Context, deviceID string) (int64, error)
type lastIntervalEndFunc func(ctx context.Context, deviceID string) (time.Time, bool, error)
type commitCandidate func(ctx context.Context, c issuance.Candidate) error

// runIssuanceSweep walks every active device once per tick and mints
// whatever intervals have elapsed since its last issued bundle. One failed
// device does not stop the sweep from visiting the rest; failures are
// logged and retried on the next tick.
func runIssuanceSweep(
	ctx context.Context,
	pipeline *issuance.Pipeline,
	granularity time.Duration,
	listDevices deviceLister,
	lastRangeEnd lastRangeEndFunc,
	lastIntervalEnd lastIntervalEndFunc,
	commit commitCandidate,
	log *logger.Logger,
) {
	ticker := time.NewTicker(granularity)
	defer ticker.Stop()

	sweep := func() {
		devices, err := listDevices(ctx)
		if err != nil {
			log.WithError(err).Error("issuance sweep: list devices")
			return
		}
		for _, d := range devices {
			sweepDevice(ctx, pipeline, granularity, d, lastRangeEnd, lastIntervalEnd, commit, log)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func sweepDevice(
	ctx context.Context,
	pipeline *issuance.Pipeline,
	granularity time.Duration,
	d device.Device,
	lastRangeEnd lastRangeEndFunc,
	lastIntervalEnd lastIntervalEndFunc,
	commit commitCandidate,
	log *logger.Logger,
) {
	rangeEnd, err := lastRangeEnd(ctx, d.ID)
	if err != nil {
		log.WithError(err).WithField("device_id", d.ID).Error("issuance sweep: load last range end")
		return
	}

	cursorEnd := d.OperationalDate
	if end, found, err := lastIntervalEnd(ctx, d.ID); err != nil {
		log.WithError(err).WithField("device_id", d.ID).Error("issuance sweep: load last production interval")
		return
	} else if found {
		cursorEnd = end
	}

	now := time.Now().UTC()
	for _, start := range issuance.PendingIntervals(cursorEnd, now, granularity) {
		candidate, err := pipeline.RunOnce(ctx, issuance.DeviceState{Device: d, LastRangeEnd: rangeEnd}, start)
		if err != nil {
			log.WithError(err).WithField("device_id", d.ID).Error("issuance sweep: mint candidate")
			return
		}
		if candidate.SkipReason != "" {
			continue
		}
		if err := commit(ctx, candidate); err != nil {
			log.WithError(err).WithField("device_id", d.ID).Error("issuance sweep: commit candidate")
			return
		}
		rangeEnd = candidate.Bundle.RangeEnd
	}
}
