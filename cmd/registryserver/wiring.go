package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/gcregistry/registry/internal/actions"
	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/config"
	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/device"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/eventlog"
	"github.com/gcregistry/registry/internal/importer"
	"github.com/gcregistry/registry/internal/issuance"
	"github.com/gcregistry/registry/internal/meter"
	"github.com/gcregistry/registry/internal/metrics"
	"github.com/gcregistry/registry/internal/query"
	"github.com/gcregistry/registry/internal/storageallocator"
	"github.com/gcregistry/registry/internal/transport/httpapi"
	"github.com/gcregistry/registry/internal/validator"
	"github.com/gcregistry/registry/internal/whitelistgate"
	"github.com/gcregistry/registry/pkg/logger"
	"github.com/gcregistry/registry/pkg/store/postgres"

	"github.com/jmoiron/sqlx"
)

// application bundles the wired router plus anything main needs to shut
// down cleanly.
type application struct {
	router *chi.Mux
}

type buildParams struct {
	cfg         *config.Config
	writeDB     *sqlx.DB
	readDB      *sqlx.DB
	redisClient *redis.Client
	metrics     *metrics.Recorder
	logger      *logger.Logger
}

// build wires every store, engine, and the HTTP router from p. It is the
// registry's composition root: nothing here is reused by tests, which
// construct their own narrower dependency graphs directly.
func build(ctx context.Context, p buildParams) *application {
	bundles := postgres.NewBundleStore(p.readDB)
	accounts := postgres.NewAccountStore(p.readDB)
	devices := postgres.NewDeviceStore(p.readDB)
	whitelist := postgres.NewWhitelistStore(p.readDB)
	storageRecords := postgres.NewStorageRecordStore(p.readDB)
	appender := postgres.NewEventAppender()

	var mirror eventlog.Mirror
	if p.redisClient != nil {
		mirror = eventlog.NewRedisMirror(p.redisClient, p.cfg.EventStream.StreamName)
	}
	events := eventlog.New(appender, mirror)
	events.OnMirrorError(func(err error) { p.logger.WithError(err).Warn("event mirror publish failed") })

	coordinator := cqrs.New(p.writeDB.DB, p.readDB.DB, events, p.metrics)
	coordinator.OnReadLag(func(err error) { p.logger.WithError(err).Error("read store commit lag") })

	var cache query.Cache
	if p.redisClient != nil {
		cache = query.NewRedisCache(p.redisClient)
	}
	queryEngine := query.New(bundles, cache, 30*time.Second)

	// Cached query results are keyed on the filter, not on the entity ids a
	// mutation touches, so there is no key this hook can derive to evict
	// precisely; staleness is bounded by the cache's own TTL instead. The
	// hook still logs so an operator can see a commit happened.
	coordinator.OnCommitted(func(_ context.Context, results []cqrs.Result) {
		p.logger.WithField("mutation_count", len(results)).Debug("cqrs commit completed")
	})

	gate := whitelistgate.New(
		func(source, target string) (bool, error) { return whitelist.Linked(ctx, source, target) },
		func(userID, accountID string) (bool, error) { return accounts.UserLinked(ctx, userID, accountID) },
	)
	actionProcessor := actions.New(gate, func(accountID string) (string, error) {
		a, found, err := accounts.GetByID(ctx, accountID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", apperrors.NotFound("Account", accountID)
		}
		return a.AccountName, nil
	})

	allocator := storageallocator.New(
		func(validatorID string) ([]storagerecord.StorageRecord, error) {
			return storageRecords.ByValidatorID(ctx, validatorID)
		},
		func(validatorID string) ([]storagerecord.StorageRecord, error) {
			return storageRecords.ByValidatorID(ctx, validatorID)
		},
		func(bundleID string) (certificate.GranularCertificateBundle, bool, error) {
			return bundles.GetByID(ctx, bundleID)
		},
	)

	var meterClient meter.Client
	if p.cfg.Meter.BaseURL != "" {
		meterClient = meter.NewHTTPClient(meter.Config{
			BaseURL:            p.cfg.Meter.BaseURL,
			RateLimitPerSecond: p.cfg.Meter.RateLimitPerSecond,
			Timeout:            time.Duration(p.cfg.Meter.TimeoutSeconds) * time.Second,
		})
	} else {
		meterClient = meter.NewFake()
	}
	// The issuance sweep is driven by a background ticker loop (see
	// runIssuanceSweep, started below); it is constructed here so it shares the same
	// meter client and registry tunables as the rest of the composition
	// root instead of duplicating config plumbing.
	issuancePipeline := issuance.New(meterClient, issuance.Params{
		Granularity:       p.cfg.Registry.Granularity(),
		CapacityMargin:    p.cfg.Registry.CapacityMargin,
		CertificateExpiry: time.Duration(p.cfg.Registry.CertificateExpiryYears) * 365 * 24 * time.Hour,
		NewID:             uuid.NewString,
		EnergyCarrierOf:   energyCarrierOf,
	})

	deps := httpapi.Deps{
		Query:       queryEngine,
		Actions:     actionProcessor,
		Allocator:   allocator,
		Gate:        gate,
		NewImporter: func(accountID string) *importer.Importer { return newImporter(ctx, bundles, accountID) },

		CommitImport: func(ctx context.Context, summary importer.Summary) error {
			return commitImport(ctx, coordinator, bundles, summary)
		},
		AllocateAndCommit: func(ctx context.Context, row storageallocator.Row, mp storageallocator.MintParams) (storageallocator.Result, error) {
			return allocateAndCommit(ctx, coordinator, bundles, storageRecords, allocator, row, mp)
		},
		SubmitStorageRecord: func(ctx context.Context, r storagerecord.StorageRecord) (storagerecord.StorageRecord, error) {
			r.ID = uuid.NewString()
			r.CreatedAt = time.Now().UTC()
			mutation := storageRecords.Insert(r)
			if _, err := coordinator.Execute(ctx, []cqrs.Mutation{mutation}); err != nil {
				return storagerecord.StorageRecord{}, err
			}
			return r, nil
		},
		CommitAction: func(ctx context.Context, result actions.Result) error {
			return commitAction(ctx, coordinator, bundles, result)
		},
		ResolveBundles: func(ctx context.Context, ids []string) ([]certificate.GranularCertificateBundle, error) {
			return resolveBundles(ctx, bundles, ids)
		},

		NewBundleID:     uuid.NewString,
		NewActionID:     uuid.NewString,
		NewAllocationID: uuid.NewString,
		Now:             func() time.Time { return time.Now().UTC() },
		Logger:          p.logger.Logger,
	}

	go runIssuanceSweep(
		ctx,
		issuancePipeline,
		p.cfg.Registry.Granularity(),
		devices.ListActive,
		bundles.LastRangeEnd,
		bundles.LastProductionIntervalEnd,
		func(ctx context.Context, c issuance.Candidate) error {
			_, err := coordinator.Execute(ctx, []cqrs.Mutation{bundles.Insert(c.Bundle, time.Now().UTC())})
			return err
		},
		p.logger,
	)

	return &application{router: httpapi.NewRouter(deps)}
}

// energyCarrierOf maps a device's energy source to the carrier its minted
// bundles report; every source this registry models produces electricity.
func energyCarrierOf(device.Device) certificate.EnergyCarrier {
	return certificate.EnergyCarrierElectricity
}

func newImporter(ctx context.Context, bundles *postgres.BundleStore, accountID string) *importer.Importer {
	return importer.New(importer.Params{
		AccountID:     accountID,
		NewBundleID:   uuid.NewString,
		NewMetadataID: uuid.NewString,
		ExistingRanges: func(deviceID string) ([]validator.Range, error) {
			return bundles.ExistingRanges(ctx, deviceID)
		},
	})
}

func commitImport(ctx context.Context, coordinator *cqrs.Coordinator, bundles *postgres.BundleStore, summary importer.Summary) error {
	now := time.Now().UTC()
	mutations := make([]cqrs.Mutation, 0, len(summary.Accepted))
	for _, b := range summary.Accepted {
		mutations = append(mutations, bundles.Insert(b, now))
	}
	_, err := coordinator.Execute(ctx, mutations)
	return err
}

func commitAction(ctx context.Context, coordinator *cqrs.Coordinator, bundles *postgres.BundleStore, result actions.Result) error {
	now := time.Now().UTC()
	mutations := make([]cqrs.Mutation, 0, len(result.Outcomes)+1)
	for _, outcome := range result.Outcomes {
		if outcome.Split {
			mutations = append(mutations, bundles.Update(outcome.Parent, outcome.Parent, now))
			mutations = append(mutations, bundles.Insert(outcome.Acted, now))
			mutations = append(mutations, bundles.Insert(outcome.Remainder, now))
			continue
		}
		mutations = append(mutations, bundles.Update(outcome.Acted, outcome.Acted, now))
	}
	if len(mutations) == 0 {
		return nil
	}
	_, err := coordinator.Execute(ctx, mutations)
	return err
}

func allocateAndCommit(
	ctx context.Context,
	coordinator *cqrs.Coordinator,
	bundles *postgres.BundleStore,
	storageRecords *postgres.StorageRecordStore,
	allocator *storageallocator.Allocator,
	row storageallocator.Row,
	mp storageallocator.MintParams,
) (storageallocator.Result, error) {
	result, err := allocator.Allocate(row, mp)
	if err != nil {
		return storageallocator.Result{}, err
	}

	now := time.Now().UTC()
	result.Allocation.CreatedAt = now
	mutations := []cqrs.Mutation{storageRecords.InsertAllocation(result.Allocation)}
	if result.SDGC != nil {
		mutations = append(mutations, bundles.Insert(*result.SDGC, now))
	}

	if _, err := coordinator.Execute(ctx, mutations); err != nil {
		return storageallocator.Result{}, err
	}
	return result, nil
}

func resolveBundles(ctx context.Context, bundles *postgres.BundleStore, ids []string) ([]certificate.GranularCertificateBundle, error) {
	out := make([]certificate.GranularCertificateBundle, 0, len(ids))
	for _, id := range ids {
		b, found, err := bundles.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperrors.NotFound("GranularCertificateBundle", id)
		}
		out = append(out, b)
	}
	return out, nil
}
