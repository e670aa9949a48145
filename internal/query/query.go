// Package query implements the Query Engine: the read-store filter set
// exposed to callers listing certificate bundles, with a Redis-backed
// result cache sitting in front of the read store for hot filter
// combinations.
package query

import (
	"context"
	"sort"
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
)

// IssuanceKey is one {device_id, starting_interval} exact-match pair.
type IssuanceKey struct {
	DeviceID         string
	StartingInterval time.Time
}

// Filter is the AND-combined, caller-supplied filter set. Soft-deleted
// bundles are always excluded by the underlying store query.
type Filter struct {
	SourceAccountID         string // required
	IssuanceIDs             []IssuanceKey
	CertificatePeriodStart  *time.Time
	CertificatePeriodEnd    *time.Time
	DeviceID                string
	EnergySource            string
	CertificateBundleStatus certificate.Status
	Limit                   int
}

// Validate enforces the filter's mutual-exclusion and range-bound rules.
func (f Filter) Validate() error {
	if f.SourceAccountID == "" {
		return apperrors.Validation("VAL_SOURCE_ID_REQUIRED", "source_id is required")
	}

	hasIssuanceIDs := len(f.IssuanceIDs) > 0
	hasTimeRange := f.CertificatePeriodStart != nil || f.CertificatePeriodEnd != nil
	if hasIssuanceIDs && hasTimeRange {
		return apperrors.MutuallyExclusive("issuance_ids", "certificate_period_start/_end")
	}

	if hasTimeRange {
		if f.CertificatePeriodStart == nil || f.CertificatePeriodEnd == nil {
			return apperrors.Validation("VAL_PERIOD_RANGE_INCOMPLETE", "certificate_period_start and _end must both be set together")
		}
		if f.CertificatePeriodStart.Location() != time.UTC || f.CertificatePeriodEnd.Location() != time.UTC {
			return apperrors.InvalidTimezone("certificate_period_start/_end")
		}
		if f.CertificatePeriodEnd.Before(*f.CertificatePeriodStart) {
			return apperrors.Validation("VAL_PERIOD_RANGE_INVERTED", "certificate_period_end precedes certificate_period_start")
		}
		if f.CertificatePeriodEnd.Sub(*f.CertificatePeriodStart) > 30*24*time.Hour {
			return apperrors.OutOfRange("certificate_period_start/_end", 0, "30 days")
		}
	}

	return nil
}

// CacheKey derives a stable, collision-resistant cache key for f. Two
// Filters with identical field values always derive the same key.
func (f Filter) CacheKey() string {
	key := "query:" + f.SourceAccountID + "|" + f.DeviceID + "|" + f.EnergySource + "|" + string(f.CertificateBundleStatus)
	if f.CertificatePeriodStart != nil {
		key += "|" + f.CertificatePeriodStart.UTC().Format(time.RFC3339)
	}
	if f.CertificatePeriodEnd != nil {
		key += "|" + f.CertificatePeriodEnd.UTC().Format(time.RFC3339)
	}
	for _, k := range f.IssuanceIDs {
		key += "|" + k.DeviceID + "@" + k.StartingInterval.UTC().Format(time.RFC3339)
	}
	return key
}

// Store is the read-store query the Query Engine delegates to once a
// filter is validated and a cache miss occurs.
type Store interface {
	QueryBundles(ctx context.Context, f Filter) ([]certificate.GranularCertificateBundle, error)
}

// Cache is the result cache sitting in front of Store.
type Cache interface {
	Get(ctx context.Context, key string) ([]certificate.GranularCertificateBundle, bool, error)
	Set(ctx context.Context, key string, bundles []certificate.GranularCertificateBundle, ttl time.Duration) error
}

// Engine evaluates Filters against Store, caching results in Cache.
type Engine struct {
	store Store
	cache Cache
	ttl   time.Duration
}

// New builds an Engine. cache may be nil to disable caching entirely.
func New(store Store, cache Cache, ttl time.Duration) *Engine {
	return &Engine{store: store, cache: cache, ttl: ttl}
}

// Query validates f, then serves from cache or falls through to the store,
// ordering by production_starting_interval descending and capping at
// f.Limit when positive.
func (e *Engine) Query(ctx context.Context, f Filter) ([]certificate.GranularCertificateBundle, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	key := f.CacheKey()
	if e.cache != nil {
		if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			return applyLimit(cached, f.Limit), nil
		}
	}

	results, err := e.store.QueryBundles(ctx, f)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}

	sortDescendingByProductionStart(results)

	if e.cache != nil {
		_ = e.cache.Set(ctx, key, results, e.ttl)
	}

	return applyLimit(results, f.Limit), nil
}

func applyLimit(bundles []certificate.GranularCertificateBundle, limit int) []certificate.GranularCertificateBundle {
	if limit > 0 && limit < len(bundles) {
		return bundles[:limit]
	}
	return bundles
}

func sortDescendingByProductionStart(bundles []certificate.GranularCertificateBundle) {
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].ProductionStartingInterval.After(bundles[j].ProductionStartingInterval)
	})
}
