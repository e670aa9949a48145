package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
)

type fakeStore struct {
	bundles []certificate.GranularCertificateBundle
	calls   int
}

func (f *fakeStore) QueryBundles(_ context.Context, _ Filter) ([]certificate.GranularCertificateBundle, error) {
	f.calls++
	return f.bundles, nil
}

type fakeCache struct {
	entries map[string][]certificate.GranularCertificateBundle
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string][]certificate.GranularCertificateBundle)} }

func (c *fakeCache) Get(_ context.Context, key string) ([]certificate.GranularCertificateBundle, bool, error) {
	b, ok := c.entries[key]
	return b, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, bundles []certificate.GranularCertificateBundle, _ time.Duration) error {
	c.entries[key] = bundles
	return nil
}

func bundleAt(id string, start time.Time) certificate.GranularCertificateBundle {
	return certificate.GranularCertificateBundle{ID: id, ProductionStartingInterval: start}
}

func TestFilter_Validate_RequiresSourceID(t *testing.T) {
	err := Filter{}.Validate()
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, re.Kind)
}

func TestFilter_Validate_RejectsIssuanceIDsWithTimeRange(t *testing.T) {
	start := time.Now().UTC()
	end := start.Add(time.Hour)
	f := Filter{
		SourceAccountID:        "acct-1",
		IssuanceIDs:            []IssuanceKey{{DeviceID: "device-1", StartingInterval: start}},
		CertificatePeriodStart: &start,
		CertificatePeriodEnd:   &end,
	}
	err := f.Validate()
	require.Error(t, err)
}

func TestFilter_Validate_RejectsRangeOver30Days(t *testing.T) {
	start := time.Now().UTC().Add(-40 * 24 * time.Hour)
	end := time.Now().UTC()
	f := Filter{SourceAccountID: "acct-1", CertificatePeriodStart: &start, CertificatePeriodEnd: &end}
	err := f.Validate()
	require.Error(t, err)
}

func TestFilter_Validate_AcceptsValidRange(t *testing.T) {
	start := time.Now().UTC().Add(-10 * 24 * time.Hour)
	end := time.Now().UTC()
	f := Filter{SourceAccountID: "acct-1", CertificatePeriodStart: &start, CertificatePeriodEnd: &end}
	require.NoError(t, f.Validate())
}

func TestEngine_Query_OrdersDescendingByProductionStart(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{bundles: []certificate.GranularCertificateBundle{
		bundleAt("older", base),
		bundleAt("newer", base.Add(time.Hour)),
	}}
	e := New(store, nil, time.Minute)

	results, err := e.Query(context.Background(), Filter{SourceAccountID: "acct-1"})
	require.NoError(t, err)
	require.Equal(t, "newer", results[0].ID)
	require.Equal(t, "older", results[1].ID)
}

func TestEngine_Query_AppliesLimit(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{bundles: []certificate.GranularCertificateBundle{
		bundleAt("a", base), bundleAt("b", base.Add(time.Hour)), bundleAt("c", base.Add(2*time.Hour)),
	}}
	e := New(store, nil, time.Minute)

	results, err := e.Query(context.Background(), Filter{SourceAccountID: "acct-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestEngine_Query_ServesFromCacheOnSecondCall(t *testing.T) {
	store := &fakeStore{bundles: []certificate.GranularCertificateBundle{bundleAt("a", time.Now().UTC())}}
	cache := newFakeCache()
	e := New(store, cache, time.Minute)

	_, err := e.Query(context.Background(), Filter{SourceAccountID: "acct-1"})
	require.NoError(t, err)
	_, err = e.Query(context.Background(), Filter{SourceAccountID: "acct-1"})
	require.NoError(t, err)

	require.Equal(t, 1, store.calls, "second query should be served from cache, not the store")
}

func TestFilter_CacheKey_IsStableForEquivalentFilters(t *testing.T) {
	f1 := Filter{SourceAccountID: "acct-1", DeviceID: "device-1"}
	f2 := Filter{SourceAccountID: "acct-1", DeviceID: "device-1"}
	require.Equal(t, f1.CacheKey(), f2.CacheKey())
}
