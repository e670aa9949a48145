package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/actions"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/importer"
	"github.com/gcregistry/registry/internal/query"
	"github.com/gcregistry/registry/internal/storageallocator"
	"github.com/gcregistry/registry/internal/whitelistgate"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func alwaysLinkedGate() *whitelistgate.Gate {
	return whitelistgate.New(
		func(string, string) (bool, error) { return true, nil },
		func(string, string) (bool, error) { return true, nil },
	)
}

func baseDeps() Deps {
	gate := alwaysLinkedGate()
	return Deps{
		Query:       query.New(fakeStore{}, nil, time.Minute),
		Actions:     actions.New(gate, func(string) (string, error) { return "acct-holder", nil }),
		Gate:        gate,
		NewImporter: func(accountID string) *importer.Importer { return importer.New(importer.Params{AccountID: accountID}) },
		NewBundleID: func() string { return "bundle-1" },
		NewActionID: func() string { return "action-1" },
		Now:         func() time.Time { return time.Now().UTC() },
		Logger:      testLogger(),
	}
}

type fakeStore struct{}

func (fakeStore) QueryBundles(ctx context.Context, f query.Filter) ([]certificate.GranularCertificateBundle, error) {
	return []certificate.GranularCertificateBundle{{ID: "bundle-1", AccountID: f.SourceAccountID}}, nil
}

func TestQueryBundles_RequiresSourceID(t *testing.T) {
	deps := baseDeps()
	r := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/certificate/query", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQueryBundles_ReturnsStoreResults(t *testing.T) {
	deps := baseDeps()
	r := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/certificate/query?source_id=acct-1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var bundles []certificate.GranularCertificateBundle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bundles))
	require.Len(t, bundles, 1)
	require.Equal(t, "acct-1", bundles[0].AccountID)
}

func TestQueryBundles_RejectsActorWithNoStandingOnAccount(t *testing.T) {
	deps := baseDeps()
	deps.Gate = whitelistgate.New(
		func(string, string) (bool, error) { return true, nil },
		func(string, string) (bool, error) { return false, nil },
	)
	r := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/certificate/query?source_id=acct-1", nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-User-Role", "trading_user")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSubmitAction_RejectsEmptyBundleIDs(t *testing.T) {
	deps := baseDeps()
	deps.CommitAction = func(ctx context.Context, result actions.Result) error { return nil }
	r := NewRouter(deps)

	body, _ := json.Marshal(actionRequestBody{SourceAccountID: "acct-1"})
	req := httptest.NewRequest(http.MethodPost, "/certificate/cancel", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitAction_TransferRequiresTradingRole(t *testing.T) {
	deps := baseDeps()
	deps.ResolveBundles = func(ctx context.Context, ids []string) ([]certificate.GranularCertificateBundle, error) {
		return []certificate.GranularCertificateBundle{{
			ID: ids[0], AccountID: "acct-1", CertificateBundleStatus: certificate.StatusActive,
			RangeStart: 1, RangeEnd: 10,
		}}, nil
	}
	var committed actions.Result
	deps.CommitAction = func(ctx context.Context, result actions.Result) error { committed = result; return nil }
	r := NewRouter(deps)

	body, _ := json.Marshal(actionRequestBody{
		SourceAccountID: "acct-1", TargetAccountID: "acct-2", BundleIDs: []string{"bundle-1"},
	})
	req := httptest.NewRequest(http.MethodPost, "/certificate/transfer", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, certificate.ActionOutcomeFailed, committed.Action.Outcome)
}

func TestSubmitStorageRecord_RejectsInvertedRange(t *testing.T) {
	deps := baseDeps()
	r := NewRouter(deps)

	body, _ := json.Marshal(storageRecordRequestBody{
		DeviceID:          "device-1",
		FlowStartDatetime: time.Now().UTC(),
		FlowEndDatetime:   time.Now().UTC().Add(-time.Hour),
		FlowEnergy:        10,
	})
	req := httptest.NewRequest(http.MethodPost, "/storage/storage_records", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitStorageRecord_CommitsValidRecord(t *testing.T) {
	deps := baseDeps()
	var submitted storagerecord.StorageRecord
	deps.SubmitStorageRecord = func(ctx context.Context, rec storagerecord.StorageRecord) (storagerecord.StorageRecord, error) {
		rec.ID = "scr-1"
		submitted = rec
		return rec, nil
	}
	r := NewRouter(deps)

	start := time.Now().UTC()
	body, _ := json.Marshal(storageRecordRequestBody{
		DeviceID:          "device-1",
		IsCharging:        true,
		FlowStartDatetime: start,
		FlowEndDatetime:   start.Add(time.Hour),
		FlowEnergy:        10,
	})
	req := httptest.NewRequest(http.MethodPost, "/storage/storage_records", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "device-1", submitted.DeviceID)
}

func TestIssueSDGC_RequiresGCBundleID(t *testing.T) {
	deps := baseDeps()
	deps.AllocateAndCommit = func(ctx context.Context, row storageallocator.Row, p storageallocator.MintParams) (storageallocator.Result, error) {
		return storageallocator.Result{}, nil
	}
	r := NewRouter(deps)

	body, _ := json.Marshal(allocateStorageRecordRequestBody{
		SCRValidatorID: "v1", SDRValidatorID: "v2", SDRProportion: 0.5,
	})
	req := httptest.NewRequest(http.MethodPost, "/storage/issue_sdgcs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth_ReturnsOK(t *testing.T) {
	deps := baseDeps()
	r := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
