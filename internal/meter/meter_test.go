package meter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_FetchReading_ReturnsFoundReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(readingEnvelope{Found: true, MeteredQuantity: 4200})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, RateLimitPerSecond: 1000})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := c.FetchReading(context.Background(), "device-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, int64(4200), r.MeteredQuantity)
}

func TestHTTPClient_FetchReading_NotFoundReturnsNilReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, RateLimitPerSecond: 1000})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := c.FetchReading(context.Background(), "device-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestHTTPClient_FetchReading_UpstreamErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, RateLimitPerSecond: 1000})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.FetchReading(context.Background(), "device-1", start, start.Add(time.Hour))
	require.Error(t, err)
}

func TestFake_ReturnsConfiguredReadingOnly(t *testing.T) {
	f := NewFake()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.Set("device-1", start, 1000)

	r, err := f.FetchReading(context.Background(), "device-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1000), r.MeteredQuantity)

	r2, err := f.FetchReading(context.Background(), "device-2", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, r2)
}
