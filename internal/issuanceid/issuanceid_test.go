package issuanceid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/apperrors"
)

func TestEncode_Format(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	got := Encode("device1", ts)
	assert.Equal(t, "device1-2024-03-04T05:06:07Z", got)
}

func TestRoundTrip_Identity(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	id := Encode("device1", ts)
	device, decoded, err := Decode(id)
	require.NoError(t, err)
	assert.Equal(t, "device1", device)
	assert.True(t, ts.Equal(decoded))
}

func TestRoundTrip_DeviceIDContainsHyphens(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	id := Encode("meter-device-7", ts)
	device, decoded, err := Decode(id)
	require.NoError(t, err)
	assert.Equal(t, "meter-device-7", device)
	assert.True(t, ts.Equal(decoded))
}

func TestDecode_MalformedFailsWithInvalidIssuanceID(t *testing.T) {
	_, _, err := Decode("not-a-valid-id")
	require.Error(t, err)
	re, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_ISSUANCE_ID", re.Code)
}

func TestDecode_EmptyString(t *testing.T) {
	_, _, err := Decode("")
	require.Error(t, err)
}
