package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1.1, cfg.Registry.CapacityMargin)
	assert.Equal(t, 2, cfg.Registry.CertificateExpiryYears)
	assert.Equal(t, time.Hour, cfg.Registry.Granularity())
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CAPACITY_MARGIN", "1.25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1.25, cfg.Registry.CapacityMargin)
}

func TestLoad_MissingConfigFileIsNotFatal(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/nonexistent/path/config.yaml")
	_, err := os.Stat("/nonexistent/path/config.yaml")
	require.Error(t, err)

	_, loadErr := Load()
	require.NoError(t, loadErr)
}
