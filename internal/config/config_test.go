package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, int64(10*1024*1024), cfg.Server.MaxUploadBytes)
	assert.True(t, cfg.CORS.Credentials)
	assert.Equal(t, "https://secure.shippingapis.com/ShippingAPI.dll", cfg.USPS.BaseURL)
	assert.Empty(t, cfg.USPS.UserID)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Nominatim.BaseURL)
	assert.InDelta(t, 1.0, cfg.Nominatim.RateRPS, 0.001)
	assert.Equal(t, "https://api.congress.gov/v3", cfg.Congress.BaseURL)
	assert.Equal(t, 250, cfg.Congress.PageLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
server:
  port: 9090
usps:
  user_id: TESTUSER123
cors:
  origins: "https://example.org, https://app.example.org"
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "TESTUSER123", cfg.USPS.UserID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://example.org", "https://app.example.org"}, cfg.CORS.AllowedOrigins())
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CIVICD_CONGRESS_API_KEY", "env-key")
	t.Setenv("CIVICD_USPS_USER_ID", "env-usps")
	t.Setenv("CIVICD_CORS_ORIGINS", "https://app.example.org")
	t.Setenv("CIVICD_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Congress.APIKey)
	assert.Equal(t, "env-usps", cfg.USPS.UserID)
	assert.Equal(t, []string{"https://app.example.org"}, cfg.CORS.AllowedOrigins())
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestCORSDefaultsToLocalhost(t *testing.T) {
	c := CORSConfig{Credentials: true}
	assert.Equal(t, []string{
		"http://localhost:3000", "http://localhost:3002", "http://localhost:3003",
	}, c.AllowedOrigins())
	assert.True(t, c.AllowCredentials())
}

func TestCORSWildcardDisablesCredentials(t *testing.T) {
	c := CORSConfig{Origins: "*", Credentials: true}
	assert.Equal(t, []string{"*"}, c.AllowedOrigins())
	assert.False(t, c.AllowCredentials())
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}
