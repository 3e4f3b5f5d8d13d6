package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Ensure no env vars interfere
	os.Unsetenv("SYNTRIX_TRANSPORT")
	os.Unsetenv("SYNTRIX_URL")
	os.Unsetenv("SYNTRIX_STAGING_PATH")
	os.Unsetenv("SYNTRIX_CACHE_GC")

	cfg := LoadConfig()

	assert.Equal(t, "ws", cfg.Transport.Provider)
	assert.Equal(t, "ws://localhost:8080/v1/realtime", cfg.Transport.URL)
	assert.Equal(t, "nats://localhost:4222", cfg.Transport.NatsURL)
	assert.False(t, cfg.Staging.Enabled)
	assert.False(t, cfg.Cache.GCEnabled)
}

func TestLoadConfig_EnvVars(t *testing.T) {
	os.Setenv("SYNTRIX_URL", "ws://test:9090/v1/realtime")
	os.Setenv("SYNTRIX_STAGING_PATH", "/tmp/staging.db")
	os.Setenv("SYNTRIX_CACHE_GC", "true")
	defer func() {
		os.Unsetenv("SYNTRIX_URL")
		os.Unsetenv("SYNTRIX_STAGING_PATH")
		os.Unsetenv("SYNTRIX_CACHE_GC")
	}()

	cfg := LoadConfig()

	assert.Equal(t, "ws://test:9090/v1/realtime", cfg.Transport.URL)
	assert.True(t, cfg.Staging.Enabled)
	assert.Equal(t, "/tmp/staging.db", cfg.Staging.Path)
	assert.True(t, cfg.Cache.GCEnabled)
}

func TestLoadConfig_FileOverride(t *testing.T) {
	// Create config directory
	err := os.Mkdir("config", 0755)
	require.NoError(t, err)
	defer os.RemoveAll("config")

	// Create a temporary config.yml in the config directory
	configContent := []byte(`
transport:
  provider: "nats"
  nats_url: "nats://file:4222"
cache:
  gc_enabled: true
`)
	err = os.WriteFile("config/config.yml", configContent, 0644)
	require.NoError(t, err)

	cfg := LoadConfig()

	assert.Equal(t, "nats", cfg.Transport.Provider)
	assert.Equal(t, "nats://file:4222", cfg.Transport.NatsURL)
	assert.True(t, cfg.Cache.GCEnabled)
	// untouched keys keep their defaults
	assert.Equal(t, "ws://localhost:8080/v1/realtime", cfg.Transport.URL)
}
