package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CANVASVAULT_CONFIG", "")
	t.Setenv("CANVASVAULT_DATA_DIR", "/tmp/cv")
	t.Setenv("CANVASVAULT_APP_CONFIG_DIR", "")
	t.Setenv("CANVASVAULT_DB_PATH", "")
	t.Setenv("CANVASVAULT_SETTINGS_PATH", "")
	t.Setenv("REMOTE_DATABASE_URL", "")
	t.Setenv("CANVASVAULT_SEARCH_REINDEX_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/cv", "canvasvault.sqlite3"), cfg.DBPath)
	assert.Equal(t, filepath.Join("/tmp/cv", "settings.json"), cfg.SettingsPath)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.True(t, cfg.LogRedact)
	assert.False(t, cfg.RemoteConfigured())
	assert.Equal(t, 15*time.Minute, cfg.SearchReindexInterval)
}

func TestLoadYAMLOverlayWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canvasvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
data_dir: /srv/canvas
remote_database_url: postgres://file
access_ttl: 5m
search_reindex_interval: 1h
`), 0o600))

	t.Setenv("CANVASVAULT_CONFIG", path)
	t.Setenv("CANVASVAULT_DATA_DIR", "")
	t.Setenv("CANVASVAULT_APP_CONFIG_DIR", "")
	t.Setenv("CANVASVAULT_DB_PATH", "")
	t.Setenv("CANVASVAULT_SETTINGS_PATH", "")
	t.Setenv("CANVASVAULT_ACCESS_TTL_SECONDS", "")
	t.Setenv("API_ADDR", "")
	t.Setenv("REMOTE_DATABASE_URL", "postgres://env")
	t.Setenv("CANVASVAULT_SEARCH_REINDEX_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/srv/canvas", cfg.DataDir)
	assert.Equal(t, "postgres://env", cfg.RemoteDatabaseURL)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, time.Hour, cfg.SearchReindexInterval)
	assert.True(t, cfg.RemoteConfigured())
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated"), 0o600))
	t.Setenv("CANVASVAULT_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadSearchReindexCanBeDisabled(t *testing.T) {
	t.Setenv("CANVASVAULT_CONFIG", "")
	t.Setenv("CANVASVAULT_SEARCH_REINDEX_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.SearchReindexInterval)
}
