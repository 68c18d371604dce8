package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailmirror/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, "./data/mailmirror.sqlite", cfg.DBPath)
	assert.Equal(t, 20*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 25, cfg.Sync.MaxResults)
	assert.Equal(t, 50, cfg.Sync.DraftMaxResults)
	assert.Zero(t, cfg.Sync.PollEvery)
	assert.Equal(t, 30*time.Second, cfg.Provider.RequestTimeout)
	assert.InDelta(t, 5.0, cfg.Provider.RequestsPerSecond, 0.001)
	assert.Equal(t, 10, cfg.Provider.Burst)
	assert.Equal(t, 25*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/mirror.db
local_user_email: me@corp.com
sync:
  interval: 45s
  max_results: 40
  poll_every: 5m
classifier:
  model: tiny
log:
  level: debug
  format: json
`), 0o600))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OAUTH_GOOGLE_CLIENT_ID=from-dotenv\n"), 0o600))
	t.Setenv("OAUTH_GOOGLE_CLIENT_ID", "")
	require.NoError(t, os.Unsetenv("OAUTH_GOOGLE_CLIENT_ID"))

	t.Setenv("MAILMIRROR_SYNC_MAX_RESULTS", "60")
	t.Setenv("OAUTH_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("QWEN_API_KEY", "qwen")

	cfg, err := config.Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mirror.db", cfg.DBPath)
	assert.Equal(t, "me@corp.com", cfg.LocalUserEmail)
	assert.Equal(t, 45*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 60, cfg.Sync.MaxResults)
	assert.Equal(t, 5*time.Minute, cfg.Sync.PollEvery)
	assert.Equal(t, "tiny", cfg.Classifier.Model)
	assert.Equal(t, "qwen", cfg.Classifier.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "from-dotenv", cfg.OAuth.ClientID)
	assert.Equal(t, "secret", cfg.OAuth.ClientSecret)
	assert.True(t, cfg.OAuthConfigured())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.Load("", filepath.Join(dir, "missing.env"))
	require.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("sync: [\n"), 0o600))
	_, err = config.Load(broken, "")
	require.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("sync:\n  max_results: 0\n"), 0o600))
	_, err = config.Load(invalid, "")
	require.ErrorContains(t, err, "sync.max_results")
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "mirror.db")
	require.NoError(t, config.EnsureDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
