package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvRelayURL, EnvDataDir, EnvPassphrase, EnvLogLevel, EnvTimeout, EnvRequireSignatures} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())

	cfg, err := LoadFromPath("")
	require.NoError(t, err)
	assert.Equal(t, Default().RelayURL, cfg.RelayURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.False(t, cfg.RequireSignatures)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "relaylink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relay_url: https://relay.example.org
log_level: debug
timeout: 30s
batch_tolerance: 10m
require_signatures: true
`), 0o600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.org", cfg.RelayURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.BatchTolerance)
	assert.True(t, cfg.RequireSignatures)

	t.Setenv(EnvRelayURL, "http://override:9000")
	t.Setenv(EnvTimeout, "2s")
	t.Setenv(EnvPassphrase, "hunter2")
	t.Setenv(EnvRequireSignatures, "false")
	cfg, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.RelayURL)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, "hunter2", cfg.Passphrase)
	assert.False(t, cfg.RequireSignatures)

	t.Setenv(EnvTimeout, "soon")
	cfg, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadFromDataDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("summary_threshold: 50\n"), 0o600))

	cfg, err := LoadFromPath("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.SummaryThreshold)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("timeout: [nope"), 0o600))
	_, err = LoadFromPath(bad)
	assert.Error(t, err)
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	require.NoError(t, cfg.ConfigureLogging())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.ConfigureLogging())

	cfg.LogLevel = "info"
	cfg.LogFormat = "xml"
	assert.Error(t, cfg.ConfigureLogging())
}
