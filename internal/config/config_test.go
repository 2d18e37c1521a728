package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/pkg/constants"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		constants.EnvPort, constants.EnvDBHost, constants.EnvDBPort, constants.EnvDBUser,
		constants.EnvDBPassword, constants.EnvDBName, constants.EnvDebug, constants.EnvLogLevel,
		constants.EnvPeriodicSchedule, constants.EnvEvalCacheSize,
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultPort, cfg.Port)
	assert.Equal(t, constants.DefaultDBPort, cfg.DB.Port)
	assert.Equal(t, constants.DefaultDBName, cfg.DB.Name)
	assert.Equal(t, constants.DefaultPeriodicSchedule, cfg.PeriodicSchedule)
	assert.Equal(t, constants.DefaultEvalCacheSize, cfg.EvalCacheSize)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.DB.IsLocal())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(constants.EnvDBHost, "gateway.tidbcloud.com")
	t.Setenv(constants.EnvDebug, "true")
	t.Setenv(constants.EnvEvalCacheSize, "64")
	t.Setenv(constants.EnvLogLevel, "DEBUG")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 64, cfg.EvalCacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.DB.IsLocal())
	assert.Contains(t, cfg.DB.DSN("tidb"), "@tcp(gateway.tidbcloud.com:4000)/gridbase?")
	assert.Contains(t, cfg.DB.DSN("tidb"), "&tls=tidb")
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(constants.EnvEvalCacheSize, "zero")
	_, err := FromEnv()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv(constants.EnvDebug, "maybe")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestLoadReadsEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(constants.EnvPort)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=8088\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(constants.EnvPort) })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8088", cfg.Port)
}
