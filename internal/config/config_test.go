package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "JWT_SECRET", "SERVER_SECRET", "PORT", "LOG_FORMAT",
		"REDIS_URL", "GIT_SYNC_ENABLED", "GIT_SYNC_INTERVAL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadRequiresMandatoryVars(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("JWT_SECRET", "secret")
	os.Setenv("SERVER_SECRET", "another-secret")
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, 300*time.Second, cfg.GitSyncInterval)
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("JWT_SECRET", "secret")
	os.Setenv("SERVER_SECRET", "another-secret")
	os.Setenv("LOG_FORMAT", "xml")
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestEnvPrefix(t *testing.T) {
	os.Setenv("REFMD_FOO", "bar")
	defer os.Unsetenv("REFMD_FOO")

	e := NewEnv("refmd")
	require.Equal(t, "bar", e.GetString("FOO", "default"))
	require.Equal(t, "default", e.GetString("MISSING", "default"))
}
