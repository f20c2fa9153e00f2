package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key LoadFile reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "APP_ENV", "LOG_LEVEL", "CONTRIB_TEST_MODE",
		"UPSTREAM_OWNER", "UPSTREAM_REPO", "UPSTREAM_DEFAULT_BRANCH",
		"GITHUB_API_URL", "GITHUB_TIMEOUT", "GITHUB_USER_AGENT", "GITHUB_RPS", "GITHUB_BURST",
		"SIM_DELAY_MIN", "SIM_DELAY_MAX", "SIM_PHASE_PAUSE",
		"DATASET_SOURCE", "DATASET_DIR", "DATASET_S3_ENDPOINT", "DATASET_S3_REGION",
		"DATASET_S3_ACCESS_KEY", "DATASET_S3_SECRET_KEY", "DATASET_S3_BUCKET", "DATASET_S3_PREFIX",
		"DATASET_S3_USE_SSL", "MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD", "DATABASE_URL",
		"SEARCH_CACHE_SIZE", "SEARCH_EXCLUDE_IDS", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFile_LocalDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.True(t, cfg.IsLocal())
	assert.True(t, cfg.TestMode)
	assert.Equal(t, SourceFile, cfg.Dataset.Source)
	assert.Equal(t, "contactdir", cfg.Upstream.Owner)
	assert.Equal(t, []string{"twitter"}, cfg.Search.ExcludeIDs)
}

func TestLoadFile_ProductionDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.False(t, cfg.TestMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8*time.Second, cfg.GitHub.Timeout)
	assert.True(t, cfg.Dataset.S3.UseSSL)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("CONTRIB_TEST_MODE", "true")
	t.Setenv("UPSTREAM_OWNER", "acme")
	t.Setenv("GITHUB_TIMEOUT", "3s")
	t.Setenv("GITHUB_RPS", "2.5")
	t.Setenv("GITHUB_BURST", "4")
	t.Setenv("SIM_DELAY_MIN", "0s")
	t.Setenv("SIM_DELAY_MAX", "0s")
	t.Setenv("SEARCH_EXCLUDE_IDS", "twitter, legacy ,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, "acme", cfg.Upstream.Owner)
	assert.Equal(t, 3*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, 2.5, cfg.GitHub.RequestsPerSecond)
	assert.Equal(t, 4, cfg.GitHub.Burst)
	assert.Equal(t, time.Duration(0), cfg.Sim.MaxDelay)
	assert.Equal(t, []string{"twitter", "legacy"}, cfg.Search.ExcludeIDs)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("UPSTREAM_REPO", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
upstream:
  owner: yaml-owner
  repo: yaml-repo
github:
  timeout: 5s
search:
  cacheSize: 64
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, "yaml-owner", cfg.Upstream.Owner)
	assert.Equal(t, "from-env", cfg.Upstream.Repo)
	assert.Equal(t, "main", cfg.Upstream.DefaultBranch)
	assert.Equal(t, 5*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, 64, cfg.Search.CacheSize)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad bool", map[string]string{"CONTRIB_TEST_MODE": "maybe"}, "CONTRIB_TEST_MODE"},
		{"bad duration", map[string]string{"GITHUB_TIMEOUT": "soon"}, "GITHUB_TIMEOUT"},
		{"bad int", map[string]string{"SEARCH_CACHE_SIZE": "many"}, "SEARCH_CACHE_SIZE"},
		{"unknown source", map[string]string{"DATASET_SOURCE": "ftp"}, "unknown dataset source"},
		{"postgres without url", map[string]string{"APP_ENV": "production", "DATASET_SOURCE": "postgres"}, "DATABASE_URL"},
		{"s3 without bucket", map[string]string{"APP_ENV": "production", "DATASET_SOURCE": "s3", "DATASET_S3_ENDPOINT": "s3.example"}, "dataset s3 source"},
		{"inverted delays", map[string]string{"SIM_DELAY_MIN": "2s", "SIM_DELAY_MAX": "1s"}, "sim max delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config file")
}

func TestNormalizePort(t *testing.T) {
	assert.Equal(t, ":8081", normalizePort("8081"))
	assert.Equal(t, ":8081", normalizePort(":8081"))
	assert.Equal(t, "127.0.0.1:8081", normalizePort("127.0.0.1:8081"))
}
