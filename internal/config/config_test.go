package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "env: production\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6320, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Contains(t, cfg.DSN, "tcp(127.0.0.1:3306)/orbitreach")
	assert.Contains(t, cfg.DSN, "parseTime=true")
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadNestedDatabaseAndRedis(t *testing.T) {
	path := writeConfigFile(t, `
port: 9000
database:
  host: db.internal
  port: 3307
  username: orbit
  password: s3cret
  name: campaigns
redis:
  host: cache.internal
  port: 6380
  db: 2
  tls: true
jwt_secret: super-secret
allowed_origins:
  - https://app.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Contains(t, cfg.DSN, "orbit:s3cret@tcp(db.internal:3307)/campaigns")
	assert.Equal(t, "rediss://cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, "super-secret", cfg.JWTSecret)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoadExplicitDSNWins(t *testing.T) {
	path := writeConfigFile(t, `
dsn: user:pass@tcp(10.0.0.5:3306)/other?parseTime=True
database:
  host: ignored
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "user:pass@tcp(10.0.0.5:3306)/other?parseTime=True", cfg.DSN)
}

func TestLoadAIProviders(t *testing.T) {
	path := writeConfigFile(t, `
ai:
  providers:
    - id: main
      type: anthropic
      api_key: sk-test
      default_model: claude-haiku-4-5-20251001
      enabled: true
    - id: alt
      type: openai
      api_key: sk-alt
      enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.AI.Providers, 2)

	first := cfg.FirstEnabledProvider()
	require.NotNil(t, first)
	assert.Equal(t, "main", first.ID)

	assert.Nil(t, cfg.ProviderByID("alt"), "disabled providers are not selectable")
	assert.Nil(t, cfg.ProviderByID("missing"))
	require.NotNil(t, cfg.ProviderByID("main"))
}

func TestLoadBlobstore(t *testing.T) {
	path := writeConfigFile(t, `
blobstore:
  enable: true
  endpoint: https://minio.internal:9000
  access_key_id: ak
  secret_access_key: sk
  bucket: orbit-assets
  region: us-east-1
  path_style_access: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Blobstore.Enable)
	assert.Equal(t, "orbit-assets", cfg.Blobstore.Bucket)
	assert.True(t, cfg.Blobstore.PathStyleAccess)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, "nonsense_key: 1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := writeConfigFile(t, "port: 99999\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}
