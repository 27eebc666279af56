package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the loader at a missing .env and clears CONFIG_FILE.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CONFIG_FILE", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "none", cfg.Auth.Type)
	assert.Equal(t, DefaultPermit2Address, cfg.Chain.Permit2Address)
	assert.False(t, cfg.HasWallet())
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/permits")
	t.Setenv("EXPLORER_URLS", "100=https://gnosis.blockscout.com, 5=https://goerli.example")
	t.Setenv("WALLET_PRIVATE_KEY", "0xabc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, map[int64]string{100: "https://gnosis.blockscout.com", 5: "https://goerli.example"}, cfg.Chain.ExplorerOverrides())
	assert.True(t, cfg.HasWallet())
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("RATE_LIMIT_RPM=12\n"), 0600))
	t.Setenv("ENV_FILE", envFile)
	t.Cleanup(func() { os.Unsetenv("RATE_LIMIT_RPM") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.RateLimit.RequestsPerMin)
}

func TestLoad_TOMLFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "permitclaim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 7000
public_url = "https://claims.example"

[chain]
rpc_url = "https://rpc.gnosischain.com"
chain_id = 100

[chain.explorers]
100 = "https://gnosis.blockscout.com"
`), 0600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "https://claims.example", cfg.Server.PublicURL)
	assert.Equal(t, int64(100), cfg.Chain.ChainID)
	assert.Equal(t, "https://gnosis.blockscout.com", cfg.Chain.ExplorerOverrides()[100])
}

func TestLoad_YAMLFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "permitclaim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  type: api-key
logging:
  format: pretty
sentry:
  dsn: https://public@sentry.example/1
`), 0600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "api-key", cfg.Auth.Type)
	assert.Equal(t, "pretty", cfg.Logging.Format)
	assert.Equal(t, "https://public@sentry.example/1", cfg.Sentry.DSN)
}

func TestLoad_UnsupportedFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "permitclaim.ini")
	require.NoError(t, os.WriteFile(path, []byte("port=1"), 0600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage", func(c *Config) { c.Storage.Type = "mysql" }},
		{"auth", func(c *Config) { c.Auth.Type = "oauth" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"permit2", func(c *Config) { c.Chain.Permit2Address = "0x1234" }},
		{"two wallets", func(c *Config) {
			c.Wallet.PrivateKey = "0xabc"
			c.Wallet.ClefURL = "http://localhost:8550"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
