// Package config loads server configuration from defaults, an optional
// TOML or YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPermit2Address is the canonical Permit2 deployment.
const DefaultPermit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Security  SecurityConfig  `toml:"security" yaml:"security"`
	Proxy     ProxyConfig     `toml:"proxy" yaml:"proxy"`
	Chain     ChainConfig     `toml:"chain" yaml:"chain"`
	Wallet    WalletConfig    `toml:"wallet" yaml:"wallet"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Sentry    SentryConfig    `toml:"sentry" yaml:"sentry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int    `toml:"port" yaml:"port"`
	Host           string `toml:"host" yaml:"host"`
	PublicURL      string `toml:"public_url" yaml:"public_url"` // base of generated claim links
	ReadTimeout    int    `toml:"read_timeout" yaml:"read_timeout"`       // seconds
	WriteTimeout   int    `toml:"write_timeout" yaml:"write_timeout"`     // seconds
	IdleTimeout    int    `toml:"idle_timeout" yaml:"idle_timeout"`       // seconds
	RequestTimeout int    `toml:"request_timeout" yaml:"request_timeout"` // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string         `toml:"type" yaml:"type"` // "sqlite" or "postgres"
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite" yaml:"sqlite"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string `toml:"url" yaml:"url"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string `toml:"type" yaml:"type"` // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json", "text" or "pretty"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `toml:"enabled" yaml:"enabled"`
	RequestsPerMin int  `toml:"requests_per_min" yaml:"requests_per_min"`
	BurstSize      int  `toml:"burst_size" yaml:"burst_size"`
	CleanupMinutes int  `toml:"cleanup_minutes" yaml:"cleanup_minutes"`
}

// SecurityConfig holds request filter settings
type SecurityConfig struct {
	FilterEnabled bool `toml:"filter_enabled" yaml:"filter_enabled"`
	MaxBodySizeMB int  `toml:"max_body_size_mb" yaml:"max_body_size_mb"`
	MaxQueryKB    int  `toml:"max_query_kb" yaml:"max_query_kb"`
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool     `toml:"trust_proxy" yaml:"trust_proxy"`
	TrustedProxies []string `toml:"trusted_proxies" yaml:"trusted_proxies"` // CIDR notation
}

// ChainConfig holds the JSON-RPC endpoint and contract settings
type ChainConfig struct {
	RPCURL         string            `toml:"rpc_url" yaml:"rpc_url"`
	ChainID        int64             `toml:"chain_id" yaml:"chain_id"` // 0 asks the node
	Permit2Address string            `toml:"permit2_address" yaml:"permit2_address"`
	Explorers      map[string]string `toml:"explorers" yaml:"explorers"` // chain id -> explorer url
	ReceiptTimeout int               `toml:"receipt_timeout" yaml:"receipt_timeout"` // seconds, 0 waits indefinitely
}

// WalletConfig selects the transaction signer. At most one source may be set.
type WalletConfig struct {
	PrivateKey string `toml:"private_key" yaml:"private_key"`
	ClefURL    string `toml:"clef_url" yaml:"clef_url"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Port        int    `toml:"port" yaml:"port"` // 0 serves /metrics on the main listener
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

// SentryConfig holds error tracking settings
type SentryConfig struct {
	DSN         string  `toml:"dsn" yaml:"dsn"`
	Environment string  `toml:"environment" yaml:"environment"`
	SampleRate  float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// Load loads configuration. A .env file (ENV_FILE, default ".env") is read
// first without overriding the environment; CONFIG_FILE names an optional
// .toml or .yaml file whose values environment variables override.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" && os.Getenv("STORAGE_TYPE") == "" {
		cfg.Storage.Type = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML or YAML file over cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	return nil
}

// Validate checks for settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	switch c.Auth.Type {
	case "none", "api-key":
	default:
		return fmt.Errorf("unknown auth type: %s", c.Auth.Type)
	}
	switch c.Logging.Format {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}
	if !common.IsHexAddress(c.Chain.Permit2Address) {
		return fmt.Errorf("invalid permit2 address: %q", c.Chain.Permit2Address)
	}
	if c.Wallet.PrivateKey != "" && c.Wallet.ClefURL != "" {
		return errors.New("wallet: set either a private key or a clef url, not both")
	}
	return nil
}

// ExplorerOverrides returns the configured explorer URLs keyed by chain id.
// Keys that are not integers are ignored.
func (c ChainConfig) ExplorerOverrides() map[int64]string {
	out := make(map[int64]string, len(c.Explorers))
	for id, url := range c.Explorers {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			continue
		}
		out[n] = url
	}
	return out
}

// HasWallet reports whether a transaction signer is configured.
func (c *Config) HasWallet() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.ClefURL != ""
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			ReadTimeout:    30,
			WriteTimeout:   60,
			IdleTimeout:    120,
			RequestTimeout: 30,
		},
		Storage: StorageConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "./data/permitclaim.db"},
		},
		Auth:    AuthConfig{Type: "none"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 300,
			BurstSize:      50,
			CleanupMinutes: 10,
		},
		Security: SecurityConfig{
			FilterEnabled: true,
			MaxBodySizeMB: 1,
			MaxQueryKB:    64,
		},
		Proxy: ProxyConfig{
			TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		},
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			Permit2Address: DefaultPermit2Address,
		},
		Metrics: MetricsConfig{Enabled: true, ServiceName: "permitclaim"},
		Sentry:  SentryConfig{Environment: "development", SampleRate: 1.0},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.PublicURL = getEnv("PUBLIC_URL", cfg.Server.PublicURL)
	cfg.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.RequestTimeout = getEnvInt("SERVER_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)

	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Postgres.URL = getEnv("DATABASE_URL", cfg.Storage.Postgres.URL)
	cfg.Storage.SQLite.Path = getEnv("SQLITE_PATH", cfg.Storage.SQLite.Path)

	cfg.Auth.Type = getEnv("AUTH_TYPE", cfg.Auth.Type)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMin = getEnvInt("RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMin)
	cfg.RateLimit.BurstSize = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimit.BurstSize)
	cfg.RateLimit.CleanupMinutes = getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", cfg.RateLimit.CleanupMinutes)

	cfg.Security.FilterEnabled = getEnvBool("SECURITY_FILTER_ENABLED", cfg.Security.FilterEnabled)
	cfg.Security.MaxBodySizeMB = getEnvInt("SECURITY_MAX_BODY_SIZE_MB", cfg.Security.MaxBodySizeMB)
	cfg.Security.MaxQueryKB = getEnvInt("SECURITY_MAX_QUERY_KB", cfg.Security.MaxQueryKB)

	cfg.Proxy.TrustProxy = getEnvBool("TRUST_PROXY", cfg.Proxy.TrustProxy)
	cfg.Proxy.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", cfg.Proxy.TrustedProxies)

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.ChainID = int64(getEnvInt("CHAIN_ID", int(cfg.Chain.ChainID)))
	cfg.Chain.Permit2Address = getEnv("PERMIT2_ADDRESS", cfg.Chain.Permit2Address)
	cfg.Chain.Explorers = getEnvExplorers("EXPLORER_URLS", cfg.Chain.Explorers)
	cfg.Chain.ReceiptTimeout = getEnvInt("RECEIPT_TIMEOUT", cfg.Chain.ReceiptTimeout)

	cfg.Wallet.PrivateKey = getEnv("WALLET_PRIVATE_KEY", cfg.Wallet.PrivateKey)
	cfg.Wallet.ClefURL = getEnv("CLEF_URL", cfg.Wallet.ClefURL)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Port = getEnvInt("METRICS_PORT", cfg.Metrics.Port)
	cfg.Metrics.ServiceName = getEnv("METRICS_SERVICE_NAME", cfg.Metrics.ServiceName)

	cfg.Sentry.DSN = getEnv("SENTRY_DSN", cfg.Sentry.DSN)
	cfg.Sentry.Environment = getEnv("SENTRY_ENVIRONMENT", cfg.Sentry.Environment)
	cfg.Sentry.SampleRate = getEnvFloat("SENTRY_SAMPLE_RATE", cfg.Sentry.SampleRate)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// getEnvExplorers parses "1=https://etherscan.io,100=https://gnosisscan.io",
// merging the entries over defaultValue.
func getEnvExplorers(key string, defaultValue map[string]string) map[string]string {
	entries := getEnvStringSlice(key, nil)
	if len(entries) == 0 {
		return defaultValue
	}
	result := make(map[string]string, len(defaultValue)+len(entries))
	for id, url := range defaultValue {
		result[id] = url
	}
	for _, e := range entries {
		if id, url, ok := strings.Cut(e, "="); ok {
			result[strings.TrimSpace(id)] = strings.TrimSpace(url)
		}
	}
	return result
}
