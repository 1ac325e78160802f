package config

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/simp-lee/mqttbench/internal/logging"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Master   MasterConfig   `koanf:"master"`
	Broker   BrokerConfig   `koanf:"broker"`
}

// ServerConfig holds console HTTP server settings.
type ServerConfig struct {
	Host       string          `koanf:"host"`
	Port       int             `koanf:"port"`
	Mode       string          `koanf:"mode"`
	CSRFSecret string          `koanf:"csrf_secret"`
	Timeout    string          `koanf:"timeout"`
	CORS       CORSConfig      `koanf:"cors"`
	RateLimit  RateLimitConfig `koanf:"rate_limit"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds rate limiting settings for the JSON API.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig = logging.Config

// MasterConfig holds the slave control plane settings.
type MasterConfig struct {
	Host                string `koanf:"host"`
	Port                int    `koanf:"port"`
	StatusCheckInterval string `koanf:"status_check_interval"`
	OfflineAfter        string `koanf:"offline_after"`
	DialTimeout         string `koanf:"dial_timeout"`
	SettleDelay         string `koanf:"settle_delay"`
}

// BrokerConfig holds defaults for the MQTT broker under test.
type BrokerConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	AckTopic       string `koanf:"ack_topic"`
	Username       string `koanf:"username"`
	Password       string `koanf:"password"`
	ConnectTimeout string `koanf:"connect_timeout"`
}

// Durations used when the corresponding setting is empty.
const (
	DefaultStatusCheckInterval = 10 * time.Second
	DefaultOfflineAfter        = 30 * time.Second
	DefaultDialTimeout         = 10 * time.Second
	DefaultSettleDelay         = 500 * time.Millisecond
	DefaultConnectTimeout      = 10 * time.Second
)

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__MASTER__OFFLINE_AFTER=1m overrides master.offline_after.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__MASTER__STATUS_CHECK_INTERVAL -> master.status_check_interval
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	if err := c.validateCSRFSecret(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}

	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	c.Server.CORS.MaxAge = strings.TrimSpace(c.Server.CORS.MaxAge)
	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)

	optional := []struct {
		name  string
		value string
	}{
		{"server.timeout", c.Server.Timeout},
		{"server.cors.max_age", c.Server.CORS.MaxAge},
		{"database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime},
	}
	for _, f := range optional {
		if err := validateDuration(f.name, f.value); err != nil {
			return err
		}
	}

	// When enabled, rps and burst must be positive.
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rps %v: must be positive when rate limiting is enabled", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid server.rate_limit.burst %d: must be positive when rate limiting is enabled", c.Server.RateLimit.Burst)
		}
	}

	if err := c.validateMaster(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

// validateCSRFSecret requires a strong secret in release mode. Other modes
// may leave it empty and get a random secret per process.
func (c *Config) validateCSRFSecret() error {
	secret := strings.TrimSpace(c.Server.CSRFSecret)
	c.Server.CSRFSecret = secret
	if c.Server.Mode != gin.ReleaseMode || secret == "" {
		return nil
	}
	if len(secret) < 32 {
		return fmt.Errorf("invalid server.csrf_secret: must be at least 32 characters in release mode")
	}
	if CountSecretClasses(secret) < 3 {
		return fmt.Errorf("server.csrf_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
		return nil
	}

	pg := &c.Database.Postgres
	host := strings.TrimSpace(pg.Host)
	if host == "" {
		return fmt.Errorf("database.postgres.host is required when driver is postgres")
	}
	if err := validatePort("database.postgres.port", pg.Port); err != nil {
		return err
	}
	user := strings.TrimSpace(pg.User)
	if user == "" {
		return fmt.Errorf("database.postgres.user is required when driver is postgres")
	}
	dbName := strings.TrimSpace(pg.DBName)
	if dbName == "" {
		return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
	}
	sslMode := strings.TrimSpace(pg.SSLMode)
	switch sslMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	}
	if c.Server.Mode == gin.ReleaseMode {
		switch sslMode {
		case "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
		}
	}

	pg.Host = host
	pg.User = user
	pg.DBName = dbName
	pg.SSLMode = sslMode
	return nil
}

func (c *Config) validateMaster() error {
	m := &c.Master
	m.Host = strings.TrimSpace(m.Host)
	if err := validatePort("master.port", m.Port); err != nil {
		return err
	}
	if m.Port == c.Server.Port {
		return fmt.Errorf("master.port %d conflicts with server.port", m.Port)
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"master.status_check_interval", &m.StatusCheckInterval},
		{"master.offline_after", &m.OfflineAfter},
		{"master.dial_timeout", &m.DialTimeout},
		{"master.settle_delay", &m.SettleDelay},
	}
	for _, f := range durations {
		*f.value = strings.TrimSpace(*f.value)
		if err := validateDuration(f.name, *f.value); err != nil {
			return err
		}
	}

	if m.OfflineAfterDuration() <= m.StatusCheckEvery() {
		return fmt.Errorf("master.offline_after %s must be longer than master.status_check_interval %s", m.OfflineAfterDuration(), m.StatusCheckEvery())
	}
	return nil
}

func (c *Config) validateBroker() error {
	b := &c.Broker
	b.Host = strings.TrimSpace(b.Host)
	if b.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if err := validatePort("broker.port", b.Port); err != nil {
		return err
	}
	b.AckTopic = strings.TrimSpace(b.AckTopic)
	if strings.ContainsAny(b.AckTopic, "+#") {
		return fmt.Errorf("invalid broker.ack_topic %q: wildcards are not allowed in a publish topic", b.AckTopic)
	}
	b.ConnectTimeout = strings.TrimSpace(b.ConnectTimeout)
	return validateDuration("broker.connect_timeout", b.ConnectTimeout)
}

// Addr returns the control listener address.
func (m MasterConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// StatusCheckEvery returns the status monitor period.
func (m MasterConfig) StatusCheckEvery() time.Duration {
	return durationOr(m.StatusCheckInterval, DefaultStatusCheckInterval)
}

// OfflineAfterDuration returns how long a silent slave stays online.
func (m MasterConfig) OfflineAfterDuration() time.Duration {
	return durationOr(m.OfflineAfter, DefaultOfflineAfter)
}

// DialTimeoutDuration returns the timeout for connecting to a slave.
func (m MasterConfig) DialTimeoutDuration() time.Duration {
	return durationOr(m.DialTimeout, DefaultDialTimeout)
}

// SettleDelayDuration returns the pause between half-closing a slave
// connection and closing it.
func (m MasterConfig) SettleDelayDuration() time.Duration {
	return durationOr(m.SettleDelay, DefaultSettleDelay)
}

// ConnectTimeoutDuration returns the MQTT connect timeout.
func (b BrokerConfig) ConnectTimeoutDuration() time.Duration {
	return durationOr(b.ConnectTimeout, DefaultConnectTimeout)
}

// TimeoutDuration returns the request timeout, or 0 when unset.
func (s ServerConfig) TimeoutDuration() time.Duration {
	return durationOr(s.Timeout, 0)
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s %d: must be between 1 and 65535", name, port)
	}
	return nil
}

// validateDuration accepts an empty value (unset) or a positive Go duration.
func validateDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: must be a valid duration (e.g. \"10s\", \"500ms\"): %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	return nil
}

func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	var hasLower, hasUpper, hasDigit, hasSymbol bool

	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, has := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if has {
			classes++
		}
	}
	return classes
}
