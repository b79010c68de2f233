package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	decimal "github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ncecere/seat_billing/internal/billing"
)

// Config captures the runtime configuration for the billing service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RateLimitConfig bounds how often one admin token may query billing data.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type AdminConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	AdminRole      string        `mapstructure:"admin_role"`
}

type BillingConfig struct {
	Currency       string        `mapstructure:"currency"`
	Timezone       string        `mapstructure:"timezone"`
	ProrationBasis string        `mapstructure:"proration_basis"`
	ReportCacheTTL time.Duration `mapstructure:"report_cache_ttl"`
	Tiers          []TierConfig  `mapstructure:"tiers"`
}

// TierConfig is one row of the pricing table. MaxUsers 0 marks the top tier.
type TierConfig struct {
	Range        string  `mapstructure:"range"`
	MinUsers     int     `mapstructure:"min_users"`
	MaxUsers     int     `mapstructure:"max_users"`
	PricePerUser float64 `mapstructure:"price_per_user"`
}

type ArchiveConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Storage string             `mapstructure:"storage"`
	S3      ArchiveS3Config    `mapstructure:"s3"`
	Local   ArchiveLocalConfig `mapstructure:"local"`
}

type ArchiveS3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type ArchiveLocalConfig struct {
	Directory string `mapstructure:"directory"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	cfg, err := read(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOffline reads configuration for tools that need no database or redis.
// Only the billing section is validated.
func LoadOffline(opts Options) (*Config, error) {
	cfg, err := read(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("BILLING_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("billing")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{"database.url", "redis.url", "admin.jwt_secret", "archive.s3.bucket"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate ensures required values are set and normalizes optional ones.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.URL == "" {
		missing = append(missing, "BILLING_DATABASE_URL")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "BILLING_REDIS_URL")
	}
	if c.Admin.JWTSecret == "" {
		missing = append(missing, "BILLING_ADMIN_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Database.RunMigrations && c.Database.MigrationsDir == "" {
		return fmt.Errorf("database.migrations_dir must be provided when run_migrations is true")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.RateLimits.RequestsPerMinute < 0 || c.RateLimits.ParallelRequests < 0 {
		return fmt.Errorf("rate_limits values must be >= 0")
	}
	if c.Admin.AccessTokenTTL <= 0 {
		return fmt.Errorf("admin.access_token_ttl must be > 0")
	}
	if strings.TrimSpace(c.Admin.AdminRole) == "" {
		c.Admin.AdminRole = "admin"
	}

	if err := c.Billing.validate(); err != nil {
		return err
	}
	return c.Archive.validate()
}

func (b *BillingConfig) validate() error {
	tz := strings.TrimSpace(b.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid billing.timezone: %w", err)
	}
	b.Timezone = tz

	basis, err := billing.ParseProrationBasis(b.ProrationBasis)
	if err != nil {
		return fmt.Errorf("billing.proration_basis: %w", err)
	}
	b.ProrationBasis = string(basis)

	if b.ReportCacheTTL < 0 {
		return fmt.Errorf("billing.report_cache_ttl must be >= 0")
	}
	if strings.TrimSpace(b.Currency) == "" {
		b.Currency = "PLN"
	}
	if _, err := b.PricingTiers(); err != nil {
		return fmt.Errorf("billing.tiers: %w", err)
	}
	return nil
}

// PricingTiers converts the configured table, falling back to the reference
// table when none is configured.
func (b BillingConfig) PricingTiers() (billing.Tiers, error) {
	if len(b.Tiers) == 0 {
		return billing.DefaultTiers(), nil
	}
	tiers := make(billing.Tiers, 0, len(b.Tiers))
	for _, entry := range b.Tiers {
		tiers = append(tiers, billing.PricingTier{
			Range:        strings.TrimSpace(entry.Range),
			MinUsers:     entry.MinUsers,
			MaxUsers:     entry.MaxUsers,
			PricePerUser: decimal.NewFromFloat(entry.PricePerUser),
		})
	}
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	return tiers, nil
}

// Location loads the billing timezone.
func (b BillingConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(b.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

func (a *ArchiveConfig) validate() error {
	storage := strings.ToLower(strings.TrimSpace(a.Storage))
	if storage == "" {
		storage = "local"
	}
	switch storage {
	case "local":
		if strings.TrimSpace(a.Local.Directory) == "" {
			a.Local.Directory = "./data/reports"
		}
	case "s3":
		if a.Enabled && strings.TrimSpace(a.S3.Bucket) == "" {
			return fmt.Errorf("archive.s3.bucket must be provided for s3 storage")
		}
	default:
		return fmt.Errorf("archive.storage must be local or s3")
	}
	a.Storage = storage
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	out.Database.URL = redact(out.Database.URL)
	out.Redis.URL = redact(out.Redis.URL)
	out.Admin.JWTSecret = redact(out.Admin.JWTSecret)
	return out
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "****"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("rate_limits.requests_per_minute", 60)
	v.SetDefault("rate_limits.parallel_requests", 5)

	v.SetDefault("admin.issuer", "seat-billing")
	v.SetDefault("admin.access_token_ttl", "15m")
	v.SetDefault("admin.admin_role", "admin")

	v.SetDefault("billing.currency", "PLN")
	v.SetDefault("billing.timezone", "UTC")
	v.SetDefault("billing.proration_basis", string(billing.BasisExact))
	v.SetDefault("billing.report_cache_ttl", "30s")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.storage", "local")
	v.SetDefault("archive.local.directory", "./data/reports")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.migrations_dir", "./migrations")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return durationFromNumber(int64(v))
		case int64:
			return durationFromNumber(v)
		case uint64:
			return durationFromNumber(int64(v))
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("cannot decode %v into time.Duration", v)
			}
			return durationFromNumber(int64(v))
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}

// durationFromNumber accepts bare numbers only for zero; any other value
// needs a unit such as "30s".
func durationFromNumber(n int64) (time.Duration, error) {
	if n != 0 {
		return 0, fmt.Errorf("duration %d needs a unit, e.g. \"%ds\"", n, n)
	}
	return 0, nil
}
