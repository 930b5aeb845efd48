package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Durable  DurableConfig  `mapstructure:"durable"`
	Session  SessionConfig  `mapstructure:"session"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MinConns       int32  `mapstructure:"min_conns"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	IdentityTTL time.Duration `mapstructure:"identity_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Durable backend drivers
const (
	DurableSupabase = "supabase"
	DurableSQLite   = "sqlite"
	DurableNone     = "none"
)

type DurableConfig struct {
	Driver    string         `mapstructure:"driver"`
	Timeout   time.Duration  `mapstructure:"timeout"`
	Workers   int            `mapstructure:"workers"`
	QueueSize int            `mapstructure:"queue_size"`
	Supabase  SupabaseConfig `mapstructure:"supabase"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite"`
}

type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	Table          string `mapstructure:"table"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type IntentRule struct {
	Result   string   `mapstructure:"result"`
	Keywords []string `mapstructure:"keywords"`
}

type SessionConfig struct {
	TTL                    time.Duration `mapstructure:"ttl"`
	RecentLimit            int           `mapstructure:"recent_limit"`
	RecommendedRecentLimit int           `mapstructure:"recommended_recent_limit"`
	SummaryEvery           int           `mapstructure:"summary_every"`
	SummaryWindow          int           `mapstructure:"summary_window"`
	StageWindow            int           `mapstructure:"stage_window"`
	SeedFile               string        `mapstructure:"seed_file"`
	IntentRules            []IntentRule  `mapstructure:"intent_rules"`
	ProductKeywords        []string      `mapstructure:"product_keywords"`
}

type AuthConfig struct {
	QRSecret          string        `mapstructure:"qr_secret"`
	QRTokenTTL        time.Duration `mapstructure:"qr_token_ttl"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level        string        `mapstructure:"level"`
	Format       string        `mapstructure:"format"`
	File         string        `mapstructure:"file"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile reports a missing file as an fs error rather than ConfigFileNotFoundError
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "60s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "omnichannel")
	v.SetDefault("database.database", "omnichannel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.migrations_path", "file://migrations")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.identity_ttl", "0s")

	// Durable session backend
	v.SetDefault("durable.driver", DurableSQLite)
	v.SetDefault("durable.timeout", "5s")
	v.SetDefault("durable.workers", 4)
	v.SetDefault("durable.queue_size", 256)
	v.SetDefault("durable.supabase.table", "sessions")
	v.SetDefault("durable.sqlite.path", "./data/sessions.db")

	// Session
	v.SetDefault("session.ttl", "168h") // 7 days
	v.SetDefault("session.recent_limit", 50)
	v.SetDefault("session.recommended_recent_limit", 10)
	v.SetDefault("session.summary_every", 6)
	v.SetDefault("session.summary_window", 10)
	v.SetDefault("session.stage_window", 3)

	// Auth
	v.SetDefault("auth.qr_token_ttl", "15m")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.min_password_length", 6)

	// Security
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_minute", 120)
	v.SetDefault("security.rate_limit.burst", 20)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age", "168h")
	v.SetDefault("logging.rotation_time", "24h")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")

	// Database
	v.BindEnv("database.host", "POSTGRES_HOST")
	v.BindEnv("database.user", "POSTGRES_USER")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")
	v.BindEnv("database.database", "POSTGRES_DB")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Durable backend
	v.BindEnv("durable.driver", "DURABLE_DRIVER")
	v.BindEnv("durable.supabase.url", "SUPABASE_URL")
	v.BindEnv("durable.supabase.service_role_key", "SUPABASE_SERVICE_ROLE_KEY")
	v.BindEnv("durable.sqlite.path", "SQLITE_PATH")

	// Session
	v.BindEnv("session.seed_file", "CUSTOMERS_CSV")

	// Auth
	v.BindEnv("auth.qr_secret", "QR_TOKEN_SECRET")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.file", "LOG_FILE")
}
