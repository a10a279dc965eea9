// Package config loads service configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"
)

// Config is the full service configuration.
type Config struct {
	// Environment selects logger encoding and dev-only defaults.
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`

	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Identity IdentityConfig `yaml:"identity"`

	// GracefulShutdownTimeout bounds how long in-flight requests may drain.
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

type HTTPConfig struct {
	Addr              string        `env:"HTTP_ADDR" env-default:":5000" yaml:"addr"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s" yaml:"readTimeout"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s" yaml:"readHeaderTimeout"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"30s" yaml:"writeTimeout"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
	// RequestTimeout is applied per request through the context.
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"10s" yaml:"requestTimeout"`
	// MaxBodyBytes rejects larger request bodies with 413.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" env-default:"114688" yaml:"maxBodyBytes"`
	// BaseURL overrides the scheme and host used in response links.
	BaseURL string `env:"HTTP_BASE_URL" yaml:"baseURL"`
	// ListLimit caps list responses; zero disables truncation.
	ListLimit   int    `env:"HTTP_LIST_LIMIT" env-default:"0" yaml:"listLimit"`
	MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
}

type AuthConfig struct {
	// AdminToken is the shared bootstrap token. Empty disables it.
	AdminToken    string        `env:"AUTH_ADMIN_TOKEN" yaml:"adminToken"`
	JWTSigningKey string        `env:"AUTH_JWT_SIGNING_KEY" yaml:"jwtSigningKey"`
	Issuer        string        `env:"AUTH_ISSUER" env-default:"keystone" yaml:"issuer"`
	Audience      string        `env:"AUTH_AUDIENCE" env-default:"keystone" yaml:"audience"`
	TokenTTL      time.Duration `env:"AUTH_TOKEN_TTL" env-default:"1h" yaml:"tokenTTL"`
}

type DatabaseConfig struct {
	// URL is a postgres connection string. Empty selects in-memory stores.
	URL                string        `env:"DATABASE_URL" yaml:"url"`
	MaxOpenConnections int           `env:"DATABASE_MAX_OPEN_CONNECTIONS" env-default:"10" yaml:"maxOpenConnections"`
	MaxIdleConnections int           `env:"DATABASE_MAX_IDLE_CONNECTIONS" env-default:"2" yaml:"maxIdleConnections"`
	ConnMaxLifetime    time.Duration `env:"DATABASE_CONNECTION_MAX_LIFETIME" env-default:"30m" yaml:"connMaxLifetime"`
	ConnMaxIdleTime    time.Duration `env:"DATABASE_CONNECTION_MAX_IDLE_TIME" env-default:"5m" yaml:"connMaxIdleTime"`
	TxTimeout          time.Duration `env:"DATABASE_TX_TIMEOUT" env-default:"5s" yaml:"txTimeout"`
	// BreakerFailures opens the circuit after this many consecutive failures.
	BreakerFailures int           `env:"DATABASE_BREAKER_FAILURES" env-default:"5" yaml:"breakerFailures"`
	BreakerCooldown time.Duration `env:"DATABASE_BREAKER_COOLDOWN" env-default:"5s" yaml:"breakerCooldown"`
}

type RedisConfig struct {
	// URL is a redis:// URL. Empty disables the read cache.
	URL          string        `env:"REDIS_URL" yaml:"url"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"10" yaml:"poolSize"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"2" yaml:"minIdleConns"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"2s" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"1s" yaml:"readTimeout"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" env-default:"1s" yaml:"writeTimeout"`
	CacheTTL     time.Duration `env:"REDIS_CACHE_TTL" env-default:"5m" yaml:"cacheTTL"`
}

type KafkaConfig struct {
	// Brokers is a comma separated seed list. Empty disables publishing.
	Brokers      []string      `env:"KAFKA_BROKERS" env-separator:"," yaml:"brokers"`
	Topic        string        `env:"KAFKA_TOPIC" env-default:"keystone.audit" yaml:"topic"`
	Partitions   int32         `env:"KAFKA_PARTITIONS" env-default:"3" yaml:"partitions"`
	PollInterval time.Duration `env:"KAFKA_OUTBOX_POLL_INTERVAL" env-default:"1s" yaml:"pollInterval"`
	BatchSize    uint          `env:"KAFKA_OUTBOX_BATCH_SIZE" env-default:"100" yaml:"batchSize"`
}

type IdentityConfig struct {
	// DefaultDomainID names the domain that can be neither disabled nor deleted.
	DefaultDomainID string `env:"IDENTITY_DEFAULT_DOMAIN_ID" env-default:"default" yaml:"defaultDomainID"`
	// BootstrapFile is an optional YAML seed applied at startup.
	BootstrapFile string `env:"IDENTITY_BOOTSTRAP_FILE" yaml:"bootstrapFile"`
}

// Load reads configPath when it exists and applies environment overrides.
// An empty or missing path reads the environment only.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
				return nil, fmt.Errorf("could not read config: %w", err)
			}
			return &cfg, cfg.Validate()
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not stat config: %w", err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("could not read config from env: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	if c.Environment == ProductionEnvironment && c.Auth.JWTSigningKey == "" && c.Auth.AdminToken == "" {
		return errors.New("production requires auth.jwtSigningKey or auth.adminToken")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.maxBodyBytes must be positive")
	}
	if c.HTTP.ListLimit < 0 {
		return errors.New("http.listLimit must not be negative")
	}
	if c.Identity.DefaultDomainID == "" {
		return errors.New("identity.defaultDomainID is required")
	}
	return nil
}

// Usage returns the environment variable help text.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}
