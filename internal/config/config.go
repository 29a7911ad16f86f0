package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hooplens/courtsource/internal/ratelimit"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Bridge    BridgeConfig    `yaml:"bridge" mapstructure:"bridge"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable cache backend.
type StoreConfig struct {
	// Driver selects the durable tier: file, sqlite or postgres.
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Dir is the partition root for the file driver.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Path is the database file for the sqlite driver.
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures entry lifetimes.
type CacheConfig struct {
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	// CompletedTTLHours applies to seasons already concluded; their data
	// no longer changes, so entries live much longer.
	CompletedTTLHours int `yaml:"completed_ttl_hours" mapstructure:"completed_ttl_hours"`
}

// TTL returns the configured entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// RateLimitConfig configures per-source request budgets.
type RateLimitConfig struct {
	DefaultPerSecond float64                          `yaml:"default_per_second" mapstructure:"default_per_second"`
	DefaultBurst     int                              `yaml:"default_burst" mapstructure:"default_burst"`
	Sources          map[string]ratelimit.SourceLimit `yaml:"sources" mapstructure:"sources"`
}

// RetryConfig configures per-method retry behavior.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialMS      int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffSecs int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// BreakerConfig configures the per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// HTTPConfig configures the plain HTTP fetch clients.
type HTTPConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BrowserConfig configures the headless-render method.
type BrowserConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BridgeConfig configures external statistics-bridge executables, keyed by
// method name.
type BridgeConfig struct {
	Commands map[string]BridgeCommand `yaml:"commands" mapstructure:"commands"`
}

// BridgeCommand is one bridge executable.
type BridgeCommand struct {
	Command     string   `yaml:"command" mapstructure:"command"`
	Args        []string `yaml:"args" mapstructure:"args"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CatalogConfig configures catalog definition loading.
type CatalogConfig struct {
	// DefinitionsPath points to a YAML file whose entries override the
	// built-in catalog. Empty means built-ins only.
	DefinitionsPath  string  `yaml:"definitions_path" mapstructure:"definitions_path"`
	PromoteThreshold float64 `yaml:"promote_threshold" mapstructure:"promote_threshold"`
}

// ServerConfig configures the readiness HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COURTSOURCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "data/cache")
	v.SetDefault("store.path", "data/cache.db")
	v.SetDefault("cache.ttl_hours", 1)
	v.SetDefault("cache.completed_ttl_hours", 720)
	v.SetDefault("ratelimit.default_per_second", 3)
	v.SetDefault("ratelimit.default_burst", 3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_secs", 30)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("http.timeout_secs", 15)
	v.SetDefault("browser.timeout_secs", 15)
	v.SetDefault("catalog.promote_threshold", 0.95)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
