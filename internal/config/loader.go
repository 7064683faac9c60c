package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"marketplace/pkg/log"
)

// EnvPrefix prefixes every environment override, e.g. MARKET_DATABASE_HOST
const EnvPrefix = "MARKET"

var (
	mu           sync.RWMutex
	globalConfig *Config
	globalViper  *viper.Viper
)

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.node_id", 1)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "marketplace")
	v.SetDefault("database.path", "")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("queue.buffer_size", 1000)
	v.SetDefault("queue.publish_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.filename", "logs/marketplace.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "marketplace")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "marketplace-api")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sample_rate", 0.1)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_ip.rps", 20)
	v.SetDefault("rate_limit.per_ip.burst", 40)
	v.SetDefault("rate_limit.per_ip.ttl", 10*time.Minute)
	v.SetDefault("rate_limit.promo_attempts.limit", 10)
	v.SetDefault("rate_limit.promo_attempts.window", time.Minute)

	v.SetDefault("circuit_break.max_requests", 1)
	v.SetDefault("circuit_break.interval", time.Minute)
	v.SetDefault("circuit_break.timeout", 30*time.Second)
	v.SetDefault("circuit_break.consecutive_failures", 5)

	v.SetDefault("security.jwt.secret", "")
	v.SetDefault("security.jwt.expire", 2*time.Hour)
	v.SetDefault("security.jwt.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("security.jwt.issuer", "marketplace")
	v.SetDefault("security.cors.allow_origins", []string{"*"})
	v.SetDefault("security.cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.cors.allow_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("security.cors.allow_credentials", false)
	v.SetDefault("security.cors.max_age", 12*time.Hour)
	v.SetDefault("security.payment_callback_token", "")

	v.SetDefault("marketplace.points_per_currency_unit", 100)
	v.SetDefault("marketplace.points_earn_rate", 1)
	v.SetDefault("marketplace.tax_rate", 0)
	v.SetDefault("marketplace.violation_threshold", 2)
	v.SetDefault("marketplace.refund_policy", RefundFinancialOnly)
	v.SetDefault("marketplace.status_policy", StatusPermissive)
	v.SetDefault("marketplace.payment_timeout", 30*time.Minute)
	v.SetDefault("marketplace.sweep_interval", time.Minute)
	v.SetDefault("marketplace.sweep_batch_size", 100)
	v.SetDefault("marketplace.report_cache_ttl", 30*time.Second)
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory is applied to the environment first.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath("/etc/marketplace")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Warn("config file not found, using defaults and environment variables")
	} else {
		log.WithField("file", v.ConfigFileUsed()).Info("using config file")

		// config.<env>.yaml next to the base file overrides it
		env := os.Getenv(EnvPrefix + "_ENV")
		if env != "" {
			envPath := filepath.Join(filepath.Dir(v.ConfigFileUsed()), fmt.Sprintf("config.%s.yaml", env))
			if _, err := os.Stat(envPath); err == nil {
				v.SetConfigFile(envPath)
				if err := v.MergeInConfig(); err != nil {
					return nil, fmt.Errorf("failed to merge %s: %w", envPath, err)
				}
				log.WithField("file", envPath).Info("merged environment config")
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	globalConfig = cfg
	globalViper = v
	mu.Unlock()

	return cfg, nil
}

// GetConfig returns the last loaded configuration
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if globalConfig == nil {
		panic("config not loaded, call LoadConfig first")
	}
	return globalConfig
}

// WatchConfig reloads the configuration when the file changes and hands the
// new value to callback. Invalid edits are logged and ignored.
func WatchConfig(callback func(*Config)) {
	mu.RLock()
	v := globalViper
	mu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.WithError(err).Error("failed to unmarshal changed config")
			return
		}
		if err := cfg.Validate(); err != nil {
			log.WithError(err).Error("changed config is invalid, keeping previous")
			return
		}

		mu.Lock()
		globalConfig = cfg
		mu.Unlock()

		log.WithField("file", e.Name).Info("config reloaded")
		if callback != nil {
			callback(cfg)
		}
	})
	v.WatchConfig()
}

// IsProduction returns true if running in production mode
func IsProduction() bool {
	env := os.Getenv(EnvPrefix + "_ENV")
	return env == "prod" || env == "production"
}
