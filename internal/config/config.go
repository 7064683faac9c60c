package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the global configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CircuitBreak CircuitBreakConfig `mapstructure:"circuit_break"`
	Security     SecurityConfig     `mapstructure:"security"`
	Marketplace  MarketplaceConfig  `mapstructure:"marketplace"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	NodeID       int64         `mapstructure:"node_id"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql, sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Path            string        `mapstructure:"path"` // sqlite file
	Charset         string        `mapstructure:"charset"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueueConfig in-process payment event queue
type QueueConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	PerIP   struct {
		RPS   float64       `mapstructure:"rps"`
		Burst int           `mapstructure:"burst"`
		TTL   time.Duration `mapstructure:"ttl"`
	} `mapstructure:"per_ip"`
	// PromoAttempts caps promo validations per user to slow down code guessing
	PromoAttempts struct {
		Limit  int           `mapstructure:"limit"`
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"promo_attempts"`
}

// CircuitBreakConfig guards payment gateway calls
type CircuitBreakConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	JWT struct {
		Secret     string        `mapstructure:"secret"`
		Expire     time.Duration `mapstructure:"expire"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
		Issuer     string        `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
	CORS struct {
		AllowOrigins     []string      `mapstructure:"allow_origins"`
		AllowMethods     []string      `mapstructure:"allow_methods"`
		AllowHeaders     []string      `mapstructure:"allow_headers"`
		AllowCredentials bool          `mapstructure:"allow_credentials"`
		MaxAge           time.Duration `mapstructure:"max_age"`
	} `mapstructure:"cors"`
	// PaymentCallbackToken authenticates gateway callbacks
	PaymentCallbackToken string `mapstructure:"payment_callback_token"`
}

// Refund policies
const (
	RefundFinancialOnly    = "financial_only"
	RefundRestoreInventory = "restore_inventory"
)

// Status policies
const (
	StatusPermissive = "permissive"
	StatusStrict     = "strict"
)

// MarketplaceConfig business rules
type MarketplaceConfig struct {
	PointsPerCurrencyUnit int64         `mapstructure:"points_per_currency_unit"`
	PointsEarnRate        float64       `mapstructure:"points_earn_rate"`
	TaxRate               float64       `mapstructure:"tax_rate"`
	ViolationThreshold    int           `mapstructure:"violation_threshold"`
	RefundPolicy          string        `mapstructure:"refund_policy"`
	StatusPolicy          string        `mapstructure:"status_policy"`
	PaymentTimeout        time.Duration `mapstructure:"payment_timeout"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize        int           `mapstructure:"sweep_batch_size"`
	ReportCacheTTL        time.Duration `mapstructure:"report_cache_ttl"`
}

// Tax returns the tax rate as a decimal fraction
func (m MarketplaceConfig) Tax() decimal.Decimal {
	return decimal.NewFromFloat(m.TaxRate).Round(4)
}

// EarnRate returns points earned per currency unit paid
func (m MarketplaceConfig) EarnRate() decimal.Decimal {
	return decimal.NewFromFloat(m.PointsEarnRate).Round(4)
}

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN
func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.Charset)
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.Username == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, username and dbname are required for mysql")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	m := c.Marketplace
	if m.PointsPerCurrencyUnit <= 0 {
		return fmt.Errorf("marketplace.points_per_currency_unit must be positive")
	}
	if m.PointsEarnRate < 0 {
		return fmt.Errorf("marketplace.points_earn_rate must not be negative")
	}
	if m.TaxRate < 0 || m.TaxRate >= 1 {
		return fmt.Errorf("marketplace.tax_rate must be in [0, 1)")
	}
	if m.ViolationThreshold < 1 {
		return fmt.Errorf("marketplace.violation_threshold must be at least 1")
	}
	if m.RefundPolicy != RefundFinancialOnly && m.RefundPolicy != RefundRestoreInventory {
		return fmt.Errorf("marketplace.refund_policy must be %s or %s", RefundFinancialOnly, RefundRestoreInventory)
	}
	if m.StatusPolicy != StatusPermissive && m.StatusPolicy != StatusStrict {
		return fmt.Errorf("marketplace.status_policy must be %s or %s", StatusPermissive, StatusStrict)
	}
	if m.PaymentTimeout <= 0 || m.SweepInterval <= 0 {
		return fmt.Errorf("marketplace.payment_timeout and sweep_interval must be positive")
	}

	return nil
}
