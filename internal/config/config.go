// Package config loads service settings from defaults, an optional YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Amount policies applied when a confirmed payment amount differs from the server-side total.
const (
	AmountPolicyReject = "reject"
	AmountPolicyLog    = "log"
)

type Config struct {
	Service  Service  `mapstructure:"service"`
	HTTP     HTTP     `mapstructure:"http"`
	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Auth     Auth     `mapstructure:"auth"`
	Checkout Checkout `mapstructure:"checkout"`
	PayPal   PayPal   `mapstructure:"paypal"`
	NETS     NETS     `mapstructure:"nets"`
	HitPay   HitPay   `mapstructure:"hitpay"`
}

type Service struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type HTTP struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst"`
}

type Database struct {
	// Driver is "mysql" or "sqlite3".
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type Redis struct {
	// Addr empty keeps checkout selections in process memory.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Kafka struct {
	// Brokers empty disables the event sink.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminRole string `mapstructure:"admin_role"`
}

type Checkout struct {
	SelectionTTL time.Duration `mapstructure:"selection_ttl"`
	Currency     string        `mapstructure:"currency"`
	AmountPolicy string        `mapstructure:"amount_policy"`
}

type PayPal struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type NETS struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	ProjectID    string        `mapstructure:"project_id"`
	NotifyMobile string        `mapstructure:"notify_mobile"`
	QRTimeout    time.Duration `mapstructure:"qr_timeout"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type HitPay struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	ReturnURL       string        `mapstructure:"return_url"`
	ConfirmAttempts int           `mapstructure:"confirm_attempts"`
	ConfirmDelay    time.Duration `mapstructure:"confirm_delay"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "minishop-storefront")
	v.SetDefault("service.env", "dev")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_file", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 7*time.Second)
	v.SetDefault("http.read_header_timeout", 2*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.rate_limit", 10.0)
	v.SetDefault("http.rate_burst", 20)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:minishop.db?_foreign_keys=on&_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "storefront-events")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("checkout.selection_ttl", 30*time.Minute)
	v.SetDefault("checkout.currency", "SGD")
	v.SetDefault("checkout.amount_policy", AmountPolicyReject)

	v.SetDefault("paypal.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("paypal.client_id", "")
	v.SetDefault("paypal.client_secret", "")
	v.SetDefault("paypal.timeout", 15*time.Second)

	v.SetDefault("nets.base_url", "https://sandbox.nets.openapipaas.com")
	v.SetDefault("nets.api_key", "")
	v.SetDefault("nets.project_id", "")
	v.SetDefault("nets.notify_mobile", "")
	v.SetDefault("nets.qr_timeout", 3*time.Minute)
	v.SetDefault("nets.timeout", 10*time.Second)

	v.SetDefault("hitpay.base_url", "https://api.sandbox.hit-pay.com")
	v.SetDefault("hitpay.api_key", "")
	v.SetDefault("hitpay.return_url", "http://localhost:8080/payments/hitpay/return")
	v.SetDefault("hitpay.confirm_attempts", 5)
	v.SetDefault("hitpay.confirm_delay", 1500*time.Millisecond)
	v.SetDefault("hitpay.timeout", 10*time.Second)
}

// Load reads configuration. path may be empty; envFiles are optional dotenv files that never
// override variables already present in the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names kept from the earlier deployment manifests.
	_ = v.BindEnv("service.name", "SERVICE_NAME")
	_ = v.BindEnv("service.env", "SERVICE_ENV", "ENV")
	_ = v.BindEnv("service.log_file", "SERVICE_LOG_FILE", "LOG_FILE")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Checkout.AmountPolicy {
	case AmountPolicyReject, AmountPolicyLog:
	default:
		errs = append(errs, fmt.Errorf("checkout.amount_policy %q is not supported", c.Checkout.AmountPolicy))
	}
	if c.Checkout.SelectionTTL <= 0 {
		errs = append(errs, errors.New("checkout.selection_ttl must be positive"))
	}
	if c.NETS.QRTimeout <= 0 {
		errs = append(errs, errors.New("nets.qr_timeout must be positive"))
	}
	if c.HitPay.ConfirmAttempts < 1 {
		errs = append(errs, errors.New("hitpay.confirm_attempts must be at least 1"))
	}
	if c.HitPay.ConfirmDelay < 0 {
		errs = append(errs, errors.New("hitpay.confirm_delay must not be negative"))
	}
	return errors.Join(errs...)
}
