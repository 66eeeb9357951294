// Package config loads service settings from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	ProviderMpesa   = "mpesa"
	ProviderSandbox = "sandbox"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"minishop-checkout"`
	Env         string `env:"ENV" env-default:"dev"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	LogFile     string `env:"LOG_FILE"`

	HTTP     HTTP
	DB       DB
	Redis    Redis
	Kafka    Kafka
	Auth     Auth
	Payment  Payment
	Mpesa    Mpesa
	Checkout Checkout
}

type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	SecureCookies   bool          `env:"HTTP_SECURE_COOKIES" env-default:"false"`
}

// DB selects the ledger store. An empty DSN keeps everything in process memory.
type DB struct {
	Driver string `env:"DB_DRIVER" env-default:"sqlite"`
	DSN    string `env:"DB_DSN"`
}

// Redis holds the session store address. Empty means in-memory sessions.
// LockTTL of zero derives the session lock lifetime from PAYMENT_TIMEOUT.
type Redis struct {
	Addr       string        `env:"REDIS_ADDR"`
	Password   string        `env:"REDIS_PASSWORD"`
	DB         int           `env:"REDIS_DB" env-default:"0"`
	SessionTTL time.Duration `env:"SESSION_TTL" env-default:"24h"`
	LockTTL    time.Duration `env:"SESSION_LOCK_TTL"`
}

// lockTTLMargin covers the work a checkout does around the provider call while holding the lock.
const lockTTLMargin = 30 * time.Second

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"checkout-events"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Payment struct {
	Provider           string        `env:"PAYMENT_PROVIDER" env-default:"sandbox"`
	Timeout            time.Duration `env:"PAYMENT_TIMEOUT" env-default:"30s"`
	SandboxSuccessRate float64       `env:"SANDBOX_SUCCESS_RATE" env-default:"0.7"`
	SandboxDelay       time.Duration `env:"SANDBOX_CALLBACK_DELAY" env-default:"2s"`
}

type Mpesa struct {
	BaseURL        string `env:"MPESA_BASE_URL" env-default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey    string `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string `env:"MPESA_CONSUMER_SECRET"`
	ShortCode      string `env:"MPESA_SHORTCODE"`
	PassKey        string `env:"MPESA_PASSKEY"`
	CallbackURL    string `env:"MPESA_CALLBACK_URL"`
}

type Checkout struct {
	Concurrency int `env:"CHECKOUT_CONCURRENCY" env-default:"8"`
}

// Load reads envFile when it exists, then the process environment, then validates the result.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SessionLockTTL is how long a session lock may live in redis. It always outlasts a provider call
// so a slow gateway cannot let a second checkout for the same session in.
func (c *Config) SessionLockTTL() time.Duration {
	if c.Redis.LockTTL > 0 {
		return c.Redis.LockTTL
	}
	return c.Payment.Timeout + lockTTLMargin
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver))
	}

	switch strings.ToLower(c.Payment.Provider) {
	case ProviderSandbox:
		if c.Payment.SandboxSuccessRate < 0 || c.Payment.SandboxSuccessRate > 1 {
			errs = append(errs, errors.New("SANDBOX_SUCCESS_RATE must be between 0 and 1"))
		}
	case ProviderMpesa:
		required := []struct{ key, value string }{
			{"MPESA_CONSUMER_KEY", c.Mpesa.ConsumerKey},
			{"MPESA_CONSUMER_SECRET", c.Mpesa.ConsumerSecret},
			{"MPESA_SHORTCODE", c.Mpesa.ShortCode},
			{"MPESA_PASSKEY", c.Mpesa.PassKey},
			{"MPESA_CALLBACK_URL", c.Mpesa.CallbackURL},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				errs = append(errs, fmt.Errorf("%s is required for the mpesa provider", r.key))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_PROVIDER must be mpesa or sandbox, got %q", c.Payment.Provider))
	}

	if c.Payment.Timeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}
	if c.Redis.LockTTL < 0 {
		errs = append(errs, errors.New("SESSION_LOCK_TTL must not be negative"))
	} else if c.Redis.LockTTL > 0 && c.Redis.LockTTL <= c.Payment.Timeout {
		errs = append(errs, fmt.Errorf("SESSION_LOCK_TTL (%s) must be longer than PAYMENT_TIMEOUT (%s)", c.Redis.LockTTL, c.Payment.Timeout))
	}
	if c.Checkout.Concurrency <= 0 {
		errs = append(errs, errors.New("CHECKOUT_CONCURRENCY must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
