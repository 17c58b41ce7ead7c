package app

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is read from the environment by LoadConfig. Field tags name the
// variable each field comes from.
type Config struct {
	// Identity backend. Headers are sent with every request (k=v,k=v).
	IdentityBaseURL   string            `env:"IDENTITY_BASE_URL" validate:"required,url"`
	IdentityTimeout   time.Duration     `env:"IDENTITY_TIMEOUT" validate:"gt=0"`
	IdentityRateLimit float64           `env:"IDENTITY_RATE_LIMIT" validate:"gte=0"`
	IdentityHeaders   map[string]string `env:"IDENTITY_HEADERS"`

	DatabaseFile string `env:"DATABASE_FILE" validate:"required"`
	PepperFile   string `env:"PEPPER_FILE" validate:"required"`

	PincodePromptAfter time.Duration `env:"PINCODE_PROMPT_AFTER" validate:"gt=0"`
	PincodeLength      int           `env:"PINCODE_LENGTH" validate:"gte=4,lte=8"`

	// ReachabilityURL defaults to the identity base url.
	ReachabilityURL      string        `env:"REACHABILITY_URL" validate:"omitempty,url"`
	ReachabilityInterval time.Duration `env:"REACHABILITY_INTERVAL" validate:"gt=0"`

	// ShutdownGracePeriod bounds how long Shutdown waits for pending logouts.
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" validate:"gt=0"`

	Env       string `env:"ENV" validate:"oneof=dev staging prod"`
	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=json text"`
}

func LoadConfig() Config {
	return Config{
		IdentityBaseURL:      os.Getenv("IDENTITY_BASE_URL"),
		IdentityTimeout:      getEnvDurationOrDefault("IDENTITY_TIMEOUT", 30*time.Second),
		IdentityRateLimit:    getEnvFloatOrDefault("IDENTITY_RATE_LIMIT", 10),
		IdentityHeaders:      parseHeaders(os.Getenv("IDENTITY_HEADERS")),
		DatabaseFile:         getEnvOrDefault("DATABASE_FILE", "session.db"),
		PepperFile:           getEnvOrDefault("PEPPER_FILE", "pepper"),
		PincodePromptAfter:   getEnvDurationOrDefault("PINCODE_PROMPT_AFTER", 300*time.Second),
		PincodeLength:        getEnvIntOrDefault("PINCODE_LENGTH", 4),
		ReachabilityURL:      os.Getenv("REACHABILITY_URL"),
		ReachabilityInterval: getEnvDurationOrDefault("REACHABILITY_INTERVAL", 15*time.Second),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

// Validate reports every invalid field by its environment variable name.
func (c Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// probeURL is where connectivity is checked.
func (c Config) probeURL() string {
	if c.ReachabilityURL != "" {
		return c.ReachabilityURL
	}
	return c.IdentityBaseURL
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "30s", "5m", ...
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

// parseHeaders reads "k=v,k=v". Malformed pairs are skipped.
func parseHeaders(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
