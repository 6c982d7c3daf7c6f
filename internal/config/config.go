// Package config loads service settings from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Config struct {
	Port             string        `mapstructure:"port"`
	MetricsPort      string        `mapstructure:"metrics_port"`
	Storage          string        `mapstructure:"storage"`
	PostgresURL      string        `mapstructure:"postgres_url"`
	PostgresSchema   string        `mapstructure:"postgres_schema"`
	KafkaBrokers     []string      `mapstructure:"kafka_brokers"`
	OrderEventsTopic string        `mapstructure:"order_events_topic"`
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	OTLPEndpoint     string        `mapstructure:"otel_exporter_otlp_endpoint"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	LogLevel         string        `mapstructure:"log_level"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration. An empty path looks for config.yaml in the working
// directory and ./config; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("metrics_port", "9091")
	v.SetDefault("storage", StoragePostgres)
	v.SetDefault("postgres_url", "")
	v.SetDefault("postgres_schema", "orders")
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("order_events_topic", "order.events")
	v.SetDefault("service_name", "orders")
	v.SetDefault("service_version", "1.0.0")
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", "10s")
}

func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.MetricsPort == "" {
		errs = append(errs, errors.New("metrics_port is required"))
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("postgres_url is required when storage is postgres"))
		}
		if !schemaPattern.MatchString(c.PostgresSchema) {
			errs = append(errs, fmt.Errorf("invalid postgres_schema %q", c.PostgresSchema))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q, want %s or %s", c.Storage, StorageMemory, StoragePostgres))
	}

	if len(c.KafkaBrokers) > 0 && c.OrderEventsTopic == "" {
		errs = append(errs, errors.New("order_events_topic is required when kafka_brokers is set"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// PostgresDSN returns PostgresURL with search_path pinned to PostgresSchema,
// so every pooled connection resolves unqualified table names the same way.
func (c *Config) PostgresDSN() (string, error) {
	if c.PostgresURL == "" {
		return "", errors.New("postgres_url is empty")
	}

	if !strings.HasPrefix(c.PostgresURL, "postgres://") && !strings.HasPrefix(c.PostgresURL, "postgresql://") {
		return c.PostgresURL + " search_path=" + c.PostgresSchema, nil
	}

	u, err := url.Parse(c.PostgresURL)
	if err != nil {
		return "", fmt.Errorf("invalid postgres_url: %w", err)
	}
	q := u.Query()
	q.Set("search_path", c.PostgresSchema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
