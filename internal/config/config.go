// Package config loads the service configuration: defaults, then an optional
// YAML file, then LEADFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/adapters/crm"
)

// EnvPrefix prefixes every environment override. A double underscore nests:
// LEADFLOW_HTTP__ADDR sets http.addr.
const EnvPrefix = "LEADFLOW_"

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Lead sinks.
const (
	SinkLog = "log"
	SinkCRM = "crm"
)

// Config is the top-level service configuration.
type Config struct {
	FlowsDir     string `koanf:"flows_dir"`
	DefaultFlow  string `koanf:"default_flow"`
	MaxValueSize int    `koanf:"max_value_size"`

	HTTP     HTTPConfig     `koanf:"http"`
	Log      LogConfig      `koanf:"log"`
	Session  SessionConfig  `koanf:"session"`
	Redis    RedisConfig    `koanf:"redis"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Executor ExecutorConfig `koanf:"executor"`
	Leads    LeadsConfig    `koanf:"leads"`
	CRM      crm.Config     `koanf:"crm"`
}

type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
	RateLimit         int           `koanf:"rate_limit"`
	RateWindow        time.Duration `koanf:"rate_window"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	Metrics           bool          `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type SessionConfig struct {
	Store   string        `koanf:"store"`
	TTL     time.Duration `koanf:"ttl"`
	LockTTL time.Duration `koanf:"lock_ttl"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
	// DistributedLock serializes turns across replicas.
	DistributedLock bool `koanf:"distributed_lock"`
}

type CatalogConfig struct {
	// Path of the SQLite file. Empty keeps the catalog in memory.
	Path string `koanf:"path"`
	// Seed is an optional courses YAML imported at startup.
	Seed         string        `koanf:"seed"`
	YearSpan     int           `koanf:"year_span"`
	Type1Key     string        `koanf:"type1_key"`
	Type2Key     string        `koanf:"type2_key"`
	BusyTimeout  time.Duration `koanf:"busy_timeout"`
	MaxOpenConns int           `koanf:"max_open_conns"`
}

type ExecutorConfig struct {
	Workers    int           `koanf:"workers"`
	QueueSize  int           `koanf:"queue_size"`
	JobTimeout time.Duration `koanf:"job_timeout"`
}

type LeadsConfig struct {
	Sink         string `koanf:"sink"`
	Company      string `koanf:"company"`
	LeadSource   string `koanf:"lead_source"`
	PrivacyValue string `koanf:"privacy_value"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		FlowsDir:    "flows",
		DefaultFlow: "default",
		HTTP: HTTPConfig{
			Addr:              ":3001",
			AllowedOrigins:    []string{"*"},
			RateWindow:        time.Minute,
			MaxBodyBytes:      64 << 10,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			Metrics:           true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Session: SessionConfig{
			Store:   StoreMemory,
			TTL:     30 * 24 * time.Hour,
			LockTTL: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "leadflow:",
		},
		Catalog: CatalogConfig{
			YearSpan:     3,
			Type1Key:     "type1",
			Type2Key:     "type2",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 8,
		},
		Executor: ExecutorConfig{
			Workers:    4,
			QueueSize:  256,
			JobTimeout: 30 * time.Second,
		},
		Leads: LeadsConfig{
			Sink:         SinkLog,
			Company:      "Particular",
			LeadSource:   "ChatWeb",
			PrivacyValue: "Aceptar",
		},
		CRM: crm.Config{
			APIVersion:  crm.DefaultAPIVersion,
			TokenURL:    crm.DefaultTokenURL,
			Timeout:     10 * time.Second,
			MaxAttempts: 1,
		},
	}
}

// Load reads path (skipped when empty or missing) and the environment over the
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envValue maps LEADFLOW_HTTP__ALLOWED_ORIGINS=a,b to http.allowed_origins=[a b].
func envValue(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	name = strings.ReplaceAll(name, "__", ".")
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return name, parts
	}
	return name, value
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.FlowsDir == "" {
		errs = append(errs, errors.New("flows_dir is required"))
	}
	if c.DefaultFlow == "" {
		errs = append(errs, errors.New("default_flow is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must be non-negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	switch c.Session.Store {
	case StoreMemory:
		if c.Redis.DistributedLock {
			errs = append(errs, errors.New("redis.distributed_lock requires session.store=redis"))
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for session.store=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid session.store %q: must be memory or redis", c.Session.Store))
	}
	if c.Executor.Workers < 1 {
		errs = append(errs, errors.New("executor.workers must be at least 1"))
	}
	if c.Executor.QueueSize < 1 {
		errs = append(errs, errors.New("executor.queue_size must be at least 1"))
	}
	switch c.Leads.Sink {
	case SinkLog:
	case SinkCRM:
		if err := c.CRM.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("invalid leads.sink %q: must be log or crm", c.Leads.Sink))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
