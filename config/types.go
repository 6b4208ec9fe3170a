// Package config loads, validates and watches the socialshard configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config represents the complete configuration
type Config struct {
	App     AppConfig     `yaml:"app" json:"app"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Actor   ActorConfig   `yaml:"actor" json:"actor"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Ranking RankingConfig `yaml:"ranking" json:"ranking"`
	Feed    FeedConfig    `yaml:"feed" json:"feed"`

	// KnownPrincipals maps a well-known principal kind to its identity
	KnownPrincipals map[string]string `yaml:"known_principals,omitempty" json:"known_principals,omitempty" validate:"dive,keys,oneof=CanisterIdUserIndex CanisterIdConfiguration CanisterIdProjectMemberIndex CanisterIdTopicCacheIndex CanisterIdRootCanister CanisterIdDataBackup CanisterIdPostCache CanisterIdSNSController UserIdGlobalSuperAdmin,endkeys,required"`

	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name" validate:"required"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment" validate:"oneof=development testing staging production"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level LogLevel `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" validate:"required"`
}

// ActorConfig contains actor system configuration
type ActorConfig struct {
	// Default actor mailbox size
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size" validate:"gt=0"`

	// Upper bound on handling one message
	ProcessTimeout time.Duration `yaml:"process_timeout" json:"process_timeout" validate:"gt=0"`

	// How long a call waits for its reply
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout" validate:"gt=0"`

	// Actor system shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects and configures the slot storage backend
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory badger redis"`

	// Badger data directory. Empty runs badger in memory.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig contains the redis backend settings
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db" json:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// RankingConfig bounds every user's score index
type RankingConfig struct {
	SoftCap int `yaml:"soft_cap" json:"soft_cap" validate:"gt=0"`
	HardCap int `yaml:"hard_cap" json:"hard_cap" validate:"gt=0,ltefield=SoftCap"`

	// Number of entries each user actor broadcasts
	TopN int `yaml:"top_n" json:"top_n" validate:"gt=0"`

	// Period of the broadcast scheduler
	BroadcastInterval time.Duration `yaml:"broadcast_interval" json:"broadcast_interval" validate:"gt=0"`
}

// FeedConfig bounds the aggregated feed
type FeedConfig struct {
	SoftCap int `yaml:"soft_cap" json:"soft_cap" validate:"gt=0"`
	HardCap int `yaml:"hard_cap" json:"hard_cap" validate:"gt=0,ltefield=SoftCap"`

	// Largest page query_top_posts serves
	MaxPage int `yaml:"max_page" json:"max_page" validate:"gt=0"`
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// Enable the HTTP monitoring server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// HTTP server address
	Address string `yaml:"address" json:"address"`

	// HTTP server port
	Port int `yaml:"port" json:"port" validate:"min=0,max=65535"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path" validate:"startswith=/"`

	// Health endpoint path
	HealthPath string `yaml:"health_path" json:"health_path" validate:"startswith=/"`
}

// Addr returns the listen address of the monitoring server.
func (m MonitorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Address, m.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "socialshard",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       true,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stdout",
		},
		Actor: ActorConfig{
			MailboxSize:     1000,
			ProcessTimeout:  30 * time.Second,
			CallTimeout:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Ranking: RankingConfig{
			SoftCap:           150,
			HardCap:           100,
			TopN:              3,
			BroadcastInterval: 5 * time.Minute,
		},
		Feed: FeedConfig{
			SoftCap: 1500,
			HardCap: 1000,
			MaxPage: 100,
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Address:     "0.0.0.0",
			Port:        9090,
			MetricsPath: "/metrics",
			HealthPath:  "/health",
		},
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrConfigValidateError, err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrConfigValidateError, strings.Join(fields, ", "))
	}

	if c.Store.Backend == BackendRedis && c.Store.Redis.Addr == "" {
		return fmt.Errorf("%w: redis backend needs store.redis.addr", ErrInvalidStore)
	}
	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}
