package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/odit-bit/rcaccelerator/auth"
	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/odit-bit/rcaccelerator/history"
	"github.com/odit-bit/rcaccelerator/model"
	"github.com/odit-bit/rcaccelerator/model/driver"
	"github.com/odit-bit/rcaccelerator/store"
	"github.com/odit-bit/rcaccelerator/tempest"
	"github.com/odit-bit/rcaccelerator/vectordb"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//go:embed config.yaml
var defaultConfig embed.FS

const EnvPrefix = "RCA"

// holds aggregate configuration of the rca service and its clients.
type Config struct {
	Server       ServerConfig    `mapstructure:"server"`
	Database     store.Config    `mapstructure:"database"`
	VectorDB     vectordb.Config `mapstructure:"vectordb"`
	History      history.Config  `mapstructure:"history"`
	Models       ModelsConfig    `mapstructure:"models"`
	Defaults     chat.Settings   `mapstructure:"defaults"`
	ProfilesFile string          `mapstructure:"profiles_file"`
	Tempest      tempest.Config  `mapstructure:"tempest"`
	Auth         auth.Config     `mapstructure:"auth"`
	Observe      ObsConfig       `mapstructure:"observability"`
	Client       ClientConfig    `mapstructure:"client"`
	Telegram     TelegramConfig  `mapstructure:"telegram"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Debug   bool   `mapstructure:"debug"`
	// text or json
	LogFormat string   `mapstructure:"log_format"`
	CORS      []string `mapstructure:"cors"`
}

type ModelsConfig struct {
	ListCacheTTL  time.Duration `mapstructure:"list_cache_ttl"`
	ListTimeout   time.Duration `mapstructure:"list_timeout"`
	EmbedMaxChars int           `mapstructure:"embed_max_chars"`
	Generative    driver.Config `mapstructure:"generative"`
	Embeddings    driver.Config `mapstructure:"embeddings"`
	Rerank        driver.Config `mapstructure:"rerank"`
}

type ObsConfig struct {
	Enable bool `mapstructure:"enable"`
	// if not set but enable will use stdout
	Exporter string `mapstructure:"exporter"`
	// http endpoint exporter
	TraceEndpoint   string `mapstructure:"trace_endpoint"`
	MetricsEndpoint string `mapstructure:"metrics_endpoint"`
	// secure endpoint (https)
	Secure bool `mapstructure:"secure"`
	// serve /metrics
	Prometheus bool `mapstructure:"prometheus"`
}

// how the cli and the telegram bot reach the rca server
type ClientConfig struct {
	Address string        `mapstructure:"address"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Production  bool          `mapstructure:"production"`
}

// Validate checks the server side configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server address is required")
	}
	// Check if the address is a valid host:port
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("invalid server address format: %w", err)
	}

	var errs error
	check := func(kind model.Kind, cfg driver.Config) {
		if !driver.Known(kind, cfg.Driver) {
			errs = errors.Join(errs, fmt.Errorf("unknown %s driver: %q", kind, cfg.Driver))
		}
	}
	check(model.KindGenerative, c.Models.Generative)
	check(model.KindEmbeddings, c.Models.Embeddings)
	check(model.KindRerank, c.Models.Rerank)

	switch c.Database.Driver {
	case store.SQLite, store.Postgres:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown database driver: %q", c.Database.Driver))
	}
	switch c.VectorDB.Backend {
	case vectordb.BackendMemory:
	case vectordb.BackendPGVector:
		if c.VectorDB.DSN == "" {
			errs = errors.Join(errs, errors.New("vectordb dsn is required for pgvector"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown vectordb backend: %q", c.VectorDB.Backend))
	}
	switch c.History.Backend {
	case history.BackendMemory:
	case history.BackendRedis:
		if c.History.RedisURL == "" {
			errs = errors.Join(errs, errors.New("history redis_url is required for redis"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown history backend: %q", c.History.Backend))
	}
	switch c.Server.LogFormat {
	case "", "text", "json":
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown log format: %q", c.Server.LogFormat))
	}

	if err := c.Defaults.CheckRanges(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("defaults: %w", err))
	}
	if c.Tempest.Concurrency < 1 {
		errs = errors.Join(errs, errors.New("tempest concurrency must be at least 1"))
	}
	return errs
}

// Load reads configuration from the embedded config.yaml, the file given by --config,
// RCA_ prefixed env vars and flags, in increasing precedence. It does not validate.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flagName, configKey := range flagToConfigKeyMap {
			f := flags.Lookup(flagName)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(configKey, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
			}
		}
	}

	defaultBytes, err := defaultConfig.ReadFile("config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaultBytes)); err != nil {
		return nil, fmt.Errorf("failed to read default config: %w", err)
	}

	if flags != nil {
		if configFile, _ := flags.GetString(FLAG_CONFIG_FILE); configFile != "" {
			b, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate is Load followed by Validate.
func LoadAndValidate(flags *pflag.FlagSet) (*Config, error) {
	cfg, err := Load(flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
