// Package config loads the agent settings from a YAML file, DATAAGENT_*
// environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/filestore"
	"github.com/koustreak/dataagent/internal/logger"
)

const (
	// EnvPrefix is prepended to every environment override,
	// e.g. DATAAGENT_DATABASE_DSN.
	EnvPrefix = "DATAAGENT"

	// DefaultFile is looked up in the working directory when no file is given.
	DefaultFile = "dataagent"
)

// Config is the full agent configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        logger.Config    `mapstructure:"log"`
	Database   database.Config  `mapstructure:"database"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Validator  ValidatorConfig  `mapstructure:"validator"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DiscoveryConfig controls startup scanning and the schema cache.
type DiscoveryConfig struct {
	AutoDiscover bool `mapstructure:"auto_discover"`

	// ScanPackages is a comma separated list of scopes.
	ScanPackages    string `mapstructure:"scan_packages"`
	StartupDelayMS  int    `mapstructure:"startup_delay_ms"`
	CacheSchemas    bool   `mapstructure:"cache_schemas"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	MaxEntities     int    `mapstructure:"max_entities"`

	// Manifest is an optional YAML file describing types that are not
	// compiled into the binary.
	Manifest string `mapstructure:"manifest"`
}

func (d DiscoveryConfig) StartupDelay() time.Duration {
	return time.Duration(d.StartupDelayMS) * time.Millisecond
}

func (d DiscoveryConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSeconds) * time.Second
}

// Translator kinds.
const (
	TranslatorRules = "rules"
	TranslatorHTTP  = "http"
)

type TranslatorConfig struct {
	Kind         string        `mapstructure:"kind"`
	Endpoint     string        `mapstructure:"endpoint"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Dialect      string        `mapstructure:"dialect"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

type ValidatorConfig struct {
	MinScore int  `mapstructure:"min_score"`
	ReadOnly bool `mapstructure:"read_only"`
}

// SnapshotConfig enables persisting learned schemas to object storage.
// With Enabled set and no endpoint, snapshots are kept in memory.
type SnapshotConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Store   filestore.Config `mapstructure:",squash"`
	Prefix  string           `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults registers every key with its default. Keys must be known
// to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.time_format", "rfc3339")

	db := database.DefaultConfig("")
	v.SetDefault("database.driver", string(database.DriverSQLite))
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", db.MaxConns)
	v.SetDefault("database.min_conns", db.MinConns)
	v.SetDefault("database.conn_max_lifetime", db.MaxConnLifetime)
	v.SetDefault("database.conn_max_idle_time", db.MaxConnIdleTime)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)
	v.SetDefault("database.query_timeout", db.QueryTimeout)

	v.SetDefault("discovery.auto_discover", true)
	v.SetDefault("discovery.scan_packages", "")
	v.SetDefault("discovery.startup_delay_ms", 1000)
	v.SetDefault("discovery.cache_schemas", true)
	v.SetDefault("discovery.cache_ttl_seconds", 3600)
	v.SetDefault("discovery.max_entities", 1000)
	v.SetDefault("discovery.manifest", "")

	v.SetDefault("translator.kind", TranslatorRules)
	v.SetDefault("translator.endpoint", "")
	v.SetDefault("translator.model", "")
	v.SetDefault("translator.timeout", 30*time.Second)
	v.SetDefault("translator.dialect", "")
	v.SetDefault("translator.default_limit", 50)

	v.SetDefault("validator.min_score", 50)
	v.SetDefault("validator.read_only", true)

	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.provider", string(filestore.ProviderMinIO))
	v.SetDefault("snapshot.endpoint", "")
	v.SetDefault("snapshot.access_key", "")
	v.SetDefault("snapshot.secret_key", "")
	v.SetDefault("snapshot.use_ssl", false)
	v.SetDefault("snapshot.region", "")
	v.SetDefault("snapshot.bucket", "dataagent")
	v.SetDefault("snapshot.prefix", "schemas")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads file (or dataagent.yaml in the working directory when file
// is empty), applies environment overrides and any flags bound on flags,
// and validates the result. A missing default file is not an error.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultFile)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"driver":    "database.driver",
	"dsn":       "database.dsn",
	"log-level": "log.level",
	"scan":      "discovery.scan_packages",
	"manifest":  "discovery.manifest",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "failed to bind flag "+name, err)
		}
	}
	return nil
}

// Validate checks the settings the agent cannot start without.
func (c *Config) Validate() error {
	driver, err := database.ParseDriver(string(c.Database.Driver))
	if err != nil {
		return err
	}
	c.Database.Driver = driver
	if driver == database.DriverSQLite && strings.TrimSpace(c.Database.DSN) == "" {
		c.Database.DSN = ":memory:"
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}

	switch c.Translator.Kind {
	case TranslatorRules:
	case TranslatorHTTP:
		if strings.TrimSpace(c.Translator.Endpoint) == "" {
			return errs.New(errs.ErrKindInvalidInput, "translator endpoint is required for the http translator")
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown translator kind %q", c.Translator.Kind)
	}

	if c.Validator.MinScore < 0 || c.Validator.MinScore > 100 {
		return errs.Newf(errs.ErrKindInvalidInput, "validator min_score %d is outside 0..100", c.Validator.MinScore)
	}
	if c.Discovery.MaxEntities < 0 {
		return errs.New(errs.ErrKindInvalidInput, "discovery max_entities cannot be negative")
	}
	if c.Snapshot.Enabled && c.Snapshot.Store.Endpoint != "" {
		if err := c.Snapshot.Store.Validate(); err != nil {
			return err
		}
	}
	return nil
}
