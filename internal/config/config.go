package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/catalog-cli/internal/feed"
	"github.com/sells-group/catalog-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Consolidation ConsolidationConfig `yaml:"consolidation" mapstructure:"consolidation"`
	Import        ImportConfig        `yaml:"import" mapstructure:"import"`
	Aliases       AliasConfig         `yaml:"aliases" mapstructure:"aliases"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string            `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ConsolidationConfig tunes the catalog rebuild batch sizes.
type ConsolidationConfig struct {
	PageSize  int `yaml:"page_size" mapstructure:"page_size"`
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// ImportConfig configures price-list fetching and per-supplier layouts.
type ImportConfig struct {
	TimeoutSecs   int                     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int                     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond float64                 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Parallelism   int                     `yaml:"parallelism" mapstructure:"parallelism"`
	Profiles      map[string]feed.Profile `yaml:"profiles" mapstructure:"profiles"`
}

// AliasConfig points at an optional YAML alias table. When the path is empty
// the built-in tables apply.
type AliasConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "catalog.db")
	v.SetDefault("consolidation.page_size", 1000)
	v.SetDefault("consolidation.chunk_size", 500)
	v.SetDefault("import.timeout_secs", 30)
	v.SetDefault("import.max_retries", 3)
	v.SetDefault("import.rate_per_second", 2)
	v.SetDefault("import.parallelism", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireDB := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "consolidate", "import", "rules", "runs", "facets":
		requireDB()
	case "serve":
		requireDB()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Consolidation.PageSize < 0 || c.Consolidation.ChunkSize < 0 {
		problems = append(problems, "consolidation batch sizes must be >= 0")
	}
	if c.Import.Parallelism < 0 {
		problems = append(problems, "import.parallelism must be >= 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
