package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Geo         GeoConfig         `yaml:"geo" mapstructure:"geo"`
	Accounts    AccountsConfig    `yaml:"accounts" mapstructure:"accounts"`
	Observatory ObservatoryConfig `yaml:"observatory" mapstructure:"observatory"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the analytics event store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the policy catalogue and rule files loaded at
// process start.
type CatalogConfig struct {
	XLSXPath       string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	KeywordMapPath string `yaml:"keyword_map_path" mapstructure:"keyword_map_path"`
	SchemaPath     string `yaml:"schema_path" mapstructure:"schema_path"`
}

// GeoConfig configures the geographic reference tables.
type GeoConfig struct {
	Dir            string `yaml:"dir" mapstructure:"dir"`
	UFsFile        string `yaml:"ufs_file" mapstructure:"ufs_file"`
	MunicipiosFile string `yaml:"municipios_file" mapstructure:"municipios_file"`
}

// AccountsConfig configures the account/profile database.
type AccountsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ObservatoryConfig configures the analytics rollups.
type ObservatoryConfig struct {
	TopN int `yaml:"top_n" mapstructure:"top_n"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("MATUPIRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/analytics.db")
	v.SetDefault("catalog.xlsx_path", "data/politicas.xlsx")
	v.SetDefault("catalog.keyword_map_path", "data/keyword_map.json")
	v.SetDefault("catalog.schema_path", "data/profile_schema.json")
	v.SetDefault("geo.dir", "data/geo")
	v.SetDefault("geo.ufs_file", "ufs.csv")
	v.SetDefault("geo.municipios_file", "municipios.csv")
	v.SetDefault("accounts.path", "data/accounts.db")
	v.SetDefault("observatory.top_n", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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
