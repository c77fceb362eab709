package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/intellisearch/synthesizer/internal/db"
	"github.com/intellisearch/synthesizer/internal/generator"
	"github.com/intellisearch/synthesizer/internal/tracing"
)

// Config is the full service configuration. Values come from the YAML file
// named by CONFIG_PATH (default config/synthesizer.yaml), overridable per
// key through SYNTH_-prefixed environment variables, e.g.
// SYNTH_SERVER_PORT or SYNTH_REDIS_ADDR.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Database  db.Config        `mapstructure:"database"`
	Generator generator.Config `mapstructure:"generator"`
	Tracing   tracing.Config   `mapstructure:"tracing"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Profiles  ProfilesConfig   `mapstructure:"profiles"`
	Synthesis SynthesisConfig  `mapstructure:"synthesis"`
	Auth      AuthConfig       `mapstructure:"auth"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type ProfilesConfig struct {
	Path      string `mapstructure:"path"`
	HotReload bool   `mapstructure:"hot_reload"`
}

type SynthesisConfig struct {
	SectionConcurrency int  `mapstructure:"section_concurrency"`
	ArchiveReports     bool `mapstructure:"archive_reports"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Load reads the service configuration. A missing config file is not an
// error; defaults and environment overrides still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SYNTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/synthesizer.yaml"
	}
	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "synthesizer.db")

	v.SetDefault("generator.max_retries", 2)
	v.SetDefault("generator.rate_limit", 5.0)
	v.SetDefault("generator.burst", 10)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "report-synthesizer")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("profiles.hot_reload", true)

	v.SetDefault("synthesis.section_concurrency", 3)
	v.SetDefault("synthesis.archive_reports", true)

	v.SetDefault("auth.enabled", true)
}
