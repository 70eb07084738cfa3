package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the bridge service.
type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`
	Store struct {
		// Driver selects the persistence backend: "sqlite" or "postgres".
		Driver string `mapstructure:"driver"`
		// DSN is the connection string. For sqlite this is a file path,
		// for postgres a pgx connection string.
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"store"`
	Session struct {
		// TTL after which an idle workflow session is pruned, in seconds.
		TTLSeconds int `mapstructure:"ttl_seconds"`
		// MaxWorkflows bounds the number of live sessions. 0 means unlimited.
		MaxWorkflows int `mapstructure:"max_workflows"`
		// SweepIntervalSeconds is the period of the background prune task.
		SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	} `mapstructure:"session"`
	OpenAI struct {
		Model   string `mapstructure:"model"`
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"openai"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// SessionTTL returns the configured session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// SweepInterval returns the configured prune-sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalSeconds) * time.Second
}

// LoadConfig loads the configuration from a file and the environment.
// Environment variables override file values (e.g. BRIDGE_STORE_DSN).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0) // streaming responses must not time out mid-flight
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "bridge.db")
	v.SetDefault("session.ttl_seconds", 3600)
	v.SetDefault("session.max_workflows", 0)
	v.SetDefault("session.sweep_interval_seconds", 60)
	v.SetDefault("openai.model", "gpt-4o-mini")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
