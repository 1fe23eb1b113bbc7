package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override: RASP_HTTP_ADDR
// overrides http.addr.
const EnvPrefix = "RASP"

// Config is the agent boot configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Modules    ModulesConfig    `mapstructure:"modules"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// ModulesConfig points at the module configuration document and lists
// modules that must stay unloaded.
type ModulesConfig struct {
	File     string        `mapstructure:"file"`
	Disabled []string      `mapstructure:"disabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// ClickHouseConfig enables attack persistence when DSN is set.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PostgresConfig enables the module_configs source when DSN is set.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig enables remote reconfiguration notices when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// HTTPConfig configures the control API. With neither TokenHash nor
// JWTPublicKey set the API is unauthenticated.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	TokenHash    string        `mapstructure:"token_hash"`
	JWTPublicKey string        `mapstructure:"jwt_public_key"` // PEM file path
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CORSOrigin   string        `mapstructure:"cors_origin"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the boot configuration. An explicit path must exist; without
// one, rasp-agent.yaml is looked up in the working directory and /etc/rasp-agent,
// and a missing file leaves defaults and environment overrides in effect.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rasp-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rasp-agent")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Modules.Disabled = splitList(cfg.Modules.Disabled)
	return &cfg, nil
}

// Every key needs a default so AutomaticEnv overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("modules.file", "")
	v.SetDefault("modules.disabled", []string{})
	v.SetDefault("modules.debounce", 500*time.Millisecond)
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "rasp:modules:reload")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.token_hash", "")
	v.SetDefault("http.jwt_public_key", "")
	v.SetDefault("http.cache_ttl", 5*time.Minute)
	v.SetDefault("http.cors_origin", "")
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("metrics.addr", ":9090")
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
