package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envKeys are the nested keys that can be overridden from the environment.
// Example: RATELIMIT_STORE_REDIS_ADDR overrides store.redis.addr.
var envKeys = []string{
	"store.type",
	"store.redis.addr",
	"store.redis.username",
	"store.redis.password",
	"store.redis.db",
	"store.sqlite.dsn",
	"algorithm.type",
	"algorithm.tokens",
	"algorithm.window",
	"algorithm.max_tokens",
	"algorithm.refill_rate",
	"algorithm.interval",
	"prefix",
	"timeout",
	"analytics",
	"server.http_addr",
	"server.log_level",
	"server.log_format",
	"server.identifier_header",
}

// NewViper returns a Viper instance reading configFile, or ratelimit.yaml
// (or .yml) from the current directory or $HOME/.ratelimit when configFile
// is empty, with RATELIMIT_* environment overrides.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("RATELIMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

func findConfigFile() string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ratelimit"))
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "ratelimit"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Load reads the configuration, applies defaults and validates it. A
// missing config file is not an error: defaults and environment variables
// still apply.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
