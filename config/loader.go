package config

// loader.go - configuration loading from the environment and an
// optional YAML file.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (SERBRIDGE_*)
//   3. Config file (serbridge.yaml)
//   4. Defaults    (defaults.go)

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load builds the base Config from defaults, an optional YAML file,
// and SERBRIDGE_* environment variables.  cmd overlays explicitly set
// CLI flags on top, so flags keep the highest precedence.
//
// path selects a specific config file.  When empty, serbridge.yaml is
// searched for in the working directory and $HOME/.config/serbridge,
// and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SERBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("serbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/serbridge")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment variables remain
// visible to Unmarshal even without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("connect", "")
	v.SetDefault("reconnect", false)
	v.SetDefault("buffer", DefaultBufferSize)
	v.SetDefault("high-water", DefaultHighWater)
	v.SetDefault("low-water", DefaultLowWater)
	v.SetDefault("verbose", 0)
	v.SetDefault("log-file", "")
	v.SetDefault("log-max-size", DefaultLogMaxSize)
}
